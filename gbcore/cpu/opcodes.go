package cpu

// opcodeTable is the 256-entry main instruction dispatch table. Regular
// instruction families (8-bit loads between registers, the eight ALU ops
// against the eight operands, INC/DEC r, 16-bit register-pair loads/INC/DEC/
// ADD HL, PUSH/POP, RST) are generated by small loops below; irregular
// control-flow and CPU-control instructions are individually named
// functions. Either shape is a direct `func(*CPU)` table, which is all spec
// §9 requires.
var opcodeTable = buildOpcodeTable()

func buildOpcodeTable() map[uint8]func(*CPU) {
	t := make(map[uint8]func(*CPU), 256)

	// LD r,r' : 0x40-0x7F, dest = (opcode-0x40)/8, src = (opcode-0x40)%8.
	// 0x76 (dest=(HL), src=(HL)) is HALT instead of a self-store.
	for opcode := 0x40; opcode <= 0x7F; opcode++ {
		op := uint8(opcode)
		if op == 0x76 {
			t[op] = opHalt
			continue
		}
		dest := uint8((opcode - 0x40) / 8)
		src := uint8((opcode - 0x40) % 8)
		t[op] = func(c *CPU) {
			c.setReg8(dest, c.getReg8(src))
		}
	}

	// ALU A,r : 0x80-0xBF, eight ops of eight operands each.
	aluOps := []func(*CPU, uint8){
		(*CPU).add8, (*CPU).adc8, (*CPU).sub8, (*CPU).sbc8,
		(*CPU).and8, (*CPU).or8, (*CPU).xor8, (*CPU).cp8,
	}
	for i, fn := range aluOps {
		base := uint8(0x80 + i*8)
		op := fn
		for r := uint8(0); r < 8; r++ {
			opcode := base + r
			src := r
			t[opcode] = func(c *CPU) {
				op(c, c.getReg8(src))
			}
		}
	}

	// INC r / DEC r / LD r,n : spaced by 8 starting at 0x04/0x05/0x06.
	for n := uint8(0); n < 8; n++ {
		reg := n
		t[0x04+8*n] = func(c *CPU) {
			c.setReg8(reg, c.inc8(c.getReg8(reg)))
		}
		t[0x05+8*n] = func(c *CPU) {
			c.setReg8(reg, c.dec8(c.getReg8(reg)))
		}
		t[0x06+8*n] = func(c *CPU) {
			c.setReg8(reg, c.fetch8())
		}
	}

	// 16-bit register pair ops: LD rr,nn (0x01+16n) / ADD HL,rr (0x09+16n)
	// / INC rr (0x03+16n) / DEC rr (0x0B+16n), pairs in BC,DE,HL,SP order.
	pairGet := []func(*CPU) uint16{
		func(c *CPU) uint16 { return c.bc.get() },
		func(c *CPU) uint16 { return c.de.get() },
		func(c *CPU) uint16 { return c.hl.get() },
		func(c *CPU) uint16 { return c.sp.get() },
	}
	pairSet := []func(*CPU, uint16){
		func(c *CPU, v uint16) { c.bc.set(v) },
		func(c *CPU, v uint16) { c.de.set(v) },
		func(c *CPU, v uint16) { c.hl.set(v) },
		func(c *CPU, v uint16) { c.sp.set(v) },
	}
	for i := 0; i < 4; i++ {
		get, set := pairGet[i], pairSet[i]
		base := uint8(0x01 + 0x10*i)
		t[base] = func(c *CPU) { set(c, c.fetch16()) }
		t[base+0x08] = func(c *CPU) { c.addHL16(get(c)); c.tick() }
		t[base+0x02] = func(c *CPU) { set(c, get(c)+1); c.tick() }
		t[base+0x0A] = func(c *CPU) { set(c, get(c)-1); c.tick() }
	}

	// PUSH/POP rr : BC,DE,HL,AF order at 0xC1/C5, 0xD1/D5, 0xE1/E5, 0xF1/F5.
	stackGet := []func(*CPU) uint16{
		func(c *CPU) uint16 { return c.bc.get() },
		func(c *CPU) uint16 { return c.de.get() },
		func(c *CPU) uint16 { return c.hl.get() },
		func(c *CPU) uint16 { return c.af.get() & 0xFFF0 },
	}
	stackSet := []func(*CPU, uint16){
		func(c *CPU, v uint16) { c.bc.set(v) },
		func(c *CPU, v uint16) { c.de.set(v) },
		func(c *CPU, v uint16) { c.hl.set(v) },
		func(c *CPU, v uint16) { c.af.set(v & 0xFFF0) },
	}
	for i := 0; i < 4; i++ {
		get, set := stackGet[i], stackSet[i]
		base := uint8(0xC1 + 0x10*i)
		t[base] = func(c *CPU) { set(c, c.popStack()) }
		t[base+0x04] = func(c *CPU) { c.pushStack(get(c)) }
	}

	// RST vectors: 0xC7+8n -> RST n*8.
	for n := uint8(0); n < 8; n++ {
		vector := uint16(n) * 8
		t[0xC7+8*n] = func(c *CPU) {
			c.pushStack(c.pc.get())
			c.pc.set(vector)
		}
	}

	// Illegal opcodes lock the CPU up (spec §7).
	for _, op := range []uint8{0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD} {
		code := op
		t[code] = func(c *CPU) { c.illegalOpcode(code) }
	}

	for op, fn := range handwrittenOpcodes {
		t[op] = fn
	}

	return t
}

var handwrittenOpcodes = map[uint8]func(*CPU){
	0x00: func(c *CPU) {}, // NOP

	0x02: func(c *CPU) { c.writeByte(c.bc.get(), c.af.getHigh()) },
	0x0A: func(c *CPU) { c.af.setHigh(c.readByte(c.bc.get())) },
	0x12: func(c *CPU) { c.writeByte(c.de.get(), c.af.getHigh()) },
	0x1A: func(c *CPU) { c.af.setHigh(c.readByte(c.de.get())) },
	0x22: func(c *CPU) {
		c.writeByte(c.hl.get(), c.af.getHigh())
		c.hl.incr()
	},
	0x2A: func(c *CPU) {
		c.af.setHigh(c.readByte(c.hl.get()))
		c.hl.incr()
	},
	0x32: func(c *CPU) {
		c.writeByte(c.hl.get(), c.af.getHigh())
		c.hl.decr()
	},
	0x3A: func(c *CPU) {
		c.af.setHigh(c.readByte(c.hl.get()))
		c.hl.decr()
	},

	0x07: func(c *CPU) { c.af.setHigh(c.rlc(c.af.getHigh(), true)) },
	0x0F: func(c *CPU) { c.af.setHigh(c.rrc(c.af.getHigh(), true)) },
	0x17: func(c *CPU) { c.af.setHigh(c.rl(c.af.getHigh(), true)) },
	0x1F: func(c *CPU) { c.af.setHigh(c.rr(c.af.getHigh(), true)) },

	0x08: func(c *CPU) { c.writeWord(c.fetch16(), c.sp.get()) },

	0x10: opStop,
	0x76: opHalt,

	0x18: func(c *CPU) { opJR(c, true) },
	0x20: func(c *CPU) { opJR(c, !c.flagSet(flagZ)) },
	0x28: func(c *CPU) { opJR(c, c.flagSet(flagZ)) },
	0x30: func(c *CPU) { opJR(c, !c.flagSet(flagC)) },
	0x38: func(c *CPU) { opJR(c, c.flagSet(flagC)) },

	0x27: func(c *CPU) { c.daa() },
	0x2F: func(c *CPU) { c.cpl() },
	0x37: func(c *CPU) { c.scf() },
	0x3F: func(c *CPU) { c.ccf() },

	0xC2: func(c *CPU) { opJP(c, !c.flagSet(flagZ)) },
	0xC3: func(c *CPU) { opJP(c, true) },
	0xCA: func(c *CPU) { opJP(c, c.flagSet(flagZ)) },
	0xD2: func(c *CPU) { opJP(c, !c.flagSet(flagC)) },
	0xDA: func(c *CPU) { opJP(c, c.flagSet(flagC)) },
	0xE9: func(c *CPU) { c.pc.set(c.hl.get()) }, // JP HL does not read HL's target

	0xC4: func(c *CPU) { opCall(c, !c.flagSet(flagZ)) },
	0xCC: func(c *CPU) { opCall(c, c.flagSet(flagZ)) },
	0xCD: func(c *CPU) { opCall(c, true) },
	0xD4: func(c *CPU) { opCall(c, !c.flagSet(flagC)) },
	0xDC: func(c *CPU) { opCall(c, c.flagSet(flagC)) },

	0xC0: func(c *CPU) { opRet(c, !c.flagSet(flagZ), true) },
	0xC8: func(c *CPU) { opRet(c, c.flagSet(flagZ), true) },
	0xC9: func(c *CPU) { opRet(c, true, false) },
	0xD0: func(c *CPU) { opRet(c, !c.flagSet(flagC), true) },
	0xD8: func(c *CPU) { opRet(c, c.flagSet(flagC), true) },
	0xD9: func(c *CPU) {
		opRet(c, true, false)
		c.ime = true
	},

	0xC6: func(c *CPU) { c.add8(c.fetch8()) },
	0xCE: func(c *CPU) { c.adc8(c.fetch8()) },
	0xD6: func(c *CPU) { c.sub8(c.fetch8()) },
	0xDE: func(c *CPU) { c.sbc8(c.fetch8()) },
	0xE6: func(c *CPU) { c.and8(c.fetch8()) },
	0xEE: func(c *CPU) { c.xor8(c.fetch8()) },
	0xF6: func(c *CPU) { c.or8(c.fetch8()) },
	0xFE: func(c *CPU) { c.cp8(c.fetch8()) },

	0xE0: func(c *CPU) { c.writeByte(0xFF00+uint16(c.fetch8()), c.af.getHigh()) },
	0xF0: func(c *CPU) { c.af.setHigh(c.readByte(0xFF00 + uint16(c.fetch8()))) },
	0xE2: func(c *CPU) { c.writeByte(0xFF00+uint16(c.bc.getLow()), c.af.getHigh()) },
	0xF2: func(c *CPU) { c.af.setHigh(c.readByte(0xFF00 + uint16(c.bc.getLow()))) },
	0xEA: func(c *CPU) { c.writeByte(c.fetch16(), c.af.getHigh()) },
	0xFA: func(c *CPU) { c.af.setHigh(c.readByte(c.fetch16())) },

	0xE8: func(c *CPU) {
		e := int8(c.fetch8())
		result := c.addSPSigned(e)
		c.tick()
		c.tick()
		c.sp.set(result)
	},
	0xF8: func(c *CPU) {
		e := int8(c.fetch8())
		result := c.addSPSigned(e)
		c.tick()
		c.hl.set(result)
	},
	0xF9: func(c *CPU) {
		c.sp.set(c.hl.get())
		c.tick()
	},

	0xF3: func(c *CPU) { c.ime = false; c.imePending = 0 },
	0xFB: func(c *CPU) {
		if c.imePending == 0 {
			c.imePending = 2
		}
	},

	0xCB: opPrefixCB,
}

func opHalt(c *CPU) {
	if !c.ime && c.pendingInterrupts() != 0 {
		c.haltBug = true
		return
	}
	c.halted = true
}

func opStop(c *CPU) {
	c.fetch8() // STOP is formally a 2-byte opcode (0x10 0x00)
	c.applySpeedSwitch()
}

func opJR(c *CPU, cond bool) {
	e := int8(c.fetch8())
	if !cond {
		return
	}
	c.pc.set(uint16(int32(c.pc.get()) + int32(e)))
	c.tick()
}

func opJP(c *CPU, cond bool) {
	target := c.fetch16()
	if !cond {
		return
	}
	c.pc.set(target)
	c.tick()
}

func opCall(c *CPU, cond bool) {
	target := c.fetch16()
	if !cond {
		return
	}
	c.pushStack(c.pc.get())
	c.pc.set(target)
}

func opRet(c *CPU, cond bool, conditional bool) {
	if conditional {
		c.tick()
	}
	if !cond {
		return
	}
	c.pc.set(c.popStack())
	c.tick()
}

func opPrefixCB(c *CPU) {
	sub := c.fetch8()
	fn := cbOpcodeTable[sub]
	fn(c)
}
