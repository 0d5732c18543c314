package cpu

// cbOpcodeTable is the CB-prefixed secondary table. Unlike the main table
// this one is perfectly regular across all 256 entries (eight operations,
// eight bit indices, eight operands), so it is built entirely by loops
// rather than any named per-opcode functions.
var cbOpcodeTable = buildCBOpcodeTable()

func buildCBOpcodeTable() [256]func(*CPU) {
	var t [256]func(*CPU)

	rotateOps := []func(*CPU, uint8) uint8{
		func(c *CPU, v uint8) uint8 { return c.rlc(v, false) },
		func(c *CPU, v uint8) uint8 { return c.rrc(v, false) },
		func(c *CPU, v uint8) uint8 { return c.rl(v, false) },
		func(c *CPU, v uint8) uint8 { return c.rr(v, false) },
		(*CPU).sla,
		(*CPU).sra,
		(*CPU).swap,
		(*CPU).srl,
	}
	for i, fn := range rotateOps {
		base := uint8(i * 8)
		op := fn
		for r := uint8(0); r < 8; r++ {
			reg := r
			t[base+reg] = func(c *CPU) {
				c.setReg8(reg, op(c, c.getReg8(reg)))
			}
		}
	}

	for b := uint8(0); b < 8; b++ {
		bitIdx := b
		for r := uint8(0); r < 8; r++ {
			reg := r
			t[0x40+8*bitIdx+reg] = func(c *CPU) {
				c.bit(bitIdx, c.getReg8(reg))
			}
			t[0x80+8*bitIdx+reg] = func(c *CPU) {
				c.setReg8(reg, resBitVal(bitIdx, c.getReg8(reg)))
			}
			t[0xC0+8*bitIdx+reg] = func(c *CPU) {
				c.setReg8(reg, setBitVal(bitIdx, c.getReg8(reg)))
			}
		}
	}

	return t
}
