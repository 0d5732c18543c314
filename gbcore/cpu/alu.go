package cpu

// This file implements the arithmetic/logic/rotate helpers shared by the
// regular-shaped instruction families in opcodes.go and opcodes_cb.go. Each
// helper both mutates CPU state and sets flags per the SM83 rules in spec
// §4.1.

func (c *CPU) add8(a uint8) {
	acc := c.af.getHigh()
	result := uint16(acc) + uint16(a)
	half := (acc&0xF)+(a&0xF) > 0xF
	c.af.setHigh(uint8(result))
	c.setFlags(uint8(result) == 0, false, half, result > 0xFF)
}

func (c *CPU) adc8(a uint8) {
	acc := c.af.getHigh()
	carry := uint8(0)
	if c.flagSet(flagC) {
		carry = 1
	}
	result := uint16(acc) + uint16(a) + uint16(carry)
	half := (acc&0xF)+(a&0xF)+carry > 0xF
	c.af.setHigh(uint8(result))
	c.setFlags(uint8(result) == 0, false, half, result > 0xFF)
}

func (c *CPU) sub8(a uint8) {
	acc := c.af.getHigh()
	result := int16(acc) - int16(a)
	half := int16(acc&0xF)-int16(a&0xF) < 0
	c.af.setHigh(uint8(result))
	c.setFlags(uint8(result) == 0, true, half, result < 0)
}

func (c *CPU) sbc8(a uint8) {
	acc := c.af.getHigh()
	carry := int16(0)
	if c.flagSet(flagC) {
		carry = 1
	}
	result := int16(acc) - int16(a) - carry
	half := int16(acc&0xF)-int16(a&0xF)-int16(carry) < 0
	c.af.setHigh(uint8(result))
	c.setFlags(uint8(result) == 0, true, half, result < 0)
}

func (c *CPU) and8(a uint8) {
	result := c.af.getHigh() & a
	c.af.setHigh(result)
	c.setFlags(result == 0, false, true, false)
}

func (c *CPU) or8(a uint8) {
	result := c.af.getHigh() | a
	c.af.setHigh(result)
	c.setFlags(result == 0, false, false, false)
}

func (c *CPU) xor8(a uint8) {
	result := c.af.getHigh() ^ a
	c.af.setHigh(result)
	c.setFlags(result == 0, false, false, false)
}

func (c *CPU) cp8(a uint8) {
	acc := c.af.getHigh()
	result := int16(acc) - int16(a)
	half := int16(acc&0xF)-int16(a&0xF) < 0
	c.setFlags(uint8(result) == 0, true, half, result < 0)
}

func (c *CPU) inc8(v uint8) uint8 {
	result := v + 1
	half := v&0xF == 0xF
	c.setFlag(flagZ, result == 0)
	c.setFlag(flagN, false)
	c.setFlag(flagH, half)
	return result
}

func (c *CPU) dec8(v uint8) uint8 {
	result := v - 1
	half := v&0xF == 0
	c.setFlag(flagZ, result == 0)
	c.setFlag(flagN, true)
	c.setFlag(flagH, half)
	return result
}

// addHL16 adds a 16-bit value to HL; Z is preserved, N cleared, H/C reflect
// the carry out of bit 11/15.
func (c *CPU) addHL16(v uint16) {
	hl := c.hl.get()
	result := uint32(hl) + uint32(v)
	half := (hl&0xFFF)+(v&0xFFF) > 0xFFF
	c.hl.set(uint16(result))
	c.setFlag(flagN, false)
	c.setFlag(flagH, half)
	c.setFlag(flagC, result > 0xFFFF)
}

// addSPSigned implements the ADD SP,e8 / LD HL,SP+e8 addressing math: an
// 8-bit signed displacement added to SP, with flags computed as an unsigned
// byte addition against SP's low byte (hardware quirk, matches real SM83).
func (c *CPU) addSPSigned(e int8) uint16 {
	sp := c.sp.get()
	result := uint16(int32(sp) + int32(e))
	half := (sp&0xF)+(uint16(uint8(e))&0xF) > 0xF
	carry := (sp&0xFF)+uint16(uint8(e)) > 0xFF
	c.setFlags(false, false, half, carry)
	return result
}

// --- rotate/shift helpers, shared by accumulator-rotate opcodes (which
// always clear Z) and the CB-prefixed per-register forms (which set Z
// normally). The `accumulatorForm` flag selects which Z rule applies.

func (c *CPU) rlc(v uint8, accumulatorForm bool) uint8 {
	carry := v&0x80 != 0
	result := v<<1 | v>>7
	c.setRotateFlags(result, carry, accumulatorForm)
	return result
}

func (c *CPU) rrc(v uint8, accumulatorForm bool) uint8 {
	carry := v&0x01 != 0
	result := v>>1 | v<<7
	c.setRotateFlags(result, carry, accumulatorForm)
	return result
}

func (c *CPU) rl(v uint8, accumulatorForm bool) uint8 {
	oldCarry := uint8(0)
	if c.flagSet(flagC) {
		oldCarry = 1
	}
	carry := v&0x80 != 0
	result := v<<1 | oldCarry
	c.setRotateFlags(result, carry, accumulatorForm)
	return result
}

func (c *CPU) rr(v uint8, accumulatorForm bool) uint8 {
	oldCarry := uint8(0)
	if c.flagSet(flagC) {
		oldCarry = 0x80
	}
	carry := v&0x01 != 0
	result := v>>1 | oldCarry
	c.setRotateFlags(result, carry, accumulatorForm)
	return result
}

func (c *CPU) sla(v uint8) uint8 {
	carry := v&0x80 != 0
	result := v << 1
	c.setFlags(result == 0, false, false, carry)
	return result
}

func (c *CPU) sra(v uint8) uint8 {
	carry := v&0x01 != 0
	result := v>>1 | v&0x80
	c.setFlags(result == 0, false, false, carry)
	return result
}

func (c *CPU) srl(v uint8) uint8 {
	carry := v&0x01 != 0
	result := v >> 1
	c.setFlags(result == 0, false, false, carry)
	return result
}

func (c *CPU) swap(v uint8) uint8 {
	result := v<<4 | v>>4
	c.setFlags(result == 0, false, false, false)
	return result
}

func (c *CPU) setRotateFlags(result uint8, carry, accumulatorForm bool) {
	zero := result == 0 && !accumulatorForm
	c.setFlags(zero, false, false, carry)
}

func (c *CPU) bit(n uint8, v uint8) {
	c.setFlag(flagZ, v&(1<<n) == 0)
	c.setFlag(flagN, false)
	c.setFlag(flagH, true)
}

func setBitVal(n uint8, v uint8) uint8 {
	return v | (1 << n)
}

func resBitVal(n uint8, v uint8) uint8 {
	return v &^ (1 << n)
}

// daa adjusts A after BCD arithmetic per spec §4.1's exact correction rules.
func (c *CPU) daa() {
	a := c.af.getHigh()
	n := c.flagSet(flagN)
	h := c.flagSet(flagH)
	carry := c.flagSet(flagC)

	var correction uint8
	newCarry := carry

	if !n {
		if h || a&0xF > 9 {
			correction |= 0x06
		}
		if carry || a > 0x99 {
			correction |= 0x60
			newCarry = true
		}
		a += correction
	} else {
		if h {
			correction |= 0x06
		}
		if carry {
			correction |= 0x60
		}
		a -= correction
	}

	c.af.setHigh(a)
	c.setFlag(flagZ, a == 0)
	c.setFlag(flagH, false)
	c.setFlag(flagC, newCarry)
}

func (c *CPU) cpl() {
	c.af.setHigh(^c.af.getHigh())
	c.setFlag(flagN, true)
	c.setFlag(flagH, true)
}

func (c *CPU) scf() {
	c.setFlag(flagN, false)
	c.setFlag(flagH, false)
	c.setFlag(flagC, true)
}

func (c *CPU) ccf() {
	c.setFlag(flagN, false)
	c.setFlag(flagH, false)
	c.setFlag(flagC, !c.flagSet(flagC))
}
