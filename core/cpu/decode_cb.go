package cpu

// executeCB decodes and runs one CB-prefixed opcode. The CB table is fully
// regular: bits 7-6 select the operation group, bits 5-3 select the bit
// index (for BIT/RES/SET) or the rotate/shift variant, bits 2-0 select the
// r8 operand.
func (c *CPU) executeCB(opcode uint8) {
	group := opcode >> 6
	op := (opcode >> 3) & 0x7
	idx := opcode & 0x7

	if group == 0 {
		v := c.r8(idx)
		var result uint8
		switch op {
		case 0:
			result = c.rlc(v)
		case 1:
			result = c.rrc(v)
		case 2:
			result = c.rl(v)
		case 3:
			result = c.rr(v)
		case 4:
			result = c.sla(v)
		case 5:
			result = c.sra(v)
		case 6:
			result = c.swap(v)
		case 7:
			result = c.srl(v)
		}
		c.setFlag(flagZ, result == 0)
		c.setR8(idx, result)
		return
	}

	switch group {
	case 1: // BIT n, r
		c.bit(op, c.r8(idx))
	case 2: // RES n, r
		c.setR8(idx, res(op, c.r8(idx)))
	case 3: // SET n, r
		c.setR8(idx, set(op, c.r8(idx)))
	}
}
