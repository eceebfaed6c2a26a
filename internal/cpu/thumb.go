package cpu

import "github.com/daltonreeve/gbacore/internal/bus"

// execThumb decodes and executes one 16-bit Thumb instruction, dispatched
// by format per the documented bit-15..8 decode table. Formats are
// checked from most-specific mask to least, since several formats share
// a common high-bit prefix with only a handful of bits telling them apart.
func (c *CPU) execThumb(op uint16) int {
	switch {
	case op&0xF800 == 0x1800: // format 2: add/subtract
		return c.thumbAddSubtract(op)
	case op&0xE000 == 0x0000: // format 1: move shifted register
		return c.thumbMoveShifted(op)
	case op&0xE000 == 0x2000: // format 3: move/compare/add/subtract immediate
		return c.thumbImmediateOp(op)
	case op&0xFC00 == 0x4000: // format 4: ALU operations
		return c.thumbALU(op)
	case op&0xFC00 == 0x4400: // format 5: hi register ops / BX
		return c.thumbHiRegBX(op)
	case op&0xF800 == 0x4800: // format 6: PC-relative load
		return c.thumbPCRelativeLoad(op)
	case op&0xF200 == 0x5000: // format 7: load/store with register offset
		return c.thumbLoadStoreReg(op)
	case op&0xF200 == 0x5200: // format 8: load/store sign-extended byte/halfword
		return c.thumbLoadStoreSignExtended(op)
	case op&0xE000 == 0x6000: // format 9: load/store with immediate offset
		return c.thumbLoadStoreImm(op)
	case op&0xF000 == 0x8000: // format 10: load/store halfword
		return c.thumbLoadStoreHalfword(op)
	case op&0xF000 == 0x9000: // format 11: SP-relative load/store
		return c.thumbSPRelative(op)
	case op&0xF000 == 0xA000: // format 12: load address
		return c.thumbLoadAddress(op)
	case op&0xFF00 == 0xB000: // format 13: add offset to SP
		return c.thumbAddOffsetToSP(op)
	case op&0xF600 == 0xB400: // format 14: push/pop registers
		return c.thumbPushPop(op)
	case op&0xF000 == 0xC000: // format 15: multiple load/store
		return c.thumbMultipleLoadStore(op)
	case op&0xFF00 == 0xDF00: // format 17: software interrupt
		return c.softwareInterrupt(uint32(op & 0xFF))
	case op&0xF000 == 0xD000: // format 16: conditional branch
		return c.thumbConditionalBranch(op)
	case op&0xF800 == 0xE000: // format 18: unconditional branch
		return c.thumbUnconditionalBranch(op)
	case op&0xF000 == 0xF000: // format 19: long branch with link
		return c.thumbLongBranchLink(op)
	default:
		return c.armUndefined(uint32(op))
	}
}

func (c *CPU) thumbMoveShifted(op uint16) int {
	kind := int((op >> 11) & 0x3)
	amount := uint((op >> 6) & 0x1F)
	rs := (op >> 3) & 0x7
	rd := op & 0x7
	res := barrelShift(kind, c.reg.r[rs], amount, true, c.reg.flagSet(flagC))
	c.reg.r[rd] = res.value
	c.reg.setNZ(res.value)
	c.reg.setC(res.carry)
	return 1
}

func (c *CPU) thumbAddSubtract(op uint16) int {
	immediate := op&(1<<10) != 0
	subtract := op&(1<<9) != 0
	rs := (op >> 3) & 0x7
	rd := op & 0x7
	var operand uint32
	if immediate {
		operand = uint32((op >> 6) & 0x7)
	} else {
		operand = c.reg.r[(op>>6)&0x7]
	}
	var result uint32
	var carry, overflow bool
	if subtract {
		result, carry, overflow = subWithFlags(c.reg.r[rs], operand, false)
	} else {
		result, carry, overflow = addWithFlags(c.reg.r[rs], operand, false)
	}
	c.reg.r[rd] = result
	c.reg.setNZ(result)
	c.reg.setC(carry)
	c.reg.setV(overflow)
	return 1
}

func (c *CPU) thumbImmediateOp(op uint16) int {
	kind := (op >> 11) & 0x3
	rd := (op >> 8) & 0x7
	imm := uint32(op & 0xFF)
	switch kind {
	case 0: // MOV
		c.reg.r[rd] = imm
		c.reg.setNZ(imm)
	case 1: // CMP
		result, carry, overflow := subWithFlags(c.reg.r[rd], imm, false)
		c.reg.setNZ(result)
		c.reg.setC(carry)
		c.reg.setV(overflow)
	case 2: // ADD
		result, carry, overflow := addWithFlags(c.reg.r[rd], imm, false)
		c.reg.r[rd] = result
		c.reg.setNZ(result)
		c.reg.setC(carry)
		c.reg.setV(overflow)
	case 3: // SUB
		result, carry, overflow := subWithFlags(c.reg.r[rd], imm, false)
		c.reg.r[rd] = result
		c.reg.setNZ(result)
		c.reg.setC(carry)
		c.reg.setV(overflow)
	}
	return 1
}

func (c *CPU) thumbALU(op uint16) int {
	kind := (op >> 6) & 0xF
	rs := (op >> 3) & 0x7
	rd := op & 0x7
	dst := c.reg.r[rd]
	src := c.reg.r[rs]

	switch kind {
	case 0x0: // AND
		dst &= src
		c.reg.setNZ(dst)
		c.reg.r[rd] = dst
	case 0x1: // EOR
		dst ^= src
		c.reg.setNZ(dst)
		c.reg.r[rd] = dst
	case 0x2: // LSL
		res := barrelShift(shiftLSL, dst, uint(src&0xFF), false, c.reg.flagSet(flagC))
		c.reg.r[rd] = res.value
		c.reg.setNZ(res.value)
		c.reg.setC(res.carry)
		return 2
	case 0x3: // LSR
		res := barrelShift(shiftLSR, dst, uint(src&0xFF), false, c.reg.flagSet(flagC))
		c.reg.r[rd] = res.value
		c.reg.setNZ(res.value)
		c.reg.setC(res.carry)
		return 2
	case 0x4: // ASR
		res := barrelShift(shiftASR, dst, uint(src&0xFF), false, c.reg.flagSet(flagC))
		c.reg.r[rd] = res.value
		c.reg.setNZ(res.value)
		c.reg.setC(res.carry)
		return 2
	case 0x5: // ADC
		result, carry, overflow := addWithFlags(dst, src, c.reg.flagSet(flagC))
		c.reg.r[rd] = result
		c.reg.setNZ(result)
		c.reg.setC(carry)
		c.reg.setV(overflow)
	case 0x6: // SBC
		result, carry, overflow := subWithFlags(dst, src, !c.reg.flagSet(flagC))
		c.reg.r[rd] = result
		c.reg.setNZ(result)
		c.reg.setC(carry)
		c.reg.setV(overflow)
	case 0x7: // ROR
		res := barrelShift(shiftROR, dst, uint(src&0xFF), false, c.reg.flagSet(flagC))
		c.reg.r[rd] = res.value
		c.reg.setNZ(res.value)
		c.reg.setC(res.carry)
		return 2
	case 0x8: // TST
		c.reg.setNZ(dst & src)
	case 0x9: // NEG
		result, carry, overflow := subWithFlags(0, src, false)
		c.reg.r[rd] = result
		c.reg.setNZ(result)
		c.reg.setC(carry)
		c.reg.setV(overflow)
	case 0xA: // CMP
		result, carry, overflow := subWithFlags(dst, src, false)
		c.reg.setNZ(result)
		c.reg.setC(carry)
		c.reg.setV(overflow)
	case 0xB: // CMN
		result, carry, overflow := addWithFlags(dst, src, false)
		c.reg.setNZ(result)
		c.reg.setC(carry)
		c.reg.setV(overflow)
	case 0xC: // ORR
		dst |= src
		c.reg.setNZ(dst)
		c.reg.r[rd] = dst
	case 0xD: // MUL
		dst *= src
		c.reg.setNZ(dst)
		c.reg.r[rd] = dst
		return 2
	case 0xE: // BIC
		dst &^= src
		c.reg.setNZ(dst)
		c.reg.r[rd] = dst
	case 0xF: // MVN
		dst = ^src
		c.reg.setNZ(dst)
		c.reg.r[rd] = dst
	}
	return 1
}

func (c *CPU) thumbHiRegBX(op uint16) int {
	opc := (op >> 8) & 0x3
	h1 := op&(1<<7) != 0
	h2 := op&(1<<6) != 0
	rs := (op >> 3) & 0x7
	rd := op & 0x7
	if h2 {
		rs += 8
	}
	if h1 {
		rd += 8
	}
	src := c.reg.r[rs]
	if rs == 15 {
		src &^= 1
	}

	switch opc {
	case 0: // ADD
		c.reg.r[rd] += src
		if rd == 15 {
			c.reg.r[15] &^= 1
			c.FlushPipeline()
			return 3
		}
	case 1: // CMP
		result, carry, overflow := subWithFlags(c.reg.r[rd], src, false)
		c.reg.setNZ(result)
		c.reg.setC(carry)
		c.reg.setV(overflow)
	case 2: // MOV
		c.reg.r[rd] = src
		if rd == 15 {
			c.reg.r[15] &^= 1
			c.FlushPipeline()
			return 3
		}
	case 3: // BX (and BLX not encoded on ARMv4T)
		if src&1 != 0 {
			c.reg.cpsr |= flagT
		} else {
			c.reg.cpsr &^= flagT
		}
		c.reg.r[15] = src &^ 1
		c.FlushPipeline()
		return 3
	}
	return 1
}

func (c *CPU) thumbPCRelativeLoad(op uint16) int {
	rd := (op >> 8) & 0x7
	imm := uint32(op&0xFF) << 2
	base := (c.reg.r[15] &^ 2) + imm
	c.reg.r[rd] = c.bus.ReadWord(base, bus.NonSequential)
	return 3
}

func (c *CPU) thumbLoadStoreReg(op uint16) int {
	lByte := (op >> 10) & 0x3
	ro := (op >> 6) & 0x7
	rb := (op >> 3) & 0x7
	rd := op & 0x7
	addr := c.reg.r[rb] + c.reg.r[ro]
	switch lByte {
	case 0: // STR
		c.bus.WriteWord(addr, c.reg.r[rd], bus.NonSequential)
	case 1: // STRB
		c.bus.WriteByte(addr, byte(c.reg.r[rd]), bus.NonSequential)
	case 2: // LDR
		c.reg.r[rd] = c.bus.ReadWord(addr, bus.NonSequential)
	case 3: // LDRB
		c.reg.r[rd] = uint32(c.bus.ReadByte(addr, bus.NonSequential))
	}
	return 3
}

func (c *CPU) thumbLoadStoreSignExtended(op uint16) int {
	hs := (op >> 10) & 0x3
	ro := (op >> 6) & 0x7
	rb := (op >> 3) & 0x7
	rd := op & 0x7
	addr := c.reg.r[rb] + c.reg.r[ro]
	switch hs {
	case 0: // STRH
		c.bus.WriteHalfword(addr, uint16(c.reg.r[rd]), bus.NonSequential)
	case 1: // LDSB
		c.reg.r[rd] = uint32(int32(int8(c.bus.ReadByte(addr, bus.NonSequential))))
	case 2: // LDRH
		c.reg.r[rd] = uint32(c.bus.ReadHalfword(addr, bus.NonSequential))
	case 3: // LDSH
		c.reg.r[rd] = uint32(int32(int16(c.bus.ReadHalfword(addr, bus.NonSequential))))
	}
	return 3
}

func (c *CPU) thumbLoadStoreImm(op uint16) int {
	byteAccess := op&(1<<12) != 0
	load := op&(1<<11) != 0
	imm := uint32((op >> 6) & 0x1F)
	rb := (op >> 3) & 0x7
	rd := op & 0x7
	var addr uint32
	if byteAccess {
		addr = c.reg.r[rb] + imm
	} else {
		addr = c.reg.r[rb] + imm*4
	}
	switch {
	case load && byteAccess:
		c.reg.r[rd] = uint32(c.bus.ReadByte(addr, bus.NonSequential))
	case load:
		c.reg.r[rd] = c.bus.ReadWord(addr, bus.NonSequential)
	case byteAccess:
		c.bus.WriteByte(addr, byte(c.reg.r[rd]), bus.NonSequential)
	default:
		c.bus.WriteWord(addr, c.reg.r[rd], bus.NonSequential)
	}
	return 3
}

func (c *CPU) thumbLoadStoreHalfword(op uint16) int {
	load := op&(1<<11) != 0
	imm := uint32((op>>6)&0x1F) * 2
	rb := (op >> 3) & 0x7
	rd := op & 0x7
	addr := c.reg.r[rb] + imm
	if load {
		c.reg.r[rd] = uint32(c.bus.ReadHalfword(addr, bus.NonSequential))
	} else {
		c.bus.WriteHalfword(addr, uint16(c.reg.r[rd]), bus.NonSequential)
	}
	return 3
}

func (c *CPU) thumbSPRelative(op uint16) int {
	load := op&(1<<11) != 0
	rd := (op >> 8) & 0x7
	imm := uint32(op&0xFF) << 2
	addr := c.reg.r[13] + imm
	if load {
		c.reg.r[rd] = c.bus.ReadWord(addr, bus.NonSequential)
	} else {
		c.bus.WriteWord(addr, c.reg.r[rd], bus.NonSequential)
	}
	return 3
}

func (c *CPU) thumbLoadAddress(op uint16) int {
	sp := op&(1<<11) != 0
	rd := (op >> 8) & 0x7
	imm := uint32(op&0xFF) << 2
	if sp {
		c.reg.r[rd] = c.reg.r[13] + imm
	} else {
		c.reg.r[rd] = (c.reg.r[15] &^ 2) + imm
	}
	return 1
}

func (c *CPU) thumbAddOffsetToSP(op uint16) int {
	negative := op&(1<<7) != 0
	imm := uint32(op&0x7F) << 2
	if negative {
		c.reg.r[13] -= imm
	} else {
		c.reg.r[13] += imm
	}
	return 1
}

func (c *CPU) thumbPushPop(op uint16) int {
	pop := op&(1<<11) != 0
	includeExtra := op&(1<<8) != 0
	list := op & 0xFF

	if pop {
		addr := c.reg.r[13]
		for i := 0; i < 8; i++ {
			if list&(1<<uint(i)) != 0 {
				c.reg.r[i] = c.bus.ReadWord(addr, bus.Sequential)
				addr += 4
			}
		}
		if includeExtra {
			c.reg.r[15] = c.bus.ReadWord(addr, bus.Sequential) &^ 1
			addr += 4
		}
		c.reg.r[13] = addr
		if includeExtra {
			c.FlushPipeline()
			return 5
		}
		return 3
	}

	count := 0
	for i := 0; i < 8; i++ {
		if list&(1<<uint(i)) != 0 {
			count++
		}
	}
	if includeExtra {
		count++
	}
	addr := c.reg.r[13] - uint32(count)*4
	c.reg.r[13] = addr
	for i := 0; i < 8; i++ {
		if list&(1<<uint(i)) != 0 {
			c.bus.WriteWord(addr, c.reg.r[i], bus.Sequential)
			addr += 4
		}
	}
	if includeExtra {
		c.bus.WriteWord(addr, c.reg.r[14], bus.Sequential)
	}
	return 3
}

func (c *CPU) thumbMultipleLoadStore(op uint16) int {
	load := op&(1<<11) != 0
	rb := (op >> 8) & 0x7
	list := op & 0xFF

	count := 0
	for i := 0; i < 8; i++ {
		if list&(1<<uint(i)) != 0 {
			count++
		}
	}
	addr := c.reg.r[rb]
	if count == 0 {
		// Documented degenerate case: transfers R15, base steps by 0x40.
		if load {
			c.reg.r[15] = c.bus.ReadWord(addr, bus.Sequential) &^ 1
			c.FlushPipeline()
		} else {
			c.bus.WriteWord(addr, c.reg.r[15]+2, bus.Sequential)
		}
		c.reg.r[rb] = addr + 0x40
		return 3
	}

	for i := 0; i < 8; i++ {
		if list&(1<<uint(i)) == 0 {
			continue
		}
		if load {
			c.reg.r[i] = c.bus.ReadWord(addr, bus.Sequential)
		} else {
			c.bus.WriteWord(addr, c.reg.r[i], bus.Sequential)
		}
		addr += 4
	}
	c.reg.r[rb] = addr
	return 3
}

func (c *CPU) thumbConditionalBranch(op uint16) int {
	cond := byte((op >> 8) & 0xF)
	if !c.evalCondition(cond) {
		return 1
	}
	offset := int32(int8(op & 0xFF))
	c.reg.r[15] = uint32(int32(c.reg.r[15]) + offset*2)
	c.FlushPipeline()
	return 3
}

func (c *CPU) thumbUnconditionalBranch(op uint16) int {
	offset := op & 0x7FF
	signed := int32(int16(offset<<5)) >> 5 // sign-extend the 11-bit field
	c.reg.r[15] = uint32(int32(c.reg.r[15]) + signed*2)
	c.FlushPipeline()
	return 3
}

// thumbLongBranchLink implements BL's two-instruction encoding: the first
// half stashes PC+offset_hi<<12 into LR, the second computes the final
// target from LR and sets PC.
func (c *CPU) thumbLongBranchLink(op uint16) int {
	low := op&(1<<11) != 0
	offset := uint32(op & 0x7FF)
	if !low {
		signed := int32(offset<<21) >> 9 // sign-extend 11 bits then align to bit 12
		c.reg.r[14] = uint32(int32(c.reg.r[15]) + signed)
		return 1
	}
	nextInstr := c.reg.r[15] - 2
	target := c.reg.r[14] + offset<<1
	c.reg.r[15] = target
	c.reg.r[14] = nextInstr | 1
	c.FlushPipeline()
	return 3
}
