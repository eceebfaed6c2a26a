package cpu

import "github.com/daltonreeve/gbacore/internal/bus"

// execARM decodes and executes one ARM-state instruction, already known
// to have passed its condition check. Dispatch order follows the
// documented bit-27..4 decode tree: branch-and-exchange and multiplies
// are carved out of what would otherwise look like data-processing
// before falling through to the general data-processing case.
func (c *CPU) execARM(op uint32) int {
	switch {
	case op&0x0FFFFFF0 == 0x012FFF10: // BX
		return c.armBranchExchange(op)
	case op&0x0FC000F0 == 0x00000090: // multiply
		return c.armMultiply(op)
	case op&0x0F8000F0 == 0x00800090: // multiply long
		return c.armMultiplyLong(op)
	case op&0x0FB00FF0 == 0x01000090: // single data swap
		return c.armSwap(op)
	case op&0x0E000090 == 0x00000090 && op&0x0E000010 == 0x00000010 && op&0x00000060 != 0:
		return c.armHalfwordTransfer(op)
	case op&0x0E000000 == 0x04000000, op&0x0E000000 == 0x06000000 && op&0x10 == 0:
		return c.armSingleDataTransfer(op)
	case op&0x0E000000 == 0x06000000: // op&0x10 != 0: undefined (coprocessor slot on GBA)
		return c.armUndefined(op)
	case op&0x0E000000 == 0x08000000:
		return c.armBlockDataTransfer(op)
	case op&0x0E000000 == 0x0A000000:
		return c.armBranch(op)
	case op&0x0F000000 == 0x0F000000:
		return c.softwareInterrupt(op & 0x00FFFFFF)
	case op&0x0C000000 == 0x00000000:
		return c.armDataProcessing(op)
	default:
		return c.armUndefined(op)
	}
}

func (c *CPU) armUndefined(op uint32) int {
	c.enterException(ModeUndefined, 0x04, 4)
	return 3
}

// operand2 evaluates a data-processing instruction's second operand,
// returning the value and the shifter's carry-out (folded into CPSR.C
// only when the instruction has S set, per the caller).
func (c *CPU) operand2(op uint32) (uint32, bool) {
	carryIn := c.reg.flagSet(flagC)
	if op&0x02000000 != 0 {
		imm := op & 0xFF
		rotate := (op >> 8) & 0xF * 2
		if rotate == 0 {
			return imm, carryIn
		}
		res := barrelShift(shiftROR, imm, uint(rotate), false, carryIn)
		return res.value, res.carry
	}

	rm := c.reg.r[op&0xF]
	kind := int((op >> 5) & 0x3)
	var amount uint
	if op&0x10 != 0 {
		// Register-specified shift amount: Rm is read with PC+12 if it
		// is R15 (the one case where the "PC reads as PC+8" rule
		// compounds with the extra internal cycle this form costs).
		if op&0xF == 15 {
			rm += 4
		}
		rs := c.reg.r[(op>>8)&0xF]
		amount = uint(rs & 0xFF)
		if amount == 0 {
			return rm, carryIn
		}
		res := barrelShift(kind, rm, amount, false, carryIn)
		return res.value, res.carry
	}
	amount = uint((op >> 7) & 0x1F)
	res := barrelShift(kind, rm, amount, true, carryIn)
	return res.value, res.carry
}

const (
	opAND = 0x0
	opEOR = 0x1
	opSUB = 0x2
	opRSB = 0x3
	opADD = 0x4
	opADC = 0x5
	opSBC = 0x6
	opRSC = 0x7
	opTST = 0x8
	opTEQ = 0x9
	opCMP = 0xA
	opCMN = 0xB
	opORR = 0xC
	opMOV = 0xD
	opBIC = 0xE
	opMVN = 0xF
)

func (c *CPU) armDataProcessing(op uint32) int {
	rn := (op >> 16) & 0xF
	rd := (op >> 12) & 0xF
	opcode := (op >> 21) & 0xF
	setFlags := op&(1<<20) != 0

	op2, shiftCarry := c.operand2(op)
	rnVal := c.reg.r[rn]
	if rn == 15 && op&0x02000000 == 0 && op&0x10 != 0 {
		rnVal += 4 // register-shift form reads PC as PC+12
	}

	var result uint32
	var carry, overflow bool
	writesResult := true

	switch opcode {
	case opAND:
		result, carry, overflow = rnVal&op2, shiftCarry, c.reg.flagSet(flagV)
	case opEOR:
		result, carry, overflow = rnVal^op2, shiftCarry, c.reg.flagSet(flagV)
	case opSUB:
		result, carry, overflow = subWithFlags(rnVal, op2, false)
	case opRSB:
		result, carry, overflow = subWithFlags(op2, rnVal, false)
	case opADD:
		result, carry, overflow = addWithFlags(rnVal, op2, false)
	case opADC:
		result, carry, overflow = addWithFlags(rnVal, op2, c.reg.flagSet(flagC))
	case opSBC:
		result, carry, overflow = subWithFlags(rnVal, op2, !c.reg.flagSet(flagC))
	case opRSC:
		result, carry, overflow = subWithFlags(op2, rnVal, !c.reg.flagSet(flagC))
	case opTST:
		result, carry, overflow = rnVal&op2, shiftCarry, c.reg.flagSet(flagV)
		writesResult = false
	case opTEQ:
		result, carry, overflow = rnVal^op2, shiftCarry, c.reg.flagSet(flagV)
		writesResult = false
	case opCMP:
		result, carry, overflow = subWithFlags(rnVal, op2, false)
		writesResult = false
	case opCMN:
		result, carry, overflow = addWithFlags(rnVal, op2, false)
		writesResult = false
	case opORR:
		result, carry, overflow = rnVal|op2, shiftCarry, c.reg.flagSet(flagV)
	case opMOV:
		result, carry, overflow = op2, shiftCarry, c.reg.flagSet(flagV)
	case opBIC:
		result, carry, overflow = rnVal&^op2, shiftCarry, c.reg.flagSet(flagV)
	case opMVN:
		result, carry, overflow = ^op2, shiftCarry, c.reg.flagSet(flagV)
	}

	if writesResult {
		c.reg.r[rd] = result
		if rd == 15 {
			if setFlags {
				c.returnFromException()
			} else {
				c.FlushPipeline()
			}
			return 3
		}
	}

	if setFlags {
		if rd == 15 {
			c.returnFromException()
			return 3
		}
		c.reg.setNZ(result)
		switch opcode {
		case opSUB, opRSB, opADD, opADC, opSBC, opRSC, opCMP, opCMN:
			c.reg.setC(carry)
			c.reg.setV(overflow)
		default:
			c.reg.setC(carry)
		}
	}
	return 1
}

func (c *CPU) armMultiply(op uint32) int {
	rd := (op >> 16) & 0xF
	rn := (op >> 12) & 0xF
	rs := (op >> 8) & 0xF
	rm := op & 0xF
	accumulate := op&(1<<21) != 0
	setFlags := op&(1<<20) != 0

	result := c.reg.r[rm] * c.reg.r[rs]
	if accumulate {
		result += c.reg.r[rn]
	}
	c.reg.r[rd] = result
	if setFlags {
		c.reg.setNZ(result)
	}
	return 2
}

func (c *CPU) armMultiplyLong(op uint32) int {
	rdHi := (op >> 16) & 0xF
	rdLo := (op >> 12) & 0xF
	rs := (op >> 8) & 0xF
	rm := op & 0xF
	signed := op&(1<<22) != 0
	accumulate := op&(1<<21) != 0
	setFlags := op&(1<<20) != 0

	var result uint64
	if signed {
		result = uint64(int64(int32(c.reg.r[rm])) * int64(int32(c.reg.r[rs])))
	} else {
		result = uint64(c.reg.r[rm]) * uint64(c.reg.r[rs])
	}
	if accumulate {
		result += uint64(c.reg.r[rdHi])<<32 | uint64(c.reg.r[rdLo])
	}
	c.reg.r[rdLo] = uint32(result)
	c.reg.r[rdHi] = uint32(result >> 32)
	if setFlags {
		c.reg.setNZ(c.reg.r[rdHi])
		if result == 0 {
			c.reg.cpsr |= flagZ
		}
	}
	return 3
}

func (c *CPU) armSwap(op uint32) int {
	rn := (op >> 16) & 0xF
	rd := (op >> 12) & 0xF
	rm := op & 0xF
	byteSwap := op&(1<<22) != 0
	addr := c.reg.r[rn]
	if byteSwap {
		old := c.bus.ReadByte(addr, bus.NonSequential)
		c.bus.WriteByte(addr, byte(c.reg.r[rm]), bus.NonSequential)
		c.reg.r[rd] = uint32(old)
	} else {
		old := c.bus.ReadWord(addr, bus.NonSequential)
		c.bus.WriteWord(addr, c.reg.r[rm], bus.NonSequential)
		c.reg.r[rd] = old
	}
	return 3
}

func (c *CPU) armBranchExchange(op uint32) int {
	target := c.reg.r[op&0xF]
	if target&1 != 0 {
		c.reg.cpsr |= flagT
	} else {
		c.reg.cpsr &^= flagT
	}
	c.reg.r[15] = target &^ 1
	c.FlushPipeline()
	return 3
}

// armHalfwordTransfer covers LDRH/STRH/LDRSB/LDRSH and their immediate-
// offset variants (bit 22 selects immediate vs register offset).
func (c *CPU) armHalfwordTransfer(op uint32) int {
	rn := (op >> 16) & 0xF
	rd := (op >> 12) & 0xF
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	immediate := op&(1<<22) != 0
	writeback := op&(1<<21) != 0
	load := op&(1<<20) != 0
	sh := (op >> 5) & 0x3

	var offset uint32
	if immediate {
		offset = (op>>4)&0xF0 | op&0xF
	} else {
		offset = c.reg.r[op&0xF]
	}

	base := c.reg.r[rn]
	addr := base
	if pre {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
	}

	access := bus.NonSequential
	if load {
		switch sh {
		case 1: // unsigned halfword
			c.reg.r[rd] = uint32(c.bus.ReadHalfword(addr, access))
		case 2: // signed byte
			c.reg.r[rd] = uint32(int32(int8(c.bus.ReadByte(addr, access))))
		case 3: // signed halfword
			c.reg.r[rd] = uint32(int32(int16(c.bus.ReadHalfword(addr, access))))
		}
	} else {
		c.bus.WriteHalfword(addr, uint16(c.reg.r[rd]), access)
	}

	if !pre {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
		c.reg.r[rn] = addr
	} else if writeback {
		c.reg.r[rn] = addr
	}
	return 3
}

func (c *CPU) armSingleDataTransfer(op uint32) int {
	immediate := op&0x02000000 == 0 // bit clear means immediate offset here (inverse of data-processing)
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	byteAccess := op&(1<<22) != 0
	writeback := op&(1<<21) != 0
	load := op&(1<<20) != 0
	rn := (op >> 16) & 0xF
	rd := (op >> 12) & 0xF

	var offset uint32
	if immediate {
		offset = op & 0xFFF
	} else {
		rm := c.reg.r[op&0xF]
		kind := int((op >> 5) & 0x3)
		amount := uint((op >> 7) & 0x1F)
		offset = barrelShift(kind, rm, amount, true, c.reg.flagSet(flagC)).value
	}

	base := c.reg.r[rn]
	addr := base
	if pre {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
	}

	if load {
		if byteAccess {
			c.reg.r[rd] = uint32(c.bus.ReadByte(addr, bus.NonSequential))
		} else {
			c.reg.r[rd] = c.bus.ReadWord(addr, bus.NonSequential)
		}
	} else {
		val := c.reg.r[rd]
		if rd == 15 {
			val += 4
		}
		if byteAccess {
			c.bus.WriteByte(addr, byte(val), bus.NonSequential)
		} else {
			c.bus.WriteWord(addr, val, bus.NonSequential)
		}
	}

	if !pre {
		if up {
			addr = base + offset
		} else {
			addr = base - offset
		}
		if rn != 15 || !load {
			c.reg.r[rn] = addr
		}
	} else if writeback {
		c.reg.r[rn] = addr
	}

	if load && rd == 15 {
		c.FlushPipeline()
		return 5
	}
	return 3
}

func (c *CPU) armBlockDataTransfer(op uint32) int {
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	psrForceUser := op&(1<<22) != 0
	writeback := op&(1<<21) != 0
	load := op&(1<<20) != 0
	rn := (op >> 16) & 0xF
	list := op & 0xFFFF

	count := 0
	for i := 0; i < 16; i++ {
		if list&(1<<uint(i)) != 0 {
			count++
		}
	}
	if count == 0 {
		// Documented degenerate encoding: transfers R15 only, base steps by 0x40.
		count = 16
		list = 1 << 15
	}

	base := c.reg.r[rn]
	start := base
	if !up {
		start = base - uint32(count)*4
		if list == 0 {
			start = base - 0x40
		}
	}

	accessAddr := start
	if pre {
		accessAddr += 4
	}

	usingUserBank := psrForceUser && (!load || list&(1<<15) == 0)
	for i := 0; i < 16; i++ {
		if list&(1<<uint(i)) == 0 {
			continue
		}
		reg := uint32(i)
		a := accessAddr
		if load {
			val := c.bus.ReadWord(a, bus.Sequential)
			if usingUserBank && reg >= 8 && reg <= 14 {
				c.storeUserBankRegister(reg, val)
			} else {
				c.reg.r[reg] = val
				if reg == 15 {
					if psrForceUser {
						c.returnFromException()
					}
				}
			}
		} else {
			var val uint32
			if usingUserBank && reg >= 8 && reg <= 14 {
				val = c.loadUserBankRegister(reg)
			} else {
				val = c.reg.r[reg]
				if reg == 15 {
					val += 4
				}
			}
			c.bus.WriteWord(a, val, bus.Sequential)
		}
		accessAddr += 4
	}

	if writeback {
		if up {
			c.reg.r[rn] = base + uint32(count)*4
		} else {
			c.reg.r[rn] = start
		}
	}

	if load && list&(1<<15) != 0 {
		c.FlushPipeline()
		return 5
	}
	return 3
}

// loadUserBankRegister/storeUserBankRegister implement LDM/STM's
// force-user-bank-for-R8-R14 variant without disturbing the current
// mode's own banked copies.
func (c *CPU) loadUserBankRegister(reg uint32) uint32 {
	if c.reg.mode() == ModeFIQ && reg >= 8 && reg <= 12 {
		return c.reg.userR8_12[reg-8]
	}
	if reg == 13 {
		return c.reg.bankedR13[0]
	}
	if reg == 14 {
		return c.reg.bankedR14[0]
	}
	return c.reg.r[reg]
}

func (c *CPU) storeUserBankRegister(reg uint32, val uint32) {
	if c.reg.mode() == ModeFIQ && reg >= 8 && reg <= 12 {
		c.reg.userR8_12[reg-8] = val
		return
	}
	if reg == 13 {
		c.reg.bankedR13[0] = val
		return
	}
	if reg == 14 {
		c.reg.bankedR14[0] = val
		return
	}
	c.reg.r[reg] = val
}

func (c *CPU) armBranch(op uint32) int {
	link := op&(1<<24) != 0
	offset := op & 0x00FFFFFF
	if offset&0x00800000 != 0 {
		offset |= 0xFF000000
	}
	offset <<= 2
	if link {
		c.reg.r[14] = c.reg.r[15] - 4
	}
	c.reg.r[15] += offset
	c.FlushPipeline()
	return 3
}
