package cpu

// addWithFlags and subWithFlags compute the ARM's 32-bit NZCV-producing
// add/subtract: Z = zero result, N = bit 31, C = 33-bit carry-out for
// adds / "no borrow" for subtracts, V = the operands agree in sign and
// disagree with the result.

func addWithFlags(a, b uint32, carryIn bool) (result uint32, c, v bool) {
	ci := uint64(0)
	if carryIn {
		ci = 1
	}
	sum := uint64(a) + uint64(b) + ci
	result = uint32(sum)
	c = sum > 0xFFFFFFFF
	v = (a^result)&(b^result)&0x80000000 != 0
	return
}

func subWithFlags(a, b uint32, borrowIn bool) (result uint32, c, v bool) {
	bi := uint32(0)
	if borrowIn {
		bi = 1
	}
	// C = "no borrow occurred", i.e. a >= b+bi computed without wraparound.
	result = a - b - bi
	c = uint64(a) >= uint64(b)+uint64(bi)
	v = (a^b)&(a^result)&0x80000000 != 0
	return
}

// shiftResult carries both the shifted value and the carry-out the
// shifter produces, since data-processing with S set folds that carry
// into CPSR.C (except for the immediate-operand2 case, which uses the
// rotate's own carry-out only when the rotate amount is non-zero).
type shiftResult struct {
	value uint32
	carry bool
}

const (
	shiftLSL = 0
	shiftLSR = 1
	shiftASR = 2
	shiftROR = 3
)

// barrelShift implements LSL/LSR/ASR/ROR with the documented special
// cases for a register-specified shift of 0 and an immediate shift of 0:
// LSL #0 is a no-op (carry unchanged); LSR/ASR #0 encode "#32"; ROR #0
// encodes RRX (rotate right through carry by one bit).
func barrelShift(kind int, value uint32, amount uint, immediateZeroIsSpecial bool, carryIn bool) shiftResult {
	switch kind {
	case shiftLSL:
		if amount == 0 {
			return shiftResult{value, carryIn}
		}
		if amount >= 32 {
			var c bool
			if amount == 32 {
				c = value&1 != 0
			}
			return shiftResult{0, c}
		}
		return shiftResult{value << amount, (value>>(32-amount))&1 != 0}
	case shiftLSR:
		if amount == 0 && immediateZeroIsSpecial {
			amount = 32
		}
		if amount == 0 {
			return shiftResult{value, carryIn}
		}
		if amount >= 32 {
			var c bool
			if amount == 32 {
				c = value&0x80000000 != 0
			}
			return shiftResult{0, c}
		}
		return shiftResult{value >> amount, (value>>(amount-1))&1 != 0}
	case shiftASR:
		if amount == 0 && immediateZeroIsSpecial {
			amount = 32
		}
		if amount == 0 {
			return shiftResult{value, carryIn}
		}
		if amount >= 32 {
			if value&0x80000000 != 0 {
				return shiftResult{0xFFFFFFFF, true}
			}
			return shiftResult{0, false}
		}
		return shiftResult{uint32(int32(value) >> amount), (value>>(amount-1))&1 != 0}
	case shiftROR:
		if amount == 0 && immediateZeroIsSpecial {
			// RRX: rotate right by one through the carry flag.
			c := value&1 != 0
			res := value >> 1
			if carryIn {
				res |= 0x80000000
			}
			return shiftResult{res, c}
		}
		if amount == 0 {
			return shiftResult{value, carryIn}
		}
		amount &= 31
		if amount == 0 {
			return shiftResult{value, value&0x80000000 != 0}
		}
		return shiftResult{value>>amount | value<<(32-amount), (value>>(amount-1))&1 != 0}
	}
	return shiftResult{value, carryIn}
}
