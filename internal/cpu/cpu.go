// Package cpu implements the ARM7TDMI core: the ARMv4T 32-bit ARM
// instruction set and 16-bit Thumb instruction set, condition evaluation,
// banked-register mode switching, and exception entry/return.
package cpu

import (
	"github.com/daltonreeve/gbacore/internal/bus"
)

// CPU is the ARM7TDMI core. It owns its register file and a two-deep
// pipeline of prefetched opcodes; everything else (memory, peripherals,
// interrupts) is reached through the borrowed *bus.Bus, never owned.
type CPU struct {
	reg registers

	pipeline [2]uint32
	// pipelineFlushed marks that FlushPipeline already ran during the
	// instruction just executed, so Step must not also advance r[15] by
	// one more instruction width on top of it.
	pipelineFlushed bool

	halted  bool
	stopped bool

	// highLevelSWI, when set, substitutes host implementations of the
	// documented BIOS call numbers instead of executing real BIOS code
	// at the SWI vector.
	highLevelSWI bool

	bus *bus.Bus
}

// New constructs a CPU wired to bus b, in Supervisor mode with interrupts
// masked, matching the state real hardware resets into.
func New(b *bus.Bus) *CPU {
	c := &CPU{bus: b}
	c.reg.cpsr = uint32(ModeSupervisor) | flagI | flagF
	c.reg.r[13] = 0x03007FE0
	c.reg.bankedR13[bankIndex(ModeIRQ)] = 0x03007FA0
	c.reg.bankedR13[bankIndex(ModeSupervisor)] = 0x03007FE0
	c.reg.r[15] = 0x00000000
	c.FlushPipeline()
	return c
}

// SetHighLevelSWI enables or disables the host-side SWI substitution
// table in place of executing real BIOS code.
func (c *CPU) SetHighLevelSWI(v bool) { c.highLevelSWI = v }

// Bus exposes the underlying bus for tests and host tooling.
func (c *CPU) Bus() *bus.Bus { return c.bus }

// PC returns R15 one instruction width short of the raw two-deep
// pipeline value: the address of the next instruction to execute plus
// one instruction width.
func (c *CPU) PC() uint32 { return c.reg.r[15] - c.width() }

// SetEntryPoint places the CPU at addr with an empty pipeline refill,
// used by a boot stub that skips BIOS execution entirely.
func (c *CPU) SetEntryPoint(addr uint32) {
	c.reg.r[15] = addr
	c.FlushPipeline()
}

func (c *CPU) width() uint32 {
	if c.reg.thumb() {
		return 2
	}
	return 4
}

func (c *CPU) fetch(addr uint32, access bus.Access) uint32 {
	c.bus.SetExecutingBIOS(addr < 0x4000)
	if c.reg.thumb() {
		return uint32(c.bus.ReadHalfword(addr, access))
	}
	return c.bus.ReadWord(addr, access)
}

// FlushPipeline discards both prefetched opcodes and refills them from
// the current R15, then advances R15 past them. Required after any
// write to R15, a BX, exception entry/return, or a Thumb/ARM state
// change; anything that invalidates what was already fetched.
func (c *CPU) FlushPipeline() {
	w := c.width()
	pc := c.reg.r[15] &^ (w - 1)
	c.pipeline[0] = c.fetch(pc, bus.NonSequential)
	c.pipeline[1] = c.fetch(pc+w, bus.Sequential)
	c.reg.r[15] = pc + 2*w
	c.pipelineFlushed = true
}

// Step executes exactly one instruction (or services Halt/an interrupt)
// and returns the number of bus cycles consumed.
func (c *CPU) Step() int {
	if c.stopped {
		return 1
	}
	if c.halted {
		if c.bus.IRQ().ReadyForHalt() {
			c.halted = false
		} else {
			return 1
		}
	}
	if c.bus.IRQ().Pending() && !c.reg.flagSet(flagI) {
		c.enterException(ModeIRQ, 0x18, 4)
		return 3
	}

	// c.reg.r[15] holds address(op) + 2*width here, exactly the
	// architectural "PC" value the instruction itself must see (the
	// documented PC+8-in-ARM/PC+4-in-Thumb rule) — so it must be read by
	// exec before being advanced, not after.
	op := c.pipeline[0]
	c.pipeline[0] = c.pipeline[1]
	w := c.width()
	fetchAddr := c.reg.r[15]
	c.pipeline[1] = c.fetch(fetchAddr, bus.Sequential)

	c.pipelineFlushed = false
	var cycles int
	if c.reg.thumb() {
		cycles = c.execThumb(uint16(op))
	} else {
		cond := byte(op >> 28)
		if !c.evalCondition(cond) {
			cycles = 1
		} else {
			cycles = c.execARM(op)
		}
	}
	// An instruction that branched, switched state, or loaded R15
	// already called FlushPipeline, which fully re-seeds r15; advancing
	// it again here would double-count that instruction's width.
	if !c.pipelineFlushed {
		c.reg.r[15] += w
	}
	return cycles
}

// evalCondition checks the top 4 bits of an ARM instruction (and the
// condition field Thumb format 16 shares) against NZCV. Condition 0b1111
// is the reserved/never encoding.
func (c *CPU) evalCondition(cond byte) bool {
	n := c.reg.flagSet(flagN)
	z := c.reg.flagSet(flagZ)
	cf := c.reg.flagSet(flagC)
	v := c.reg.flagSet(flagV)
	switch cond {
	case 0x0: // EQ
		return z
	case 0x1: // NE
		return !z
	case 0x2: // CS/HS
		return cf
	case 0x3: // CC/LO
		return !cf
	case 0x4: // MI
		return n
	case 0x5: // PL
		return !n
	case 0x6: // VS
		return v
	case 0x7: // VC
		return !v
	case 0x8: // HI
		return cf && !z
	case 0x9: // LS
		return !cf || z
	case 0xA: // GE
		return n == v
	case 0xB: // LT
		return n != v
	case 0xC: // GT
		return !z && n == v
	case 0xD: // LE
		return z || n != v
	case 0xE: // AL
		return true
	default: // 0xF NV
		return false
	}
}

// enterException performs the documented exception-entry sequence: save
// the return address (R15 minus two instruction widths, plus the
// exception's documented lrOffset passed by the caller), save CPSR to
// SPSR_mode, switch mode, clear Thumb, set the I-bit (and F for FIQ), and
// refill the pipeline from the vector.
func (c *CPU) enterException(mode Mode, vector uint32, lrOffset uint32) {
	returnAddr := c.reg.r[15] - c.width()*2 + lrOffset
	savedCPSR := c.reg.cpsr
	c.reg.switchMode(mode)
	if p := c.reg.spsrPtr(); p != nil {
		*p = savedCPSR
	}
	c.reg.r[14] = returnAddr
	c.reg.cpsr |= flagI
	if mode == ModeFIQ {
		c.reg.cpsr |= flagF
	}
	c.reg.cpsr &^= flagT
	c.reg.r[15] = vector
	c.FlushPipeline()
}

// returnFromException implements "S-bit set and Rd=R15": CPSR <- SPSR,
// banked registers swap back per the restored mode.
func (c *CPU) returnFromException() {
	if p := c.reg.spsrPtr(); p != nil {
		restored := *p
		c.reg.switchMode(Mode(restored & modeMask))
		c.reg.cpsr = restored
	}
	c.FlushPipeline()
}

// Halt puts the CPU into the low-power Halt state, left as soon as
// IE&IF != 0 regardless of IME.
func (c *CPU) Halt() { c.halted = true }

// Stop puts the CPU into the deeper Stop state; the emulator approximates
// real hardware's keypad-only wake by treating it as halt-until-keypress.
func (c *CPU) Stop() { c.stopped = true }

// WakeFromStop resumes a Stop-halted CPU; emu.System.SetButtons calls it
// whenever any button is pressed, regardless of KEYCNT and IME/IE masking,
// since STOP exit is a hardware reset-like event rather than a normal IRQ.
func (c *CPU) WakeFromStop() { c.stopped = false }

// softwareInterrupt executes SWI, either via the high-level stub table
// or by taking the real exception per the documented SWI entry.
func (c *CPU) softwareInterrupt(comment uint32) int {
	if c.highLevelSWI {
		return c.dispatchHighLevelSWI(comment)
	}
	lrOffset := uint32(4)
	if c.reg.thumb() {
		lrOffset = 2
	}
	c.enterException(ModeSupervisor, 0x08, lrOffset)
	return 3
}
