package cpu

import (
	"testing"

	"github.com/daltonreeve/gbacore/internal/bus"
)

func newCPUWithROM(code []byte) *CPU {
	rom := make([]byte, 0x01000000)
	copy(rom, code)
	b := bus.New(rom, nil)
	return New(b)
}

// TestCPU_BootWithNoBIOS covers booting straight into a cartridge with
// BIOS skipped: placing the CPU at the ROM entry point and executing a
// single relative branch must leave PC() one instruction past the branch
// target (PC() is R15 minus one instruction width).
func TestCPU_BootWithNoBIOS(t *testing.T) {
	rom := make([]byte, 0x100)
	// ARM: B $+8, offset field 0 (branch target = address of this
	// instruction + 8).
	rom[0] = 0x00
	rom[1] = 0x00
	rom[2] = 0x00
	rom[3] = 0xEA // cond=AL, 101, L=0, offset=0

	c := newCPUWithROM(rom)
	c.SetEntryPoint(0x08000000)
	c.Step()

	if c.PC() != 0x0800000C {
		t.Fatalf("R15 after B $+8 got %#08x want 0x0800000c", c.PC())
	}
}

func armWord(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func newARMCPU(instrs ...uint32) *CPU {
	var rom []byte
	for _, ins := range instrs {
		rom = append(rom, armWord(ins)...)
	}
	c := newCPUWithROM(rom)
	c.SetEntryPoint(0x08000000)
	return c
}

// MOV r0, #0x12 ; cond=AL(1110) 00 I=1 op=1101(MOV) S=0 Rn=0000 Rd=0000 rot=0000 imm=00010010
func TestCPU_DataProcessing_MOVImmediate(t *testing.T) {
	c := newARMCPU(0xE3A00012) // MOV R0, #0x12
	c.Step()
	if c.reg.r[0] != 0x12 {
		t.Fatalf("R0 = %#x, want 0x12", c.reg.r[0])
	}
}

// SUBS R0, R1, R2 with R1=0, R2=1 must borrow: C clear, result 0xFFFFFFFF, N set.
func TestCPU_SUBS_BorrowSetsCarryClear(t *testing.T) {
	c := newARMCPU(0xE0510002) // SUBS R0, R1, R2
	c.reg.r[1] = 0
	c.reg.r[2] = 1
	c.Step()
	if c.reg.r[0] != 0xFFFFFFFF {
		t.Fatalf("R0 = %#x, want 0xffffffff", c.reg.r[0])
	}
	if c.reg.flagSet(flagC) {
		t.Fatalf("C should be clear (borrow occurred)")
	}
	if !c.reg.flagSet(flagN) {
		t.Fatalf("N should be set")
	}
}

// ADDS R0, R1, R2 with both operands carrying the same sign but a result
// of the opposite sign must set V.
func TestCPU_ADDS_SignedOverflowSetsV(t *testing.T) {
	c := newARMCPU(0xE0910002) // ADDS R0, R1, R2
	c.reg.r[1] = 0x7FFFFFFF
	c.reg.r[2] = 1
	c.Step()
	if !c.reg.flagSet(flagV) {
		t.Fatalf("V should be set on signed overflow")
	}
	if c.reg.r[0] != 0x80000000 {
		t.Fatalf("R0 = %#x, want 0x80000000", c.reg.r[0])
	}
}

// BX to an odd-aligned target switches to Thumb state.
func TestCPU_BX_SwitchesToThumb(t *testing.T) {
	c := newARMCPU(0xE12FFF1E) // BX LR
	c.reg.r[14] = 0x08000101   // odd -> Thumb
	c.Step()
	if !c.reg.thumb() {
		t.Fatalf("expected Thumb state after BX to odd address")
	}
	if c.PC() != 0x08000102 {
		t.Fatalf("PC = %#x, want 0x08000102", c.PC())
	}
}

func TestCPU_ModeSwitchPreservesBankedRegisters(t *testing.T) {
	c := newARMCPU(0)
	c.reg.switchMode(ModeUser)
	c.reg.r[13] = 0x03007F00
	c.reg.switchMode(ModeIRQ)
	c.reg.r[13] = 0x03007FA0
	c.reg.switchMode(ModeSupervisor)
	c.reg.r[13] = 0x03007FE0
	c.reg.switchMode(ModeIRQ)
	if c.reg.r[13] != 0x03007FA0 {
		t.Fatalf("R13_irq = %#x, want 0x03007fa0 preserved across SVC round trip", c.reg.r[13])
	}
	c.reg.switchMode(ModeUser)
	if c.reg.r[13] != 0x03007F00 {
		t.Fatalf("R13_usr = %#x, want 0x03007f00 preserved", c.reg.r[13])
	}
}

func TestCPU_ConditionCodes(t *testing.T) {
	c := newARMCPU(0)
	c.reg.cpsr |= flagZ
	if !c.evalCondition(0x0) { // EQ
		t.Fatalf("EQ should hold when Z set")
	}
	if c.evalCondition(0x1) { // NE
		t.Fatalf("NE should not hold when Z set")
	}
	c.reg.cpsr &^= flagZ
	if c.evalCondition(0xF) { // NV reserved, always false
		t.Fatalf("NV (reserved) must never hold")
	}
}

func TestCPU_SWI_EntersSupervisorException(t *testing.T) {
	c := newARMCPU(0xEF000001) // SWI #1
	c.SetHighLevelSWI(false)
	c.Step()
	if c.reg.mode() != ModeSupervisor {
		t.Fatalf("mode after SWI = %#x, want Supervisor", c.reg.mode())
	}
	if c.PC() != 0x0000000C {
		t.Fatalf("PC after SWI = %#x, want 0x0000000c", c.PC())
	}
	if !c.reg.flagSet(flagI) {
		t.Fatalf("I bit should be set on SWI entry")
	}
}

func TestCPU_HighLevelSWI_DivByZero(t *testing.T) {
	c := newARMCPU(0xEF000006) // SWI #6 (Div)
	c.SetHighLevelSWI(true)
	c.reg.r[0] = 10
	c.reg.r[1] = 0
	c.Step()
	if c.reg.r[0] != 0 {
		t.Fatalf("Div by zero quotient = %d, want 0 (degenerate, no panic)", c.reg.r[0])
	}
}

func TestCPU_ThumbMoveShifted(t *testing.T) {
	c := newCPUWithROM(nil)
	c.reg.cpsr |= flagT
	c.reg.r[1] = 0x4
	c.execThumb(0x0089) // LSL R1, R1, #2
	if c.reg.r[1] != 0x10 {
		t.Fatalf("R1 after LSL #2 = %#x, want 0x10", c.reg.r[1])
	}
}

func TestCPU_ThumbAddSubtractImmediate(t *testing.T) {
	c := newCPUWithROM(nil)
	c.reg.cpsr |= flagT
	c.reg.r[0] = 5
	c.execThumb(0x1EC1) // SUB R1, R0, #3
	if c.reg.r[1] != 2 {
		t.Fatalf("R1 after SUB #3 = %d, want 2", c.reg.r[1])
	}
}
