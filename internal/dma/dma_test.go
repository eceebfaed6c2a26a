package dma

import (
	"testing"

	"github.com/daltonreeve/gbacore/internal/bus"
	"github.com/daltonreeve/gbacore/internal/irq"
)

func writeControl(e *Engine, ch int, control uint16) {
	e.WriteByte(ch, 10, byte(control))
	e.WriteByte(ch, 11, byte(control>>8))
}

func program(e *Engine, ch int, sad, dad uint32, length uint16, control uint16) {
	for i := 0; i < 4; i++ {
		e.WriteByte(ch, i, byte(sad>>uint(8*i)))
	}
	for i := 0; i < 4; i++ {
		e.WriteByte(ch, 4+i, byte(dad>>uint(8*i)))
	}
	e.WriteByte(ch, 8, byte(length))
	e.WriteByte(ch, 9, byte(length>>8))
	e.WriteByte(ch, 10, byte(control))
	// Byte 11 carries the enable bit; write it last to trigger the rising edge.
	e.WriteByte(ch, 11, byte(control>>8))
}

func TestDMA_ImmediateFillMatchesScenario4(t *testing.T) {
	// .
	bs := bus.New(make([]byte, 0x100), nil)
	bs.WriteWord(0x03000000, 0x11223344, bus.Internal)
	bs.WriteWord(0x03000004, 0x55667788, bus.Internal)

	e := New()
	const wordSize = 1 << 10
	const enable = 1 << 15
	program(e, 3, 0x03000000, 0x02000000, 16, wordSize|enable)

	ic := irq.New()
	for e.Pending() {
		e.Step(bs, ic)
	}

	if got := bs.ReadWord(0x02000000, bus.Internal); got != 0x11223344 {
		t.Fatalf("first word = %08x, want 11223344", got)
	}
	if got := bs.ReadWord(0x02000004, bus.Internal); got != 0x55667788 {
		t.Fatalf("second word = %08x, want 55667788", got)
	}
	if e.ch[3].enabled() {
		t.Fatalf("one-shot DMA3 should clear its enable bit on completion")
	}
}

func TestDMA_PublicRegistersUnchangedDuringTransfer(t *testing.T) {
	bs := bus.New(make([]byte, 0x100), nil)
	e := New()
	const enable = 1 << 15
	program(e, 3, 0x03000000, 0x02000000, 4, enable)

	ic := irq.New()
	e.Step(bs, ic) // one unit only

	if e.ch[3].sad != 0x03000000 || e.ch[3].dad != 0x02000000 || e.ch[3].length != 4 {
		t.Fatalf("public registers mutated mid-transfer: sad=%x dad=%x len=%x",
			e.ch[3].sad, e.ch[3].dad, e.ch[3].length)
	}
	if e.ch[3].lenInternal != 3 {
		t.Fatalf("internal shadow length = %d, want 3", e.ch[3].lenInternal)
	}
}

func TestDMA_ZeroLengthMeansMax(t *testing.T) {
	e := New()
	const enable = 1 << 15
	program(e, 0, 0x02000000, 0x02001000, 0, enable)
	if e.ch[0].lenInternal != 0x4000 {
		t.Fatalf("channel 0 zero length = %d, want 0x4000", e.ch[0].lenInternal)
	}
	program(e, 3, 0x02000000, 0x02001000, 0, enable)
	if e.ch[3].lenInternal != 0x10000 {
		t.Fatalf("channel 3 zero length = %d, want 0x10000", e.ch[3].lenInternal)
	}
}

func TestDMA_IRQRequestedOnCompletion(t *testing.T) {
	bs := bus.New(make([]byte, 0x100), nil)
	e := New()
	const enable = 1 << 15
	const irqEnable = 1 << 14
	program(e, 2, 0x03000000, 0x02000000, 1, enable|irqEnable)

	ic := irq.New()
	e.Step(bs, ic)

	if ic.IF&irq.DMA2 == 0 {
		t.Fatalf("expected DMA2 IRQ to be requested on completion")
	}
}

func TestDMA_HigherPriorityPreemptsAtUnitBoundary(t *testing.T) {
	bs := bus.New(make([]byte, 0x100), nil)
	e := New()
	const enable = 1 << 15

	program(e, 2, 0x03000000, 0x02000000, 4, enable)
	ic := irq.New()
	e.Step(bs, ic) // channel 2 starts running

	program(e, 0, 0x03000010, 0x02000010, 4, enable)
	if id := e.highestPending(); id != 0 {
		t.Fatalf("channel 0 should be the highest-priority pending channel, got %d", id)
	}
	channel2LenBefore := e.ch[2].lenInternal
	e.Step(bs, ic) // must service channel 0, not resume channel 2
	if e.ch[2].lenInternal != channel2LenBefore {
		t.Fatalf("channel 2 advanced while a higher-priority channel was pending")
	}
	if e.ch[0].lenInternal != 3 {
		t.Fatalf("channel 0 should have run one unit, lenInternal = %d, want 3", e.ch[0].lenInternal)
	}
}

func TestDMA_FIFORequestRunsFourWordsAndKeepsRequestCount(t *testing.T) {
	bs := bus.New(make([]byte, 0x200), nil)
	for i := uint32(0); i < 16; i += 4 {
		bs.WriteWord(0x03000000+i, 0xA0000000+i, bus.Internal)
	}
	e := New()
	const enable = 1 << 15
	const special = 3 << 12
	program(e, 1, 0x03000000, FIFOAAddr, 0, enable|special)

	e.RequestFIFO(FIFOAAddr)
	if !e.Pending() {
		t.Fatalf("FIFO request should mark channel 1 pending")
	}
	ic := irq.New()
	e.Step(bs, ic)

	if got := bs.ReadWord(FIFOAAddr, bus.Internal); got != 0xA000000C {
		t.Fatalf("FIFO destination = %08x, want last word 0xA000000C (fixed dest, 4 words copied)", got)
	}
	if e.ch[1].requestCount != 0 {
		t.Fatalf("request count = %d, want 0 after one service", e.ch[1].requestCount)
	}
	if e.Pending() {
		t.Fatalf("channel should go idle once request count is exhausted")
	}
}
