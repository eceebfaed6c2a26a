package timer

import (
	"testing"

	"github.com/daltonreeve/gbacore/internal/irq"
)

type stubAPU struct {
	masterEnabled bool
	fifoForTimer  map[int][]int
	needsData     bool
	advanced      []int
}

func (s *stubAPU) MasterEnabled() bool                  { return s.masterEnabled }
func (s *stubAPU) FIFOsForTimer(timerID int) []int      { return s.fifoForTimer[timerID] }
func (s *stubAPU) AdvanceFIFO(fifoID int) (needs bool) {
	s.advanced = append(s.advanced, fifoID)
	return s.needsData
}

type stubDMA struct{ triggered []int }

func (d *stubDMA) TriggerFIFO(fifoID int) { d.triggered = append(d.triggered, fifoID) }

func TestEngine_BasicOverflowReloadsAndRaisesIRQ(t *testing.T) {
	e := New()
	e.WriteByte(0, 0, 0xFE) // reload low
	e.WriteByte(0, 1, 0xFF) // reload high -> reload = 0xFFFE
	e.WriteByte(0, 2, 0x80|0x40) // enable + irq enable, prescaler=1
	ic := irq.New()

	e.Step(1, ic, nil, nil) // counter 0xFFFE -> 0xFFFF
	if e.T[0].Counter != 0xFFFF {
		t.Fatalf("counter = %04x, want FFFF", e.T[0].Counter)
	}
	e.Step(1, ic, nil, nil) // overflow -> reload
	if e.T[0].Counter != 0xFFFE {
		t.Fatalf("counter after overflow = %04x, want reload FFFE", e.T[0].Counter)
	}
	if ic.IF&irq.Timer0 == 0 {
		t.Fatalf("expected Timer0 IRQ requested")
	}
}

func TestEngine_CascadeChain(t *testing.T) {
	// , timer1 cascade
	// reload 0; after 0x10001 cycles timer1 counter == 1.
	e := New()
	e.WriteByte(0, 0, 0xFF)
	e.WriteByte(0, 1, 0xFF)
	e.WriteByte(0, 2, 0x80) // enable, prescaler 1, no irq
	e.WriteByte(1, 0, 0x00)
	e.WriteByte(1, 1, 0x00)
	e.WriteByte(1, 2, 0x80|0x04) // enable + cascade

	ic := irq.New()
	e.Step(0x10001, ic, nil, nil)
	if e.T[1].Counter != 1 {
		t.Fatalf("timer1 counter = %d, want 1", e.T[1].Counter)
	}
}

func TestEngine_Timer0CannotCascade(t *testing.T) {
	e := New()
	e.WriteByte(0, 2, 0x80|0x04) // try to set cascade on timer 0
	if e.T[0].Cascade {
		t.Fatalf("timer 0 must never cascade")
	}
}

func TestEngine_OverflowAdvancesFIFOAndTriggersDMA(t *testing.T) {
	e := New()
	e.WriteByte(0, 0, 0xFF)
	e.WriteByte(0, 1, 0xFF)
	e.WriteByte(0, 2, 0x80)

	apu := &stubAPU{masterEnabled: true, fifoForTimer: map[int][]int{0: {0}}, needsData: true}
	dma := &stubDMA{}
	ic := irq.New()
	e.Step(1, ic, apu, dma)
	if len(apu.advanced) != 1 || apu.advanced[0] != 0 {
		t.Fatalf("expected FIFO 0 advanced once, got %v", apu.advanced)
	}
	if len(dma.triggered) != 1 || dma.triggered[0] != 0 {
		t.Fatalf("expected DMA FIFO trigger for fifo 0, got %v", dma.triggered)
	}
}

func TestEngine_EnableRisingEdgeReloadsCounter(t *testing.T) {
	e := New()
	e.WriteByte(2, 0, 0x34)
	e.WriteByte(2, 1, 0x12) // reload = 0x1234
	e.T[2].Counter = 0x9999
	e.WriteByte(2, 2, 0x80) // enable rising edge
	if e.T[2].Counter != 0x1234 {
		t.Fatalf("counter = %04x, want reload 1234 on enable edge", e.T[2].Counter)
	}
}

func TestEngine_ReadBackCounterAndControl(t *testing.T) {
	e := New()
	e.WriteByte(3, 2, 0x80|0x40|0x02) // enable, irq, prescaler=2(256)
	got := e.ReadByte(3, 2)
	want := byte(0x80 | 0x40 | 0x02)
	if got != want {
		t.Fatalf("CNT_H readback = %02x, want %02x", got, want)
	}
}
