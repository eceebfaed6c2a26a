// Package timer models the GBA's four 16-bit hardware timers: prescaled
// up-counters that can cascade into one another and feed the APU's FIFO
// direct-sound channels.
package timer

import "github.com/daltonreeve/gbacore/internal/irq"

var prescalerPeriods = [4]int{1, 64, 256, 1024}

var overflowIRQBit = [4]uint16{irq.Timer0, irq.Timer1, irq.Timer2, irq.Timer3}

// APU is the subset of the audio unit the timer engine drives on overflow.
// Kept as a narrow interface (rather than an import of internal/apu) so the
// timer package has no back-reference to its observer, per Design Notes §9.
type APU interface {
	MasterEnabled() bool
	// FIFOsForTimer returns the ids (0=FIFO A, 1=FIFO B) of FIFOs currently
	// clocked by the given timer, per SOUNDCNT_H's timer-select bits.
	FIFOsForTimer(timerID int) []int
	// AdvanceFIFO pops one sample for the given FIFO and reports whether it
	// now needs refilling (<=16 bytes queued).
	AdvanceFIFO(fifoID int) (needsData bool)
}

// DMA is the subset of the DMA engine the timer drives on FIFO underrun.
type DMA interface {
	TriggerFIFO(fifoID int)
}

// Timer is one of the four 16-bit counters.
type Timer struct {
	Counter      uint16
	Reload       uint16
	PrescalerSel byte // 0..3 -> 1/64/256/1024
	Cascade      bool // illegal for timer 0; ignored if set there
	IRQEnable    bool
	Enable       bool

	accumulator int
}

// Engine owns all four timers.
type Engine struct {
	T [4]Timer
}

func New() *Engine { return &Engine{} }

// Step advances every enabled, non-cascading timer by the given number of
// CPU cycles, chasing cascade chains and firing IRQ/APU/DMA side effects.
func (e *Engine) Step(cycles int, ic *irq.Controller, apu APU, dma DMA) {
	if cycles <= 0 {
		return
	}
	for id := 0; id < 4; id++ {
		t := &e.T[id]
		if !t.Enable || t.Cascade {
			continue
		}
		period := prescalerPeriods[t.PrescalerSel]
		t.accumulator += cycles
		ticks := t.accumulator / period
		t.accumulator -= ticks * period
		if ticks > 0 {
			e.advance(id, ticks, ic, apu, dma)
		}
	}
}

// advance increments timer id by ticks counts, reloading and firing overflow
// side effects each time the counter wraps from 0xFFFF.
func (e *Engine) advance(id int, ticks int, ic *irq.Controller, apu APU, dma DMA) {
	t := &e.T[id]
	for ticks > 0 {
		room := 0x10000 - int(t.Counter)
		if ticks < room {
			t.Counter += uint16(ticks)
			return
		}
		ticks -= room
		t.Counter = t.Reload
		e.overflow(id, ic, apu, dma)
	}
}

// overflow runs the ordered side effects of .4: IRQ request,
// cascade propagation, then APU FIFO advance (which may in turn trigger a
// DMA refill).
func (e *Engine) overflow(id int, ic *irq.Controller, apu APU, dma DMA) {
	t := &e.T[id]
	if t.IRQEnable && ic != nil {
		ic.Request(overflowIRQBit[id])
	}
	if next := id + 1; next < 4 && e.T[next].Enable && e.T[next].Cascade {
		e.advance(next, 1, ic, apu, dma)
	}
	if apu != nil && apu.MasterEnabled() && (id == 0 || id == 1) {
		for _, fifoID := range apu.FIFOsForTimer(id) {
			if apu.AdvanceFIFO(fifoID) && dma != nil {
				dma.TriggerFIFO(fifoID)
			}
		}
	}
}

// ReadByte/WriteByte decode one byte of TMxCNT_L (counter/reload, offset
// 0-1) or TMxCNT_H (control, offset 2-3) for timer id.
func (e *Engine) ReadByte(id int, offset int) byte {
	t := &e.T[id]
	switch offset {
	case 0:
		return byte(t.Counter)
	case 1:
		return byte(t.Counter >> 8)
	case 2:
		var v byte = t.PrescalerSel & 0x03
		if t.Cascade {
			v |= 1 << 2
		}
		if t.IRQEnable {
			v |= 1 << 6
		}
		if t.Enable {
			v |= 1 << 7
		}
		return v
	}
	return 0
}

func (e *Engine) WriteByte(id int, offset int, value byte) {
	t := &e.T[id]
	switch offset {
	case 0:
		t.Reload = (t.Reload &^ 0x00FF) | uint16(value)
	case 1:
		t.Reload = (t.Reload &^ 0xFF00) | (uint16(value) << 8)
	case 2:
		wasEnabled := t.Enable
		t.PrescalerSel = value & 0x03
		t.Cascade = value&(1<<2) != 0 && id != 0
		t.IRQEnable = value&(1<<6) != 0
		t.Enable = value&(1<<7) != 0
		if t.Enable && !wasEnabled {
			t.Counter = t.Reload
			t.accumulator = 0
		}
	}
}
