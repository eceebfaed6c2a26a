// Package ppu models the GBA picture processing unit: the DISPCNT/DISPSTAT/
// VCOUNT register file, the per-scanline HBlank/VBlank timing state machine,
// and the four-background/six-mode/object/window/blend rendering pipeline
// that produces one 240x160 frame.
package ppu

import "github.com/daltonreeve/gbacore/internal/irq"

const (
	ScreenWidth  = 240
	ScreenHeight = 160

	cyclesPerLine = 1232
	hdrawCycles   = 960
	totalLines    = 228
)

// DMA is the subset of the DMA engine the PPU drives on HBlank/VBlank.
type DMA interface {
	NotifyHBlank()
	NotifyVBlank()
}

// PPU owns its own MMIO register file (DISPCNT through BLDY) and renders
// into an internal RGBA framebuffer; it never owns VRAM/palette/OAM storage
// (the bus does), so every render pass borrows those slices from the caller.
type PPU struct {
	dispcnt  uint16
	dispstat uint16
	vcount   uint16

	bgcnt  [4]uint16
	bghofs [4]uint16
	bgvofs [4]uint16

	// Affine parameters and reference points for BG2 (index 0) and BG3
	// (index 1). bgxRef/bgyRef are the live internal accumulators advanced
	// once per scanline by PB/PD; bgx/bgy are the public write-only
	// registers reloaded into the accumulators at VBlank and on write.
	bgpa, bgpb, bgpc, bgpd [2]uint16
	bgx, bgy               [2]int32
	bgxRef, bgyRef         [2]int32

	win0h, win1h  uint16
	win0v, win1v  uint16
	winin, winout uint16
	mosaic        uint16
	bldcnt        uint16
	bldalpha      uint16
	bldy          uint16

	dot  int
	line int

	framebuffer [ScreenWidth * ScreenHeight * 4]byte
}

func New() *PPU { return &PPU{} }

// VCount returns the current scanline, for callers composing frame timing
// without reaching into the register file.
func (p *PPU) VCount() int { return p.line }

// Framebuffer returns the packed RGBA8888 pixel buffer for the frame most
// recently rendered, row-major starting at the top-left.
func (p *PPU) Framebuffer() []byte { return p.framebuffer[:] }

// Tick advances PPU timing by the given number of CPU cycles, rendering
// each visible scanline at its start and firing HBlank/VBlank/VCount
// interrupts and DMA triggers at the documented boundaries (.6).
// vram/palette/oam are borrowed from the bus for the duration of the call.
func (p *PPU) Tick(cycles int, ic *irq.Controller, dma DMA, vram, palette, oam []byte) {
	for i := 0; i < cycles; i++ {
		if p.dot == 0 && p.line < ScreenHeight {
			p.renderLine(p.line, vram, palette, oam)
		}
		p.dot++
		if p.line < ScreenHeight && p.dot == hdrawCycles {
			p.dispstat |= 1 << 1
			if p.dispstat&(1<<4) != 0 && ic != nil {
				ic.Request(irq.HBlank)
			}
			if dma != nil {
				dma.NotifyHBlank()
			}
		}
		if p.dot >= cyclesPerLine {
			p.dot = 0
			p.dispstat &^= 1 << 1
			p.advanceAffineRefs()
			p.line++
			if p.line == ScreenHeight {
				p.dispstat |= 1 << 0
				if p.dispstat&(1<<3) != 0 && ic != nil {
					ic.Request(irq.VBlank)
				}
				if dma != nil {
					dma.NotifyVBlank()
				}
				p.reloadAffineRefs()
			} else if p.line >= totalLines {
				p.line = 0
				p.dispstat &^= 1 << 0
			}
			p.vcount = uint16(p.line)
			matched := p.vcount == (p.dispstat >> 8)
			if matched {
				p.dispstat |= 1 << 2
				if p.dispstat&(1<<5) != 0 && ic != nil {
					ic.Request(irq.VCount)
				}
			} else {
				p.dispstat &^= 1 << 2
			}
		}
	}
}

// advanceAffineRefs steps each affine background's internal reference point
// by one line's worth of its PB/PD (vertical) parameters, per .6.
func (p *PPU) advanceAffineRefs() {
	for i := 0; i < 2; i++ {
		p.bgxRef[i] += int32(int16(p.bgpb[i]))
		p.bgyRef[i] += int32(int16(p.bgpd[i]))
	}
}

// reloadAffineRefs restores the internal accumulators from the public
// BGxX/BGxY registers, which happens once per frame at VBlank.
func (p *PPU) reloadAffineRefs() {
	p.bgxRef = p.bgx
	p.bgyRef = p.bgy
}

func sext28(v uint32) int32 {
	v &= 0x0FFFFFFF
	if v&0x08000000 != 0 {
		v |= 0xF0000000
	}
	return int32(v)
}

// ReadByte/WriteByte decode the PPU's MMIO register window (0x04000000 to
// 0x04000055 inclusive) a byte at a time, matching the bus's byte-granular
// dispatch to every peripheral register file.
func (p *PPU) ReadByte(offset uint32) byte {
	switch {
	case offset == 0x00:
		return byte(p.dispcnt)
	case offset == 0x01:
		return byte(p.dispcnt >> 8)
	case offset == 0x04:
		return byte(p.dispstat)
	case offset == 0x05:
		return byte(p.dispstat >> 8)
	case offset == 0x06:
		return byte(p.vcount)
	case offset == 0x07:
		return byte(p.vcount >> 8)
	case offset >= 0x08 && offset < 0x10:
		rel := offset - 0x08
		bg := rel / 2
		if rel%2 == 0 {
			return byte(p.bgcnt[bg])
		}
		return byte(p.bgcnt[bg] >> 8)
	case offset >= 0x10 && offset < 0x20:
		// BGxHOFS/VOFS are write-only on real hardware; reads return 0.
		return 0
	case offset >= 0x20 && offset < 0x30:
		return p.readAffine(0, offset-0x20)
	case offset >= 0x30 && offset < 0x40:
		return p.readAffine(1, offset-0x30)
	case offset >= 0x40 && offset < 0x48:
		// WIN0H/WIN1H/WIN0V/WIN1V are write-only.
		return 0
	case offset == 0x48:
		return byte(p.winin)
	case offset == 0x49:
		return byte(p.winin >> 8)
	case offset == 0x4A:
		return byte(p.winout)
	case offset == 0x4B:
		return byte(p.winout >> 8)
	case offset >= 0x4C && offset < 0x50:
		return 0 // MOSAIC is write-only.
	case offset == 0x50:
		return byte(p.bldcnt)
	case offset == 0x51:
		return byte(p.bldcnt >> 8)
	case offset == 0x52:
		return byte(p.bldalpha)
	case offset == 0x53:
		return byte(p.bldalpha >> 8)
	case offset >= 0x54 && offset < 0x56:
		return 0 // BLDY is write-only.
	}
	return 0
}

func (p *PPU) readAffine(i int, rel uint32) byte {
	switch {
	case rel < 2:
		return byte(p.bgpa[i] >> (8 * rel))
	case rel < 4:
		return byte(p.bgpb[i] >> (8 * (rel - 2)))
	case rel < 6:
		return byte(p.bgpc[i] >> (8 * (rel - 4)))
	case rel < 8:
		return byte(p.bgpd[i] >> (8 * (rel - 6)))
	case rel < 12:
		return byte(uint32(p.bgx[i]) >> (8 * (rel - 8)))
	case rel < 16:
		return byte(uint32(p.bgy[i]) >> (8 * (rel - 12)))
	}
	return 0
}

func (p *PPU) WriteByte(offset uint32, value byte) {
	switch {
	case offset == 0x00:
		p.dispcnt = (p.dispcnt &^ 0x00FF) | uint16(value)
	case offset == 0x01:
		p.dispcnt = (p.dispcnt &^ 0xFF00) | uint16(value)<<8
	case offset == 0x04:
		p.dispstat = (p.dispstat & 0x0007) | (uint16(value) &^ 0x0007)
	case offset == 0x05:
		p.dispstat = (p.dispstat &^ 0xFF00) | uint16(value)<<8
	case offset == 0x06, offset == 0x07:
		// VCOUNT is read-only.
	case offset >= 0x08 && offset < 0x10:
		rel := offset - 0x08
		bg := rel / 2
		if rel%2 == 0 {
			p.bgcnt[bg] = (p.bgcnt[bg] &^ 0x00FF) | uint16(value)
		} else {
			p.bgcnt[bg] = (p.bgcnt[bg] &^ 0xFF00) | uint16(value)<<8
		}
	case offset >= 0x10 && offset < 0x20:
		rel := offset - 0x10
		bg := rel / 4
		isVOFS := (rel % 4) >= 2
		lowByte := (rel % 2) == 0
		reg := &p.bghofs[bg]
		if isVOFS {
			reg = &p.bgvofs[bg]
		}
		if lowByte {
			*reg = (*reg &^ 0x00FF) | uint16(value)
		} else {
			*reg = (*reg &^ 0x0100) | (uint16(value)&0x01)<<8
		}
	case offset >= 0x20 && offset < 0x30:
		p.writeAffine(0, offset-0x20, value)
	case offset >= 0x30 && offset < 0x40:
		p.writeAffine(1, offset-0x30, value)
	case offset == 0x40:
		p.win0h = (p.win0h &^ 0x00FF) | uint16(value)
	case offset == 0x41:
		p.win0h = (p.win0h &^ 0xFF00) | uint16(value)<<8
	case offset == 0x42:
		p.win1h = (p.win1h &^ 0x00FF) | uint16(value)
	case offset == 0x43:
		p.win1h = (p.win1h &^ 0xFF00) | uint16(value)<<8
	case offset == 0x44:
		p.win0v = (p.win0v &^ 0x00FF) | uint16(value)
	case offset == 0x45:
		p.win0v = (p.win0v &^ 0xFF00) | uint16(value)<<8
	case offset == 0x46:
		p.win1v = (p.win1v &^ 0x00FF) | uint16(value)
	case offset == 0x47:
		p.win1v = (p.win1v &^ 0xFF00) | uint16(value)<<8
	case offset == 0x48:
		p.winin = (p.winin &^ 0x00FF) | uint16(value)
	case offset == 0x49:
		p.winin = (p.winin &^ 0xFF00) | uint16(value)<<8
	case offset == 0x4A:
		p.winout = (p.winout &^ 0x00FF) | uint16(value)
	case offset == 0x4B:
		p.winout = (p.winout &^ 0xFF00) | uint16(value)<<8
	case offset == 0x4C:
		p.mosaic = (p.mosaic &^ 0x00FF) | uint16(value)
	case offset == 0x4D:
		p.mosaic = (p.mosaic &^ 0xFF00) | uint16(value)<<8
	case offset == 0x50:
		p.bldcnt = (p.bldcnt &^ 0x00FF) | uint16(value)
	case offset == 0x51:
		p.bldcnt = (p.bldcnt &^ 0xFF00) | uint16(value)<<8
	case offset == 0x52:
		p.bldalpha = (p.bldalpha &^ 0x00FF) | uint16(value)
	case offset == 0x53:
		p.bldalpha = (p.bldalpha &^ 0xFF00) | uint16(value)<<8
	case offset == 0x54:
		p.bldy = (p.bldy &^ 0x00FF) | uint16(value)
	case offset == 0x55:
		p.bldy = (p.bldy &^ 0xFF00) | uint16(value)<<8
	}
}

func (p *PPU) writeAffine(i int, rel uint32, value byte) {
	set16 := func(reg *uint16, lowHalf bool) {
		if lowHalf {
			*reg = (*reg &^ 0x00FF) | uint16(value)
		} else {
			*reg = (*reg &^ 0xFF00) | uint16(value)<<8
		}
	}
	switch {
	case rel < 2:
		set16(&p.bgpa[i], rel == 0)
	case rel < 4:
		set16(&p.bgpb[i], rel == 2)
	case rel < 6:
		set16(&p.bgpc[i], rel == 4)
	case rel < 8:
		set16(&p.bgpd[i], rel == 6)
	case rel < 12:
		shift := 8 * (rel - 8)
		raw := uint32(p.bgx[i])
		raw = (raw &^ (0xFF << shift)) | uint32(value)<<shift
		p.bgx[i] = sext28(raw)
		p.bgxRef[i] = p.bgx[i]
	case rel < 16:
		shift := 8 * (rel - 12)
		raw := uint32(p.bgy[i])
		raw = (raw &^ (0xFF << shift)) | uint32(value)<<shift
		p.bgy[i] = sext28(raw)
		p.bgyRef[i] = p.bgy[i]
	}
}
