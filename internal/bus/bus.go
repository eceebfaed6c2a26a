// Package bus wires the CPU-visible 32-bit address space together: BIOS,
// work RAM, palette/VRAM/OAM, cartridge ROM and save backup, and the 1 KiB
// MMIO window shared by every other peripheral.
package bus

import (
	"bytes"
	"encoding/gob"

	"github.com/daltonreeve/gbacore/internal/cart"
	"github.com/daltonreeve/gbacore/internal/irq"
	"github.com/daltonreeve/gbacore/internal/timer"
)

const (
	kb = 1024

	biosSize    = 16 * kb
	ewramSize   = 256 * kb
	iwramSize   = 32 * kb
	paletteSize = 1 * kb
	vramSize    = 96 * kb
	vramMirror  = 0x18000
	oamSize     = 1 * kb
	ioSize      = 1 * kb

	biosBase    = 0x00000000
	ewramBase   = 0x02000000
	iwramBase   = 0x03000000
	ioBase      = 0x04000000
	paletteBase = 0x05000000
	vramBase    = 0x06000000
	oamBase     = 0x07000000
	romBase     = 0x08000000
	sramBase    = 0x0E000000
)

// Access describes why an access happened, which selects the waitstate
// table entry; it carries no semantic meaning beyond timing.
type Access int

const (
	Sequential Access = iota
	NonSequential
	DMAAccessKind
	Internal
)

// ppuPorts is the narrow view the bus needs of the PPU's MMIO register
// file. The concrete *ppu.PPU satisfies it without ppu importing bus.
type ppuPorts interface {
	ReadByte(offset uint32) byte
	WriteByte(offset uint32, value byte)
}

// apuPorts is the narrow view the bus needs of the APU's MMIO register
// file, including the two FIFO write ports.
type apuPorts interface {
	ReadByte(offset uint32) byte
	WriteByte(offset uint32, value byte)
}

// dmaPorts is the narrow view the bus needs of the DMA engine's per-channel
// register file (SAD/DAD/CNT_L/CNT_H).
type dmaPorts interface {
	ReadByte(channel int, offset int) byte
	WriteByte(channel int, offset int, value byte)
}

// Bus owns every CPU-addressable storage region directly and dispatches
// MMIO register reads/writes to borrowed peripheral handles, never owning
// the peripherals themselves.
type Bus struct {
	bios           [biosSize]byte
	biosLoaded     bool
	biosLastFetch  uint32
	executingBIOS  bool

	ewram [ewramSize]byte
	iwram [iwramSize]byte

	palette [paletteSize]byte
	vram    [vramSize]byte
	oam     [oamSize]byte

	io [ioSize]byte // MMIO fallthrough array for registers nothing below decodes specially

	rom    []byte
	backup cart.Backup

	irqc  *irq.Controller
	tmr   *timer.Engine
	ppu   ppuPorts
	apu   apuPorts
	dma   dmaPorts

	waitcnt uint16
	nonSeq  [16]int // per region-nibble, byte/halfword access
	seqTbl  [16]int

	keyinput uint16 // KEYINPUT, active-low button state (bit=0 means pressed)
	keycnt   uint16
}

// New constructs a bus with the given cartridge ROM image and detected
// backup type. It takes no BIOS image: LoadBIOS installs one, and until
// then the BIOS region holds zeros.
func New(rom []byte, backup cart.Backup) *Bus {
	b := &Bus{
		rom:      rom,
		backup:   backup,
		irqc:     irq.New(),
		tmr:      timer.New(),
		keyinput: 0x03FF,
	}
	b.recomputeWaitStates()
	return b
}

// LoadBIOS installs a BIOS image (normally 16 KiB). Images shorter than
// the full region are zero-padded.
func (b *Bus) LoadBIOS(data []byte) {
	b.bios = [biosSize]byte{}
	copy(b.bios[:], data)
	b.biosLoaded = len(data) > 0
}

// SetExecutingBIOS tells the bus whether the program counter currently
// lies inside the BIOS region; the CPU updates this on every branch and
// pipeline flush so BIOS-region reads can distinguish legitimate fetches
// from the "open bus returns the last fetched opcode" case.
func (b *Bus) SetExecutingBIOS(v bool) { b.executingBIOS = v }

// IRQ returns the interrupt controller for the CPU/scheduler to poll.
func (b *Bus) IRQ() *irq.Controller { return b.irqc }

// Timers returns the timer engine for the scheduler to step.
func (b *Bus) Timers() *timer.Engine { return b.tmr }

// VRAM, Palette, and OAM expose the raw backing arrays as slices so the
// scheduler's renderer can read pixel/tile/attribute data directly without
// going through the per-byte Read path (and its waitstate bookkeeping) on
// every pixel of every scanline.
func (b *Bus) VRAM() []byte    { return b.vram[:] }
func (b *Bus) Palette() []byte { return b.palette[:] }
func (b *Bus) OAM() []byte     { return b.oam[:] }

// AttachPPU/AttachAPU/AttachDMA wire the borrowed peripheral handles used
// for MMIO register dispatch. Called once during system construction,
// after the peripherals exist, to avoid an import cycle between bus and
// ppu/apu/dma.
func (b *Bus) AttachPPU(p ppuPorts) { b.ppu = p }
func (b *Bus) AttachAPU(a apuPorts) { b.apu = a }
func (b *Bus) AttachDMA(d dmaPorts) { b.dma = d }

// SetKeys updates KEYINPUT from a pressed-button bitmask (set bit = held),
// covering the GBA's ten buttons with the register's active-low polarity.
func (b *Bus) SetKeys(pressedMask uint16) {
	b.keyinput = (^pressedMask) & 0x03FF
}

// --- waitstate model -------------------------------------------------

var waitstateN = [4]int{4, 3, 2, 8}

// recomputeWaitStates rebuilds the per-region-nibble cycle tables from
// WAITCNT. Region nibbles 0x8/0x9, 0xA/0xB, 0xC/0xD are GamePak ROM
// mirrors WS0/WS1/WS2; 0xE is the SRAM/FLASH/EEPROM window. Everything
// else uses a fixed hardware cost that WAITCNT does not affect.
func (b *Bus) recomputeWaitStates() {
	for i := range b.nonSeq {
		b.nonSeq[i] = 1
		b.seqTbl[i] = 1
	}
	// EWRAM's external 16-bit bus is fixed at 3 cycles regardless of WAITCNT.
	b.nonSeq[0x2] = 3
	b.seqTbl[0x2] = 3

	sramN := waitstateN[b.waitcnt&0x3]
	b.nonSeq[0xE] = sramN
	b.seqTbl[0xE] = sramN

	ws0N := waitstateN[(b.waitcnt>>2)&0x3]
	ws0S := [2]int{2, 1}[(b.waitcnt>>4)&0x1]
	ws1N := waitstateN[(b.waitcnt>>5)&0x3]
	ws1S := [2]int{4, 1}[(b.waitcnt>>7)&0x1]
	ws2N := waitstateN[(b.waitcnt>>8)&0x3]
	ws2S := [2]int{8, 1}[(b.waitcnt>>10)&0x1]

	b.nonSeq[0x8], b.nonSeq[0x9] = ws0N, ws0N
	b.seqTbl[0x8], b.seqTbl[0x9] = ws0S, ws0S
	b.nonSeq[0xA], b.nonSeq[0xB] = ws1N, ws1N
	b.seqTbl[0xA], b.seqTbl[0xB] = ws1S, ws1S
	b.nonSeq[0xC], b.nonSeq[0xD] = ws2N, ws2N
	b.seqTbl[0xC], b.seqTbl[0xD] = ws2S, ws2S
}

// Cycles reports the wait-state cost of an access of the given width to
// addr under the given access hint. DMA and Internal accesses time the
// same as NonSequential; only Sequential gets the cheaper table.
func (b *Bus) Cycles(addr uint32, width Width, access Access) int {
	nibble := (addr >> 24) & 0xF
	base := b.nonSeq[nibble]
	if access == Sequential {
		base = b.seqTbl[nibble]
	}
	if width == Word && nibble >= 0x8 && nibble <= 0xD {
		// 16-bit external ROM bus: a 32-bit access is two 16-bit accesses,
		// first non-sequential, second sequential.
		return b.nonSeq[nibble] + b.seqTbl[nibble]
	}
	return base
}

type Width int

const (
	Byte Width = iota
	Halfword
	Word
)

// --- reads -------------------------------------------------------------

func (b *Bus) ReadByte(addr uint32, access Access) byte {
	switch addr >> 24 {
	case 0x0, 0x1:
		return b.readBIOS(addr)
	case 0x2:
		return b.ewram[addr&(ewramSize-1)]
	case 0x3:
		return b.iwram[addr&(iwramSize-1)]
	case 0x4:
		return b.readMMIO(addr & 0xFFFFFF)
	case 0x5:
		return b.palette[addr&(paletteSize-1)]
	case 0x6:
		return b.vram[vramOffset(addr)]
	case 0x7:
		return b.oam[addr&(oamSize-1)]
	case 0x8, 0x9, 0xA, 0xB, 0xC, 0xD:
		return b.readROM(addr)
	case 0xE, 0xF:
		if b.backup == nil {
			return 0
		}
		return b.backup.Read(addr & 0xFFFF)
	}
	return 0
}

func (b *Bus) ReadHalfword(addr uint32, access Access) uint16 {
	addr &^= 1
	lo := b.ReadByte(addr, access)
	hi := b.ReadByte(addr+1, access)
	return uint16(lo) | uint16(hi)<<8
}

func (b *Bus) ReadWord(addr uint32, access Access) uint32 {
	addr &^= 3
	b0 := b.ReadByte(addr, access)
	b1 := b.ReadByte(addr+1, access)
	b2 := b.ReadByte(addr+2, access)
	b3 := b.ReadByte(addr+3, access)
	return uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16 | uint32(b3)<<24
}

func (b *Bus) readBIOS(addr uint32) byte {
	if int(addr) < len(b.bios) {
		if b.executingBIOS {
			v := b.bios[addr]
			b.biosLastFetch = b.biosLastFetch>>8 | uint32(v)<<24
			return v
		}
		return byte(b.biosLastFetch)
	}
	return 0
}

func vramOffset(addr uint32) uint32 {
	off := addr & 0x1FFFF
	if off >= vramMirror {
		off -= 0x8000
	}
	return off
}

func (b *Bus) readROM(addr uint32) byte {
	off := addr & 0x01FFFFFF
	if int(off) < len(b.rom) {
		return b.rom[off]
	}
	halfIndex := (addr >> 1) & 0xFFFF
	if addr&1 != 0 {
		return byte(halfIndex >> 8)
	}
	return byte(halfIndex)
}

// --- writes --------------------------------------------------------------

func (b *Bus) WriteByte(addr uint32, value byte, access Access) {
	switch addr >> 24 {
	case 0x0, 0x1:
		// BIOS is read-only.
	case 0x2:
		b.ewram[addr&(ewramSize-1)] = value
	case 0x3:
		b.iwram[addr&(iwramSize-1)] = value
	case 0x4:
		b.writeMMIO(addr&0xFFFFFF, value)
	case 0x5:
		b.writeHalfwordWidened(&b.palette, addr&(paletteSize-1), value)
	case 0x6:
		b.writeHalfwordWidened(&b.vram, vramOffset(addr), value)
	case 0x7:
		// OAM silently ignores 8-bit writes.
	case 0x8, 0x9, 0xA, 0xB, 0xC, 0xD:
		// Game-ROM is read-only.
	case 0xE, 0xF:
		if b.backup != nil {
			b.backup.Write(addr&0xFFFF, value)
		}
	}
}

// writeHalfwordWidened implements the VRAM/palette quirk: an 8-bit write
// duplicates the byte into both halves of the addressed 16-bit halfword.
func writeHalfwordWidenedInto(mem []byte, offset uint32, value byte) {
	base := offset &^ 1
	if int(base) >= len(mem)-1 {
		return
	}
	mem[base] = value
	mem[base+1] = value
}

func (b *Bus) writeHalfwordWidened(mem interface{}, offset uint32, value byte) {
	switch m := mem.(type) {
	case *[paletteSize]byte:
		writeHalfwordWidenedInto(m[:], offset, value)
	case *[vramSize]byte:
		writeHalfwordWidenedInto(m[:], offset, value)
	}
}

func (b *Bus) WriteHalfword(addr uint32, value uint16, access Access) {
	addr &^= 1
	b.WriteByte(addr, byte(value), access)
	b.WriteByte(addr+1, byte(value>>8), access)
}

func (b *Bus) WriteWord(addr uint32, value uint32, access Access) {
	addr &^= 3
	b.WriteByte(addr, byte(value), access)
	b.WriteByte(addr+1, byte(value>>8), access)
	b.WriteByte(addr+2, byte(value>>16), access)
	b.WriteByte(addr+3, byte(value>>24), access)
}

// --- MMIO dispatch ---------------------------------------------------

const (
	regDISPCNT  = 0x000
	regDISPSTAT = 0x004
	regVCOUNT   = 0x006
	regBLDY_END = 0x056 // exclusive upper bound (BLDY ends at 0x055)
	regSOUND_START = 0x060
	regFIFO_END    = 0x0A8
	regDMA_START   = 0x0B0
	regDMA_END     = 0x0E0
	regTM_START    = 0x100
	regTM_END      = 0x110
	regKEYINPUT    = 0x130
	regKEYCNT      = 0x132
	regIE          = 0x200
	regIF          = 0x202
	regWAITCNT     = 0x204
	regIME         = 0x208
)

func (b *Bus) readMMIO(offset uint32) byte {
	switch {
	case offset < regBLDY_END:
		if b.ppu != nil {
			return b.ppu.ReadByte(offset)
		}
	case offset >= regSOUND_START && offset < regFIFO_END:
		if b.apu != nil {
			return b.apu.ReadByte(offset)
		}
	case offset >= regDMA_START && offset < regDMA_END:
		if b.dma != nil {
			rel := offset - regDMA_START
			ch := int(rel / 12)
			return b.dma.ReadByte(ch, int(rel%12))
		}
	case offset >= regTM_START && offset < regTM_END:
		rel := offset - regTM_START
		return b.tmr.ReadByte(int(rel/4), int(rel%4))
	case offset == regKEYINPUT:
		return byte(b.keyinput)
	case offset == regKEYINPUT+1:
		return byte(b.keyinput >> 8)
	case offset == regKEYCNT:
		return byte(b.keycnt)
	case offset == regKEYCNT+1:
		return byte(b.keycnt >> 8)
	case offset >= regIE && offset < regIE+4:
		return b.irqc.ReadByte(offset - regIE)
	case offset == regWAITCNT:
		return byte(b.waitcnt)
	case offset == regWAITCNT+1:
		return byte(b.waitcnt >> 8)
	case offset == regIME || offset == regIME+1 || offset == regIME+2 || offset == regIME+3:
		return b.irqc.ReadByte(8 + (offset - regIME))
	}
	if int(offset) < len(b.io) {
		return b.io[offset]
	}
	return 0
}

func (b *Bus) writeMMIO(offset uint32, value byte) {
	switch {
	case offset < regBLDY_END:
		if b.ppu != nil {
			b.ppu.WriteByte(offset, value)
			return
		}
	case offset >= regSOUND_START && offset < regFIFO_END:
		if b.apu != nil {
			b.apu.WriteByte(offset, value)
			return
		}
	case offset >= regDMA_START && offset < regDMA_END:
		if b.dma != nil {
			rel := offset - regDMA_START
			ch := int(rel / 12)
			b.dma.WriteByte(ch, int(rel%12), value)
			return
		}
	case offset >= regTM_START && offset < regTM_END:
		rel := offset - regTM_START
		b.tmr.WriteByte(int(rel/4), int(rel%4), value)
		return
	case offset == regKEYCNT:
		b.keycnt = b.keycnt&0xFF00 | uint16(value)
		return
	case offset == regKEYCNT+1:
		b.keycnt = b.keycnt&0x00FF | uint16(value)<<8
		return
	case offset >= regIE && offset < regIE+4:
		b.irqc.WriteByte(offset-regIE, value)
		return
	case offset == regWAITCNT:
		b.waitcnt = b.waitcnt&0xFF00 | uint16(value)
		b.recomputeWaitStates()
		return
	case offset == regWAITCNT+1:
		b.waitcnt = b.waitcnt&0x00FF | uint16(value)<<8
		b.recomputeWaitStates()
		return
	case offset == regIME || offset == regIME+1 || offset == regIME+2 || offset == regIME+3:
		b.irqc.WriteByte(8+(offset-regIME), value)
		return
	}
	if int(offset) < len(b.io) {
		b.io[offset] = value
	}
}

// --- Save/Load state -----------------------------------------------------

type busState struct {
	EWRAM   [ewramSize]byte
	IWRAM   [iwramSize]byte
	Palette [paletteSize]byte
	VRAM    [vramSize]byte
	OAM     [oamSize]byte
	IO      [ioSize]byte
	Waitcnt uint16
	Keyin   uint16
	Keycnt  uint16
	IE, IF  uint16
	IME     bool
}

// SaveState serializes bus-owned memory and register state with gob.
// Peripheral state (PPU/APU/DMA/timer/cart) is not part of this blob.
func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		EWRAM: b.ewram, IWRAM: b.iwram, Palette: b.palette, VRAM: b.vram, OAM: b.oam, IO: b.io,
		Waitcnt: b.waitcnt, Keyin: b.keyinput, Keycnt: b.keycnt,
		IE: b.irqc.IE, IF: b.irqc.IF, IME: b.irqc.IME,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s busState
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.ewram, b.iwram, b.palette, b.vram, b.oam, b.io = s.EWRAM, s.IWRAM, s.Palette, s.VRAM, s.OAM, s.IO
	b.waitcnt, b.keyinput, b.keycnt = s.Waitcnt, s.Keyin, s.Keycnt
	b.irqc.IE, b.irqc.IF, b.irqc.IME = s.IE, s.IF, s.IME
	b.recomputeWaitStates()
}
