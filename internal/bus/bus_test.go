package bus

import (
	"testing"

	"github.com/daltonreeve/gbacore/internal/cart"
)

func TestBus_ROMAndRAM(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0x42
	b := New(rom, nil)

	if got := b.ReadByte(romBase+0x0100, Sequential); got != 0x42 {
		t.Fatalf("ROM read got %02x, want 42", got)
	}

	b.WriteByte(ewramBase+0x10, 0x99, Sequential)
	if got := b.ReadByte(ewramBase+0x10, Sequential); got != 0x99 {
		t.Fatalf("EWRAM read got %02x, want 99", got)
	}

	// EWRAM mirrors every 256 KiB.
	if got := b.ReadByte(ewramBase+ewramSize+0x10, Sequential); got != 0x99 {
		t.Fatalf("EWRAM mirror read got %02x, want 99", got)
	}

	b.WriteByte(iwramBase+4, 0xAB, Sequential)
	if got := b.ReadByte(iwramBase+4, Sequential); got != 0xAB {
		t.Fatalf("IWRAM read got %02x, want AB", got)
	}

	// No backup attached: save-region reads return 0.
	if got := b.ReadByte(sramBase, Sequential); got != 0 {
		t.Fatalf("unbacked save region got %02x, want 00", got)
	}
}

func TestBus_ROMOpenBusPastEnd(t *testing.T) {
	rom := make([]byte, 4)
	b := New(rom, nil)
	// Address far past the tiny ROM: classic open-bus halfword-index pattern.
	addr := uint32(romBase + 0x1000)
	want := byte((addr >> 1) & 0xFF)
	if got := b.ReadByte(addr, Sequential); got != want {
		t.Fatalf("ROM open-bus got %02x, want %02x", got, want)
	}
}

func TestBus_VRAMMirrorAndWriteQuirks(t *testing.T) {
	b := New(make([]byte, 0x200), nil)

	b.WriteByte(vramBase+0x10020, 0x11, Sequential)
	if got := b.ReadByte(vramBase+0x10020, Sequential); got != 0x11 {
		t.Fatalf("VRAM read got %02x, want 11", got)
	}
	// Mirrors beyond 0x18000.
	if got := b.ReadByte(vramBase+vramMirror+0x20, Sequential); got != 0x11 {
		t.Fatalf("VRAM mirror read got %02x, want 11", got)
	}

	// 8-bit VRAM write widens to both bytes of the addressed halfword.
	b.WriteByte(vramBase+0x40, 0x7E, Sequential)
	if got := b.ReadByte(vramBase+0x41, Sequential); got != 0x7E {
		t.Fatalf("VRAM widened write high byte got %02x, want 7E", got)
	}

	// OAM silently ignores 8-bit writes.
	b.oam[0] = 0xAA
	b.WriteByte(oamBase+0, 0x55, Sequential)
	if got := b.ReadByte(oamBase+0, Sequential); got != 0xAA {
		t.Fatalf("OAM byte write should be ignored, got %02x", got)
	}
}

func TestBus_WAITCNTRecomputesTables(t *testing.T) {
	b := New(make([]byte, 0x100), nil)
	// Default WAITCNT=0 selects WS0 non-seq setting 0 (4 cycles).
	if got := b.Cycles(romBase, Byte, NonSequential); got != 4 {
		t.Fatalf("default WS0 non-seq cost = %d, want 4", got)
	}
	// Select WS0 non-seq = 2 cycles (bits 2-3 = 10b) and seq = 1 (bit4 = 1).
	b.WriteHalfword(ioBase+regWAITCNT, 0b0001_1000, Internal)
	if got := b.Cycles(romBase, Byte, NonSequential); got != 2 {
		t.Fatalf("WS0 non-seq after WAITCNT write = %d, want 2", got)
	}
	if got := b.Cycles(romBase, Byte, Sequential); got != 1 {
		t.Fatalf("WS0 seq after WAITCNT write = %d, want 1", got)
	}
}

func TestBus_WordAccessToROMIsNonSeqPlusSeq(t *testing.T) {
	b := New(make([]byte, 0x100), nil)
	want := b.Cycles(romBase, Byte, NonSequential) + b.Cycles(romBase, Byte, Sequential)
	if got := b.Cycles(romBase, Word, NonSequential); got != want {
		t.Fatalf("word ROM access cost = %d, want %d", got, want)
	}
}

func TestBus_BackupDelegation(t *testing.T) {
	s := cart.NewSRAM()
	b := New(make([]byte, 0x100), s)
	b.WriteByte(sramBase+5, 0x42, Sequential)
	if got := b.ReadByte(sramBase+5, Sequential); got != 0x42 {
		t.Fatalf("SRAM passthrough got %02x, want 42", got)
	}
}

func TestBus_KeyinputActiveLow(t *testing.T) {
	b := New(make([]byte, 0x100), nil)
	if got := b.ReadByte(ioBase+regKEYINPUT, Sequential); got != 0xFF {
		t.Fatalf("KEYINPUT default low byte = %02x, want FF (no buttons held)", got)
	}
	b.SetKeys(0x0001) // hold button bit 0
	if got := b.ReadByte(ioBase+regKEYINPUT, Sequential); got&1 != 0 {
		t.Fatalf("KEYINPUT bit 0 should read low when held")
	}
}

func TestBus_IEIFRoundTripThroughMMIO(t *testing.T) {
	b := New(make([]byte, 0x100), nil)
	b.WriteHalfword(ioBase+regIE, 0x3FFF, Internal)
	if got := b.ReadHalfword(ioBase+regIE, Internal); got != 0x3FFF {
		t.Fatalf("IE round trip got %04x, want 3FFF", got)
	}
	b.irqc.Request(1 << 3)
	if got := b.ReadHalfword(ioBase+regIF, Internal); got&(1<<3) == 0 {
		t.Fatalf("IF bit 3 should be set after Request")
	}
	// Write-1-to-acknowledge.
	b.WriteHalfword(ioBase+regIF, 1<<3, Internal)
	if got := b.ReadHalfword(ioBase+regIF, Internal); got&(1<<3) != 0 {
		t.Fatalf("IF bit 3 should clear after write-1-ack")
	}
}

func TestBus_SaveStateRoundTrip(t *testing.T) {
	b := New(make([]byte, 0x100), nil)
	b.WriteByte(ewramBase+0x10, 0x99, Sequential)
	b.WriteHalfword(ioBase+regIE, 0x1234&0x3FFF, Internal)

	data := b.SaveState()

	b2 := New(make([]byte, 0x100), nil)
	b2.LoadState(data)
	if got := b2.ReadByte(ewramBase+0x10, Sequential); got != 0x99 {
		t.Fatalf("restored EWRAM byte = %02x, want 99", got)
	}
	if got := b2.ReadHalfword(ioBase+regIE, Internal); got != 0x1234&0x3FFF {
		t.Fatalf("restored IE = %04x, want %04x", got, 0x1234&0x3FFF)
	}
}
