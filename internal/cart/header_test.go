package cart

import (
	"encoding/binary"
	"testing"
)

func buildROM(size int, title string) []byte {
	rom := make([]byte, size)
	binary.LittleEndian.PutUint32(rom[0x00:], 0xEA00002E) // arbitrary branch encoding
	copy(rom[0xA0:0xAC], title)
	copy(rom[0xAC:0xB0], "ABCE")
	copy(rom[0xB0:0xB2], "01")
	rom[0xB2] = 0x96
	var sum byte
	for addr := 0xA0; addr <= 0xBC; addr++ {
		sum -= rom[addr]
	}
	sum -= 0x19
	rom[0xBD] = sum
	return rom
}

func TestParseHeader(t *testing.T) {
	rom := buildROM(0x200, "TESTGAME")
	h, err := ParseHeader(rom)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Title != "TESTGAME" {
		t.Fatalf("title = %q", h.Title)
	}
	if h.GameCode != "ABCE" {
		t.Fatalf("game code = %q", h.GameCode)
	}
	if h.FixedByte != 0x96 {
		t.Fatalf("fixed byte = %02x", h.FixedByte)
	}
	if !HeaderChecksumOK(rom) {
		t.Fatalf("checksum should validate")
	}
}

func TestParseHeader_TooSmall(t *testing.T) {
	if _, err := ParseHeader(make([]byte, 16)); err != ErrROMTooSmall {
		t.Fatalf("expected ErrROMTooSmall, got %v", err)
	}
}

func TestDetectBackupKind(t *testing.T) {
	cases := []struct {
		tag  string
		want BackupKind
	}{
		{"SRAM_V110", BackupSRAM},
		{"FLASH_V130", BackupFlash64},
		{"FLASH512_V130", BackupFlash64},
		{"FLASH1M_V102", BackupFlash128},
	}
	for _, c := range cases {
		rom := append(buildROM(0x200, "X"), []byte(c.tag)...)
		if got := DetectBackupKind(rom); got != c.want {
			t.Errorf("tag %q: got %v, want %v", c.tag, got, c.want)
		}
	}
}
