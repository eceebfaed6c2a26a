package cart

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
)

// Header is the 192-byte fixed GBA ROM header.
type Header struct {
	EntryPoint uint32
	Title      string // trimmed ASCII, 0xA0-0xAB
	GameCode   string // 0xAC-0xAF
	MakerCode  string // 0xB0-0xB1
	FixedByte  byte   // 0xB2, always 0x96
	UnitCode   byte   // 0xB3
	DeviceType byte   // 0xB4
	Version    byte   // 0xBC
	Checksum   byte   // 0xBD
}

const headerSize = 192

var ErrROMTooSmall = errors.New("cart: ROM smaller than the 192-byte GBA header")

// ParseHeader decodes the fixed GBA header layout. It does not verify the
// Nintendo logo.
func ParseHeader(rom []byte) (*Header, error) {
	if len(rom) < headerSize {
		return nil, ErrROMTooSmall
	}
	h := &Header{
		EntryPoint: binary.LittleEndian.Uint32(rom[0x00:0x04]),
		Title:      strings.TrimRight(string(bytes.TrimRight(rom[0xA0:0xAC], "\x00")), " "),
		GameCode:   string(rom[0xAC:0xB0]),
		MakerCode:  string(rom[0xB0:0xB2]),
		FixedByte:  rom[0xB2],
		UnitCode:   rom[0xB3],
		DeviceType: rom[0xB4],
		Version:    rom[0xBC],
		Checksum:   rom[0xBD],
	}
	return h, nil
}

// HeaderChecksumOK verifies the header checksum at 0xBD against the GBATEK
// algorithm over bytes 0xA0-0xBC.
func HeaderChecksumOK(rom []byte) bool {
	if len(rom) < headerSize {
		return false
	}
	var sum byte
	for addr := 0xA0; addr <= 0xBC; addr++ {
		sum -= rom[addr]
	}
	sum -= 0x19
	return sum == rom[0xBD]
}

// BackupKind enumerates the save-backup technologies a cartridge may carry,
// matching the Core API's save_type_hint parameter.
type BackupKind int

const (
	BackupAuto BackupKind = iota
	BackupNone
	BackupSRAM
	BackupFlash64
	BackupFlash128
	BackupEEPROM4K
	BackupEEPROM64K
)

// DetectBackupKind scans the ROM for the ASCII save-type tags documented in
// , "SRAM_V", "FLASH_V"/"FLASH512_V", "FLASH1M_V").
func DetectBackupKind(rom []byte) BackupKind {
	has := func(tag string) bool { return bytes.Contains(rom, []byte(tag)) }
	switch {
	case has("EEPROM_V"):
		// The tag alone cannot distinguish 4K from 64K; ROMs large enough
		// to plausibly need the bigger EEPROM get it, otherwise 4K. Callers
		// with better information should pass an explicit kind instead of
		// relying on auto-detect.
		if len(rom) > 16*1024*1024 {
			return BackupEEPROM64K
		}
		return BackupEEPROM4K
	case has("FLASH1M_V"):
		return BackupFlash128
	case has("FLASH512_V"), has("FLASH_V"):
		return BackupFlash64
	case has("SRAM_V"):
		return BackupSRAM
	default:
		return BackupNone
	}
}
