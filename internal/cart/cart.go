package cart

// Backup is the tagged-variant interface (Design Notes §9) implemented by
// SRAM, Flash and EEPROM. Addresses are bus-relative within region E
// (0x0E000000-0x0FFFFFFF); EEPROM additionally keys off the high half of
// that region per its serial addressing.
type Backup interface {
	Read(addr uint32) byte
	Write(addr uint32, value byte)
	Reset()
	// Raw returns the raw save image for persistence (
	// "Save-file format"), and Load restores it verbatim.
	Raw() []byte
	Load(data []byte)
}

// NewBackup constructs the backup implementation for the requested kind.
// BackupAuto/BackupNone both yield a nil Backup; the bus treats a nil
// backup as "read 0, ignore writes".1.
func NewBackup(kind BackupKind) Backup {
	switch kind {
	case BackupSRAM:
		return NewSRAM()
	case BackupFlash64:
		return NewFlash(false)
	case BackupFlash128:
		return NewFlash(true)
	case BackupEEPROM4K:
		return NewEEPROM(EEPROM4K)
	case BackupEEPROM64K:
		return NewEEPROM(EEPROM64K)
	default:
		return nil
	}
}
