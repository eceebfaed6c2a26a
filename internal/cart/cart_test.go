package cart

import (
	"fmt"
	"testing"
)

func TestNewBackup_Dispatch(t *testing.T) {
	cases := []struct {
		kind BackupKind
		want string
	}{
		{BackupSRAM, "*cart.SRAM"},
		{BackupFlash64, "*cart.Flash"},
		{BackupFlash128, "*cart.Flash"},
		{BackupEEPROM4K, "*cart.EEPROM"},
		{BackupEEPROM64K, "*cart.EEPROM"},
	}
	for _, c := range cases {
		b := NewBackup(c.kind)
		if b == nil {
			t.Fatalf("%v: got nil backup", c.kind)
		}
		if got := fmt.Sprintf("%T", b); got != c.want {
			t.Fatalf("%v: got %s, want %s", c.kind, got, c.want)
		}
	}
	if NewBackup(BackupNone) != nil {
		t.Fatalf("BackupNone should yield a nil Backup")
	}
}
