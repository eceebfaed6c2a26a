package cart

import "testing"

func TestSRAM_RoundTrip(t *testing.T) {
	s := NewSRAM()
	for i := 0; i < 16; i++ {
		s.Write(uint32(i), byte(i*7+1))
	}
	raw := s.Raw()

	s2 := NewSRAM()
	s2.Load(raw)
	for i := 0; i < 16; i++ {
		if got := s2.Read(uint32(i)); got != byte(i*7+1) {
			t.Fatalf("byte %d: got %02x", i, got)
		}
	}
}

func TestSRAM_LoadRejectsWrongSize(t *testing.T) {
	s := NewSRAM()
	s.Write(0, 0x42)
	s.Load([]byte{1, 2, 3})
	if got := s.Read(0); got != 0x42 {
		t.Fatalf("wrong-size load must not mutate SRAM, got %02x", got)
	}
}
