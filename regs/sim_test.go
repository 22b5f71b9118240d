package regs

import "testing"

func TestSimSpaceRoundTrips32(t *testing.T) {
	s := NewSimSpace()
	s.Write32(IntCtrlStat, 0x12345678)
	if got := s.Read32(IntCtrlStat); got != 0x12345678 {
		t.Fatalf("Read32 = %#x, want %#x", got, 0x12345678)
	}
}

func TestSimSpaceRoundTrips8TruncatesTo32(t *testing.T) {
	s := NewSimSpace()
	s.Write8(UARTLcr, 0xab)
	if got := s.Read8(UARTLcr); got != 0xab {
		t.Fatalf("Read8 = %#x, want %#x", got, 0xab)
	}
	if got := s.Read32(UARTLcr); got != 0xab {
		t.Fatalf("Read32 after Write8 = %#x, want %#x", got, 0xab)
	}
}

func TestSimSpaceUnwrittenOffsetReadsZero(t *testing.T) {
	s := NewSimSpace()
	if got := s.Read32(DMA0Mode); got != 0 {
		t.Fatalf("Read32 on unwritten offset = %#x, want 0", got)
	}
}
