package uart

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/garlick/si3097/regs"
)

func newTestEngine(t *testing.T) (*Engine, *regs.SimSpace) {
	t.Helper()
	space := regs.NewSimSpace()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(space, log, false), space
}

func TestSetParamsRoundsBufferSizeUp(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.SetParams(Params{Baud: 9600, Bits: 8, Parity: 'N', StopBits: 1, BufferSize: 1, Timeout: 100}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	got := e.Params()
	if got.BufferSize != bufferSizeGranularity {
		t.Fatalf("BufferSize = %d, want %d", got.BufferSize, bufferSizeGranularity)
	}
}

func TestSetParamsCoercesBadFIFOTrigger(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.SetParams(Params{Baud: 9600, Bits: 8, Parity: 'N', StopBits: 1, FIFOTrigger: 3, BufferSize: 8192, Timeout: 100}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if got := e.Params().FIFOTrigger; got != 0 {
		t.Fatalf("FIFOTrigger = %d, want 0", got)
	}
}

func TestUARTEcho(t *testing.T) {
	e, space := newTestEngine(t)
	if err := e.SetParams(Params{
		Baud: 57600, Bits: 8, Parity: 'N', StopBits: 1,
		FIFOTrigger: 8, BufferSize: 8192, Blocking: true, Timeout: 1000,
	}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}

	inject := []byte{0x59, 0x5A}
	go func() {
		time.Sleep(2 * time.Millisecond)
		for i, b := range inject {
			space.Write8(regs.UARTThrRxDll, b)
			if i == len(inject)-1 {
				space.Write8(regs.UARTIirFcr, regs.IIRRxTimeout)
			} else {
				space.Write8(regs.UARTIirFcr, regs.IIRRxTrigger)
			}
			space.Write8(regs.UARTLsr, 0) // LSR data-ready clears after last byte
			e.HandleInterrupt()
		}
		space.Write8(regs.UARTIirFcr, regs.IIRNoPending)
	}()

	buf := make([]byte, 2)
	n, err := e.ReadInto(context.Background(), buf)
	if err != nil {
		t.Fatalf("ReadInto: %v", err)
	}
	if n != 2 || buf[0] != 0x59 || buf[1] != 0x5A {
		t.Fatalf("ReadInto = %d %v, want 2 [0x59 0x5A]", n, buf)
	}
	if got := e.InStatus(); got != 0 {
		t.Fatalf("InStatus = %d, want 0", got)
	}
}

func TestUARTOverflowDropsNewestByte(t *testing.T) {
	e, _ := newTestEngine(t)
	if err := e.SetParams(Params{
		Baud: 57600, Bits: 8, Parity: 'N', StopBits: 1,
		FIFOTrigger: 0, BufferSize: 8192, Blocking: false, Timeout: 100,
	}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	// Shrink the ring directly to exercise the boundary without an 8KiB
	// byte loop; the ring obeys the same push/drop contract regardless
	// of size.
	e.rx = newRing(16)

	for i := 0; i < 17; i++ {
		e.rx.push(byte(i))
	}
	if got := e.rx.count; got != 16 {
		t.Fatalf("rx.count = %d, want 16", got)
	}
}

func TestClampBreakMillis(t *testing.T) {
	cases := []struct{ in, want int }{
		{-5, 0}, {0, 0}, {500, 500}, {1000, 1000}, {5000, 1000},
	}
	for _, c := range cases {
		if got := ClampBreakMillis(c.in); got != c.want {
			t.Errorf("ClampBreakMillis(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestWriteAllDrainsThroughInterrupt(t *testing.T) {
	e, space := newTestEngine(t)
	if err := e.SetParams(Params{
		Baud: 57600, Bits: 8, Parity: 'N', StopBits: 1,
		FIFOTrigger: 8, BufferSize: 8192, Blocking: true, Timeout: 1000,
	}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	space.Write8(regs.UARTLsr, 0) // THRE clear: force queuing, not direct-write fast path

	go func() {
		time.Sleep(2 * time.Millisecond)
		space.Write8(regs.UARTIirFcr, regs.IIRTxEmpty)
		e.HandleInterrupt()
		space.Write8(regs.UARTIirFcr, regs.IIRNoPending)
	}()

	n, err := e.WriteAll(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if n != 3 {
		t.Fatalf("WriteAll wrote %d, want 3", n)
	}
}
