package si3097

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/garlick/si3097/dma"
	"github.com/garlick/si3097/regs"
	"github.com/garlick/si3097/uart"
)

func newTestDevice(t *testing.T) (*Device, *regs.SimSpace, *regs.SimSpace, *regs.SimSpace) {
	t.Helper()
	bridge := regs.NewSimSpace()
	uartSpace := regs.NewSimSpace()
	local := regs.NewSimSpace()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	d, err := New(cfg, regs.Spaces{Bridge: bridge, UART: uartSpace, Local: local}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		d.Open()
		d.Close()
	})
	return d, bridge, uartSpace, local
}

func TestOpenCloseForcesDMAAbort(t *testing.T) {
	d, _, _, _ := newTestDevice(t)
	d.Open()
	if err := d.DMAInit(dma.Config{Total: 4096, BufLen: 4096, MaxEver: 1 << 20, Mode: dma.WakeOnEnd}); err != nil {
		t.Fatalf("DMAInit: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDispatchIgnoresLowPowerSentinel(t *testing.T) {
	d, bridge, _, _ := newTestDevice(t)
	bridge.Write32(regs.IntCtrlStat, regs.CtrlStatMasterEnable)
	d.Dispatch(regs.CtrlStatLowPower)
	if got := bridge.Read32(regs.IntCtrlStat); got != regs.CtrlStatMasterEnable {
		t.Fatalf("IntCtrlStat = %#x, want unchanged %#x", got, regs.CtrlStatMasterEnable)
	}
}

func TestDispatchIgnoresMasterDisabled(t *testing.T) {
	d, bridge, _, _ := newTestDevice(t)
	bridge.Write32(regs.IntCtrlStat, 0)
	d.Dispatch(regs.CtrlStatLocal1Active) // no master-enable bit set
	if got := bridge.Read32(regs.IntCtrlStat); got != 0 {
		t.Fatalf("IntCtrlStat = %#x, want unchanged 0", got)
	}
}

func TestResetWritesZeroToLocalCommand(t *testing.T) {
	d, _, _, local := newTestDevice(t)
	local.Write8(regs.LocalCommand, 0xff)
	d.Reset()
	if got := local.Read8(regs.LocalCommand); got != 0 {
		t.Fatalf("LocalCommand = %#x, want 0", got)
	}
}

func TestReadWriteDelegatesToUART(t *testing.T) {
	d, _, uartSpace, _ := newTestDevice(t)
	if err := d.SetSerial(uart.Params{
		Baud: 57600, Bits: 8, Parity: 'N', StopBits: 1,
		FIFOTrigger: 8, BufferSize: 8192, Blocking: true, Timeout: 1000,
	}); err != nil {
		t.Fatalf("SetSerial: %v", err)
	}

	go func() {
		time.Sleep(2 * time.Millisecond)
		uartSpace.Write8(regs.UARTThrRxDll, 0x41)
		uartSpace.Write8(regs.UARTIirFcr, regs.IIRRxTimeout)
		uartSpace.Write8(regs.UARTLsr, 0)
		d.Dispatch(regs.CtrlStatLocal1Active | regs.CtrlStatMasterEnable)
	}()

	buf := make([]byte, 1)
	n, err := d.Read(context.Background(), buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 1 || buf[0] != 0x41 {
		t.Fatalf("Read = %d %v, want 1 [0x41]", n, buf)
	}
}

func TestPollRoutesToChosenTarget(t *testing.T) {
	d, bridge, uartSpace, _ := newTestDevice(t)
	if err := d.SetSerial(uart.Params{
		Baud: 57600, Bits: 8, Parity: 'N', StopBits: 1,
		FIFOTrigger: 8, BufferSize: 8192, Blocking: true, Timeout: 1000,
	}); err != nil {
		t.Fatalf("SetSerial: %v", err)
	}
	d.SetPoll(PollUART)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(5 * time.Millisecond)
		uartSpace.Write8(regs.UARTThrRxDll, 0x59)
		uartSpace.Write8(regs.UARTIirFcr, regs.IIRRxTimeout)
		uartSpace.Write8(regs.UARTLsr, 0)
		d.Dispatch(regs.CtrlStatLocal1Active | regs.CtrlStatMasterEnable)
	}()

	ready, err := d.Poll(ctx)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !ready {
		t.Fatal("Poll returned not-ready")
	}
	_ = bridge
}

func TestMmapRejectsLengthAboveMaxEver(t *testing.T) {
	d, _, _, _ := newTestDevice(t)
	if err := d.DMAInit(dma.Config{Total: 4096, BufLen: 4096, MaxEver: 8192, Mode: dma.WakeOnEnd}); err != nil {
		t.Fatalf("DMAInit: %v", err)
	}
	if _, err := d.Mmap(8192); err != nil {
		t.Fatalf("Mmap(8192): %v", err)
	}
	if _, err := d.Mmap(16384); err == nil {
		t.Fatal("expected error mapping beyond maxever")
	}
}

func TestReadProcReportsState(t *testing.T) {
	d, _, _, _ := newTestDevice(t)
	d.Open()
	out := d.ReadProc()
	if out == "" {
		t.Fatal("ReadProc returned empty string")
	}
}

func TestIoctlDispatchesResetAndSerialInStatus(t *testing.T) {
	d, _, _, _ := newTestDevice(t)
	if _, err := d.Ioctl(context.Background(), CmdReset, nil); err != nil {
		t.Fatalf("Ioctl RESET: %v", err)
	}
	v, err := d.Ioctl(context.Background(), CmdSerialInStatus, nil)
	if err != nil {
		t.Fatalf("Ioctl SERIAL_IN_STATUS: %v", err)
	}
	if v.(int) != 0 {
		t.Fatalf("SERIAL_IN_STATUS = %v, want 0", v)
	}
}

func TestIoctlRejectsWrongArgType(t *testing.T) {
	d, _, _, _ := newTestDevice(t)
	if _, err := d.Ioctl(context.Background(), CmdSetSerial, "not params"); err == nil {
		t.Fatal("expected error for wrong SET_SERIAL argument type")
	}
}
