// Package uart is the 16550-compatible UART engine: rx/tx ring buffers,
// line-parameter programming, FIFO-trigger-driven interrupt handling, and
// blocking byte-stream send/receive. Grounded on
// core_engine/devices/serial.go's register dispatch shape and
// original_source/driver/uart.c's exact parameter-programming and
// FIFO-drain sequencing.
package uart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/garlick/si3097/errs"
	"github.com/garlick/si3097/regs"
)

// Engine owns the UART's ring buffers and line state. All mutating
// methods, including HandleInterrupt, take mu -- the single UART lock of
// spec.md §5, never nested with the DMA or mapping locks.
type Engine struct {
	mu sync.Mutex

	uart regs.Space
	log  *slog.Logger
	test bool // short-circuit mode: Read echoes zeros, Transmit/Receive no-op

	params Params
	rx     *ring
	tx     *ring

	readCond  *sync.Cond
	writeCond *sync.Cond
}

// New creates a UART engine bound to the uart register namespace and
// applies the default wire parameters (57600 8N1, as per spec.md §6).
func New(uartSpace regs.Space, log *slog.Logger, test bool) *Engine {
	e := &Engine{uart: uartSpace, log: log, test: test}
	e.readCond = sync.NewCond(&e.mu)
	e.writeCond = sync.NewCond(&e.mu)
	if err := e.setParamsLocked(DefaultParams()); err != nil {
		// DefaultParams is always well-formed; a failure here would be
		// a programming error, not a runtime condition.
		panic(err)
	}
	return e
}

// Params returns a copy of the current line configuration.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetParams programs baud/framing/FIFO trigger and resizes the rings.
// The new buffer pair is allocated before the old one is discarded --
// preserving spec.md §3's "allocate-new then free-old" invariant, even
// though Go's GC means there's no real rollback path on allocation
// failure the way driver/uart.c has one for kmalloc.
func (e *Engine) SetParams(p Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setParamsLocked(p)
}

func (e *Engine) setParamsLocked(p Params) error {
	p = p.normalize()
	if p.Bits < 5 || p.Bits > 8 {
		return errs.ErrConfig
	}

	div := divisor(p.Baud)

	c := e.uart.Read8(regs.UARTLcr)
	e.uart.Write8(regs.UARTLcr, c|regs.LCRDLAB)
	e.uart.Write8(regs.UARTThrRxDll, byte(div&0xff))
	e.uart.Write8(regs.UARTIerDlh, byte((div>>8)&0xff))
	e.uart.Write8(regs.UARTLcr, c)

	e.uart.Write8(regs.UARTMcr, 0)
	e.uart.Write8(regs.UARTLcr, lcrBits(p))
	e.uart.Write8(regs.UARTIirFcr, fcrBits(p.FIFOTrigger))
	e.uart.Write8(regs.UARTIerDlh, 0)

	// Allocate the new ring pair before discarding the old one.
	newRx := newRing(p.BufferSize)
	newTx := newRing(p.BufferSize)
	e.rx, e.tx = newRx, newTx
	e.params = p

	e.uart.Write8(regs.UARTIerDlh, regs.IERRxDataAvailable|regs.IERTHREEnable)

	e.log.Debug("uart params set", "baud", p.Baud, "bits", p.Bits,
		"parity", string(p.Parity), "stop", p.StopBits,
		"trigger", p.FIFOTrigger, "buffersize", p.BufferSize)
	return nil
}

// Clear drains both rings.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	rx := e.rx.count
	e.rx.clear()
	e.tx.clear()
	if rx > 0 {
		e.log.Info("uart clear dropped pending rx bytes", "count", rx)
	}
}

// InStatus returns the current rx byte count (SERIAL_IN_STATUS ioctl).
func (e *Engine) InStatus() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rx.count
}

// OutStatus returns the tx free space (SERIAL_OUT_STATUS ioctl).
func (e *Engine) OutStatus() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx.size() - e.tx.count
}

// Readable reports whether ReadInto would return at least one byte right
// now, without blocking -- the non-destructive check Device.Poll needs.
func (e *Engine) Readable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rx.count > 0
}

// Transmit enqueues one byte for sending, or sends it immediately if the
// line is idle. Returns false (would-block) if the tx ring is full.
func (e *Engine) Transmit(b byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transmitLocked(b)
}

func (e *Engine) transmitLocked(b byte) bool {
	if e.test {
		return true
	}
	if e.tx.empty() && e.uart.Read8(regs.UARTLsr)&regs.LSRTHRE != 0 {
		e.uart.Write8(regs.UARTThrRxDll, b)
		return true
	}
	return e.tx.push(b)
}

// Receive dequeues one byte. Returns false if the rx ring is empty.
func (e *Engine) Receive() (byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.test {
		return 0, false
	}
	return e.rx.pop()
}

// WriteAll copies buf into the tx ring, blocking (up to the configured
// timeout, or ctx) when the ring is full, then -- if blocking is
// requested -- waits for the ring to fully drain before returning.
// Mirrors spec.md §4.2's blocking-write contract.
func (e *Engine) WriteAll(ctx context.Context, buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, b := range buf {
		for !e.transmitLocked(b) {
			if !e.params.Blocking {
				return n, errs.ErrWouldBlock
			}
			if err := e.waitLocked(ctx, e.writeCond, e.timeout()); err != nil {
				return n, err
			}
		}
		n++
	}
	if e.params.Blocking {
		for !e.tx.empty() {
			if err := e.waitLocked(ctx, e.writeCond, e.timeout()); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// ReadInto copies up to len(buf) rx bytes, blocking up to the configured
// timeout if the ring is empty. A timeout yields a partial read, which
// is normal per spec.md §4.2, not an error.
func (e *Engine) ReadInto(ctx context.Context, buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.test {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	}

	n := 0
	for n < len(buf) {
		b, ok := e.rx.pop()
		if !ok {
			if !e.params.Blocking {
				break
			}
			if err := e.waitLocked(ctx, e.readCond, e.timeout()); err != nil {
				break
			}
			continue
		}
		buf[n] = b
		n++
	}
	return n, nil
}

func (e *Engine) timeout() time.Duration {
	return time.Duration(e.params.Timeout) * time.Millisecond
}

// waitLocked waits on cond for up to d, or until ctx is cancelled,
// whichever comes first, returning ctx's error on cancellation and
// errs.ErrWouldBlock when d elapses. mu must be held on entry and is
// held on return.
func (e *Engine) waitLocked(ctx context.Context, cond *sync.Cond, d time.Duration) error {
	timedOut := false
	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()
	timer := time.AfterFunc(d, func() {
		e.mu.Lock()
		timedOut = true
		cond.Broadcast()
		e.mu.Unlock()
	})
	defer timer.Stop()
	cond.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	if timedOut {
		return errs.ErrWouldBlock
	}
	return nil
}

// SendBreak asserts the break bit, busy-waits ms (clamped to [0,1000]),
// then deasserts it. Matches driver/uart.c's si_uart_break.
func (e *Engine) SendBreak(ms int) {
	ms = ClampBreakMillis(ms)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.test {
		return
	}
	c := e.uart.Read8(regs.UARTLcr)
	e.uart.Write8(regs.UARTLcr, c|0x40)
	time.Sleep(time.Duration(ms) * time.Millisecond)
	c = e.uart.Read8(regs.UARTLcr)
	e.uart.Write8(regs.UARTLcr, c&^0x40)
}

// HandleInterrupt services one LOCAL_1 (UART) interrupt cause and
// returns. Matches irup.c's si_bottom_half LOCAL_1 branch and
// receive_fifo_timeout/transmit_fifo_empty exactly -- one dispatch call
// corresponds to one IIR cause, not a drain-until-no-pending loop: the
// bridge raises LOCAL_1 again for each new cause, and each raise is its
// own Dispatch/HandleInterrupt call, so looping here on a sticky IIR
// would spin forever holding e.mu whenever nothing re-arms IIR between
// reads (as a pure in-memory register backend does not).
func (e *Engine) HandleInterrupt() {
	e.mu.Lock()
	defer e.mu.Unlock()

	iir := e.uart.Read8(regs.UARTIirFcr)
	if iir&regs.IIRNoPending != 0 {
		return
	}
	switch iir & 0xe {
	case regs.IIRLineStatus:
		e.uart.Read8(regs.UARTLsr)
	case regs.IIRRxTrigger, regs.IIRRxTimeout:
		e.receiveFIFOTimeoutLocked()
	case regs.IIRTxEmpty:
		e.transmitFIFOEmptyLocked()
	case regs.IIRModemStatus:
		e.uart.Read8(regs.UARTMsr)
	}
}

// receiveFIFOTimeoutLocked drains the RX FIFO one byte at a time until
// LSR's data-ready bit clears. On ring overflow it drops the *newest*
// byte: push leaves a full ring untouched, so head never has to be
// rolled back.
func (e *Engine) receiveFIFOTimeoutLocked() {
	for {
		c := e.uart.Read8(regs.UARTThrRxDll)
		if !e.rx.push(c) {
			// Ring full: the newest byte (c) is dropped. Nothing to
			// roll back since push never mutated state on failure.
		}
		e.readCond.Broadcast()
		if e.uart.Read8(regs.UARTLsr)&regs.LSRDataReady == 0 {
			break
		}
	}
}

// transmitFIFOEmptyLocked pushes up to 16 queued bytes (FIFO trigger
// enabled) or 1 byte into the line, matching irup.c's
// transmit_fifo_empty. Wakes blocked writers once the ring drains.
func (e *Engine) transmitFIFOEmptyLocked() {
	if e.tx.empty() {
		return
	}
	budget := 1
	if e.params.FIFOTrigger != 0 {
		budget = e.tx.count
		if budget > 16 {
			budget = 16
		}
	}
	for i := 0; i < budget; i++ {
		b, ok := e.tx.pop()
		if !ok {
			break
		}
		e.uart.Write8(regs.UARTThrRxDll, b)
	}
	if e.tx.empty() {
		e.writeCond.Broadcast()
	}
}
