package si3097

import (
	"context"
	"fmt"

	"github.com/garlick/si3097/dma"
	"github.com/garlick/si3097/errs"
	"github.com/garlick/si3097/uart"
)

// Command is one ioctl request code from spec.md §6's table. The
// method-per-row API above is the primary surface; Ioctl is a thin
// switch for callers that want the enum-keyed form, matching
// original_source/driver/ioctl.c's switch(cmd) dispatch.
type Command int

const (
	CmdReset Command = iota
	CmdSerialInStatus
	CmdSerialOutStatus
	CmdGetSerial
	CmdSetSerial
	CmdSerialBreak
	CmdSerialClear
	CmdDMAInit
	CmdDMAStart
	CmdDMAStatus
	CmdDMANext
	CmdDMAAbort
	CmdVerbose
	CmdSetPoll
	CmdFreeMem
)

// Ioctl dispatches cmd with arg, returning whatever payload the command
// produces (nil for commands with no output). ctx is only consulted by
// the commands that can block (DMA_NEXT); it is ignored otherwise.
func (d *Device) Ioctl(ctx context.Context, cmd Command, arg any) (any, error) {
	switch cmd {
	case CmdReset:
		d.Reset()
		return nil, nil

	case CmdSerialInStatus:
		return d.SerialInStatus(), nil

	case CmdSerialOutStatus:
		return d.SerialOutStatus(), nil

	case CmdGetSerial:
		return d.GetSerial(), nil

	case CmdSetSerial:
		p, ok := arg.(uart.Params)
		if !ok {
			return nil, fmt.Errorf("si3097: SET_SERIAL wants uart.Params: %w", errs.ErrConfig)
		}
		return nil, d.SetSerial(p)

	case CmdSerialBreak:
		ms, ok := arg.(int)
		if !ok {
			return nil, fmt.Errorf("si3097: SERIAL_BREAK wants int ms: %w", errs.ErrConfig)
		}
		d.SerialBreak(ms)
		return nil, nil

	case CmdSerialClear:
		d.SerialClear()
		return nil, nil

	case CmdDMAInit:
		cfg, ok := arg.(dma.Config)
		if !ok {
			return nil, fmt.Errorf("si3097: DMA_INIT wants dma.Config: %w", errs.ErrConfig)
		}
		return nil, d.DMAInit(cfg)

	case CmdDMAStart:
		return d.DMAStart()

	case CmdDMAStatus:
		return d.DMAStatus(), nil

	case CmdDMANext:
		return d.DMANext(ctx)

	case CmdDMAAbort:
		return d.DMAAbort()

	case CmdVerbose:
		level, ok := arg.(int32)
		if !ok {
			return nil, fmt.Errorf("si3097: VERBOSE wants int32 bitmask: %w", errs.ErrConfig)
		}
		d.Verbose(level)
		return nil, nil

	case CmdSetPoll:
		target, ok := arg.(PollTarget)
		if !ok {
			return nil, fmt.Errorf("si3097: SETPOLL wants PollTarget: %w", errs.ErrConfig)
		}
		d.SetPoll(target)
		return nil, nil

	case CmdFreeMem:
		return nil, d.FreeMem()

	default:
		return nil, fmt.Errorf("si3097: unknown ioctl command %d: %w", cmd, errs.ErrConfig)
	}
}
