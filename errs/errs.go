// Package errs defines the error taxonomy shared by every engine in the
// si3097 device core: config, resource, would-block and hardware-fault
// conditions, each a sentinel comparable with errors.Is.
package errs

import "errors"

var (
	// ErrConfig marks a bad ioctl/configure argument, rejected before any
	// state mutation.
	ErrConfig = errors.New("si3097: config error")

	// ErrResource marks a failed allocation, or a request exceeding the
	// permanent pool established by the first DMA configure call.
	ErrResource = errors.New("si3097: resource error")

	// ErrWouldBlock marks a timeout on a suspending operation. The caller
	// may retry; no state was left inconsistent.
	ErrWouldBlock = errors.New("si3097: would block")

	// ErrHardwareFault marks an observed bridge or DMA anomaly (0xFFFFFFFF
	// read, nonzero pixel counter at done, PCI abort). The operation
	// still completes with best-effort status.
	ErrHardwareFault = errors.New("si3097: hardware fault")
)
