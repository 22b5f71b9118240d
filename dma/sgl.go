package dma

import (
	"github.com/garlick/si3097/regs"
)

// pageSize is the allocation granularity used to round buflen up to
// sm_buflen, matching PAGE_SIZE in original_source.
const pageSize = 4096

// localFIFOBusAddr is SI_LOCAL_BUSADDR: the fixed local-bus address of
// the pixel FIFO port, constant across every SGL entry because the
// source is always the same FIFO, never per-buffer memory.
const localFIFOBusAddr uint32 = 0x30000004

// descriptor is one SGL entry: si3097_module.h's SIDMA_SGL, reduced to
// the fields this module actually needs (the real struct pads to 32
// bytes / 16-byte alignment for the hardware; this module has no DMA
// ring to align against, so the Go struct carries only the live fields).
type descriptor struct {
	pciAddr  uint32 // bus address of the backing buffer
	localAddr uint32 // always localFIFOBusAddr
	size     uint32 // siz
	nextPtr  uint32 // dpr: next entry's buffer bus address (none on the last entry) | link bits
	buf      []byte // kernel-side view of the buffer (cpu)
}

// buildChain lays out nbuf descriptors covering total bytes at buflen
// per entry (last entry takes the remainder), and fills them backwards
// -- last entry first -- as driver/mmap.c's si_config_dma does. Each
// entry's nextPtr links to the following entry through that entry's
// buffer bus address, bufBusAddr[i+1]; the last entry carries only link
// bits.
//
// bufBusAddr[i] is the bus address of descriptor i's backing buffer; the
// descriptor table's own bus address is not used here.
func buildChain(nbuf int, total, buflen int, bufs [][]byte, bufBusAddr []uint32, wakeEach bool) []descriptor {
	chain := make([]descriptor, nbuf)
	for i := nbuf - 1; i >= 0; i-- {
		size := buflen
		if i == nbuf-1 {
			rem := total % buflen
			if rem != 0 {
				size = rem
			}
		}
		endMask := uint32(regs.DPRSourcePCI | regs.DPRDirectionToPCI)
		if wakeEach {
			endMask |= regs.DPRInterruptAtEnd
		}
		var next uint32
		if i == nbuf-1 {
			next = endMask | regs.DPREndOfChain | regs.DPRInterruptAtEnd
		} else {
			next = bufBusAddr[i+1] | endMask
		}
		chain[i] = descriptor{
			pciAddr:   bufBusAddr[i],
			localAddr: localFIFOBusAddr,
			size:      uint32(size),
			nextPtr:   next,
			buf:       bufs[i],
		}
	}
	return chain
}

func smBuflen(buflen int) int {
	if rem := buflen % pageSize; rem != 0 {
		return buflen + (pageSize - rem)
	}
	return buflen
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
