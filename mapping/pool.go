// Package mapping exposes the DMA buffer pool as a single contiguous
// region shared between the DMA engine (writer) and any number of
// callers holding a mapped view (readers) -- the Go realization of
// spec.md §4.4's on-demand page-faulted scatter list. Rather than
// emulating page faults, Pool backs the whole pool with one real
// anonymous shared mapping (golang.org/x/sys/unix.Mmap), so every
// returned slice aliases the same memory the DMA engine writes into:
// genuinely zero-copy, the same property spec.md describes.
//
// Grounded on hypervisor/kvm.go + virtual_machine.go's syscall.Mmap of
// guest memory, the teacher's closest analogue of "one real OS mapping
// shared by multiple logical readers."
package mapping

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Pool owns the backing allocation and tracks live mappings.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	mem    []byte
	active int32 // vma_active_count
}

// New allocates size bytes of anonymous shared memory. size is the
// maxever bound from the DMA configuration -- the permanent pool.
func New(size int) (*Pool, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mapping: allocate pool: %w", err)
	}
	p := &Pool{mem: mem}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Close unmaps the backing allocation. Callers must ensure Active() == 0
// first; Close does not itself wait.
func (p *Pool) Close() error {
	return unix.Munmap(p.mem)
}

// Bytes returns the raw backing slice a buffer's sgl.cpu field would
// point into, for the DMA engine to write directly.
func (p *Pool) Bytes() []byte {
	return p.mem
}

// View returns a read-only-by-convention view of [off, off+n) of the
// pool, the per-address-space mapping a caller receives from Mmap.
func (p *Pool) View(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(p.mem) {
		return nil, fmt.Errorf("mapping: view [%d,%d) out of range (pool size %d)", off, off+n, len(p.mem))
	}
	return p.mem[off : off+n], nil
}

// Open registers one more live mapping (a process opening the device's
// mmap'd region). Call on every successful Mmap.
func (p *Pool) Open() {
	p.mu.Lock()
	p.active++
	p.mu.Unlock()
}

// CloseMapping releases one live mapping, waking the drained condition
// when the count reaches zero.
func (p *Pool) CloseMapping() {
	p.mu.Lock()
	p.active--
	if p.active < 0 {
		p.active = 0
	}
	if p.active == 0 {
		p.cond.Broadcast()
	}
	p.mu.Unlock()
}

// Active returns the live mapping count (vma_active_count).
func (p *Pool) Active() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// WaitDrained blocks until Active() == 0 or ctx is done, the Go
// realization of si_wait_vmaclose's VMACLOSE_TIMEOUT-bounded wait.
// DMA reconfiguration and free() call this before touching the SGL.
//
// CloseMapping's Broadcast only wakes waiters already parked in
// sync.Cond.Wait; a context deadline firing independently needs its own
// wake, so a context.AfterFunc callback broadcasts once when ctx is done.
func (p *Pool) WaitDrained(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.active != 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.cond.Wait()
	}
	return nil
}
