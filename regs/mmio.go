package regs

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// MMIOSpace wraps a real memory-mapped register window, obtained via
// unix.Mmap over an already-open resource file descriptor (a UIO or VFIO
// region, or /dev/mem for a privileged caller -- PCI BAR enumeration
// itself is out of scope per spec.md §1). Grounded on hypervisor/kvm.go's
// raw-syscall register access, upgraded to the typed golang.org/x/sys/unix
// helpers this module depends on anyway for Pool's anonymous mapping.
type MMIOSpace struct {
	mem []byte
}

// NewMMIOSpace maps length bytes of fd starting at the given offset.
func NewMMIOSpace(fd int, offset int64, length int) (*MMIOSpace, error) {
	mem, err := unix.Mmap(fd, offset, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("regs: mmap register window: %w", err)
	}
	return &MMIOSpace{mem: mem}, nil
}

// Close unmaps the register window.
func (m *MMIOSpace) Close() error {
	return unix.Munmap(m.mem)
}

func (m *MMIOSpace) Read32(off uint32) uint32 {
	return binary.LittleEndian.Uint32(m.mem[off : off+4])
}

func (m *MMIOSpace) Write32(off uint32, v uint32) {
	binary.LittleEndian.PutUint32(m.mem[off:off+4], v)
}

func (m *MMIOSpace) Read8(off uint32) byte {
	return m.mem[off]
}

func (m *MMIOSpace) Write8(off uint32, v byte) {
	m.mem[off] = v
}
