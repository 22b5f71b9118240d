// Package regs is the register façade: thin, typed accessors over the
// three MMIO/port namespaces the bridge exposes to the rest of the
// device core (bridge registers, UART byte ports, local-bus registers).
// Everything else in this module goes through a regs.Space; the façade
// itself holds no lock of its own — serialisation is the owning engine's
// job, exactly as spec.md §4.1 requires.
package regs

// Space is one addressable register namespace. Implementations must be
// safe for concurrent Read/Write only insofar as the underlying memory
// permits it -- callers serialise access via their own lock.
type Space interface {
	Read32(off uint32) uint32
	Write32(off uint32, v uint32)
	Read8(off uint32) byte
	Write8(off uint32, v byte)
}

// Spaces bundles the three namespaces a Device needs.
type Spaces struct {
	Bridge Space
	UART   Space
	Local  Space
}

// Bridge (PLX 9054) register offsets, matching si3097_module.h exactly.
const (
	IntCtrlStat    uint32 = 0x068
	PCIDoorbell    uint32 = 0x064
	OutpostIntMask uint32 = 0x034

	DMA0Mode        uint32 = 0x080
	DMA0PCIAddr     uint32 = 0x084
	DMA0LocalAddr   uint32 = 0x088
	DMA0Count       uint32 = 0x08c
	DMA0DescPtr     uint32 = 0x090
	DMA1Mode        uint32 = 0x080 + 0x014
	DMA1PCIAddr     uint32 = 0x084 + 0x014
	DMA1LocalAddr   uint32 = 0x088 + 0x014
	DMA1Count       uint32 = 0x08c + 0x014
	DMA1DescPtr     uint32 = 0x090 + 0x014
	DMACommandStat  uint32 = 0x0a8
	PCICommand      uint32 = 0x004
)

// Interrupt control/status bit positions (raw ctrl_stat register).
const (
	CtrlStatMasterEnable    uint32 = 1 << 8
	CtrlStatDoorbellActive  uint32 = 1 << 13
	CtrlStatDoorbellEnable  uint32 = 1 << 9
	CtrlStatPCIAbortActive  uint32 = 1 << 14
	CtrlStatPCIAbortEnable  uint32 = 1 << 10
	CtrlStatLocal1Active    uint32 = 1 << 15
	CtrlStatLocal1Enable    uint32 = 1 << 11
	CtrlStatDMA0Active      uint32 = 1 << 21
	CtrlStatDMA0Enable      uint32 = 1 << 18
	CtrlStatDMA1Active      uint32 = 1 << 22
	CtrlStatDMA1Enable      uint32 = 1 << 19
	DMAModeRoutedToPCI      uint32 = 1 << 17
	CtrlStatLowPower        uint32 = 0xFFFFFFFF
)

// DMA command/status register bits (8-bit).
const (
	DMAStatusEnable byte = 1 << 0
	DMAStatusStart  byte = 1 << 1
	DMAStatusAbort  byte = 1 << 2
	DMAStatusDone   byte = 1 << 4
	DMAStatusClear  byte = 1 << 3
)

// DMA mode word written at Start(): SGL mode, done-to-PCI interrupt
// routed, local bus increment disabled. Matches driver/mmap.c exactly.
const DMAModeSGLDoneToPCI uint32 = 0x00021f43

// SGL descriptor-pointer link bits (low nibble of the next-descriptor
// field, matching SIDMA_DPR_* in si3097_module.h).
const (
	DPRSourcePCI       uint32 = 0x01
	DPREndOfChain      uint32 = 0x02
	DPRInterruptAtEnd  uint32 = 0x04
	DPRDirectionToPCI  uint32 = 0x08
)

// Local-bus register offsets (word-addressed, byte-lane 0 carries the
// value -- LOCAL_REG_READ/WRITE in si3097_module.h).
const (
	LocalCommand   uint32 = 0
	LocalFIFOSetup uint32 = 1
	LocalStatus    uint32 = 2
	LocalUART      uint32 = 3
	LocalID        uint32 = 7
	LocalPixCntLL  uint32 = 8
	LocalPixCntML  uint32 = 9
	LocalPixCntMH  uint32 = 10
	LocalPixCntHH  uint32 = 11
	LocalRevNumber uint32 = 12
)

// Local FIFO/command bits.
const (
	LCFIFOMRSL byte = 1 // master reset, local side
	LCFIFOPRSL byte = 2 // programmable reset, local side
)

// UART (16550) byte-port offsets, matching driver/uart.c's SERIAL_* table.
const (
	UARTThrRxDll uint32 = 0 // RHR/THR, or DLL when DLAB set
	UARTIerDlh   uint32 = 1 // IER, or DLH when DLAB set
	UARTIirFcr   uint32 = 2 // IIR (read) / FCR (write)
	UARTLcr      uint32 = 3
	UARTMcr      uint32 = 4
	UARTLsr      uint32 = 5
	UARTMsr      uint32 = 6
	UARTScr      uint32 = 7
)

// LCR bits.
const (
	LCRDLAB byte = 0x80
)

// LSR bits.
const (
	LSRDataReady byte = 0x01
	LSRTHRE      byte = 0x20
)

// IIR identity nibble values (bits 1-3 of IIR, masked with 0xe).
const (
	IIRNoPending        byte = 0x01
	IIRLineStatus       byte = 0x6
	IIRRxTrigger        byte = 0x4
	IIRRxTimeout        byte = 0xc
	IIRTxEmpty          byte = 0x2
	IIRModemStatus      byte = 0x0
)

// IER bits.
const (
	IERRxDataAvailable byte = 0x01
	IERTHREEnable      byte = 0x02
)
