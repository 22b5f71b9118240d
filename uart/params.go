package uart

// Params mirrors SI_SERIAL_PARAM: the line configuration a caller sets
// via SetParams and reads back via Params().
type Params struct {
	Baud        int
	Bits        int // 5..8
	Parity      byte // 'N', 'E', 'O', 'M', 'S'
	StopBits    int  // 1 or 2
	FIFOTrigger int  // one of {0,1,4,8,14}; anything else coerces to 0
	BufferSize  int  // rounded up to a multiple of 8192
	Blocking    bool
	Timeout     int // milliseconds
}

// DefaultParams matches the wire defaults of spec.md §6: 57600 8N1,
// trigger 8, 8 KiB buffer, blocking, 1s timeout -- si_init_uart's values.
func DefaultParams() Params {
	return Params{
		Baud:        57600,
		Bits:        8,
		Parity:      'N',
		StopBits:    1,
		FIFOTrigger: 8,
		BufferSize:  8192,
		Blocking:    true,
		Timeout:     1000,
	}
}

const bufferSizeGranularity = 8192

// normalize applies the rounding/coercion rules of spec.md §4.2/§8:
// buffersize defaults to 8192 when <= 0 and rounds up to the next 8192
// multiple; fifotrigger coerces to 0 unless it is one of the four legal
// values.
func (p Params) normalize() Params {
	if p.BufferSize <= 0 {
		p.BufferSize = bufferSizeGranularity
	}
	if rem := p.BufferSize % bufferSizeGranularity; rem != 0 {
		p.BufferSize += bufferSizeGranularity - rem
	}
	switch p.FIFOTrigger {
	case 1, 4, 8, 14:
	default:
		p.FIFOTrigger = 0
	}
	return p
}

// divisor computes the 16550 baud-rate divisor for a 1MHz reference
// clock, with the hardware quirk override for 57600 baud.
func divisor(baud int) int {
	if baud == 57600 {
		return 4
	}
	return 1_000_000 / baud
}

// lcrBits composes the LCR word-length/parity/stop-bit fields. Word
// length occupies bits 0-1 ((bits-1)&3); parity occupies bits 3-5;
// stop bit occupies bit 2. Matches driver/uart.c's si_set_serial_params
// bit-for-bit.
func lcrBits(p Params) byte {
	var lcr byte
	lcr |= byte((p.Bits - 1) & 3)
	if p.StopBits == 2 {
		lcr |= 0x04
	}
	switch p.Parity {
	case 'E', 'e':
		lcr |= 0x18
	case 'O', 'o':
		lcr |= 0x08
	case 'M', 'm':
		lcr |= 0x28
	case 'S', 's':
		lcr |= 0x38
	}
	return lcr
}

// fcrBits composes the FIFO control register value for a given trigger
// level, or 0 (FIFOs disabled) when trigger is 0.
func fcrBits(trigger int) byte {
	if trigger == 0 {
		return 0
	}
	x := byte(trigger) & 0x0c
	x <<= 4
	return x | 7
}

// ClampBreakMillis clamps a requested break duration to [0,1000] ms,
// matching ioctl.c's SERIAL_BREAK handling.
func ClampBreakMillis(ms int) int {
	if ms < 0 {
		return 0
	}
	if ms > 1000 {
		return 1000
	}
	return ms
}
