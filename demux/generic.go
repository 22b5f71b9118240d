package demux

import "fmt"

// GenericDemux implements camera_demux_gen from original_source/apps/
// demux.c: a parameterized four-way quadrant split driven directly by
// serlen/parlen rather than a fixed interlace_type, used by the viewer
// path when the camera reports its own serial/parallel split lengths
// instead of one of the eleven canned interlace types.
func GenericDemux(out, in []uint16, size, serlen, parlen int) error {
	want := serlen * parlen * 4
	if len(in) < want {
		return fmt.Errorf("demux: generic input too short: have %d, want %d", len(in), want)
	}
	if len(out) < size*size {
		return fmt.Errorf("demux: generic output too small: have %d, want %d", len(out), size*size)
	}

	so2 := size / 2
	tot := 0
	for row := 0; row < parlen; row++ {
		for col := 0; col < serlen; col++ {
			out[(row+2)*size+(col+1)] = in[tot]

			icol := (serlen - (col + 1)) + so2
			irow := (parlen - (row + 1)) + so2

			out[(row+2)*size+icol] = in[tot+1]
			out[irow*size+col+1] = in[tot+2]
			out[irow*size+icol] = in[tot+3]

			tot += 4
		}
	}
	return nil
}
