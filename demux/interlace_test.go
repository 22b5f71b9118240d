package demux

import "testing"

func isPermutation(t *testing.T, table []int, n int) {
	t.Helper()
	seen := make([]bool, n)
	for _, idx := range table {
		if idx < 0 || idx >= n {
			t.Fatalf("index %d out of range [0,%d)", idx, n)
		}
		if seen[idx] {
			t.Fatalf("index %d written twice", idx)
		}
		seen[idx] = true
	}
}

func TestIdentityIsNoOp(t *testing.T) {
	table, err := BuildTable(Config{Type: Identity, Cols: 4, Rows: 4})
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	for k, idx := range table {
		if k != idx {
			t.Fatalf("identity table[%d] = %d, want %d", k, idx, k)
		}
	}
}

func TestAllTypesAreBijections(t *testing.T) {
	// 9-CCD and 16-CCD tile types require cols/rows divisible by both
	// 3 and 4 for every tile to land on a whole number of pixels.
	geometries := []struct{ cols, rows int }{
		{12, 12}, {24, 24},
	}
	for typ := Identity; typ <= SixteenCCDDual; typ++ {
		for _, g := range geometries {
			table, err := BuildTable(Config{Type: typ, Cols: g.cols, Rows: g.rows})
			if err != nil {
				t.Fatalf("type %d geometry %dx%d: %v", typ, g.cols, g.rows, err)
			}
			isPermutation(t, table, g.cols*g.rows)
		}
	}
}

func TestTransformRoundTripsThroughInverse(t *testing.T) {
	cfg := Config{Type: FourQuadrant, Cols: 8, Rows: 8}
	n := cfg.Cols * cfg.Rows
	in := make([]uint16, n)
	for i := range in {
		in[i] = uint16(i)
	}
	out := make([]uint16, n)
	if err := Transform(cfg, in, out); err != nil {
		t.Fatalf("Transform: %v", err)
	}

	table, err := CachedTable(cfg)
	if err != nil {
		t.Fatalf("CachedTable: %v", err)
	}
	inv := Invert(table)
	back := make([]uint16, n)
	for k, idx := range inv {
		back[idx] = out[k]
	}
	for i := range in {
		if back[i] != in[i] {
			t.Fatalf("round trip mismatch at %d: got %d want %d", i, back[i], in[i])
		}
	}
}

func TestTransformRejectsLengthMismatch(t *testing.T) {
	cfg := Config{Type: Identity, Cols: 4, Rows: 4}
	in := make([]uint16, 15)
	out := make([]uint16, 16)
	if err := Transform(cfg, in, out); err == nil {
		t.Fatal("expected error for mismatched buffer length")
	}
}

// TestFourQuadrantFourByFour is spec.md §8 scenario 3: a concrete
// four-quadrant demux the reader can hand-verify.
func TestFourQuadrantFourByFour(t *testing.T) {
	cfg := Config{Type: FourQuadrant, Cols: 4, Rows: 4}
	table, err := BuildTable(cfg)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	// k=0: top-left incrementing -> (0,0) = index 0
	if table[0] != 0 {
		t.Fatalf("table[0] = %d, want 0", table[0])
	}
	// k=1: top-right decrementing -> (3,0) = index 3
	if table[1] != 3 {
		t.Fatalf("table[1] = %d, want 3", table[1])
	}
	// k=2: bottom-left incrementing -> row 3, col 0 = index 12
	if table[2] != 12 {
		t.Fatalf("table[2] = %d, want 12", table[2])
	}
	// k=3: bottom-right decrementing -> row 3, col 3 = index 15
	if table[3] != 15 {
		t.Fatalf("table[3] = %d, want 15", table[3])
	}
}

func TestGenericDemuxFourQuadrant(t *testing.T) {
	size, serlen, parlen := 8, 2, 2
	in := make([]uint16, serlen*parlen*4)
	for i := range in {
		in[i] = uint16(i)
	}
	out := make([]uint16, size*size)
	if err := GenericDemux(out, in, size, serlen, parlen); err != nil {
		t.Fatalf("GenericDemux: %v", err)
	}
	// row=0,col=0: tot=0 -> out[(0+2)*8+(0+1)] = out[17] = in[0]
	if out[17] != in[0] {
		t.Fatalf("out[17] = %d, want %d", out[17], in[0])
	}
	// icol = (2-1)+4 = 5 -> out[(0+2)*8+5] = out[21] = in[1]
	if out[21] != in[1] {
		t.Fatalf("out[21] = %d, want %d", out[21], in[1])
	}
}

func TestGenericDemuxRejectsShortInput(t *testing.T) {
	out := make([]uint16, 16)
	in := make([]uint16, 3)
	if err := GenericDemux(out, in, 4, 2, 2); err == nil {
		t.Fatal("expected error for short input")
	}
}
