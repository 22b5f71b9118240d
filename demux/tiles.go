package demux

// The 9-CCD and 16-CCD cases are grounded verbatim on original_source/
// apps/dinter.c cases 5 through 10: each CCD contributes one cell of a
// 3x3 or 4x4 tile grid, and the per-pixel modulus selects which cell the
// next word belongs to. A-channel cases fill tiles left-to-right,
// top-to-bottom; B-channel cases fill the same tiles mirrored (bottom-
// right origin, per CCD readout direction); dual-port cases interleave
// one A-channel cycle and one B-channel cycle per outer modulus period.

func nineTileDims(cols, rows int) (n1c, n2c, n3c, n1r, n2r, n3r int) {
	n1c = cols / 3
	n2c = n1c * 2
	n3c = n1c * 3
	n1r = rows / 3
	n2r = n1r * 2
	n3r = n1r * 3
	return
}

func sixteenTileDims(cols, rows int) (n1c, n2c, n3c, n4c, n1r, n2r, n3r, n4r int) {
	n1c = cols / 4
	n2c = n1c * 2
	n3c = n1c * 3
	n4c = n1c * 4
	n1r = rows / 4
	n2r = n1r * 2
	n3r = n1r * 3
	n4r = n1r * 4
	return
}

// nineTileA returns the output index of word k of an A-channel cycle (9
// words) at cursor (nX, nY). It does not move the cursor; the caller
// advances it after the ninth word, as dinter.c's case 5 does.
func nineTileA(k, nX, nY, n1c, n2c, n3c, n1r, n2r int) int {
	switch k % 9 {
	case 0:
		return nX + n3c*nY
	case 1:
		return nX + n1c + n3c*nY
	case 2:
		return nX + n2c + n3c*nY
	case 3:
		return nX + (n1r * n3c) + n3c*nY
	case 4:
		return nX + n1c + (n1r * n3c) + n3c*nY
	case 5:
		return nX + n2c + (n1r * n3c) + n3c*nY
	case 6:
		return nX + (n2r * n3c) + n3c*nY
	case 7:
		return nX + n1c + (n2r * n3c) + n3c*nY
	default: // 8
		return nX + n2c + (n2r * n3c) + n3c*nY
	}
}

func nineTileB(k, nX, nY, n1c, n2c, n3c, n1r, n2r, n3r int) int {
	switch k % 9 {
	case 0:
		return (n1c - nX - 1) + (n1r*n3c - n3c) - n3c*nY
	case 1:
		return (n2c - nX - 1) + (n1r*n3c - n3c) - n3c*nY
	case 2:
		return (n3c - nX - 1) + (n1r*n3c - n3c) - n3c*nY
	case 3:
		return (n1c - nX - 1) + (n2r*n3c - n3c) - n3c*nY
	case 4:
		return (n2c - nX - 1) + (n2r*n3c - n3c) - n3c*nY
	case 5:
		return (n3c - nX - 1) + (n2r*n3c - n3c) - n3c*nY
	case 6:
		return (n1c - nX - 1) + (n3r*n3c - n3c) - n3c*nY
	case 7:
		return (n2c - nX - 1) + (n3r*n3c - n3c) - n3c*nY
	default: // 8
		return (n3c - nX - 1) + (n3r*n3c - n3c) - n3c*nY
	}
}

func buildNineTileA(table []int, cols, rows int) {
	n1c, n2c, n3c, n1r, n2r, _ := nineTileDims(cols, rows)
	nX, nY := 0, 0
	for k := range table {
		idx := nineTileA(k, nX, nY, n1c, n2c, n3c, n1r, n2r)
		table[k] = idx
		if k%9 == 8 {
			nX++
			if nX == n1c {
				nX = 0
				nY++
			}
		}
	}
}

func buildNineTileB(table []int, cols, rows int) {
	n1c, n2c, n3c, n1r, n2r, n3r := nineTileDims(cols, rows)
	nX, nY := 0, 0
	for k := range table {
		table[k] = nineTileB(k, nX, nY, n1c, n2c, n3c, n1r, n2r, n3r)
		if k%9 == 8 {
			nX++
			if nX == n1c {
				nX = 0
				nY++
			}
		}
	}
}

// buildNineTileDual interleaves one A-channel cycle (modulus 0-8) and one
// B-channel cycle (modulus 9-17) per 18-word period, advancing the shared
// (nX, nY) cursor once every 18 words, per dinter.c case 7.
func buildNineTileDual(table []int, cols, rows int) {
	n1c, n2c, n3c, n1r, n2r, n3r := nineTileDims(cols, rows)
	nX, nY := 0, 0
	for k := range table {
		m := k % 18
		var idx int
		if m < 9 {
			idx = nineTileA(k, nX, nY, n1c, n2c, n3c, n1r, n2r)
		} else {
			idx = nineTileB(m-9, nX, nY, n1c, n2c, n3c, n1r, n2r, n3r)
		}
		table[k] = idx
		if m == 17 {
			nX++
			if nX == n1c {
				nX = 0
				nY++
			}
		}
	}
}

func sixteenTileA(k, nX, nY, n1c, n2c, n3c, n4c, n1r, n2r, n3r int) int {
	switch k % 16 {
	case 0:
		return nX + n4c*nY
	case 1:
		return nX + n4c*nY + n1c
	case 2:
		return nX + n4c*nY + n2c
	case 3:
		return nX + n4c*nY + n3c
	case 4:
		return nX + n4c*(n1r+nY)
	case 5:
		return nX + n4c*(n1r+nY) + n1c
	case 6:
		return nX + n4c*(n1r+nY) + n2c
	case 7:
		return nX + n4c*(n1r+nY) + n3c
	case 8:
		return nX + n4c*(n2r+nY)
	case 9:
		return nX + n4c*(n2r+nY) + n1c
	case 10:
		return nX + n4c*(n2r+nY) + n2c
	case 11:
		return nX + n4c*(n2r+nY) + n3c
	case 12:
		return nX + n4c*(n3r+nY)
	case 13:
		return nX + n4c*(n3r+nY) + n1c
	case 14:
		return nX + n4c*(n3r+nY) + n2c
	default: // 15
		return nX + n4c*(n3r+nY) + n3c
	}
}

func sixteenTileB(k, nX, nY, n1c, n2c, n3c, n4c, n1r, n2r, n3r, n4r int) int {
	switch k % 16 {
	case 0:
		return (n1c - nX - 1) + (n1r-nY-1)*n4c
	case 1:
		return (n2c - nX - 1) + (n1r-nY-1)*n4c
	case 2:
		return (n3c - nX - 1) + (n1r-nY-1)*n4c
	case 3:
		return (n4c - nX - 1) + (n1r-nY-1)*n4c
	case 4:
		return (n1c - nX - 1) + (n2r-nY-1)*n4c
	case 5:
		return (n2c - nX - 1) + (n2r-nY-1)*n4c
	case 6:
		return (n3c - nX - 1) + (n2r-nY-1)*n4c
	case 7:
		return (n4c - nX - 1) + (n2r-nY-1)*n4c
	case 8:
		return (n1c - nX - 1) + (n3r-nY-1)*n4c
	case 9:
		return (n2c - nX - 1) + (n3r-nY-1)*n4c
	case 10:
		return (n3c - nX - 1) + (n3r-nY-1)*n4c
	case 11:
		return (n4c - nX - 1) + (n3r-nY-1)*n4c
	case 12:
		return (n1c - nX - 1) + (n4r-nY-1)*n4c
	case 13:
		return (n2c - nX - 1) + (n4r-nY-1)*n4c
	case 14:
		return (n3c - nX - 1) + (n4r-nY-1)*n4c
	default: // 15
		return (n4c - nX - 1) + (n4r-nY-1)*n4c
	}
}

func buildSixteenTileA(table []int, cols, rows int) {
	n1c, n2c, n3c, n4c, n1r, n2r, n3r, _ := sixteenTileDims(cols, rows)
	nX, nY := 0, 0
	for k := range table {
		table[k] = sixteenTileA(k, nX, nY, n1c, n2c, n3c, n4c, n1r, n2r, n3r)
		if k%16 == 15 {
			nX++
			if nX >= n1c {
				nX = 0
				nY++
			}
		}
	}
}

func buildSixteenTileB(table []int, cols, rows int) {
	n1c, n2c, n3c, n4c, n1r, n2r, n3r, n4r := sixteenTileDims(cols, rows)
	nX, nY := 0, 0
	for k := range table {
		table[k] = sixteenTileB(k, nX, nY, n1c, n2c, n3c, n4c, n1r, n2r, n3r, n4r)
		if k%16 == 15 {
			nX++
			if nX >= n1c {
				nX = 0
				nY++
			}
		}
	}
}

// buildSixteenTileDual interleaves one A-channel cycle (modulus 0-15)
// and one B-channel cycle (modulus 16-31) per 32-word period, advancing
// the shared cursor once every 32 words, per dinter.c case 10.
func buildSixteenTileDual(table []int, cols, rows int) {
	n1c, n2c, n3c, n4c, n1r, n2r, n3r, n4r := sixteenTileDims(cols, rows)
	nX, nY := 0, 0
	for k := range table {
		m := k % 32
		var idx int
		if m < 16 {
			idx = sixteenTileA(m, nX, nY, n1c, n2c, n3c, n4c, n1r, n2r, n3r)
		} else {
			idx = sixteenTileB(m-16, nX, nY, n1c, n2c, n3c, n4c, n1r, n2r, n3r, n4r)
		}
		table[k] = idx
		if m == 31 {
			nX++
			if nX >= n1c {
				nX = 0
				nY++
			}
		}
	}
}
