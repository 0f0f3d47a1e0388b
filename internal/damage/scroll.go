package damage

import "github.com/cespare/xxhash/v2"

// ScrollMove describes one vertical-translation run the scroll detector
// found: the region at srcY in the previous frame reappears at dstY in
// the current one, Height rows tall (§4.6: "a scroll packet containing
// the (src_y, dst_y, height) list").
type ScrollMove struct {
	SrcY, DstY, Height int
}

// hashRows hashes each scanline of a row-major pixel buffer independently,
// so row-granularity comparison doesn't require touching raw pixels.
func hashRows(pixels []byte, stride, height int) []uint64 {
	hashes := make([]uint64, height)
	for y := 0; y < height; y++ {
		start := y * stride
		end := start + stride
		if end > len(pixels) {
			break
		}
		hashes[y] = xxhash.Sum64(pixels[start:end])
	}
	return hashes
}

// DetectScroll looks for a single dominant vertical shift between prev
// and curr frames of identical dimensions: curr's region at dstY matches
// prev's region at dstY-shift for shift in [-maxShift, maxShift]. It
// returns the shift that explains the largest matching run once at least
// matchThreshold of the region's rows match that shift (§4.6 scroll
// detector, ">=60% of the region matches a vertical translation").
func DetectScroll(prevPixels, currPixels []byte, stride, height, maxShift int, matchThreshold float64) (ScrollMove, bool) {
	if height == 0 || stride == 0 {
		return ScrollMove{}, false
	}
	prevHashes := hashRows(prevPixels, stride, height)
	currHashes := hashRows(currPixels, stride, height)

	bestShift := 0
	bestMatches := 0
	for shift := -maxShift; shift <= maxShift; shift++ {
		if shift == 0 {
			continue
		}
		matches := countShiftMatches(prevHashes, currHashes, shift)
		if matches > bestMatches {
			bestMatches = matches
			bestShift = shift
		}
	}

	if bestMatches == 0 || float64(bestMatches)/float64(height) < matchThreshold {
		return ScrollMove{}, false
	}

	srcY, dstY := runBounds(bestShift, height)
	return ScrollMove{SrcY: srcY, DstY: dstY, Height: bestMatches}, true
}

func countShiftMatches(prevHashes, currHashes []uint64, shift int) int {
	matches := 0
	for y := 0; y < len(currHashes); y++ {
		srcY := y - shift
		if srcY < 0 || srcY >= len(prevHashes) {
			continue
		}
		if currHashes[y] == prevHashes[srcY] {
			matches++
		}
	}
	return matches
}

func runBounds(shift, height int) (srcY, dstY int) {
	if shift > 0 {
		return 0, shift
	}
	return -shift, 0
}
