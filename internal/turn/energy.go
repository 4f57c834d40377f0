package turn

import (
	"encoding/binary"
	"math"
)

// floorDBFS is the level mapped to energy 0. 0 dBFS maps to 255, so the
// default threshold of 40 sits near -50 dBFS.
const floorDBFS = -60.0

// Energy maps a block of 16-bit little-endian PCM to the 0-255 energy scale
// using its RMS level in dBFS.
func Energy(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768.0
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	e := 255 * (db - floorDBFS) / -floorDBFS
	switch {
	case e < 0:
		return 0
	case e > 255:
		return 255
	default:
		return e
	}
}
