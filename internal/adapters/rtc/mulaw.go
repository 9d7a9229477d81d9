package rtc

import (
	"math"

	"github.com/zaf/g711"
)

const pcmuRate = 8000

// encodeMuLaw converts linear PCM to G.711 µ-law.
func encodeMuLaw(dst []byte, src []int16) []byte {
	dst = dst[:0]
	for _, s := range src {
		// -32768 has no positive counterpart; it encodes as -32767.
		if s == math.MinInt16 {
			s = -math.MaxInt16
		}
		dst = append(dst, g711.EncodeUlawFrame(s))
	}
	return dst
}

// downsample reduces rate to pcmuRate by averaging. rate must be a multiple of 8 kHz.
func downsample(dst, src []int16, rate int) []int16 {
	dst = dst[:0]
	step := rate / pcmuRate
	if step <= 1 {
		return append(dst, src...)
	}
	for i := 0; i+step <= len(src); i += step {
		var sum int
		for _, v := range src[i : i+step] {
			sum += int(v)
		}
		dst = append(dst, int16(sum/step))
	}
	return dst
}
