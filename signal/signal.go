// Package signal provides an API to manipulate float32 audio blocks. It allows to:
// 	- convert interleaved int data to non-interleaved float32 and back
//	- allocate, slice and join non-interleaved blocks
package signal

import (
	"math"
	"strconv"
	"time"
)

// Float32 is a non-interleaved float32 signal.
type Float32 [][]float32

const (
	// BitDepth8 is 8 bit depth.
	BitDepth8 = BitDepth(8)
	// BitDepth16 is 16 bit depth.
	BitDepth16 = BitDepth(16)
	// BitDepth24 is 24 bit depth.
	BitDepth24 = BitDepth(24)
	// BitDepth32 is 32 bit depth.
	BitDepth32 = BitDepth(32)
)

// InterInt is an interleaved int signal.
type InterInt struct {
	Data        []int
	NumChannels int
	BitDepth
}

// BitDepth contains values required for int-to-float and backward conversion.
type BitDepth int

// devider is used when int to float conversion is done.
func (bitDepth BitDepth) devider() float32 {
	return float32(bitDepth.max())
}

// String returns bit depth as number of bits.
func (bitDepth BitDepth) String() string {
	return strconv.Itoa(int(bitDepth)) + " bit"
}

// max is the largest int value of bit depth.
func (bitDepth BitDepth) max() float64 {
	switch bitDepth {
	case BitDepth8:
		return math.MaxInt8
	case BitDepth16:
		return math.MaxInt16
	case BitDepth24:
		return 1<<23 - 1
	case BitDepth32:
		return math.MaxInt32
	default:
		return 1
	}
}

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate int, samples int64) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// Size returns number of samples per channel.
func (ints InterInt) Size() int {
	if ints.NumChannels == 0 {
		return 0
	}
	return int(math.Ceil(float64(len(ints.Data)) / float64(ints.NumChannels)))
}

// CopyToFloat32 converts interleaved ints into dst, which must have
// NumChannels channels. It returns number of samples per channel copied.
func (ints InterInt) CopyToFloat32(dst Float32) int {
	if ints.NumChannels == 0 || len(dst) < ints.NumChannels {
		return 0
	}
	n := ints.Size()
	if n > len(dst[0]) {
		n = len(dst[0])
	}
	devider := ints.BitDepth.devider()
	for i := range dst[:ints.NumChannels] {
		pos := 0
		for j := i; j < len(ints.Data) && pos < n; j = j + ints.NumChannels {
			dst[i][pos] = float32(ints.Data[j]) / devider
			pos++
		}
		// incomplete last frame
		for ; pos < n; pos++ {
			dst[i][pos] = 0
		}
	}
	return n
}

// CopyToInterInt converts first n samples of every channel into interleaved
// ints. dst must hold n*NumChannels values. Samples are clipped to [-1, 1].
func (floats Float32) CopyToInterInt(dst []int, n int, bitDepth BitDepth) {
	numChannels := len(floats)
	multiplier := bitDepth.max()
	for j := range floats {
		for i, v := range floats[j][:n] {
			switch {
			case v > 1:
				v = 1
			case v < -1:
				v = -1
			}
			dst[i*numChannels+j] = int(float64(v) * multiplier)
		}
	}
}

// Allocate returns an empty buffer of specified dimentions.
func Allocate(numChannels, bufferSize int) Float32 {
	result := make([][]float32, numChannels)
	for i := range result {
		result[i] = make([]float32, bufferSize)
	}
	return result
}

// NumChannels returns number of channels in this sample slice
func (floats Float32) NumChannels() int {
	return len(floats)
}

// Size returns number of samples in single block in this sample slice
func (floats Float32) Size() int {
	if floats.NumChannels() == 0 {
		return 0
	}
	return len(floats[0])
}

// Append buffers set to existing one one
// new buffer is returned if b is nil
func (floats Float32) Append(source Float32) Float32 {
	if floats == nil {
		floats = make([][]float32, source.NumChannels())
		for i := range floats {
			floats[i] = make([]float32, 0, source.Size())
		}
	}
	for i := range source {
		floats[i] = append(floats[i], source[i]...)
	}
	return floats
}

// Slice returns views of every channel from start position with defined
// length. If buffer doesn't have enough samples, shorten block is returned.
//
// if start >= buffer size or start < 0, nil is returned
func (floats Float32) Slice(start int, len int) Float32 {
	if floats == nil || start >= floats.Size() || start < 0 {
		return nil
	}
	end := start + len
	if end > floats.Size() {
		end = floats.Size()
	}
	result := make([][]float32, floats.NumChannels())
	for i := range floats {
		result[i] = floats[i][start:end:end]
	}
	return result
}
