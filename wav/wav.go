// Package wav reads and writes wav files in non-interleaved float32 blocks.
package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/neural/signal"
)

// pcm is wav audio format of integer samples.
const pcm = 1

var (
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16, 24 and 32 bit depth is supported")
	// ErrInvalidFile is returned when file is not a valid pcm wav.
	ErrInvalidFile = errors.New("wav is not valid")
)

func supported(bitDepth signal.BitDepth) bool {
	switch bitDepth {
	case signal.BitDepth16, signal.BitDepth24, signal.BitDepth32:
		return true
	}
	return false
}

// Reader reads wav file block by block.
type Reader struct {
	file        *os.File
	decoder     *wav.Decoder
	buf         *audio.IntBuffer
	numChannels int
	sampleRate  int
	bitDepth    signal.BitDepth
}

// Open opens wav file for reading.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() || decoder.WavAudioFormat != pcm {
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("%w, failed to close the file %v: %v", ErrInvalidFile, path, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	bitDepth := signal.BitDepth(decoder.BitDepth)
	if !supported(bitDepth) {
		file.Close()
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	format := decoder.Format()
	return &Reader{
		file:    file,
		decoder: decoder,
		buf: &audio.IntBuffer{
			Format:         format,
			SourceBitDepth: int(bitDepth),
		},
		numChannels: format.NumChannels,
		sampleRate:  format.SampleRate,
		bitDepth:    bitDepth,
	}, nil
}

// SampleRate of the file.
func (r *Reader) SampleRate() int {
	return r.sampleRate
}

// NumChannels of the file.
func (r *Reader) NumChannels() int {
	return r.numChannels
}

// BitDepth of the file.
func (r *Reader) BitDepth() signal.BitDepth {
	return r.bitDepth
}

// Read fills the block with the next samples and returns number of
// samples read per channel. Block must have NumChannels channels of equal
// size. Tail of the last block is zeroed. io.EOF is returned when there is
// nothing left to read.
func (r *Reader) Read(block signal.Float32) (int, error) {
	if block.NumChannels() != r.numChannels {
		return 0, fmt.Errorf("block has %d channels, file has %d", block.NumChannels(), r.numChannels)
	}
	size := block.Size() * r.numChannels
	if cap(r.buf.Data) < size {
		r.buf.Data = make([]int, size)
	}
	r.buf.Data = r.buf.Data[:size]
	read, err := r.decoder.PCMBuffer(r.buf)
	if err != nil && err != io.EOF {
		return 0, err
	}
	if read == 0 {
		return 0, io.EOF
	}
	ints := signal.InterInt{Data: r.buf.Data[:read], NumChannels: r.numChannels, BitDepth: r.bitDepth}
	n := ints.CopyToFloat32(block)
	for i := range block {
		clear(block[i][n:])
	}
	return n, nil
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Writer writes blocks to wav file.
type Writer struct {
	file        *os.File
	encoder     *wav.Encoder
	buf         *audio.IntBuffer
	numChannels int
	bitDepth    signal.BitDepth
	samples     int64
}

// Create creates wav file for writing.
func Create(path string, sampleRate, numChannels int, bitDepth signal.BitDepth) (*Writer, error) {
	if !supported(bitDepth) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	if numChannels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav format: %d channels at %d Hz", numChannels, sampleRate)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, int(bitDepth), numChannels, pcm),
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: numChannels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: int(bitDepth),
		},
		numChannels: numChannels,
		bitDepth:    bitDepth,
	}, nil
}

// Write writes first n samples of every block channel.
func (w *Writer) Write(block signal.Float32, n int) error {
	if block.NumChannels() != w.numChannels {
		return fmt.Errorf("block has %d channels, file has %d", block.NumChannels(), w.numChannels)
	}
	if n > block.Size() {
		n = block.Size()
	}
	if n <= 0 {
		return nil
	}
	size := n * w.numChannels
	if cap(w.buf.Data) < size {
		w.buf.Data = make([]int, size)
	}
	w.buf.Data = w.buf.Data[:size]
	block.CopyToInterInt(w.buf.Data, n, w.bitDepth)
	if err := w.encoder.Write(w.buf); err != nil {
		return err
	}
	w.samples += int64(n)
	return nil
}

// Samples returns number of samples per channel written.
func (w *Writer) Samples() int64 {
	return w.samples
}

// Close flushes encoder and closes the file.
func (w *Writer) Close() error {
	if err := w.encoder.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
