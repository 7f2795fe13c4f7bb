// Package portaudio runs a processor on the default duplex audio device.
package portaudio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"pipelined.dev/neural"
)

// Stream processes device input and plays the result.
type Stream struct {
	processor *neural.Processor
	stream    *portaudio.Stream
	started   bool
}

// Open initializes portaudio, prepares processor for the stream format
// and opens default duplex stream.
func Open(p *neural.Processor, sampleRate float64, blockSize, numChannels int) (*Stream, error) {
	if p == nil {
		return nil, errors.New("processor is nil")
	}
	if err := p.Prepare(sampleRate, blockSize, numChannels); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	s := &Stream{processor: p}
	stream, err := portaudio.OpenDefaultStream(numChannels, numChannels, sampleRate, blockSize, s.process)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	s.stream = stream
	return s, nil
}

// process is called on the audio thread.
func (s *Stream) process(in, out [][]float32) {
	for i := range out {
		if i < len(in) {
			copy(out[i], in[i])
		} else {
			clear(out[i])
		}
	}
	s.processor.Process(out)
}

// Start starts the stream.
func (s *Stream) Start() error {
	if err := s.stream.Start(); err != nil {
		return err
	}
	s.started = true
	return nil
}

// Close stops the stream and terminates portaudio. Processor is released
// but not closed.
func (s *Stream) Close() error {
	if s.started {
		if err := s.stream.Stop(); err != nil {
			return err
		}
		s.started = false
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	if err := s.processor.Release(); err != nil {
		portaudio.Terminate()
		return err
	}
	return portaudio.Terminate()
}
