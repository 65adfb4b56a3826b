package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// wavSource feeds PCM frames from a WAV file into the turn controller, then
// reports io.EOF so the captured audio finalizes as one utterance.
type wavSource struct {
	path    string
	frameMs int

	mu       sync.Mutex
	pcm      []byte
	offset   int
	byteRate int
	loaded   bool
	drained  bool
}

func newWAVSource(path string, frameMs int) *wavSource {
	if frameMs <= 0 {
		frameMs = 20
	}
	return &wavSource{path: path, frameMs: frameMs}
}

func (s *wavSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read wav file: %w", err)
	}
	pcm, byteRate, err := parseWAV(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	s.pcm = pcm
	s.offset = 0
	s.byteRate = byteRate
	s.loaded = true
	return nil
}

func (s *wavSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.offset >= len(s.pcm) {
		if !s.drained {
			s.drained = true
			s.mu.Unlock()
			return nil, io.EOF
		}
		// The file played once already. Block until the conversation ends
		// so a restarted capture does not spin on EOF.
		s.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer s.mu.Unlock()
	frameBytes := s.byteRate * s.frameMs / 1000
	if frameBytes <= 0 {
		frameBytes = 960
	}
	end := s.offset + frameBytes
	if end > len(s.pcm) {
		end = len(s.pcm)
	}
	frame := s.pcm[s.offset:end]
	s.offset = end
	return frame, nil
}

func (s *wavSource) Stop() error {
	return nil
}

// parseWAV extracts the PCM payload and byte rate from a RIFF/WAVE file.
// Only uncompressed PCM (format 1) is accepted.
func parseWAV(raw []byte) (pcm []byte, byteRate int, err error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var data []byte
	offset := 12
	for offset+8 <= len(raw) {
		chunkID := string(raw[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(raw[offset+4 : offset+8]))
		body := raw[offset+8:]
		if chunkLen > len(body) {
			return nil, 0, fmt.Errorf("truncated %q chunk", chunkID)
		}
		body = body[:chunkLen]

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			if format != 1 {
				return nil, 0, fmt.Errorf("unsupported wav format %d, want PCM", format)
			}
			byteRate = int(binary.LittleEndian.Uint32(body[8:12]))
		case "data":
			data = body
		}

		// Chunks are word aligned.
		offset += 8 + chunkLen
		if chunkLen%2 == 1 {
			offset++
		}
	}

	if byteRate == 0 {
		return nil, 0, fmt.Errorf("missing fmt chunk")
	}
	if data == nil {
		return nil, 0, fmt.Errorf("missing data chunk")
	}
	return data, byteRate, nil
}

// fileSink appends each synthesized answer to a single output file.
type fileSink struct {
	path string

	mu sync.Mutex
	f  *os.File
}

func newFileSink(path string) *fileSink {
	return &fileSink{path: path}
}

func (s *fileSink) Play(ctx context.Context, audio io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open audio output: %w", err)
		}
		s.f = f
	}
	_, err := io.Copy(s.f, audio)
	return err
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// discardSink drains playback audio. Used when the caller only wants text.
type discardSink struct{}

func (discardSink) Play(ctx context.Context, audio io.Reader) error {
	_, err := io.Copy(io.Discard, audio)
	return err
}
