package main

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// buildWAV assembles a minimal RIFF/WAVE file around the given PCM payload.
func buildWAV(t *testing.T, format uint16, byteRate uint32, pcm []byte) []byte {
	t.Helper()

	var fmtBody [16]byte
	binary.LittleEndian.PutUint16(fmtBody[0:2], format)
	binary.LittleEndian.PutUint16(fmtBody[2:4], 1) // channels
	binary.LittleEndian.PutUint32(fmtBody[4:8], byteRate/2)
	binary.LittleEndian.PutUint32(fmtBody[8:12], byteRate)
	binary.LittleEndian.PutUint16(fmtBody[12:14], 2)
	binary.LittleEndian.PutUint16(fmtBody[14:16], 16)

	body := make([]byte, 0, 4+8+len(fmtBody)+8+len(pcm))
	body = append(body, "WAVE"...)
	body = append(body, "fmt "...)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(fmtBody)))
	body = append(body, fmtBody[:]...)
	body = append(body, "data"...)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(pcm)))
	body = append(body, pcm...)

	raw := make([]byte, 0, 8+len(body))
	raw = append(raw, "RIFF"...)
	raw = binary.LittleEndian.AppendUint32(raw, uint32(len(body)))
	raw = append(raw, body...)
	return raw
}

func TestParseWAV(t *testing.T) {
	pcm := make([]byte, 960)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	got, byteRate, err := parseWAV(buildWAV(t, 1, 48000, pcm))
	if err != nil {
		t.Fatalf("parseWAV: %v", err)
	}
	if byteRate != 48000 {
		t.Fatalf("byteRate = %d, want 48000", byteRate)
	}
	if len(got) != len(pcm) || got[0] != 0 || got[len(got)-1] != pcm[len(pcm)-1] {
		t.Fatalf("pcm payload mismatch: got %d bytes", len(got))
	}
}

func TestParseWAV_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "not_riff", raw: []byte("OggS\x00\x00\x00\x00data")},
		{name: "too_short", raw: []byte("RIFF")},
		{name: "compressed_format", raw: buildWAV(t, 7, 48000, make([]byte, 8))},
		{name: "truncated_chunk", raw: buildWAV(t, 1, 48000, make([]byte, 64))[:40]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := parseWAV(tt.raw); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestWAVSource_FramesThenEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q.wav")
	// 48000 bytes/sec at 20ms frames gives 960-byte frames; 2.5 frames total.
	if err := os.WriteFile(path, buildWAV(t, 1, 48000, make([]byte, 2400)), 0o644); err != nil {
		t.Fatal(err)
	}

	src := newWAVSource(path, 20)
	ctx := context.Background()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var total int
	frames := 0
	for {
		frame, err := src.ReadFrame(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		total += len(frame)
		frames++
	}
	if total != 2400 {
		t.Fatalf("read %d bytes, want 2400", total)
	}
	if frames != 3 {
		t.Fatalf("read %d frames, want 3", frames)
	}
}

func TestWAVSource_BlocksAfterDrain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q.wav")
	if err := os.WriteFile(path, buildWAV(t, 1, 48000, make([]byte, 960)), 0o644); err != nil {
		t.Fatal(err)
	}

	src := newWAVSource(path, 20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for {
		if _, err := src.ReadFrame(ctx); err == io.EOF {
			break
		}
	}

	// A second capture on the same source must not spin on EOF.
	if err := src.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := src.ReadFrame(ctx)
		done <- err
	}()
	select {
	case err := <-done:
		t.Fatalf("ReadFrame returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("ReadFrame after cancel = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadFrame did not unblock on cancel")
	}
}
