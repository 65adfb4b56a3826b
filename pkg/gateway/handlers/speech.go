package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/core/stt"
	"github.com/versevox/versevox/pkg/core/tts"
	"github.com/versevox/versevox/pkg/core/types"
	"github.com/versevox/versevox/pkg/gateway/auth"
	"github.com/versevox/versevox/pkg/gateway/config"
	"github.com/versevox/versevox/pkg/gateway/metrics"
	"github.com/versevox/versevox/pkg/gateway/ratelimit"
)

// TranscribeHandler serves POST /v1/transcribe: raw audio in, transcript out.
type TranscribeHandler struct {
	Config  config.Config
	STT     stt.Provider
	Metrics *metrics.Metrics
}

func (h TranscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}
	if h.STT == nil {
		writeError(w, r, core.NewInvalidRequestError("transcription is not configured on this server"))
		return
	}

	audio, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, core.NewInvalidRequestError("failed to read audio body"))
		return
	}

	// Too little audio to contain speech: report empty without burning a
	// provider call.
	if len(audio) < h.Config.MinUtteranceBytes {
		h.record("empty")
		writeJSON(w, http.StatusOK, types.TranscribeResponse{Empty: true})
		return
	}

	format := formatFromContentType(r.Header.Get("Content-Type"))
	transcript, err := h.STT.Transcribe(r.Context(), bytes.NewReader(audio), stt.TranscribeOptions{
		Format: format,
	})
	if err != nil {
		h.record("error")
		writeError(w, r, err)
		return
	}

	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		h.record("empty")
		writeJSON(w, http.StatusOK, types.TranscribeResponse{Empty: true})
		return
	}

	h.record("ok")
	writeJSON(w, http.StatusOK, types.TranscribeResponse{Text: text})
}

func (h TranscribeHandler) record(status string) {
	if h.Metrics != nil {
		h.Metrics.RecordTranscription(status)
	}
}

func formatFromContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/flac":
		return "flac"
	default:
		return "wav"
	}
}

// SynthesizeHandler serves POST /v1/synthesize: text in, MP3 stream out.
type SynthesizeHandler struct {
	Config  config.Config
	TTS     tts.Provider
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
}

func (h SynthesizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r)
		return
	}
	if h.TTS == nil {
		writeError(w, r, core.NewInvalidRequestError("synthesis is not configured on this server"))
		return
	}

	var req types.SynthesizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if h.Limiter != nil {
		principal := "anonymous"
		if p, ok := auth.PrincipalFrom(r.Context()); ok {
			principal = ratelimit.PrincipalKeyFromToken(p.Token)
		}
		dec := h.Limiter.AcquireStream(principal, time.Now())
		if !dec.Allowed {
			if h.Metrics != nil {
				h.Metrics.RecordRateLimitHit("stream")
			}
			e := core.NewRateLimitError("too many concurrent audio streams")
			if dec.RetryAfter > 0 {
				v := dec.RetryAfter
				e.RetryAfter = &v
			}
			writeError(w, r, e)
			return
		}
		defer dec.Permit.Release()
	}

	opts := tts.SynthesizeOptions{
		Voice: firstNonEmpty(req.Voice, h.Config.TTSVoice),
		Rate:  firstNonEmpty(req.Rate, h.Config.TTSRate),
		Pitch: firstNonEmpty(req.Pitch, h.Config.TTSPitch),
	}

	stream, err := h.TTS.SynthesizeStream(r.Context(), req.Text, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	total := 0
	for chunk := range stream.Chunks() {
		n, werr := w.Write(chunk)
		total += n
		if werr != nil {
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	// The headers are already on the wire; a provider failure mid-stream can
	// only truncate the audio.
	if h.Metrics != nil {
		h.Metrics.RecordSynthesisAudio(total)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
