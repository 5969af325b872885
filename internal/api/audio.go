package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/pipeline"
	"github.com/droman42/irene/pkg/audio"
)

// audioResponse is the body of a successful audio execution. Results holds
// one entry per executed command segment.
type audioResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"session_id"`
	Results   []intent.Result `json:"results"`
	Trace     *pipeline.Trace `json:"trace,omitempty"`
}

// executeAudio returns the handler for the audio upload entry points. The
// body is a multipart form with an "audio" file part holding a 16-bit PCM
// WAV; room_alias, language, skip_wake, and wants_audio arrive as query or
// form parameters.
func (s *Server) executeAudio(traced bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAudioBody)
		if err := r.ParseMultipartForm(maxAudioBody); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart body: %v", err))
			return
		}

		file, _, err := r.FormFile("audio")
		if err != nil {
			writeError(w, http.StatusBadRequest, `multipart part "audio" is required`)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("read audio part: %v", err))
			return
		}

		pcm, rate, channels, err := audio.DecodeWAV(data)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("decode audio: %v", err))
			return
		}

		roomAlias := r.FormValue("room_alias")
		language := r.FormValue("language")
		wantsAudio, _ := strconv.ParseBool(r.FormValue("wants_audio"))
		skipWake, _ := strconv.ParseBool(r.FormValue("skip_wake"))

		reqCtx, ok := s.requestContext(w, "api", roomAlias, language, wantsAudio, nil)
		if !ok {
			return
		}
		reqCtx.SkipWakeWord = skipWake

		frames := audio.FramesFromPCM(pcm, rate, channels)

		var (
			results []intent.Result
			tr      *pipeline.Trace
		)
		if traced {
			results, tr, err = s.pipeline.ProcessAudioTrace(r.Context(), reqCtx, frames)
		} else {
			results, err = s.pipeline.ProcessAudio(r.Context(), reqCtx, frames)
		}
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, io.ErrUnexpectedEOF) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, audioResponse{
			Success:   true,
			SessionID: reqCtx.SessionID,
			Results:   results,
			Trace:     tr,
		})
	}
}
