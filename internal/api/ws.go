package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/droman42/irene/pkg/audio"
)

// wsResult is one message pushed to the client after the stream ends: the
// full result list for the stream's executed commands.
type wsResult struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Results   any    `json:"results"`
	Error     string `json:"error,omitempty"`
}

// handleWSAudio accepts a WebSocket carrying an Opus packet stream. Binary
// messages are Opus packets at the transport format (48 kHz stereo, 20 ms).
// The client signals end of speech by closing the socket; the server then
// sends one result message and closes.
func (s *Server) handleWSAudio(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomAlias := q.Get("room_alias")
	language := q.Get("language")
	wantsAudio, _ := strconv.ParseBool(q.Get("wants_audio"))
	skipWake, _ := strconv.ParseBool(q.Get("skip_wake"))

	reqCtx, ok := s.requestContext(w, "ws", roomAlias, language, wantsAudio, nil)
	if !ok {
		return
	}
	reqCtx.SkipWakeWord = skipWake

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	dec, err := audio.NewOpusDecoder()
	if err != nil {
		conn.Close(websocket.StatusInternalError, "decoder init failed")
		return
	}

	ctx := r.Context()
	frames := make(chan audio.Frame, 16)

	// Reader: socket messages to PCM frames. Stops on close or error.
	go func() {
		defer close(frames)
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}
			f, err := dec.Decode(data)
			if err != nil {
				slog.Warn("dropping undecodable opus packet", "err", err)
				continue
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	results, procErr := s.pipeline.ProcessAudio(ctx, reqCtx, frames)

	msg := wsResult{Type: "results", SessionID: reqCtx.SessionID, Results: results}
	if procErr != nil {
		msg.Type = "error"
		msg.Error = procErr.Error()
	}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		slog.Warn("websocket result write failed", "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}
