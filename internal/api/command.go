package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/pipeline"
	"github.com/droman42/irene/internal/session"
)

// commandRequest is the body of /execute/command and /trace/command.
type commandRequest struct {
	// Command is the raw text to execute.
	Command string `json:"command"`

	// RoomAlias scopes the request to a room session. Optional; an unknown
	// alias is rejected with the valid alias list.
	RoomAlias string `json:"room_alias,omitempty"`

	// Language is the IETF tag for this request; empty keeps the session's.
	Language string `json:"language,omitempty"`

	// WantsAudio requests synthesised speech in addition to text.
	WantsAudio bool `json:"wants_audio,omitempty"`

	// Metadata is merged into the session's client metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// commandResponse is the body of a successful command execution.
type commandResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"session_id"`
	Result    intent.Result   `json:"result"`
	Trace     *pipeline.Trace `json:"trace,omitempty"`
}

// roomAliasesResponse is the body of GET /room_aliases.
type roomAliasesResponse struct {
	Success          bool     `json:"success"`
	RoomAliases      []string `json:"room_aliases"`
	Language         string   `json:"language"`
	FallbackLanguage string   `json:"fallback_language,omitempty"`
	TotalCount       int      `json:"total_count"`
}

// handleRoomAliases reports the room aliases valid for a language, so
// clients can populate room pickers without hardcoding the topology.
func (s *Server) handleRoomAliases(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("language")
	aliases, resolved := s.rooms.AliasesFor(lang)

	resp := roomAliasesResponse{
		Success:     true,
		RoomAliases: aliases,
		Language:    resolved,
		TotalCount:  len(aliases),
	}
	if lang != "" && resolved != lang {
		resp.FallbackLanguage = resolved
	}
	writeJSON(w, http.StatusOK, resp)
}

// executeCommand returns the handler for the text entry points. traced
// selects the /trace variant.
func (s *Server) executeCommand(traced bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commandRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.Command == "" {
			writeError(w, http.StatusBadRequest, "command must not be empty")
			return
		}
		reqCtx, ok := s.requestContext(w, "api", req.RoomAlias, req.Language, req.WantsAudio, req.Metadata)
		if !ok {
			return
		}

		var (
			res intent.Result
			tr  *pipeline.Trace
			err error
		)
		if traced {
			res, tr, err = s.pipeline.ProcessTextTrace(r.Context(), reqCtx, req.Command)
		} else {
			res, err = s.pipeline.ProcessText(r.Context(), reqCtx, req.Command)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, commandResponse{
			Success:   res.Success,
			SessionID: reqCtx.SessionID,
			Result:    res,
			Trace:     tr,
		})
	}
}

// requestContext validates the room alias and builds the per-request
// transport facts. A false return means the response is already written.
func (s *Server) requestContext(w http.ResponseWriter, source, roomAlias, language string, wantsAudio bool, metadata map[string]any) (session.RequestContext, bool) {
	if roomAlias != "" && !s.rooms.IsValidAlias(roomAlias) {
		aliases, _ := s.rooms.AliasesFor(language)
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   fmt.Sprintf("unknown room alias %q", roomAlias),
			Aliases: aliases,
		})
		return session.RequestContext{}, false
	}
	return session.RequestContext{
		Source:             source,
		SessionID:          session.SessionIDFor(source, roomAlias),
		ClientID:           roomAlias,
		Language:           language,
		WantsAudioResponse: wantsAudio,
		Metadata:           metadata,
	}, true
}
