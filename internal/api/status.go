package api

import (
	"net/http"

	"github.com/droman42/irene/internal/session"
)

// sessionStatus is one session's entry in the status report.
type sessionStatus struct {
	SessionID    string                 `json:"session_id"`
	RoomName     string                 `json:"room_name,omitempty"`
	Language     string                 `json:"language"`
	State        string                 `json:"state"`
	LastActivity string                 `json:"last_activity"`
	Memory       session.MemoryEstimate `json:"memory"`
}

// statusResponse is the body of GET /status.
type statusResponse struct {
	Success      bool            `json:"success"`
	SessionCount int             `json:"session_count"`
	TotalBytes   int             `json:"total_bytes"`
	Sessions     []sessionStatus `json:"sessions"`
}

// handleStatus reports the live sessions with their estimated memory
// footprint, for the monitoring surface.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Success: true, Sessions: []sessionStatus{}}
	for _, id := range s.sessions.SessionIDs() {
		c, ok := s.sessions.Get(id)
		if !ok {
			continue
		}
		est := session.EstimateMemory(c)
		resp.Sessions = append(resp.Sessions, sessionStatus{
			SessionID:    c.SessionID(),
			RoomName:     c.RoomName(),
			Language:     c.Language(),
			State:        string(c.State()),
			LastActivity: c.LastActivity().UTC().Format("2006-01-02T15:04:05Z"),
			Memory:       est,
		})
		resp.TotalBytes += est.TotalBytes
	}
	resp.SessionCount = len(resp.Sessions)
	writeJSON(w, http.StatusOK, resp)
}
