package session

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// RequestContext holds the transport-level facts a single request carries.
// It is immutable: build one per request and pass it by value.
type RequestContext struct {
	// Source identifies the entry point: "api", "mic", "ws", "cli", ...
	Source string

	// SessionID selects the target conversation context. When empty the
	// caller should derive one via [SessionIDFor].
	SessionID string

	// ClientID is the room/device identifier and the primary disambiguator
	// for room extraction.
	ClientID string

	// RoomName is the human-readable room label, if the transport knows it.
	RoomName string

	// DeviceContext carries device-reported facts ("room_name", the device
	// inventory under "available_devices", capability flags).
	DeviceContext map[string]any

	// Language is the IETF tag requested by the client; empty means keep the
	// session's current language.
	Language string

	// WantsAudioResponse requests synthesised speech in addition to text.
	WantsAudioResponse bool

	// SkipWakeWord disables the wake-word gate for audio-mode requests.
	SkipWakeWord bool

	// Metadata holds any extra transport key/values, merged into the
	// context's client metadata on enrichment.
	Metadata map[string]any
}

// sessionSuffix terminates every session ID produced by this runtime.
const sessionSuffix = "_session"

// SessionIDFor derives a session ID following the runtime convention:
// "{room_id}_session" when a room is known, otherwise
// "{source}_{uuid8}_session".
func SessionIDFor(source, roomID string) string {
	if roomID != "" {
		return roomID + sessionSuffix
	}
	if source == "" {
		source = "api"
	}
	return fmt.Sprintf("%s_%s%s", source, uuid.NewString()[:8], sessionSuffix)
}

// RoomFromSessionID extracts the room ID encoded in a session ID.
//
// A session ID maps back to a room when it ends in "_session" and the last 8
// characters of the prefix contain no digits: UUID-derived fallback IDs
// always carry hex digits there, room aliases never do.
func RoomFromSessionID(sessionID string) (string, bool) {
	prefix, ok := strings.CutSuffix(sessionID, sessionSuffix)
	if !ok || prefix == "" {
		return "", false
	}
	tail := prefix
	if len(tail) > 8 {
		tail = tail[len(tail)-8:]
	}
	for _, r := range tail {
		if unicode.IsDigit(r) {
			return "", false
		}
	}
	return prefix, true
}
