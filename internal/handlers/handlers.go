// Package handlers holds the built-in intent handlers: open-ended
// conversation, timers, and media playback. Each handler owns one domain,
// ships a donation document describing its recognisable phrases, and talks
// to the session context only through its methods.
package handlers

import "strings"

// russian reports whether a language tag selects Russian response text.
func russian(lang string) bool {
	return lang == "ru" || strings.HasPrefix(lang, "ru-")
}
