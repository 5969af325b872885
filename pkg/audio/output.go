package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Output plays synthesised audio files to the room's speaker. Concrete
// playback backends (ALSA, PulseAudio, a network speaker) implement this;
// the pipeline only ever hands over a file path and deletes it afterwards.
type Output interface {
	// Play plays the audio file at path and returns when playback finishes
	// or ctx is cancelled.
	Play(ctx context.Context, path string) error
}

// ExecOutput plays audio by invoking an external player binary (aplay,
// paplay, afplay, ...). It is the default Output on hosts with a local
// speaker.
type ExecOutput struct {
	// Binary is the player executable. Defaults to "aplay".
	Binary string

	// Args are extra arguments placed before the file path.
	Args []string
}

// Play runs the configured player on path, honouring ctx cancellation.
func (o *ExecOutput) Play(ctx context.Context, path string) error {
	bin := o.Binary
	if bin == "" {
		bin = "aplay"
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audio: play %q: %w", path, err)
	}
	args := append(append([]string{}, o.Args...), path)
	cmd := exec.CommandContext(ctx, bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		slog.Debug("audio player output", "binary", bin, "output", string(out))
		return fmt.Errorf("audio: %s %q: %w", bin, path, err)
	}
	return nil
}
