package pipeline

import "time"

// StageTrace records one pipeline stage's contribution to a traced request.
type StageTrace struct {
	// Stage names the step: "vad", "wake", "asr", "normalize", "nlu",
	// "handler", "tts".
	Stage string `json:"stage"`

	// Output is the stage's textual product, where one exists (transcript,
	// normalised text, intent name, response text).
	Output string `json:"output,omitempty"`

	// DurationMS is the stage's wall time.
	DurationMS float64 `json:"duration_ms"`

	// Error is set when the stage failed.
	Error string `json:"error,omitempty"`
}

// Trace accumulates the stage-by-stage record of one traced request. Traces
// are per request and not safe for concurrent use.
type Trace struct {
	Stages []StageTrace `json:"stages"`
}

// add appends one stage record; nil receivers ignore the call so untraced
// requests pay only a nil check.
func (t *Trace) add(stage, output string, start time.Time, err error) {
	if t == nil {
		return
	}
	st := StageTrace{
		Stage:      stage,
		Output:     output,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if err != nil {
		st.Error = err.Error()
	}
	t.Stages = append(t.Stages, st)
}
