package nlu

import (
	"context"
	"errors"
	"testing"

	llmmock "github.com/droman42/irene/pkg/provider/llm/mock"
)

func TestLLMRecognizer_AcceptsKnownIntent(t *testing.T) {
	p := llmmock.New(`{"intent": "timer.set", "entities": {"duration": "5 минут"}, "confidence": 0.9}`)
	lr := NewLLMRecognizer(testSnapshot(t), p)

	in, err := lr.Recognize(context.Background(), "заведи таймер на пять минут", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in == nil || in.Name != "timer.set" {
		t.Fatalf("intent = %+v", in)
	}
	if in.Confidence != 0.9 {
		t.Errorf("confidence = %v", in.Confidence)
	}
	if in.Entities["duration"] != "5 минут" {
		t.Errorf("entities = %v", in.Entities)
	}
	if in.Entities["_recognition_provider"] != "llm_recognizer" {
		t.Errorf("provider entity = %v", in.Entities["_recognition_provider"])
	}

	// The classifier prompt carries the frozen intent set.
	req := p.Requests[0]
	if req.Messages[0].Role != "system" || !req.ResponseJSON {
		t.Errorf("request = %+v", req)
	}
}

func TestLLMRecognizer_RejectsUnknownIntent(t *testing.T) {
	p := llmmock.New(`{"intent": "rocket.launch", "confidence": 0.99}`)
	lr := NewLLMRecognizer(testSnapshot(t), p)

	in, err := lr.Recognize(context.Background(), "запусти ракету", testSession())
	if err != nil || in != nil {
		t.Errorf("Recognize = %+v, %v, want a silent miss", in, err)
	}
}

func TestLLMRecognizer_RejectsNoneAnswer(t *testing.T) {
	p := llmmock.New(`{"intent": "none"}`)
	lr := NewLLMRecognizer(testSnapshot(t), p)

	in, err := lr.Recognize(context.Background(), "какая погода", testSession())
	if err != nil || in != nil {
		t.Errorf("Recognize = %+v, %v", in, err)
	}
}

func TestLLMRecognizer_ExtractsWrappedJSON(t *testing.T) {
	p := llmmock.New("Sure! Here is the classification:\n" +
		`{"intent": "timer.cancel", "confidence": 0.8}` + "\nHope that helps.")
	lr := NewLLMRecognizer(testSnapshot(t), p)

	in, err := lr.Recognize(context.Background(), "отмени таймер", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in == nil || in.Name != "timer.cancel" {
		t.Errorf("intent = %+v", in)
	}
}

func TestLLMRecognizer_GarbageAnswerIsMiss(t *testing.T) {
	p := llmmock.New("I do not understand the question.")
	lr := NewLLMRecognizer(testSnapshot(t), p)

	in, err := lr.Recognize(context.Background(), "поставь таймер", testSession())
	if err != nil || in != nil {
		t.Errorf("Recognize = %+v, %v", in, err)
	}
}

func TestLLMRecognizer_DefaultConfidence(t *testing.T) {
	p := llmmock.New(`{"intent": "timer.set"}`)
	lr := NewLLMRecognizer(testSnapshot(t), p)

	in, err := lr.Recognize(context.Background(), "поставь таймер", testSession())
	if err != nil || in == nil {
		t.Fatalf("Recognize = %+v, %v", in, err)
	}
	if in.Confidence != llmDefaultConfidence {
		t.Errorf("confidence = %v, want the default", in.Confidence)
	}
}

func TestLLMRecognizer_ProviderFailureIsDependencyError(t *testing.T) {
	p := llmmock.New()
	p.Err = errors.New("model offline")
	lr := NewLLMRecognizer(testSnapshot(t), p)

	_, err := lr.Recognize(context.Background(), "поставь таймер", testSession())
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Errorf("err = %v, want the dependency marker", err)
	}
}
