package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/droman42/irene/internal/config"
	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/nlu"
	"github.com/droman42/irene/internal/pipeline"
	"github.com/droman42/irene/internal/session"
)

// echoHandler answers every intent with the utterance it received.
type echoHandler struct{}

func (echoHandler) Domain() string        { return "echo" }
func (echoHandler) HasMethod(string) bool { return true }
func (echoHandler) Execute(_ context.Context, in intent.Intent, _ *session.Context) (intent.Result, error) {
	return intent.Result{Text: "echo: " + in.RawText, Success: true, ShouldSpeak: true}, nil
}

// echoStage recognises everything as echo.say with full confidence.
type echoStage struct{}

func (echoStage) Name() string { return "keyword_matcher" }
func (echoStage) Recognize(_ context.Context, text string, _ *session.Context) (*intent.Intent, error) {
	in := intent.New("echo.say", text, "", 0.95)
	return &in, nil
}

func testRooms() config.RoomsConfig {
	return config.RoomsConfig{
		FallbackLanguage: "ru",
		Aliases: map[string][]string{
			"ru": {"кухня", "спальня"},
			"en": {"kitchen"},
		},
	}
}

func testServer(t *testing.T) *Server {
	t.Helper()

	registry := intent.NewRegistry()
	if err := registry.RegisterDomain(echoHandler{}); err != nil {
		t.Fatal(err)
	}
	cascade := nlu.NewCascade(
		[]nlu.Provider{echoStage{}},
		donation.NewRegistry(donation.RegistryConfig{Dir: t.TempDir()}),
		nlu.CascadeConfig{},
		nil,
	)
	sessions := session.NewManager(session.ManagerConfig{})
	pipe, err := pipeline.New(pipeline.Config{}, pipeline.Deps{
		Sessions: sessions,
		NLU:      cascade,
		Intents:  intent.NewOrchestrator(registry, intent.OrchestratorConfig{}, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(Config{}, pipe, sessions, testRooms(), nil, nil)
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestExecuteCommand(t *testing.T) {
	h := testServer(t).Handler()

	rr := postJSON(t, h, "/execute/command", `{"command":"скажи привет","room_alias":"кухня"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}

	var resp commandResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.SessionID != "кухня_session" {
		t.Errorf("response = %+v", resp)
	}
	if !strings.HasPrefix(resp.Result.Text, "echo: ") {
		t.Errorf("result text = %q", resp.Result.Text)
	}
	if resp.Trace != nil {
		t.Error("untraced endpoint returned a trace")
	}
}

func TestExecuteCommand_EmptyCommand(t *testing.T) {
	h := testServer(t).Handler()

	rr := postJSON(t, h, "/execute/command", `{"room_alias":"кухня"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestExecuteCommand_MalformedBody(t *testing.T) {
	h := testServer(t).Handler()

	rr := postJSON(t, h, "/execute/command", `{"command": `)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestExecuteCommand_UnknownRoomAliasListsValidOnes(t *testing.T) {
	h := testServer(t).Handler()

	rr := postJSON(t, h, "/execute/command", `{"command":"привет","room_alias":"гараж"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}

	var body errorBody
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body.Error, "гараж") {
		t.Errorf("error = %q, want the alias named", body.Error)
	}
	if len(body.Aliases) != 2 {
		t.Errorf("valid_aliases = %v, want the ru list", body.Aliases)
	}
}

func TestTraceCommand_CarriesStages(t *testing.T) {
	h := testServer(t).Handler()

	rr := postJSON(t, h, "/trace/command", `{"command":"скажи привет"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}

	var resp commandResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Trace == nil {
		t.Fatal("trace missing")
	}
	stages := make(map[string]bool)
	for _, st := range resp.Trace.Stages {
		stages[st.Stage] = true
	}
	for _, want := range []string{"normalize", "nlu", "handler"} {
		if !stages[want] {
			t.Errorf("trace missing stage %q: %+v", want, resp.Trace.Stages)
		}
	}
}

func TestRoomAliases(t *testing.T) {
	h := testServer(t).Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/room_aliases?language=en", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp roomAliasesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Language != "en" || resp.TotalCount != 1 || resp.FallbackLanguage != "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRoomAliases_FallbackLanguage(t *testing.T) {
	h := testServer(t).Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/room_aliases?language=de", nil))

	var resp roomAliasesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Language != "ru" || resp.FallbackLanguage != "ru" || resp.TotalCount != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestStatus_ReportsSessionMemory(t *testing.T) {
	h := testServer(t).Handler()

	if rr := postJSON(t, h, "/execute/command", `{"command":"привет","room_alias":"кухня"}`); rr.Code != http.StatusOK {
		t.Fatalf("warmup command = %d", rr.Code)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionCount != 1 || len(resp.Sessions) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	got := resp.Sessions[0]
	if got.SessionID != "кухня_session" {
		t.Errorf("session_id = %q", got.SessionID)
	}
	// One executed command leaves history behind, so the estimate is
	// non-zero.
	if got.Memory.TotalBytes == 0 || resp.TotalBytes != got.Memory.TotalBytes {
		t.Errorf("memory = %+v (total %d)", got.Memory, resp.TotalBytes)
	}
}

func TestHandler_ServesMetricsAndHealth(t *testing.T) {
	h := testServer(t).Handler()

	for _, path := range []string{"/metrics", "/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rr.Code)
		}
	}
}

func TestExecuteCommand_SessionsPersistAcrossRequests(t *testing.T) {
	srv := testServer(t)
	h := srv.Handler()

	var first commandResponse
	rr := postJSON(t, h, "/execute/command", `{"command":"раз","room_alias":"кухня"}`)
	if err := json.NewDecoder(rr.Body).Decode(&first); err != nil {
		t.Fatal(err)
	}
	var second commandResponse
	rr = postJSON(t, h, "/execute/command", `{"command":"два","room_alias":"кухня"}`)
	if err := json.NewDecoder(rr.Body).Decode(&second); err != nil {
		t.Fatal(err)
	}
	if first.SessionID != second.SessionID {
		t.Errorf("session IDs diverged: %q vs %q", first.SessionID, second.SessionID)
	}
}
