package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/matlab-dojo/internal/config"
	"github.com/example/matlab-dojo/internal/content"
	"github.com/example/matlab-dojo/internal/storage/local"
)

func testCatalog() *content.Catalog {
	return &content.Catalog{Modules: []content.Module{
		{
			ID:        1,
			Name:      "Variables & Basic Operations",
			ShortName: "Variables",
			Challenges: []content.Challenge{
				{
					ID:             "m1-c1",
					Module:         1,
					Kind:           content.KindPredictOutput,
					Title:          "Scalar addition",
					Description:    "What does this print?",
					StarterCode:    "5 + 3",
					ExpectedOutput: "ans = 8",
					Hints:          []string{"Add them.", "It echoes ans.", "The answer is 8."},
					Explanation:    "Unassigned results echo as ans.",
				},
			},
		},
		{
			ID:        2,
			Name:      "Vectors & Matrices",
			ShortName: "Vectors",
			Challenges: []content.Challenge{
				{
					ID:             "m2-c1",
					Module:         2,
					Kind:           content.KindFixBug,
					Title:          "Elementwise product",
					Description:    "Fix the multiplication.",
					StarterCode:    "c = a * b;",
					CorrectCode:    "c = a .* b;",
					ExpectedOutput: "c = 2 6 12",
					Hints:          []string{"Dimensions disagree.", "Use a dot.", "The operator is .*"},
					Explanation:    "Use .* for elementwise multiplication.",
				},
			},
		},
	}}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.LLM.Providers = map[string]*config.ProviderConfig{}
	if mutate != nil {
		mutate(cfg)
	}

	store, err := local.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	srv, err := NewServer(context.Background(), ServerConfig{
		Config:  cfg,
		Catalog: testCatalog(),
		Store:   store,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.limiter.Close(); srv.exams.stopAll() })
	return srv
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var parsed map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("parse response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, parsed
}

func TestHealthAndStatus(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/v1/health", nil)
	if rec.Code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health: code=%d body=%v", rec.Code, body)
	}

	rec, body = doJSON(t, srv.Handler(), http.MethodGet, "/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if body["modules"].(float64) != 2 || body["challenges"].(float64) != 2 {
		t.Errorf("status body = %v", body)
	}
}

func TestListModulesAndChallenges(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/v1/modules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	modules := body["modules"].([]interface{})
	if len(modules) != 2 {
		t.Fatalf("modules = %v", modules)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/v1/modules/2/challenges", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	raw := rec.Body.String()
	if !strings.Contains(raw, "Elementwise product") {
		t.Errorf("challenge listing missing title: %s", raw)
	}
	// Solutions, hints and expected output never leave the server here.
	for _, secret := range []string{"c = a .* b;", "c = 2 6 12", "Use a dot."} {
		if strings.Contains(raw, secret) {
			t.Errorf("challenge listing leaks %q", secret)
		}
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/v1/modules/99/challenges", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown module: code = %d", rec.Code)
	}
}

func TestRunFlowSuccess(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs",
		map[string]interface{}{"moduleId": 1, "challengeId": "m1-c1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create run: code = %d body=%s", rec.Code, rec.Body.String())
	}
	runID := body["id"].(string)

	// Miss once.
	rec, body = doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs/"+runID+"/submit",
		map[string]string{"code": "ans = 9"})
	if rec.Code != http.StatusOK || body["correct"].(bool) {
		t.Fatalf("wrong submit: code=%d body=%v", rec.Code, body)
	}
	if body["feedback"] != "Not quite. Try again." {
		t.Errorf("feedback = %v", body["feedback"])
	}

	// Take a hint.
	rec, body = doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs/"+runID+"/hint", nil)
	if rec.Code != http.StatusOK || body["hint"] != "Add them." {
		t.Fatalf("hint: code=%d body=%v", rec.Code, body)
	}
	if body["maxStars"].(float64) != 3 {
		t.Errorf("maxStars = %v; first hint is free", body["maxStars"])
	}

	// Solve on the second attempt with one hint: 2 stars.
	rec, body = doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs/"+runID+"/submit",
		map[string]string{"code": "ANS = 8"})
	if rec.Code != http.StatusOK || !body["correct"].(bool) {
		t.Fatalf("correct submit: code=%d body=%v", rec.Code, body)
	}
	if body["stars"].(float64) != 2 {
		t.Errorf("stars = %v; want 2", body["stars"])
	}
	if body["explanation"] != "Unassigned results echo as ans." {
		t.Errorf("explanation = %v", body["explanation"])
	}

	// Further submissions are rejected.
	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs/"+runID+"/submit",
		map[string]string{"code": "ans = 8"})
	if rec.Code != http.StatusConflict {
		t.Errorf("submit after completion: code = %d", rec.Code)
	}

	// The result is in the progress document.
	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/v1/progress", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("progress: code = %d", rec.Code)
	}
	var doc struct {
		Modules map[string]map[string]struct {
			Stars     int  `json:"stars"`
			Attempts  int  `json:"attempts"`
			Completed bool `json:"completed"`
		} `json:"modules"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	cp := doc.Modules["1"]["m1-c1"]
	if cp.Stars != 2 || cp.Attempts != 2 || !cp.Completed {
		t.Errorf("persisted progress = %+v", cp)
	}
}

func TestRunExhaustionRevealsSolution(t *testing.T) {
	srv := newTestServer(t, nil)

	_, body := doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs",
		map[string]interface{}{"moduleId": 2, "challengeId": "m2-c1"})
	runID := body["id"].(string)

	var last map[string]interface{}
	for i := 0; i < 3; i++ {
		_, last = doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs/"+runID+"/submit",
			map[string]string{"code": "c = a * b;"})
	}
	if last["state"] != "completed_exhausted" {
		t.Fatalf("state = %v", last["state"])
	}
	if last["stars"].(float64) != 0 {
		t.Errorf("stars = %v; want 0", last["stars"])
	}
	if last["solution"] != "c = a .* b;" {
		t.Errorf("solution = %v", last["solution"])
	}
}

func TestProgressReset(t *testing.T) {
	srv := newTestServer(t, nil)

	_, body := doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs",
		map[string]interface{}{"moduleId": 1, "challengeId": "m1-c1"})
	runID := body["id"].(string)
	doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs/"+runID+"/submit",
		map[string]string{"code": "ans = 8"})

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/v1/progress/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: code = %d", rec.Code)
	}

	_, statsBody := doJSON(t, srv.Handler(), http.MethodGet, "/v1/stats", nil)
	if statsBody["starsEarned"].(float64) != 0 {
		t.Errorf("starsEarned after reset = %v", statsBody["starsEarned"])
	}
}

func TestCheatSheetEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cheatsheet", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "MATLAB CHEAT SHEET") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestExamFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/v1/exam-scopes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("scopes: code = %d", rec.Code)
	}
	if len(body["scopes"].([]interface{})) != 3 {
		t.Fatalf("scopes = %v", body["scopes"])
	}

	rec, body = doJSON(t, srv.Handler(), http.MethodPost, "/v1/exams",
		map[string]interface{}{"scope": "final", "minutes": 10, "count": 10})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create exam: code = %d body=%s", rec.Code, rec.Body.String())
	}
	examID := body["id"].(string)
	total := int(body["questions"].(float64))
	if total != 2 {
		t.Fatalf("questions = %d; want the whole 2-question pool", total)
	}
	question := body["question"].(map[string]interface{})

	answers := map[string]string{
		"Scalar addition":     "ans = 8",
		"Elementwise product": "wrong",
	}
	for i := 0; i < total; i++ {
		title := question["title"].(string)
		rec, body = doJSON(t, srv.Handler(), http.MethodPost, "/v1/exams/"+examID+"/answers",
			map[string]string{"answer": answers[title]})
		if rec.Code != http.StatusOK {
			t.Fatalf("answer %d: code = %d body=%s", i+1, rec.Code, rec.Body.String())
		}
		if next, ok := body["question"].(map[string]interface{}); ok {
			question = next
		}
	}

	rec, body = doJSON(t, srv.Handler(), http.MethodPost, "/v1/exams/"+examID+"/finish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finish: code = %d body=%s", rec.Code, rec.Body.String())
	}
	if body["score"].(float64) != 1 || body["total"].(float64) != 2 {
		t.Errorf("score = %v/%v; want 1/2", body["score"], body["total"])
	}

	// Finishing twice conflicts.
	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/v1/exams/"+examID+"/finish", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second finish: code = %d", rec.Code)
	}

	// The score landed in the exam history.
	_, statsBody := doJSON(t, srv.Handler(), http.MethodGet, "/v1/stats", nil)
	history := statsBody["examHistory"].([]interface{})
	if len(history) != 1 {
		t.Fatalf("examHistory = %v", history)
	}
}

func TestExamUnknownScope(t *testing.T) {
	srv := newTestServer(t, nil)
	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/v1/exams",
		map[string]interface{}{"scope": "quiz9"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestChatWithoutProviderUnavailable(t *testing.T) {
	srv := newTestServer(t, nil)
	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/v1/chat/messages",
		map[string]string{"message": "hello"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d; want 503", rec.Code)
	}
}

func TestChatStreamsPlainText(t *testing.T) {
	// A fake Ollama endpoint stands in for the real model.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Try a "},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"semicolon."},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer upstream.Close()

	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.LLM.DefaultProvider = "ollama"
		cfg.LLM.Providers = map[string]*config.ProviderConfig{
			"ollama": {Enabled: true, URL: upstream.URL, Model: "test"},
		}
	})

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/v1/chat/messages",
		map[string]interface{}{"message": "why no output?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != "Try a semicolon." {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("rate limit headers missing")
	}

	// The transcript now holds both turns.
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/v1/chat/transcript", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transcript: code = %d", rec.Code)
	}
	messages := body["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("messages = %v", messages)
	}

	// And clearing empties it.
	rec, _ = doJSON(t, srv.Handler(), http.MethodDelete, "/v1/chat/transcript", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: code = %d", rec.Code)
	}
	_, body = doJSON(t, srv.Handler(), http.MethodGet, "/v1/chat/transcript", nil)
	if len(body["messages"].([]interface{})) != 0 {
		t.Errorf("transcript after clear = %v", body["messages"])
	}
}

func TestChatAbortsConnectionOnMidStreamFailure(t *testing.T) {
	// The upstream dies after one delta: no done marker ever arrives.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Try a "},"done":false}`)
	}))
	defer upstream.Close()

	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.LLM.DefaultProvider = "ollama"
		cfg.LLM.Providers = map[string]*config.ProviderConfig{
			"ollama": {Enabled: true, URL: upstream.URL, Model: "test"},
		}
	})

	// A recorder cannot observe a connection abort; go through a real
	// listener so the client sees what a browser would.
	front := httptest.NewServer(srv.Handler())
	defer front.Close()

	resp, err := http.Post(front.URL+"/v1/chat/messages", "application/json",
		strings.NewReader(`{"message":"why no output?"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	// Headers were already out when the stream died, so the status is
	// 200; the read itself must fail rather than end cleanly.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("code = %d; want 200", resp.StatusCode)
	}
	if _, err := io.ReadAll(resp.Body); err == nil {
		t.Fatal("truncated stream read ended cleanly; want a read error")
	}

	// The session replaced the dead reply with the apology.
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/v1/chat/transcript", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transcript: code = %d", rec.Code)
	}
	messages := body["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("messages = %v", messages)
	}
	last := messages[1].(map[string]interface{})
	if got := last["content"].(string); !strings.Contains(got, "Sorry, something went wrong") {
		t.Errorf("assistant turn = %q; want the apology", got)
	}
}

func TestChatRateLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"ok"},"done":true}`)
	}))
	defer upstream.Close()

	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Chat.RateLimitMaxRequests = 1
		cfg.LLM.DefaultProvider = "ollama"
		cfg.LLM.Providers = map[string]*config.ProviderConfig{
			"ollama": {Enabled: true, URL: upstream.URL, Model: "test"},
		}
	})

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/v1/chat/messages",
		map[string]string{"message": "one"})
	if rec.Code != http.StatusOK {
		t.Fatalf("first message: code = %d", rec.Code)
	}

	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/v1/chat/messages",
		map[string]string{"message": "two"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second message: code = %d; want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 without Retry-After")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestChatEmptyMessageRejected(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"ok"},"done":true}`)
	}))
	defer upstream.Close()

	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.LLM.DefaultProvider = "ollama"
		cfg.LLM.Providers = map[string]*config.ProviderConfig{
			"ollama": {Enabled: true, URL: upstream.URL, Model: "test"},
		}
	})

	rec, _ := doJSON(t, srv.Handler(), http.MethodPost, "/v1/chat/messages",
		map[string]string{"message": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d; want 400", rec.Code)
	}
}
