package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/example/matlab-dojo/internal/events"
	"github.com/example/matlab-dojo/internal/game"
	"github.com/google/uuid"
)

// activeRun is one in-flight or recently finished challenge attempt.
type activeRun struct {
	ID          uuid.UUID
	ModuleID    int
	ChallengeID string

	mu  sync.Mutex
	run *game.Run
}

type runRegistry struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*activeRun
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[uuid.UUID]*activeRun)}
}

func (r *runRegistry) add(run *activeRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
}

func (r *runRegistry) get(id uuid.UUID) (*activeRun, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	return run, ok
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModuleID    int    `json:"moduleId"`
		ChallengeID string `json:"challengeId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ch, ok := s.catalog.Challenge(req.ModuleID, req.ChallengeID)
	if !ok {
		s.jsonError(w, http.StatusNotFound, "challenge not found", nil)
		return
	}

	run := &activeRun{
		ID:          uuid.New(),
		ModuleID:    req.ModuleID,
		ChallengeID: req.ChallengeID,
		run:         game.NewRun(ch),
	}
	s.runs.add(run)

	s.jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"id":          run.ID,
		"moduleId":    run.ModuleID,
		"challengeId": run.ChallengeID,
		"state":       game.StateInProgress,
		"maxAttempts": game.MaxAttempts,
		"challenge":   ch,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"id":          run.ID,
		"moduleId":    run.ModuleID,
		"challengeId": run.ChallengeID,
		"state":       run.run.State,
		"attempts":    run.run.Attempts,
		"hintsUsed":   run.run.Hints,
		"maxAttempts": game.MaxAttempts,
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	run.mu.Lock()
	result, err := run.run.Submit(req.Code)
	var record struct {
		persist bool
		stars   int
	}
	if err == nil && result.State.Terminal() {
		record.persist = true
		record.stars = result.Stars
	}
	attempts, hints := run.run.Attempts, run.run.Hints
	run.mu.Unlock()

	if err != nil {
		s.jsonError(w, http.StatusConflict, "challenge already completed", err)
		return
	}

	if record.persist {
		s.persistRunResult(r, run, record.stars, attempts, hints)
	}

	resp := map[string]interface{}{
		"correct":  result.Correct,
		"state":    result.State,
		"attempts": attempts,
	}
	if result.Feedback != "" {
		resp["feedback"] = result.Feedback
	}
	if result.State.Terminal() {
		resp["stars"] = result.Stars
		resp["explanation"] = result.Explanation
		if result.Solution != "" {
			resp["solution"] = result.Solution
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	run.mu.Lock()
	hint, ceiling, err := run.run.Hint()
	hintsUsed := run.run.Hints
	run.mu.Unlock()

	switch err {
	case nil:
		s.jsonResponse(w, http.StatusOK, map[string]interface{}{
			"hint":      hint,
			"hintsUsed": hintsUsed,
			"maxStars":  ceiling,
		})
	case game.ErrNoMoreHints:
		s.jsonError(w, http.StatusNotFound, "no hints left", nil)
	case game.ErrRunFinished:
		s.jsonError(w, http.StatusConflict, "challenge already completed", nil)
	default:
		s.jsonError(w, http.StatusInternalServerError, "hint failed", err)
	}
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*activeRun, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid run id", err)
		return nil, false
	}
	run, ok := s.runs.get(id)
	if !ok {
		s.jsonError(w, http.StatusNotFound, "run not found", nil)
		return nil, false
	}
	return run, true
}

func (s *Server) persistRunResult(r *http.Request, run *activeRun, stars, attempts, hints int) {
	run.mu.Lock()
	cp, err := run.run.Progress()
	run.mu.Unlock()
	if err != nil {
		return
	}

	if err := s.progress.SaveChallengeResult(r.Context(), run.ModuleID, run.ChallengeID, cp); err != nil {
		s.logError(r, "failed to persist challenge result", err)
	}

	if err := s.publisher.Publish(r.Context(), events.Event{
		Type:        events.TypeChallengeCompleted,
		ModuleID:    run.ModuleID,
		ChallengeID: run.ChallengeID,
		Stars:       stars,
		Attempts:    attempts,
		HintsUsed:   hints,
		Timestamp:   time.Now(),
	}); err != nil {
		s.logError(r, "failed to publish challenge event", err)
	}
}
