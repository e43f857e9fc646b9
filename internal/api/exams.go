package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/example/matlab-dojo/internal/events"
	"github.com/example/matlab-dojo/internal/game"
	"github.com/google/uuid"
)

// activeExam is one running exam session with its countdown. The timer
// finalizes the session when it fires; every exit path stops it so a
// session is finalized exactly once.
type activeExam struct {
	ID       uuid.UUID
	Scope    string
	Deadline time.Time

	mu      sync.Mutex
	session *game.ExamSession
	timer   *time.Timer
}

type examRegistry struct {
	mu    sync.RWMutex
	exams map[uuid.UUID]*activeExam
}

func newExamRegistry() *examRegistry {
	return &examRegistry{exams: make(map[uuid.UUID]*activeExam)}
}

func (r *examRegistry) add(exam *activeExam) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exams[exam.ID] = exam
}

func (r *examRegistry) get(id uuid.UUID) (*activeExam, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exam, ok := r.exams[id]
	return exam, ok
}

func (r *examRegistry) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, exam := range r.exams {
		exam.mu.Lock()
		if exam.timer != nil {
			exam.timer.Stop()
		}
		exam.mu.Unlock()
	}
}

func (s *Server) handleExamScopes(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"scopes":         s.scopes,
		"minutePresets":  s.cfg.Exam.MinutePresets,
		"defaultMinutes": s.cfg.Exam.DefaultMinutes,
	})
}

func (s *Server) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scope   string `json:"scope"`
		Minutes int    `json:"minutes"`
		Count   int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var scope *game.ExamScope
	for i := range s.scopes {
		if s.scopes[i].ID == req.Scope {
			scope = &s.scopes[i]
			break
		}
	}
	if scope == nil {
		s.jsonError(w, http.StatusNotFound, "unknown exam scope", nil)
		return
	}

	if req.Minutes <= 0 {
		req.Minutes = s.cfg.Exam.DefaultMinutes
	}
	if req.Count <= 0 {
		req.Count = s.cfg.Exam.DefaultQuestions
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	questions := game.GenerateExam(s.catalog, scope.ModuleSet(), req.Count, rng)
	if len(questions) == 0 {
		s.jsonError(w, http.StatusUnprocessableEntity, "scope has no challenges", nil)
		return
	}

	exam := &activeExam{
		ID:       uuid.New(),
		Scope:    scope.ID,
		Deadline: time.Now().Add(time.Duration(req.Minutes) * time.Minute),
		session:  game.NewExamSession(questions, scope.Name),
	}
	exam.timer = time.AfterFunc(time.Until(exam.Deadline), func() {
		s.finalizeExam(context.Background(), exam, true)
	})
	s.exams.add(exam)

	s.jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"id":        exam.ID,
		"scope":     exam.Scope,
		"deadline":  exam.Deadline.UTC().Format(time.RFC3339),
		"questions": len(questions),
		"question":  examQuestionView(exam.session.Current()),
	})
}

func (s *Server) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam, ok := s.lookupExam(w, r)
	if !ok {
		return
	}

	exam.mu.Lock()
	defer exam.mu.Unlock()
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"id":        exam.ID,
		"scope":     exam.Scope,
		"deadline":  exam.Deadline.UTC().Format(time.RFC3339),
		"questions": len(exam.session.Questions),
		"answered":  exam.session.Answered(),
		"finished":  exam.session.Finished(),
		"question":  examQuestionView(exam.session.Current()),
	})
}

func (s *Server) handleExamAnswer(w http.ResponseWriter, r *http.Request) {
	exam, ok := s.lookupExam(w, r)
	if !ok {
		return
	}

	var req struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	exam.mu.Lock()
	verdict, err := exam.session.Answer(req.Answer)
	answered := exam.session.Answered()
	total := len(exam.session.Questions)
	next := exam.session.Current()
	exam.mu.Unlock()

	switch err {
	case nil:
	case game.ErrExamFinished:
		s.jsonError(w, http.StatusConflict, "exam already finished", nil)
		return
	case game.ErrNoMoreQuestions:
		s.jsonError(w, http.StatusConflict, "all questions answered", nil)
		return
	default:
		s.jsonError(w, http.StatusInternalServerError, "answer failed", err)
		return
	}

	resp := map[string]interface{}{
		"correct":  verdict.Correct,
		"answered": answered,
		"total":    total,
	}
	if !verdict.Correct {
		resp["expected"] = verdict.Expected
	}
	if next != nil {
		resp["question"] = examQuestionView(next)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleFinishExam(w http.ResponseWriter, r *http.Request) {
	exam, ok := s.lookupExam(w, r)
	if !ok {
		return
	}

	score, err := s.finalizeExam(r.Context(), exam, false)
	if err != nil {
		s.jsonError(w, http.StatusConflict, "exam already finished", nil)
		return
	}
	s.jsonResponse(w, http.StatusOK, score)
}

// finalizeExam seals the session, persists the score and publishes the
// completion event. Only the first caller wins; the timer and the finish
// endpoint can race safely.
func (s *Server) finalizeExam(ctx context.Context, exam *activeExam, expired bool) (interface{}, error) {
	exam.mu.Lock()
	if exam.timer != nil {
		exam.timer.Stop()
	}
	score, err := exam.session.Finish(time.Now())
	exam.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if expired {
		slog.Info("exam timer expired", "exam_id", exam.ID, "scope", exam.Scope)
	}

	if err := s.progress.AppendExamScore(ctx, score); err != nil {
		slog.Error("failed to persist exam score", "exam_id", exam.ID, "error", err)
	}
	if err := s.publisher.Publish(ctx, events.Event{
		Type:      events.TypeExamCompleted,
		Scope:     score.Scope,
		Score:     score.Score,
		Total:     score.Total,
		Timestamp: time.Now(),
	}); err != nil {
		slog.Error("failed to publish exam event", "exam_id", exam.ID, "error", err)
	}

	return score, nil
}

func (s *Server) lookupExam(w http.ResponseWriter, r *http.Request) (*activeExam, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid exam id", err)
		return nil, false
	}
	exam, ok := s.exams.get(id)
	if !ok {
		s.jsonError(w, http.StatusNotFound, "exam not found", nil)
		return nil, false
	}
	return exam, true
}

// examQuestionView exposes a question as "predict the output": the
// student sees the code, never the expected output.
func examQuestionView(q *game.ExamQuestion) map[string]interface{} {
	if q == nil {
		return nil
	}
	return map[string]interface{}{
		"moduleId":    q.ModuleID,
		"title":       q.Challenge.Title,
		"description": q.Challenge.Description,
		"code":        q.Challenge.StarterCode,
	}
}
