package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/matlab-dojo/internal/storage/kv"
)

// StorageKey is the fixed key the progress document lives under.
const StorageKey = "progress"

// Store owns the persisted progress document. Every mutation is a full
// read-modify-write of the document; there are no partial patches.
type Store struct {
	kv kv.Store
}

// NewStore creates a progress store over the given key-value backend.
func NewStore(backend kv.Store) *Store {
	return &Store{kv: backend}
}

// Load returns the stored document. An absent or unparseable document
// degrades to the empty document; storage trouble is never surfaced to
// the caller as a fatal condition.
func (s *Store) Load(ctx context.Context) *Document {
	data, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			slog.Warn("progress load failed, starting empty", "error", err)
		}
		return NewDocument()
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("stored progress is malformed, starting empty", "error", err)
		return NewDocument()
	}
	if doc.Modules == nil {
		doc.Modules = make(map[int]map[string]ChallengeProgress)
	}
	if doc.ExamScores == nil {
		doc.ExamScores = []ExamScore{}
	}
	return &doc
}

// Save replaces the stored document.
func (s *Store) Save(ctx context.Context, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

// SaveChallengeResult records a completed challenge and persists the
// updated document.
func (s *Store) SaveChallengeResult(ctx context.Context, moduleID int, challengeID string, cp ChallengeProgress) error {
	doc := s.Load(ctx)
	doc.SetChallenge(moduleID, challengeID, cp)
	return s.Save(ctx, doc)
}

// AppendExamScore appends an exam score and persists the updated
// document.
func (s *Store) AppendExamScore(ctx context.Context, score ExamScore) error {
	doc := s.Load(ctx)
	doc.AppendExamScore(score)
	return s.Save(ctx, doc)
}

// Reset erases the stored document entirely.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.kv.Remove(ctx, StorageKey); err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	return nil
}
