package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/matlab-dojo/internal/storage/kv"
)

// TranscriptKey is the storage key the conversation persists under.
const TranscriptKey = "chat-transcript"

// ChatMessage is one persisted turn of the tutor conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TranscriptStore persists the conversation across restarts.
type TranscriptStore struct {
	store  kv.Store
	logger *slog.Logger
}

func NewTranscriptStore(store kv.Store, logger *slog.Logger) *TranscriptStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptStore{store: store, logger: logger}
}

// Load returns the saved transcript. A missing or unreadable record
// yields an empty transcript; the conversation starts over rather than
// failing startup.
func (s *TranscriptStore) Load(ctx context.Context) []ChatMessage {
	raw, err := s.store.Get(ctx, TranscriptKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("failed to load chat transcript, starting fresh", "error", err)
		}
		return nil
	}

	var messages []ChatMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		s.logger.Warn("malformed chat transcript, starting fresh", "error", err)
		return nil
	}
	return messages
}

// Save replaces the persisted transcript.
func (s *TranscriptStore) Save(ctx context.Context, messages []ChatMessage) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := s.store.Set(ctx, TranscriptKey, raw); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// Clear discards the persisted transcript.
func (s *TranscriptStore) Clear(ctx context.Context) error {
	if err := s.store.Remove(ctx, TranscriptKey); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("clear transcript: %w", err)
	}
	return nil
}
