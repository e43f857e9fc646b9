// Package tutor manages the AI chat conversation: the transcript, the
// one-request-at-a-time discipline, and the challenge context the tutor
// answers about.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/example/matlab-dojo/internal/llm"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a response is already streaming")
)

// apologyMessage replaces a broken assistant turn so the transcript never
// shows a half-finished answer.
const apologyMessage = "Sorry, something went wrong. Please try again."

// Session is one student's conversation with the tutor. A single
// response streams at a time; concurrent sends are rejected, not queued.
type Session struct {
	provider llm.Provider
	store    *TranscriptStore
	logger   *slog.Logger
	model    string

	mu        sync.Mutex
	busy      bool
	messages  []ChatMessage
	challenge *ChallengeContext
}

// NewSession restores the transcript from the store and returns a ready
// session.
func NewSession(ctx context.Context, provider llm.Provider, store *TranscriptStore, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		provider: provider,
		store:    store,
		logger:   logger,
		messages: store.Load(ctx),
	}
}

// SetChallenge points the tutor at the challenge the student is viewing.
// A nil context falls back to the general MATLAB tutor persona.
func (s *Session) SetChallenge(ctx *ChallengeContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenge = ctx
}

// Messages returns a snapshot of the transcript.
func (s *Session) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Busy reports whether a response is currently streaming.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Clear discards the conversation, both in memory and in the store.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.messages = nil
	s.mu.Unlock()
	return s.store.Clear(ctx)
}

// Send submits a student message and streams the tutor's answer. onDelta
// receives the cumulative assistant text after each increment; it is
// called from Send's goroutine, never concurrently. The transcript is
// persisted only once the stream completes, so a crash mid-stream can
// never save a truncated assistant turn.
func (s *Session) Send(ctx context.Context, text string, onDelta func(cumulative string)) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.busy = true
	s.messages = append(s.messages, ChatMessage{Role: "user", Content: text})
	// Placeholder for the assistant turn; grows as chunks arrive.
	s.messages = append(s.messages, ChatMessage{Role: "assistant", Content: ""})
	req := s.buildRequest()
	s.mu.Unlock()

	err := s.stream(ctx, req, onDelta)

	s.mu.Lock()
	if err != nil {
		s.messages[len(s.messages)-1].Content = apologyMessage
	}
	s.busy = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("tutor stream failed", "error", err)
		return err
	}

	if err := s.store.Save(ctx, s.Messages()); err != nil {
		// The turn succeeded; a persistence hiccup should not fail it.
		s.logger.Warn("failed to persist chat transcript", "error", err)
	}
	return nil
}

func (s *Session) stream(ctx context.Context, req *llm.Request, onDelta func(string)) error {
	ch, err := s.provider.GenerateStream(ctx, req)
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}

	var cumulative strings.Builder
	completed := false
	for chunk := range ch {
		if chunk.Error != nil {
			return fmt.Errorf("stream: %w", chunk.Error)
		}
		if chunk.Done {
			completed = true
			break
		}
		if chunk.Content == "" {
			continue
		}
		cumulative.WriteString(chunk.Content)

		s.mu.Lock()
		s.messages[len(s.messages)-1].Content = cumulative.String()
		s.mu.Unlock()

		if onDelta != nil {
			onDelta(cumulative.String())
		}
	}
	if !completed {
		// Closed without a terminal chunk: the transport died.
		return errors.New("stream ended before completion")
	}
	return nil
}

// buildRequest assembles the provider request from the transcript and
// the current challenge context. Caller holds s.mu.
func (s *Session) buildRequest() *llm.Request {
	messages := make([]llm.Message, 0, len(s.messages))
	for _, m := range s.messages {
		// Skip the trailing placeholder and any apology turns; the
		// model should only see real conversation.
		if m.Role == "assistant" && (m.Content == "" || m.Content == apologyMessage) {
			continue
		}
		messages = append(messages, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	return &llm.Request{
		Model:     s.model,
		System:    BuildSystemPrompt(s.challenge),
		Messages:  messages,
		MaxTokens: 1024,
	}
}
