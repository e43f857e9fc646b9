package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/matlab-dojo/internal/tutor"
)

// clientKey identifies the caller for rate limiting. Proxy headers win
// over the socket address so the limiter is fair behind a reverse proxy.
func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.Index(forwarded, ","); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "unknown"
	}
	return host
}

// handleChatMessage accepts one student message and streams the tutor's
// answer back as raw text. The response is plain text chunks, not SSE;
// the reply is finished when the body ends.
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	if s.chatSession == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "no AI provider configured", nil)
		return
	}

	decision := s.limiter.Allow(clientKey(r))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(decision.RetryAfter))
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
		s.jsonError(w, http.StatusTooManyRequests,
			"Too many requests. Please wait before sending another message.", nil)
		return
	}

	var req struct {
		Message          string                  `json:"message"`
		ChallengeContext *tutor.ChallengeContext `json:"challengeContext"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	s.chatSession.SetChallenge(req.ChallengeContext)

	flusher, canFlush := w.(http.Flusher)

	// Headers are written lazily: a failure before the first delta can
	// still produce a proper error status.
	wroteHeader := false
	written := 0
	onDelta := func(cumulative string) {
		if !wroteHeader {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			wroteHeader = true
		}
		if _, err := w.Write([]byte(cumulative[written:])); err != nil {
			return
		}
		written = len(cumulative)
		if canFlush {
			flusher.Flush()
		}
	}

	err := s.chatSession.Send(r.Context(), req.Message, onDelta)
	switch {
	case err == nil:
		if !wroteHeader {
			// Completed without any content; still a success.
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		}
	case errors.Is(err, tutor.ErrEmptyMessage):
		s.jsonError(w, http.StatusBadRequest, "message is empty", nil)
	case errors.Is(err, tutor.ErrBusy):
		s.jsonError(w, http.StatusConflict, "a response is already streaming", nil)
	default:
		s.logError(r, "chat stream failed", err)
		if !wroteHeader {
			s.jsonError(w, http.StatusBadGateway, "chat stream failed", err)
			return
		}
		// Headers are already out, so a truncated body is the only
		// signal left. Abort the connection rather than terminate the
		// chunked body cleanly; the client's read must fail instead of
		// looking like a complete reply.
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	if s.chatSession == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "no AI provider configured", nil)
		return
	}
	messages := s.chatSession.Messages()
	if messages == nil {
		messages = []tutor.ChatMessage{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (s *Server) handleClearTranscript(w http.ResponseWriter, r *http.Request) {
	if s.chatSession == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "no AI provider configured", nil)
		return
	}
	if err := s.chatSession.Clear(r.Context()); err != nil {
		if errors.Is(err, tutor.ErrBusy) {
			s.jsonError(w, http.StatusConflict, "a response is already streaming", nil)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to clear transcript", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"cleared": true})
}
