// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"vehiclereport/internal/llm"
)

// Reply is one scripted answer.
type Reply struct {
	Text string
	Err  error
}

// Stub replays Replies in order and records every request. Once the script is
// exhausted the last reply repeats.
type Stub struct {
	mu       sync.Mutex
	Replies  []Reply
	Requests []llm.Request
}

func New(replies ...Reply) *Stub {
	return &Stub{Replies: replies}
}

func (s *Stub) Name() string { return "stub" }

func (s *Stub) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if len(s.Replies) == 0 {
		return llm.Response{}, nil
	}
	idx := len(s.Requests) - 1
	if idx >= len(s.Replies) {
		idx = len(s.Replies) - 1
	}
	r := s.Replies[idx]
	if r.Err != nil {
		return llm.Response{}, r.Err
	}
	return llm.Response{Text: r.Text, Model: req.Model}, nil
}

// Calls reports how many requests were made.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
