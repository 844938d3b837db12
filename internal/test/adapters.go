package test

import (
	"context"
	"sync"

	"github.com/polkiloo/orderpipeline/internal/adapter/content"
	"github.com/polkiloo/orderpipeline/internal/adapter/risk"
	"github.com/polkiloo/orderpipeline/internal/bus"
	"github.com/polkiloo/orderpipeline/internal/domain/model"
)

// RiskStub returns a fixed verdict or the result of AssessFn.
type RiskStub struct {
	Verdict  risk.Verdict
	AssessFn func(context.Context, model.OrderIntent) risk.Verdict
	Calls    int
}

// Assess records the call and returns the configured verdict.
func (s *RiskStub) Assess(ctx context.Context, intent model.OrderIntent) risk.Verdict {
	s.Calls++
	if s.AssessFn != nil {
		return s.AssessFn(ctx, intent)
	}
	return s.Verdict
}

// Published is a message captured by PublisherStub.
type Published struct {
	Topic string
	Body  []byte
	Attrs bus.Attributes
}

// PublisherStub records published messages.
type PublisherStub struct {
	mu        sync.Mutex
	Err       error
	Published []Published
}

// Publish stores the message unless Err is set.
func (p *PublisherStub) Publish(_ context.Context, topic string, body []byte, attrs bus.Attributes) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Published = append(p.Published, Published{Topic: topic, Body: body, Attrs: attrs})
	return nil
}

// Count returns the number of recorded messages.
func (p *PublisherStub) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Published)
}

// GeneratorStub returns Email or Err.
type GeneratorStub struct {
	Email content.Email
	Err   error
}

// Generate returns the configured result.
func (g GeneratorStub) Generate(context.Context, model.OrderEvent) (content.Email, error) {
	return g.Email, g.Err
}

// SentMail is an email captured by SenderStub.
type SentMail struct {
	Subject string
	Body    string
}

// SenderStub records sent emails.
type SenderStub struct {
	mu   sync.Mutex
	Err  error
	Sent []SentMail
}

// Send stores the email unless Err is set.
func (s *SenderStub) Send(_ context.Context, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Sent = append(s.Sent, SentMail{Subject: subject, Body: body})
	return nil
}

// Count returns the number of sent emails.
func (s *SenderStub) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}

// IdempotencyStub is a map-backed request key store.
type IdempotencyStub struct {
	mu          sync.Mutex
	Locks       map[string]bool
	Results     map[string]string
	Err         error
	RememberErr error
}

// NewIdempotencyStub constructs an empty store.
func NewIdempotencyStub() *IdempotencyStub {
	return &IdempotencyStub{Locks: make(map[string]bool), Results: make(map[string]string)}
}

// TryLock claims key unless already claimed.
func (s *IdempotencyStub) TryLock(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	if s.Locks[key] {
		return false, nil
	}
	s.Locks[key] = true
	return true, nil
}

// Release frees key.
func (s *IdempotencyStub) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Locks, key)
	return nil
}

// Remember stores orderID for key.
func (s *IdempotencyStub) Remember(_ context.Context, key, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RememberErr != nil {
		return s.RememberErr
	}
	s.Results[key] = orderID
	return nil
}

// Recall returns the stored order id.
func (s *IdempotencyStub) Recall(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", false, s.Err
	}
	id, ok := s.Results[key]
	return id, ok, nil
}
