package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/sprintboard/internal/config"
	"github.com/sprintboard/internal/domain"
)

type fakeRegistrationHandler struct {
	mu         sync.Mutex
	registered []domain.Registration
	errByNonce map[string]error
}

func (f *fakeRegistrationHandler) Register(_ context.Context, reg domain.Registration) (*domain.RegistrationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errByNonce[reg.Nonce]; err != nil {
		return nil, err
	}
	f.registered = append(f.registered, reg)
	return &domain.RegistrationResult{}, nil
}

func (f *fakeRegistrationHandler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered)
}

func (f *fakeRegistrationHandler) nonces() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.registered))
	for i, reg := range f.registered {
		out[i] = reg.Nonce
	}
	return out
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "test-member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) markedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.marked)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "sprint-results" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newClaimHandler(handler RegistrationHandler, cfg *config.KafkaConfig) *consumerGroupHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &consumerGroupHandler{
		consumer: &Consumer{
			config:  cfg,
			handler: handler,
			logger:  logger,
		},
		ready: make(chan bool),
	}
}

func message(offset int64, value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:  "sprint-results",
		Offset: offset,
		Value:  []byte(value),
	}
}

func batchConfig() *config.KafkaConfig {
	return &config.KafkaConfig{BatchSize: 100, BatchTimeout: time.Second}
}

func TestConsumeClaimRegistersBatch(t *testing.T) {
	handler := &fakeRegistrationHandler{}
	h := newClaimHandler(handler, batchConfig())

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 4)}
	claim.messages <- message(1, `{"name":"Ann","country":"US","time":"12.34","nonce":"n1"}`)
	claim.messages <- message(2, `{"name":"Bob","country":"DE","time":"11.1","nonce":"n2"}`)
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	if err := h.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim() error = %v", err)
	}

	// The channel close flushes the pending batch before returning.
	got := handler.nonces()
	if len(got) != 2 || got[0] != "n1" || got[1] != "n2" {
		t.Errorf("registered nonces = %v, want n1 then n2", got)
	}
	if session.markedCount() != 2 {
		t.Errorf("marked %d messages, want 2", session.markedCount())
	}
}

func TestConsumeClaimSkipsMalformed(t *testing.T) {
	handler := &fakeRegistrationHandler{}
	h := newClaimHandler(handler, batchConfig())

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 8)}
	claim.messages <- message(1, `{not json`)
	claim.messages <- message(2, `{"name":"","country":"US","nonce":"n2"}`)
	claim.messages <- message(3, `{"name":"Ann","country":"","nonce":"n3"}`)
	claim.messages <- message(4, `{"name":"Ann","country":"US","nonce":""}`)
	claim.messages <- message(5, `{"name":"Ann","country":"US","time":"12.34","nonce":"n5"}`)
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	if err := h.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim() error = %v", err)
	}

	got := handler.nonces()
	if len(got) != 1 || got[0] != "n5" {
		t.Errorf("registered nonces = %v, want only n5", got)
	}
	// Bad messages are marked too, so the partition never wedges on them.
	if session.markedCount() != 5 {
		t.Errorf("marked %d messages, want all 5", session.markedCount())
	}
}

func TestConsumeClaimSkipsDuplicates(t *testing.T) {
	handler := &fakeRegistrationHandler{
		errByNonce: map[string]error{"replayed": domain.ErrDuplicateEntry},
	}
	h := newClaimHandler(handler, batchConfig())

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 4)}
	claim.messages <- message(1, `{"name":"Ann","country":"US","time":"12.34","nonce":"replayed"}`)
	claim.messages <- message(2, `{"name":"Bob","country":"DE","time":"11.1","nonce":"fresh"}`)
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	if err := h.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim() error = %v, duplicates must not be fatal", err)
	}

	got := handler.nonces()
	if len(got) != 1 || got[0] != "fresh" {
		t.Errorf("registered nonces = %v, want only fresh", got)
	}
	if session.markedCount() != 2 {
		t.Errorf("marked %d messages, want 2", session.markedCount())
	}
}

func TestConsumeClaimRegisterFailureNotFatal(t *testing.T) {
	handler := &fakeRegistrationHandler{
		errByNonce: map[string]error{"bad": errors.New("database down")},
	}
	h := newClaimHandler(handler, batchConfig())

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 4)}
	claim.messages <- message(1, `{"name":"Ann","country":"US","time":"12.34","nonce":"bad"}`)
	claim.messages <- message(2, `{"name":"Bob","country":"DE","time":"11.1","nonce":"good"}`)
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	if err := h.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim() error = %v, per-message failures must not be fatal", err)
	}
	if got := handler.nonces(); len(got) != 1 || got[0] != "good" {
		t.Errorf("registered nonces = %v, want only good", got)
	}
}

func TestConsumeClaimFlushesFullBatch(t *testing.T) {
	handler := &fakeRegistrationHandler{}
	cfg := &config.KafkaConfig{BatchSize: 2, BatchTimeout: time.Hour}
	h := newClaimHandler(handler, cfg)

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}

	done := make(chan error, 1)
	go func() { done <- h.ConsumeClaim(session, claim) }()

	claim.messages <- message(1, `{"name":"Ann","country":"US","time":"12.34","nonce":"n1"}`)
	claim.messages <- message(2, `{"name":"Bob","country":"DE","time":"11.1","nonce":"n2"}`)

	// Hitting BatchSize flushes without waiting for the (long) timeout.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && handler.count() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	if handler.count() != 2 {
		t.Fatalf("registered %d before timeout, want batch-size flush", handler.count())
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("ConsumeClaim() error = %v", err)
	}
}

func TestConsumeClaimFlushesOnTimeout(t *testing.T) {
	handler := &fakeRegistrationHandler{}
	cfg := &config.KafkaConfig{BatchSize: 100, BatchTimeout: 20 * time.Millisecond}
	h := newClaimHandler(handler, cfg)

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}

	done := make(chan error, 1)
	go func() { done <- h.ConsumeClaim(session, claim) }()

	claim.messages <- message(1, `{"name":"Ann","country":"US","time":"12.34","nonce":"n1"}`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && handler.count() < 1 {
		time.Sleep(5 * time.Millisecond)
	}
	if handler.count() != 1 {
		t.Fatal("batch timer never flushed the partial batch")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("ConsumeClaim() error = %v", err)
	}
}
