package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/domain"
)

type fakeExchange struct {
	send  func(ctx context.Context, req ExchangeRequest) (Reply, error)
	calls atomic.Int32
}

func (f *fakeExchange) Send(ctx context.Context, req ExchangeRequest) (Reply, error) {
	f.calls.Add(1)
	if f.send == nil {
		return Reply{Text: "reply to " + req.Text}, nil
	}
	return f.send(ctx, req)
}

type recordingObserver struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *recordingObserver) OnStateChange(c StateChange) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recordingObserver) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.State
	}
	return out
}

type orchestratorFixture struct {
	orch     *Orchestrator
	store    *MemoryConversationStore
	ledger   *MemoryLedger
	exchange *fakeExchange
	observer *recordingObserver
}

func newOrchestratorFixture(t *testing.T, opts ...OrchestratorOption) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		store:    NewMemoryConversationStore(),
		ledger:   NewMemoryLedger(),
		exchange: &fakeExchange{},
		observer: &recordingObserver{},
	}
	opts = append([]OrchestratorOption{WithObserver(f.observer)}, opts...)
	f.orch = NewOrchestrator(f.store, f.ledger, f.exchange, opts...)
	return f
}

func (f *orchestratorFixture) session(t *testing.T, owner domain.UserID, balance int64) domain.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := f.orch.CreateSession(ctx, owner)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if balance > 0 {
		if err := f.ledger.Grant(ctx, owner, balance); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
	}
	return sess
}

func TestSubmitChargesEstimatedCost(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 1000)

	out, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: sess.ID, Text: "draw a cat"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if out.Cost != 200 {
		t.Errorf("Cost: got %d, want 200", out.Cost)
	}
	if !out.Charged {
		t.Error("Charged: got false, want true")
	}
	if out.Balance != 800 {
		t.Errorf("Balance: got %d, want 800", out.Balance)
	}
	if got, _ := f.ledger.Balance(context.Background(), "u1"); got != 800 {
		t.Errorf("ledger balance: got %d, want 800", got)
	}
	if out.Reply.Text != "reply to draw a cat" {
		t.Errorf("Reply.Text: got %q", out.Reply.Text)
	}
}

func TestSubmitAppendsUserThenAssistant(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 1000)
	ctx := context.Background()

	for _, text := range []string{"first", "second"} {
		if _, err := f.orch.Submit(ctx, SubmitRequest{SessionID: sess.ID, Text: text}); err != nil {
			t.Fatalf("Submit(%q) failed: %v", text, err)
		}
	}

	msgs, err := f.orch.Messages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	want := []struct {
		origin domain.Origin
		text   string
	}{
		{domain.OriginUser, "first"},
		{domain.OriginAssistant, "reply to first"},
		{domain.OriginUser, "second"},
		{domain.OriginAssistant, "reply to second"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("Messages: got %d, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Origin != w.origin || msgs[i].Text != w.text {
			t.Errorf("message %d: got %s %q, want %s %q", i, msgs[i].Origin, msgs[i].Text, w.origin, w.text)
		}
		if i > 0 && !msgs[i].CreatedAt.After(msgs[i-1].CreatedAt) {
			t.Errorf("message %d: timestamp %v not after %v", i, msgs[i].CreatedAt, msgs[i-1].CreatedAt)
		}
	}
}

func TestSubmitStrictTimestampsWithFrozenClock(t *testing.T) {
	frozen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newOrchestratorFixture(t, WithClock(func() time.Time { return frozen }))
	sess := f.session(t, "u1", 1000)

	out, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: sess.ID, Text: "hi"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !out.Reply.CreatedAt.After(out.UserMessage.CreatedAt) {
		t.Errorf("reply %v not after user message %v", out.Reply.CreatedAt, out.UserMessage.CreatedAt)
	}

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	for _, c := range f.observer.changes {
		if !c.At.Equal(frozen) {
			t.Errorf("state %v stamped %v, want the injected clock %v", c.State, c.At, frozen)
		}
	}
}

func TestSubmitRejectsWhenBalanceBelowQuote(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 40)

	out, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: sess.ID, Text: "hello"})
	if out != nil {
		t.Errorf("outcome: got %+v, want nil", out)
	}
	var insufficient *domain.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Submit: got %v, want *InsufficientFundsError", err)
	}
	if insufficient.Required != 50 || insufficient.Available != 40 {
		t.Errorf("insufficient: got %+v, want required 50 available 40", insufficient)
	}
	if n := f.exchange.calls.Load(); n != 0 {
		t.Errorf("exchange calls: got %d, want 0", n)
	}
	if msgs := slices.Collect(f.store.MessagesOf(context.Background(), sess.ID)); len(msgs) != 0 {
		t.Errorf("messages after rejection: got %d, want 0", len(msgs))
	}
	if got, _ := f.ledger.Balance(context.Background(), "u1"); got != 40 {
		t.Errorf("balance: got %d, want 40", got)
	}

	states := f.observer.states()
	want := []State{StateEstimating, StateGated, StateRejected, StateIdle}
	if !slices.Equal(states, want) {
		t.Errorf("states: got %v, want %v", states, want)
	}
}

func TestSubmitEmpty(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 1000)

	_, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: sess.ID, Text: "   "})
	if !errors.Is(err, domain.ErrEmptySubmission) {
		t.Fatalf("Submit: got %v, want ErrEmptySubmission", err)
	}
	if len(f.observer.states()) != 0 {
		t.Errorf("observer saw states for an empty submission: %v", f.observer.states())
	}
}

func TestSubmitAttachmentOnly(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 1000)

	var got ExchangeRequest
	f.exchange.send = func(_ context.Context, req ExchangeRequest) (Reply, error) {
		got = req
		return Reply{Text: "a cat"}, nil
	}

	att := domain.NewImageAttachment("mem://photo.jpg", "photo.jpg", 10)
	out, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: sess.ID, Attachment: att})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if out.Cost != 200 {
		t.Errorf("Cost: got %d, want 200", out.Cost)
	}
	if got.Attachment == nil || got.Attachment.Locator != "mem://photo.jpg" {
		t.Errorf("exchange attachment: got %+v", got.Attachment)
	}
	if out.UserMessage.Attachment == nil {
		t.Error("user message lost its attachment")
	}
}

func TestSubmitUnknownSession(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: "missing", Text: "hi"})
	if !errors.Is(err, domain.ErrUnknownSession) {
		t.Fatalf("Submit: got %v, want ErrUnknownSession", err)
	}
}

func TestSubmitTimeoutFallsBackWithoutCharge(t *testing.T) {
	f := newOrchestratorFixture(t, WithExchangeTimeout(20*time.Millisecond))
	sess := f.session(t, "u1", 1000)
	f.exchange.send = func(ctx context.Context, _ ExchangeRequest) (Reply, error) {
		<-ctx.Done()
		return Reply{}, ctx.Err()
	}

	out, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: sess.ID, Text: "hello"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !out.Fallback {
		t.Error("Fallback: got false, want true")
	}
	if out.Charged {
		t.Error("Charged: got true, want false")
	}
	if out.Reply.Text != config.FallbackReplyText {
		t.Errorf("Reply.Text: got %q, want fallback text", out.Reply.Text)
	}
	if got, _ := f.ledger.Balance(context.Background(), "u1"); got != 1000 {
		t.Errorf("balance: got %d, want 1000", got)
	}

	states := f.observer.states()
	want := []State{StateEstimating, StateGated, StateSending, StateFailed, StateIdle}
	if !slices.Equal(states, want) {
		t.Errorf("states: got %v, want %v", states, want)
	}
}

// balanceReadFails lets the first n Balance calls through and fails the rest.
type balanceReadFails struct {
	*MemoryLedger
	allowed int
}

func (l *balanceReadFails) Balance(ctx context.Context, owner domain.UserID) (int64, error) {
	if l.allowed == 0 {
		return 0, errors.New("balance unavailable")
	}
	l.allowed--
	return l.MemoryLedger.Balance(ctx, owner)
}

func TestSubmitFallbackKeepsGateBalanceWhenReadFails(t *testing.T) {
	ctx := context.Background()
	ledger := &balanceReadFails{MemoryLedger: NewMemoryLedger(), allowed: 1}
	exchange := &fakeExchange{send: func(context.Context, ExchangeRequest) (Reply, error) {
		return Reply{}, errors.New("backend down")
	}}
	store := NewMemoryConversationStore()
	orch := NewOrchestrator(store, ledger, exchange)

	sess, err := orch.CreateSession(ctx, "u1")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	ledger.Grant(ctx, "u1", 1000)

	out, err := orch.Submit(ctx, SubmitRequest{SessionID: sess.ID, Text: "hello"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !out.Fallback {
		t.Error("Fallback: got false, want true")
	}
	if out.Balance != 1000 {
		t.Errorf("Balance: got %d, want 1000", out.Balance)
	}
}

func TestSubmitEmptyReplyIsFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 1000)
	f.exchange.send = func(context.Context, ExchangeRequest) (Reply, error) {
		return Reply{Text: "  "}, nil
	}

	out, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: sess.ID, Text: "hello"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !out.Fallback || out.Charged {
		t.Errorf("outcome: got fallback=%v charged=%v, want fallback=true charged=false", out.Fallback, out.Charged)
	}
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	f.exchange.send = func(exCtx context.Context, req ExchangeRequest) (Reply, error) {
		cancel()
		if err := exCtx.Err(); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "still here"}, nil
	}

	out, err := f.orch.Submit(ctx, SubmitRequest{SessionID: sess.ID, Text: "hello"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !out.Charged || out.Reply.Text != "still here" {
		t.Errorf("outcome: got charged=%v reply=%q", out.Charged, out.Reply.Text)
	}
}

func TestSubmitSettleLosesRace(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 60)
	f.exchange.send = func(ctx context.Context, _ ExchangeRequest) (Reply, error) {
		// Another device spends in the meantime.
		if _, err := f.ledger.TrySpend(ctx, "u1", 30); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "answer"}, nil
	}

	out, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: sess.ID, Text: "hello"})
	var insufficient *domain.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Submit: got %v, want *InsufficientFundsError", err)
	}
	if out == nil {
		t.Fatal("outcome: got nil, want the delivered reply")
	}
	if out.Charged {
		t.Error("Charged: got true, want false")
	}
	if out.Reply.Text != "answer" {
		t.Errorf("Reply.Text: got %q, want %q", out.Reply.Text, "answer")
	}
	if out.Balance != 30 {
		t.Errorf("Balance: got %d, want 30", out.Balance)
	}
	if got, _ := f.ledger.Balance(context.Background(), "u1"); got != 30 {
		t.Errorf("ledger balance: got %d, want 30", got)
	}
	if msgs, _ := f.orch.Messages(context.Background(), sess.ID); len(msgs) != 2 {
		t.Errorf("messages: got %d, want 2", len(msgs))
	}
}

func TestSubmitStateSequence(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 1000)

	var seen []State
	_, err := f.orch.Submit(context.Background(), SubmitRequest{
		SessionID: sess.ID,
		Text:      "hello",
		OnState:   func(s State) { seen = append(seen, s) },
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	want := []State{StateEstimating, StateGated, StateSending, StateSettling, StateIdle}
	if !slices.Equal(seen, want) {
		t.Errorf("OnState: got %v, want %v", seen, want)
	}
	if got := f.observer.states(); !slices.Equal(got, want) {
		t.Errorf("observer: got %v, want %v", got, want)
	}
}

func TestSubmitPassesRecentHistory(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 100000)
	ctx := context.Background()

	for range 15 {
		if _, err := f.orch.Submit(ctx, SubmitRequest{SessionID: sess.ID, Text: "hi"}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	var history []domain.Message
	f.exchange.send = func(_ context.Context, req ExchangeRequest) (Reply, error) {
		history = req.History
		return Reply{Text: "ok"}, nil
	}
	if _, err := f.orch.Submit(ctx, SubmitRequest{SessionID: sess.ID, Text: "last"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if len(history) != config.MaxHistoryMessages {
		t.Fatalf("history: got %d messages, want %d", len(history), config.MaxHistoryMessages)
	}
	for _, m := range history {
		if m.Text == "last" {
			t.Error("history contains the message being sent")
		}
	}
}

func TestSubmitSerializesSameSession(t *testing.T) {
	f := newOrchestratorFixture(t)
	sess := f.session(t, "u1", 100000)

	var inFlight, maxInFlight atomic.Int32
	f.exchange.send = func(context.Context, ExchangeRequest) (Reply, error) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return Reply{Text: "ok"}, nil
	}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: sess.ID, Text: "hi"}); err != nil {
				t.Errorf("Submit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("concurrent exchanges on one session: got %d, want 1", got)
	}
	msgs, _ := f.orch.Messages(context.Background(), sess.ID)
	for i := 0; i+1 < len(msgs); i += 2 {
		if msgs[i].Origin != domain.OriginUser || msgs[i+1].Origin != domain.OriginAssistant {
			t.Errorf("messages %d,%d: got %s,%s; want user,assistant", i, i+1, msgs[i].Origin, msgs[i+1].Origin)
		}
	}
}

func TestSubmitIndependentSessionsRunConcurrently(t *testing.T) {
	f := newOrchestratorFixture(t)
	a := f.session(t, "u1", 1000)
	b := f.session(t, "u2", 1000)

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	f.exchange.send = func(context.Context, ExchangeRequest) (Reply, error) {
		started.Done()
		<-release
		return Reply{Text: "ok"}, nil
	}

	var wg sync.WaitGroup
	for _, id := range []domain.SessionID{a.ID, b.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.orch.Submit(context.Background(), SubmitRequest{SessionID: id, Text: "hi"}); err != nil {
				t.Errorf("Submit failed: %v", err)
			}
		}()
	}

	// Both exchanges must be in flight at once before either is released.
	done := make(chan struct{})
	go func() {
		started.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sessions did not run concurrently")
	}
	close(release)
	wg.Wait()

	for _, owner := range []domain.UserID{"u1", "u2"} {
		if got, _ := f.ledger.Balance(context.Background(), owner); got != 950 {
			t.Errorf("balance of %s: got %d, want 950", owner, got)
		}
	}
}

func TestNewChatAppendsWelcome(t *testing.T) {
	f := newOrchestratorFixture(t)

	sess, welcome, err := f.orch.NewChat(context.Background(), "u1")
	if err != nil {
		t.Fatalf("NewChat failed: %v", err)
	}
	if sess.Title != config.DefaultChatTitle {
		t.Errorf("Title: got %q, want %q", sess.Title, config.DefaultChatTitle)
	}
	if welcome.Origin != domain.OriginAssistant || welcome.Text != config.WelcomeText {
		t.Errorf("welcome: got %s %q", welcome.Origin, welcome.Text)
	}
	msgs, _ := f.orch.Messages(context.Background(), sess.ID)
	if len(msgs) != 1 {
		t.Errorf("messages: got %d, want 1", len(msgs))
	}
}

func TestMessagesUnknownSession(t *testing.T) {
	f := newOrchestratorFixture(t)
	if _, err := f.orch.Messages(context.Background(), "missing"); !errors.Is(err, domain.ErrUnknownSession) {
		t.Errorf("Messages: got %v, want ErrUnknownSession", err)
	}
}
