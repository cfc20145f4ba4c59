package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/set-night/mindchat/internal/config"
	"github.com/set-night/mindchat/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateEstimating
	StateGated
	StateSending
	StateSettling
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEstimating:
		return "estimating"
	case StateGated:
		return "gated"
	case StateSending:
		return "sending"
	case StateSettling:
		return "settling"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateChange is delivered to observers on every transition of a submission.
type StateChange struct {
	SessionID domain.SessionID
	OwnerID   domain.UserID
	State     State
	Cost      int64
	Err       error
	At        time.Time
}

// StateObserver must not block; it runs on the submitting goroutine.
type StateObserver interface {
	OnStateChange(change StateChange)
}

type StateObserverFunc func(StateChange)

func (f StateObserverFunc) OnStateChange(change StateChange) { f(change) }

type SubmitRequest struct {
	SessionID  domain.SessionID
	Text       string
	Attachment *domain.Attachment
	// OnState, when set, sees the same transitions as the observers.
	OnState func(State)
}

type Outcome struct {
	UserMessage domain.Message `json:"user_message"`
	Reply       domain.Message `json:"reply"`
	Cost        int64          `json:"cost"`
	Charged     bool           `json:"charged"`
	Fallback    bool           `json:"fallback"`
	Balance     int64          `json:"balance"`
}

type OrchestratorOption func(*Orchestrator)

func WithExchangeTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.timeout = d }
}

func WithObserver(obs StateObserver) OrchestratorOption {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives a submission through estimate, gate, send and settle.
// Submissions on the same session are serialized.
type Orchestrator struct {
	store     ConversationStore
	ledger    Ledger
	exchange  Exchange
	observers []StateObserver
	timeout   time.Duration
	locks     *keyedMutex

	clockMu sync.Mutex
	now     func() time.Time
	last    time.Time
}

func NewOrchestrator(store ConversationStore, ledger Ledger, exchange Exchange, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		ledger:   ledger,
		exchange: exchange,
		timeout:  config.ExchangeTimeout,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	if !domain.Sendable(req.Text, req.Attachment) {
		return nil, domain.ErrEmptySubmission
	}
	if req.Attachment != nil {
		if err := req.Attachment.Validate(); err != nil {
			return nil, err
		}
	}

	unlock := o.locks.Lock(string(req.SessionID))
	defer unlock()

	sess, err := o.store.Session(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var cost int64
	report := func(s State, err error) {
		change := StateChange{
			SessionID: sess.ID,
			OwnerID:   sess.OwnerID,
			State:     s,
			Cost:      cost,
			Err:       err,
			At:        o.now(),
		}
		if req.OnState != nil {
			req.OnState(s)
		}
		for _, obs := range o.observers {
			obs.OnStateChange(change)
		}
	}

	report(StateEstimating, nil)
	cost = EstimateCost(req.Text, req.Attachment != nil)

	report(StateGated, nil)
	balance, err := o.ledger.Balance(ctx, sess.OwnerID)
	if err != nil {
		report(StateIdle, err)
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if balance < cost {
		insufficient := &domain.InsufficientFundsError{Required: cost, Available: balance}
		report(StateRejected, insufficient)
		report(StateIdle, nil)
		return nil, insufficient
	}

	// Past the gate the submission runs to completion regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	history := o.history(ctx, sess.ID)
	userMsg, err := o.store.Append(ctx, sess.ID, domain.Message{
		Origin:     domain.OriginUser,
		Text:       req.Text,
		Attachment: req.Attachment,
		CreatedAt:  o.stamp(),
	})
	if err != nil {
		report(StateIdle, err)
		return nil, fmt.Errorf("append user message: %w", err)
	}

	report(StateSending, nil)
	exCtx, cancel := context.WithTimeout(ctx, o.timeout)
	reply, err := o.exchange.Send(exCtx, ExchangeRequest{
		Text:       req.Text,
		SessionID:  sess.ID,
		UserID:     sess.OwnerID,
		Attachment: req.Attachment,
		History:    history,
	})
	cancel()
	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = fmt.Errorf("%w: empty reply", domain.ErrRemoteExchange)
	}

	if err != nil {
		slog.Warn("remote exchange failed", "error", err, "session_id", sess.ID, "owner_id", sess.OwnerID)
		report(StateFailed, err)
		fallback, aerr := o.store.Append(ctx, sess.ID, domain.Message{
			Origin:    domain.OriginAssistant,
			Text:      config.FallbackReplyText,
			CreatedAt: o.stamp(),
		})
		if aerr != nil {
			report(StateIdle, aerr)
			return nil, fmt.Errorf("append fallback message: %w", aerr)
		}
		// Nothing was charged, so the gate reading stands if this one fails.
		if current, berr := o.ledger.Balance(ctx, sess.OwnerID); berr != nil {
			slog.Warn("read balance after fallback", "error", berr, "owner_id", sess.OwnerID)
		} else {
			balance = current
		}
		report(StateIdle, nil)
		return &Outcome{
			UserMessage: userMsg,
			Reply:       fallback,
			Cost:        cost,
			Fallback:    true,
			Balance:     balance,
		}, nil
	}

	assistant, err := o.store.Append(ctx, sess.ID, domain.Message{
		Origin:    domain.OriginAssistant,
		Text:      reply.Text,
		Media:     reply.Media,
		CreatedAt: o.stamp(),
	})
	if err != nil {
		report(StateIdle, err)
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	report(StateSettling, nil)
	out := &Outcome{UserMessage: userMsg, Reply: assistant, Cost: cost}
	newBalance, err := o.ledger.TrySpend(ctx, sess.OwnerID, cost)
	if err != nil {
		slog.Warn("settle spend failed", "error", err, "session_id", sess.ID, "owner_id", sess.OwnerID, "cost", cost)
		report(StateRejected, err)
		report(StateIdle, nil)
		var insufficient *domain.InsufficientFundsError
		if errors.As(err, &insufficient) {
			out.Balance = insufficient.Available
			return out, insufficient
		}
		return out, fmt.Errorf("settle spend: %w", err)
	}
	out.Charged = true
	out.Balance = newBalance
	report(StateIdle, nil)
	return out, nil
}

// history returns the most recent messages of a session, oldest first.
func (o *Orchestrator) history(ctx context.Context, id domain.SessionID) []domain.Message {
	msgs := slices.Collect(o.store.MessagesOf(ctx, id))
	if len(msgs) > config.MaxHistoryMessages {
		msgs = msgs[len(msgs)-config.MaxHistoryMessages:]
	}
	return msgs
}

// stamp returns strictly increasing timestamps.
func (o *Orchestrator) stamp() time.Time {
	o.clockMu.Lock()
	defer o.clockMu.Unlock()
	t := o.now()
	if !t.After(o.last) {
		t = o.last.Add(time.Nanosecond)
	}
	o.last = t
	return t
}

func (o *Orchestrator) CreateSession(ctx context.Context, owner domain.UserID) (domain.Session, error) {
	sess, err := o.store.CreateSession(ctx, owner, config.DefaultChatTitle)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// NewChat creates a session and greets the user in it.
func (o *Orchestrator) NewChat(ctx context.Context, owner domain.UserID) (domain.Session, domain.Message, error) {
	sess, err := o.CreateSession(ctx, owner)
	if err != nil {
		return domain.Session{}, domain.Message{}, err
	}
	welcome, err := o.store.Append(ctx, sess.ID, domain.Message{
		Origin:    domain.OriginAssistant,
		Text:      config.WelcomeText,
		CreatedAt: o.stamp(),
	})
	if err != nil {
		return domain.Session{}, domain.Message{}, fmt.Errorf("append welcome: %w", err)
	}
	return sess, welcome, nil
}

func (o *Orchestrator) Session(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	return o.store.Session(ctx, id)
}

func (o *Orchestrator) Balance(ctx context.Context, owner domain.UserID) (int64, error) {
	return o.ledger.Balance(ctx, owner)
}

func (o *Orchestrator) Messages(ctx context.Context, id domain.SessionID) ([]domain.Message, error) {
	if _, err := o.store.Session(ctx, id); err != nil {
		return nil, err
	}
	return slices.Collect(o.store.MessagesOf(ctx, id)), nil
}

func (o *Orchestrator) Sessions(ctx context.Context, owner domain.UserID) ([]domain.Session, error) {
	return o.store.SessionsOf(ctx, owner)
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
