package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/itembank/internal/ledger"
)

// Source exposes the loans to scan and accepts stage transitions.
// Implemented by ledger.Service.
type Source interface {
	ActiveLoans() []ledger.LoanRecord
	AdvanceStages(updates []ledger.StageUpdate) (int, error)
}

// Notifier delivers reminders. Delivery is best effort.
type Notifier interface {
	SendDirect(ctx context.Context, userID, text string, actions []ledger.Action) error
	SendChannel(ctx context.Context, text string, mentionUserIDs []string) error
}

// Names resolves user ids to display names.
type Names interface {
	DisplayName(ctx context.Context, userID string) string
}

// Thresholds are the elapsed times after which each reminder fires.
type Thresholds struct {
	First    time.Duration
	Second   time.Duration
	Escalate time.Duration
}

// DefaultThresholds returns 6h, 18h and 48h.
func DefaultThresholds() Thresholds {
	return Thresholds{First: 6 * time.Hour, Second: 18 * time.Hour, Escalate: 48 * time.Hour}
}

// Outcome is the result of one notification attempt.
type Outcome struct {
	Item      string
	UserID    string
	Stage     int
	Delivered bool
	Err       error
}

// ScanResult summarizes one pass over the ledger.
type ScanResult struct {
	Outcomes []Outcome
	Advanced int
}

// Failed counts undelivered notifications.
func (r ScanResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Delivered {
			n++
		}
	}
	return n
}

type step struct {
	from, to int
	after    time.Duration
}

// Scheduler periodically scans active loans and escalates reminders.
type Scheduler struct {
	source      Source
	notifier    Notifier
	names       Names
	recorder    ledger.Recorder
	clock       ledger.Clock
	thresholds  Thresholds
	tick        time.Duration
	sendTimeout time.Duration
	logger      *slog.Logger

	mu sync.Mutex
	// pending holds stages already notified but not yet persisted.
	pending map[loanKey]int
}

type loanKey struct {
	item       string
	userID     string
	borrowedAt int64
}

func keyOf(item, userID string, borrowedAt time.Time) loanKey {
	return loanKey{item: item, userID: userID, borrowedAt: borrowedAt.UnixNano()}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(c ledger.Clock) Option { return func(s *Scheduler) { s.clock = c } }
func WithThresholds(t Thresholds) Option { return func(s *Scheduler) { s.thresholds = t } }
func WithRecorder(r ledger.Recorder) Option { return func(s *Scheduler) { s.recorder = r } }
func WithSendTimeout(d time.Duration) Option { return func(s *Scheduler) { s.sendTimeout = d } }

// WithTick sets the scan period. Values <= 0 keep the 10 minute default.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// NewScheduler creates a Scheduler. names may be nil, in which case raw user
// ids are used in channel alerts.
func NewScheduler(source Source, notifier Notifier, names Names, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:      source,
		notifier:    notifier,
		names:       names,
		clock:       ledger.SystemClock{},
		thresholds:  DefaultThresholds(),
		tick:        10 * time.Minute,
		sendTimeout: 15 * time.Second,
		logger:      slog.Default(),
		pending:     make(map[loanKey]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) steps() []step {
	return []step{
		{from: 0, to: 1, after: s.thresholds.First},
		{from: 1, to: 2, after: s.thresholds.Second},
		{from: 2, to: 3, after: s.thresholds.Escalate},
	}
}

// Run scans immediately and then every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		s.scan(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) scan(ctx context.Context) {
	res, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("reminder scan failed", "error", err)
		return
	}
	if len(res.Outcomes) > 0 {
		s.logger.Info("reminder scan finished",
			"sent", len(res.Outcomes)-res.Failed(), "failed", res.Failed(), "advanced", res.Advanced)
	}
}

// RunOnce evaluates every active loan against the thresholds. Thresholds are
// checked in ascending order within the same pass, so an overdue loan can
// receive several reminders at once. Stages advance on every attempt,
// delivered or not, and are persisted once at the end of the pass. Stages
// that could not be persisted are kept and retried on the next pass without
// notifying again.
func (s *Scheduler) RunOnce(ctx context.Context) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var res ScanResult
	var updates []ledger.StageUpdate
	active := make(map[loanKey]bool)

	for _, rec := range s.source.ActiveLoans() {
		key := keyOf(rec.Item, rec.UserID, rec.BorrowedAt)
		active[key] = true
		elapsed := now.Sub(rec.BorrowedAt)
		stage := rec.Stage
		if p, ok := s.pending[key]; ok {
			if p > stage {
				stage = p
			} else {
				delete(s.pending, key)
			}
		}
		for _, st := range s.steps() {
			if stage != st.from || elapsed < st.after {
				continue
			}
			res.Outcomes = append(res.Outcomes, s.fire(ctx, rec, st.to, elapsed))
			stage = st.to
		}
		if stage != rec.Stage {
			updates = append(updates, ledger.StageUpdate{
				Item:       rec.Item,
				UserID:     rec.UserID,
				BorrowedAt: rec.BorrowedAt,
				Stage:      stage,
			})
		}
	}

	for key := range s.pending {
		if !active[key] {
			delete(s.pending, key)
		}
	}

	if len(updates) == 0 {
		return res, nil
	}
	n, err := s.source.AdvanceStages(updates)
	for _, u := range updates {
		key := keyOf(u.Item, u.UserID, u.BorrowedAt)
		if err != nil {
			s.pending[key] = u.Stage
		} else {
			delete(s.pending, key)
		}
	}
	if err != nil {
		return res, fmt.Errorf("advancing reminder stages: %w", err)
	}
	res.Advanced = n
	return res, nil
}

func (s *Scheduler) fire(ctx context.Context, rec ledger.LoanRecord, stage int, elapsed time.Duration) Outcome {
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	var err error
	switch stage {
	case 1:
		err = s.notifier.SendDirect(sendCtx, rec.UserID, firstReminderText(rec.Item, elapsed), []ledger.Action{
			{Kind: ledger.CommandReturn, Item: rec.Item},
			{Kind: ledger.CommandAcknowledge, Item: rec.Item},
		})
	case 2:
		err = s.notifier.SendDirect(sendCtx, rec.UserID, secondReminderText(rec.Item, elapsed), nil)
	case 3:
		name := rec.UserID
		if s.names != nil {
			name = s.names.DisplayName(sendCtx, rec.UserID)
		}
		err = s.notifier.SendChannel(sendCtx, escalationText(name, rec.Item, elapsed), []string{rec.UserID})
	}

	out := Outcome{Item: rec.Item, UserID: rec.UserID, Stage: stage, Delivered: err == nil, Err: err}
	if err != nil {
		s.logger.Warn("reminder delivery failed", "item", rec.Item, "user_id", rec.UserID, "stage", stage, "error", err)
	} else {
		s.logger.Debug("reminder sent", "item", rec.Item, "user_id", rec.UserID, "stage", stage)
	}

	if s.recorder != nil {
		rec.Stage = stage
		if rerr := s.recorder.RecordLoanEvent(ledger.EventReminder, rec, s.clock.Now()); rerr != nil {
			s.logger.Warn("recording reminder failed", "item", rec.Item, "error", rerr)
		}
	}
	return out
}
