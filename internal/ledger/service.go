package ledger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store persists the ledger. Implemented by storage.FileStore.
type Store interface {
	LoadLedger(c Catalog) (Ledger, LoadResult)
	SaveLedger(l Ledger) error
}

// Recorder receives an event after every persisted mutation.
// Implemented by storage.Store.
type Recorder interface {
	RecordLoanEvent(kind EventKind, rec LoanRecord, at time.Time) error
}

// Service enforces the borrow/return rules. All mutations are serialized by
// one mutex and persisted before the call returns.
type Service struct {
	store    Store
	catalog  Catalog
	clock    Clock
	recorder Recorder
	logger   *slog.Logger

	mu     sync.Mutex
	ledger Ledger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithRecorder attaches a history recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService loads the ledger from store. Upgraded ledgers are written back
// immediately so the legacy shape is never read twice.
func NewService(store Store, catalog Catalog, opts ...Option) (*Service, error) {
	s := &Service{
		store:   store,
		catalog: catalog,
		clock:   SystemClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	l, res := store.LoadLedger(catalog)
	if l == nil {
		l = make(Ledger)
	}
	l.Normalize(catalog)
	s.ledger = l

	switch res {
	case LoadMissing:
		s.logger.Info("no ledger file yet, every item available")
	case LoadCorrupt:
		s.logger.Warn("ledger file unreadable, every item available")
	case LoadUpgraded:
		if err := store.SaveLedger(l); err != nil {
			return nil, fmt.Errorf("rewriting upgraded ledger: %w", err)
		}
		s.logger.Info("ledger rewritten in current format")
	}
	return s, nil
}

// Catalog returns the configured catalog.
func (s *Service) Catalog() Catalog { return s.catalog }

// Borrow lends item to userID.
func (s *Service) Borrow(item, userID string) error {
	rec, err := s.mutate(item, func(recs []LoanRecord) ([]LoanRecord, LoanRecord, error) {
		for _, r := range recs {
			if r.UserID == userID {
				return nil, LoanRecord{}, ErrAlreadyHolding
			}
		}
		if len(recs) > 0 {
			return nil, LoanRecord{}, &ItemUnavailableError{Item: item, Holder: recs[0].UserID}
		}
		rec := LoanRecord{
			Item:       item,
			UserID:     userID,
			BorrowedAt: s.clock.Now().Truncate(time.Second),
		}
		return []LoanRecord{rec}, rec, nil
	})
	if err != nil {
		return err
	}
	s.record(EventBorrow, rec)
	return nil
}

// Return ends userID's loan of item.
func (s *Service) Return(item, userID string) error {
	rec, err := s.mutate(item, func(recs []LoanRecord) ([]LoanRecord, LoanRecord, error) {
		next := make([]LoanRecord, 0, len(recs))
		var returned *LoanRecord
		for i := range recs {
			if recs[i].UserID == userID && returned == nil {
				returned = &recs[i]
				continue
			}
			next = append(next, recs[i])
		}
		if returned == nil {
			return nil, LoanRecord{}, ErrNotHolding
		}
		return next, *returned, nil
	})
	if err != nil {
		return err
	}
	s.record(EventReturn, rec)
	return nil
}

// mutate runs fn against item's records under the lock and persists the result.
// On a failed save the previous records are restored.
func (s *Service) mutate(item string, fn func([]LoanRecord) ([]LoanRecord, LoanRecord, error)) (LoanRecord, error) {
	if _, ok := s.catalog.Lookup(item); !ok {
		return LoanRecord{}, fmt.Errorf("%w: %q", ErrUnknownItem, item)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.ledger[item]
	next, rec, err := fn(prev)
	if err != nil {
		return LoanRecord{}, err
	}

	s.ledger[item] = next
	if err := s.store.SaveLedger(s.ledger); err != nil {
		s.ledger[item] = prev
		return LoanRecord{}, fmt.Errorf("saving ledger: %w", err)
	}
	return rec, nil
}

func (s *Service) record(kind EventKind, rec LoanRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordLoanEvent(kind, rec, s.clock.Now()); err != nil {
		s.logger.Warn("recording loan event failed", "kind", kind, "item", rec.Item, "error", err)
	}
}

// Snapshot returns a deep copy of the current ledger.
func (s *Service) Snapshot() Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Clone()
}

// ActiveLoans returns every active record in catalog order.
func (s *Service) ActiveLoans() []LoanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Records(s.catalog)
}

// Statuses returns one summary per catalog item, in catalog order.
func (s *Service) Statuses() []ItemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Statuses(s.catalog)
}

// AdvanceStages applies reminder stage transitions and persists once if
// anything changed. It returns the number of records updated.
func (s *Service) AdvanceStages(updates []StageUpdate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.ledger.Clone()
	changed := 0
	for _, u := range updates {
		if u.Stage > MaxStage {
			continue
		}
		recs := next[u.Item]
		for i := range recs {
			r := &recs[i]
			if r.UserID != u.UserID || !r.BorrowedAt.Equal(u.BorrowedAt) || u.Stage <= r.Stage {
				continue
			}
			r.Stage = u.Stage
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}

	if err := s.store.SaveLedger(next); err != nil {
		return 0, fmt.Errorf("saving ledger: %w", err)
	}
	s.ledger = next
	return changed, nil
}
