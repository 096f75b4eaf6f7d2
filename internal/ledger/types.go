package ledger

import "time"

// MaxStage is the reminder stage reached once every reminder has fired.
const MaxStage = 3

// LoanRecord is the fact that a user currently holds an item.
type LoanRecord struct {
	Item       string
	UserID     string
	BorrowedAt time.Time
	Stage      int
}

// Ledger maps item names to their active loan records (zero or one per item).
type Ledger map[string][]LoanRecord

// Holder returns the first record for item, if any.
func (l Ledger) Holder(item string) (LoanRecord, bool) {
	recs := l[item]
	if len(recs) == 0 {
		return LoanRecord{}, false
	}
	return recs[0], true
}

// Clone returns a deep copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for item, recs := range l {
		cp := make([]LoanRecord, len(recs))
		copy(cp, recs)
		out[item] = cp
	}
	return out
}

// Normalize adds an empty record list for every catalog item missing from l.
func (l Ledger) Normalize(c Catalog) {
	for _, it := range c {
		if l[it.Name] == nil {
			l[it.Name] = []LoanRecord{}
		}
	}
}

// Records returns all active records in catalog order.
func (l Ledger) Records(c Catalog) []LoanRecord {
	var out []LoanRecord
	for _, it := range c {
		out = append(out, l[it.Name]...)
	}
	return out
}

// Statuses summarizes every catalog item, in catalog order.
func (l Ledger) Statuses(c Catalog) []ItemStatus {
	out := make([]ItemStatus, len(c))
	for i, it := range c {
		out[i] = Summarize(it, l[it.Name])
	}
	return out
}

// CommandKind identifies what a member asked for.
type CommandKind string

const (
	CommandBorrow      CommandKind = "borrow"
	CommandReturn      CommandKind = "return"
	CommandAcknowledge CommandKind = "ack"
)

// Valid reports whether k is a known command kind.
func (k CommandKind) Valid() bool {
	switch k {
	case CommandBorrow, CommandReturn, CommandAcknowledge:
		return true
	}
	return false
}

// Command is an inbound request from a member, e.g. a button click.
type Command struct {
	Kind   CommandKind
	Item   string
	UserID string
}

// Action is a command offered to a user next to a notification.
type Action struct {
	Kind CommandKind
	Item string
}

// StageUpdate moves a loan's reminder stage forward.
// It only applies while the same user still holds the item from the same borrow.
type StageUpdate struct {
	Item       string
	UserID     string
	BorrowedAt time.Time
	Stage      int
}

// LoadResult describes how persisted state was recovered.
type LoadResult int

const (
	LoadOK LoadResult = iota
	// LoadMissing means no file existed; defaults were used.
	LoadMissing
	// LoadCorrupt means the file could not be parsed; defaults were used.
	LoadCorrupt
	// LoadUpgraded means legacy or malformed entries were rewritten in memory
	// and the result should be saved back.
	LoadUpgraded
)

func (r LoadResult) String() string {
	switch r {
	case LoadOK:
		return "ok"
	case LoadMissing:
		return "missing"
	case LoadCorrupt:
		return "corrupt"
	case LoadUpgraded:
		return "upgraded"
	}
	return "unknown"
}

// EventKind labels history events.
type EventKind string

const (
	EventBorrow   EventKind = "borrow"
	EventReturn   EventKind = "return"
	EventReminder EventKind = "reminder"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
