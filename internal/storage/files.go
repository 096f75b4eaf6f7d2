package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/kalambet/itembank/internal/ledger"
)

// fileJSON keeps emoji and accented item names readable in the files.
var fileJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// FileStore persists the ledger and the message-id map as JSON files.
type FileStore struct {
	ledgerPath string
	idsPath    string
	clock      ledger.Clock
	logger     *slog.Logger

	mu sync.Mutex // serializes file writes
}

// NewFileStore resolves relative file names against dataDir.
func NewFileStore(dataDir, ledgerFile, messageIDsFile string) *FileStore {
	return &FileStore{
		ledgerPath: resolvePath(dataDir, ledgerFile),
		idsPath:    resolvePath(dataDir, messageIDsFile),
		clock:      ledger.SystemClock{},
		logger:     slog.Default(),
	}
}

// NewFileStoreWithClock is NewFileStore with a custom clock (for testing).
func NewFileStoreWithClock(dataDir, ledgerFile, messageIDsFile string, clock ledger.Clock) *FileStore {
	fs := NewFileStore(dataDir, ledgerFile, messageIDsFile)
	fs.clock = clock
	return fs
}

func resolvePath(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// LedgerPath returns the ledger file location.
func (s *FileStore) LedgerPath() string { return s.ledgerPath }

// MessageIDsPath returns the message-id file location.
func (s *FileStore) MessageIDsPath() string { return s.idsPath }

type fileRecord struct {
	UserID        string `json:"user_id"`
	BorrowedAt    int64  `json:"borrowed_at"`
	ReminderStage int    `json:"reminder_stage"`
}

// storedRecord is the read side of fileRecord. Other writers may store
// borrowed_at with a fractional part.
type storedRecord struct {
	UserID        string  `json:"user_id"`
	BorrowedAt    float64 `json:"borrowed_at"`
	ReminderStage int     `json:"reminder_stage"`
}

// LoadLedger reads the ledger file. It never fails: a missing or unreadable
// file yields a ledger with every catalog item available.
func (s *FileStore) LoadLedger(c ledger.Catalog) (ledger.Ledger, ledger.LoadResult) {
	l := make(ledger.Ledger, len(c))
	l.Normalize(c)

	data, err := os.ReadFile(s.ledgerPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return l, ledger.LoadMissing
		}
		s.logger.Warn("reading ledger file failed", "path", s.ledgerPath, "error", err)
		return l, ledger.LoadCorrupt
	}

	var raw map[string]jsoniter.RawMessage
	if err := fileJSON.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("parsing ledger file failed", "path", s.ledgerPath, "error", err)
		return l, ledger.LoadCorrupt
	}

	now := s.clock.Now().Truncate(time.Second)
	rewrite := false
	for item, msg := range raw {
		if _, ok := c.Lookup(item); !ok {
			s.logger.Warn("dropping ledger entry for unknown item", "item", item)
			rewrite = true
			continue
		}

		var entries []jsoniter.RawMessage
		var single string
		if fileJSON.Unmarshal(msg, &single) == nil && single != "" {
			// A bare holder id in place of the list.
			entries = []jsoniter.RawMessage{msg}
			rewrite = true
		} else if err := fileJSON.Unmarshal(msg, &entries); err != nil {
			s.logger.Warn("dropping malformed ledger entry", "item", item, "error", err)
			rewrite = true
			continue
		}

		for _, entry := range entries {
			rec, upgraded, err := decodeEntry(item, entry, now)
			if err != nil {
				s.logger.Warn("dropping malformed loan record", "item", item, "error", err)
				rewrite = true
				continue
			}
			if upgraded {
				rewrite = true
			}
			if len(l[item]) > 0 {
				s.logger.Warn("dropping extra holder", "item", item, "user_id", rec.UserID)
				rewrite = true
				continue
			}
			l[item] = append(l[item], rec)
		}
	}

	if rewrite {
		return l, ledger.LoadUpgraded
	}
	return l, ledger.LoadOK
}

// decodeEntry accepts the current record object and the legacy bare user id.
// upgraded is true when the entry had to be converted.
func decodeEntry(item string, entry jsoniter.RawMessage, now time.Time) (rec ledger.LoanRecord, upgraded bool, err error) {
	var legacyID string
	if fileJSON.Unmarshal(entry, &legacyID) == nil {
		if legacyID == "" {
			return ledger.LoanRecord{}, false, fmt.Errorf("empty user id")
		}
		return ledger.LoanRecord{Item: item, UserID: legacyID, BorrowedAt: now}, true, nil
	}

	var fr storedRecord
	if err := fileJSON.Unmarshal(entry, &fr); err != nil {
		return ledger.LoanRecord{}, false, err
	}
	if fr.UserID == "" {
		return ledger.LoanRecord{}, false, fmt.Errorf("missing user_id")
	}
	if fr.ReminderStage < 0 || fr.ReminderStage > ledger.MaxStage {
		return ledger.LoanRecord{}, false, fmt.Errorf("reminder_stage %d out of range", fr.ReminderStage)
	}

	secs := int64(fr.BorrowedAt)
	rec = ledger.LoanRecord{
		Item:       item,
		UserID:     fr.UserID,
		BorrowedAt: time.Unix(secs, 0).UTC(),
		Stage:      fr.ReminderStage,
	}
	if float64(secs) != fr.BorrowedAt {
		upgraded = true
	}
	if secs <= 0 {
		rec.BorrowedAt = now
		rec.Stage = 0
		upgraded = true
	}
	return rec, upgraded, nil
}

// SaveLedger writes the whole ledger atomically.
func (s *FileStore) SaveLedger(l ledger.Ledger) error {
	out := make(map[string][]fileRecord, len(l))
	for item, recs := range l {
		frs := make([]fileRecord, 0, len(recs))
		for _, r := range recs {
			frs = append(frs, fileRecord{
				UserID:        r.UserID,
				BorrowedAt:    r.BorrowedAt.Unix(),
				ReminderStage: r.Stage,
			})
		}
		out[item] = frs
	}
	return s.writeJSON(s.ledgerPath, out)
}

// LoadMessageIDs reads the message-id file, falling back to an empty mapping.
func (s *FileStore) LoadMessageIDs() (MessageIDs, ledger.LoadResult) {
	ids := NewMessageIDs()

	data, err := os.ReadFile(s.idsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ids, ledger.LoadMissing
		}
		s.logger.Warn("reading message id file failed", "path", s.idsPath, "error", err)
		return ids, ledger.LoadCorrupt
	}

	var decoded MessageIDs
	if err := fileJSON.Unmarshal(data, &decoded); err != nil {
		s.logger.Warn("parsing message id file failed", "path", s.idsPath, "error", err)
		return ids, ledger.LoadCorrupt
	}
	if decoded.Items == nil {
		decoded.Items = make(map[string]*string)
	}
	return decoded, ledger.LoadOK
}

// SaveMessageIDs writes the message-id map atomically.
func (s *FileStore) SaveMessageIDs(ids MessageIDs) error {
	if ids.Items == nil {
		ids.Items = make(map[string]*string)
	}
	return s.writeJSON(s.idsPath, ids)
}

func (s *FileStore) writeJSON(path string, v any) error {
	data, err := fileJSON.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(path, data, 0o644)
}

// writeFileAtomic writes to a temp file in the target directory and renames it
// over path, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
