package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/five82/rikipost/internal/booru"
)

// PublishRecord is one line of the history log.
type PublishRecord struct {
	Image         booru.Image `json:"imageInfo"`
	RemotePostID  string      `json:"remotePostId"`
	RemotePostURL string      `json:"remotePostUrl,omitempty"`
	PublishedAt   time.Time   `json:"publishedAt"`
	Tier          int         `json:"tier,omitempty"`
	Sensitive     bool        `json:"sensitive,omitempty"`
}

// Store persists the ledger and the history log as flat files.
type Store struct {
	mu          sync.Mutex
	ledgerPath  string
	historyPath string
}

// NewStore returns a Store over the two files. Neither needs to exist yet.
func NewStore(ledgerPath, historyPath string) *Store {
	return &Store{ledgerPath: ledgerPath, historyPath: historyPath}
}

// LedgerPath returns the ledger file location.
func (s *Store) LedgerPath() string { return s.ledgerPath }

// HistoryPath returns the history log location.
func (s *Store) HistoryPath() string { return s.historyPath }

// Init creates an empty ledger file when none exists.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.ledgerPath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat ledger: %w", err)
	}
	return s.writeLedger(NewLedger())
}

// LoadLedger reads the ledger. A missing file is an empty ledger.
func (s *Store) LoadLedger() (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.ledgerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewLedger(), nil
		}
		return Ledger{}, fmt.Errorf("read ledger: %w", err)
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return Ledger{}, fmt.Errorf("parse ledger %s: %w", s.ledgerPath, err)
	}
	return l, nil
}

// SaveLedger replaces the ledger file atomically.
func (s *Store) SaveLedger(l Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLedger(l)
}

// AppendHistory appends rec as one JSON line.
func (s *Store) AppendHistory(rec PublishRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendHistory(rec)
}

// Commit records a successful publish: the ledger first, since it is what
// prevents a repeat, then the history line.
func (s *Store) Commit(l Ledger, rec PublishRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLedger(l); err != nil {
		return err
	}
	if err := s.appendHistory(rec); err != nil {
		return err
	}
	return nil
}

// ReadHistory returns at most max records from the end of the history log,
// oldest first. Lines that do not decode are skipped and counted.
func (s *Store) ReadHistory(max int) ([]PublishRecord, int, error) {
	if max <= 0 {
		return nil, 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.historyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = file.Close() }()

	// ring grows with the file; max only caps it.
	var ring []PublishRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	idx, skipped := 0, 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec PublishRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		if len(ring) < max {
			ring = append(ring, rec)
			continue
		}
		ring[idx] = rec
		idx = (idx + 1) % max
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read history: %w", err)
	}

	records := make([]PublishRecord, 0, len(ring))
	records = append(records, ring[idx:]...)
	records = append(records, ring[:idx]...)
	return records, skipped, nil
}

func (s *Store) writeLedger(l Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return WriteFileAtomic(s.ledgerPath, data)
}

func (s *Store) appendHistory(rec PublishRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.historyPath), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	file, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		_ = file.Close()
		return fmt.Errorf("append history: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it into
// place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
