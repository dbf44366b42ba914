package state

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/five82/rikipost/internal/booru"
)

func TestLedger_WithDoesNotMutateReceiver(t *testing.T) {
	base := NewLedger(1, 2, 2)
	if base.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (duplicates ignored)", base.Len())
	}

	next := base.With(3)
	if base.Contains(3) {
		t.Fatalf("With mutated the receiver")
	}
	if !next.Contains(3) || !next.Contains(1) || next.Len() != 3 {
		t.Fatalf("With result = %v, want [1 2 3]", next.IDs())
	}

	again := next.With(3)
	if again.Len() != 3 {
		t.Fatalf("With existing id grew the ledger to %d", again.Len())
	}

	ids := next.IDs()
	ids[0] = 99
	if !next.Contains(1) || next.Contains(99) {
		t.Fatalf("IDs exposes internal storage")
	}
}

func TestLedger_JSONMatchesStateFile(t *testing.T) {
	data, err := json.Marshal(NewLedger())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"skippedVkIds":[]}` {
		t.Fatalf("empty ledger json = %s", data)
	}

	var l Ledger
	if err := json.Unmarshal([]byte(`{"skippedVkIds":[456239017,456239018]}`), &l); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !l.Contains(456239017) || !l.Contains(456239018) || l.Len() != 2 {
		t.Fatalf("decoded ledger = %v", l.IDs())
	}
}

func TestStore_InitLoadSave(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "nested", "state.json"), filepath.Join(dir, "history.jsonl"))

	l, err := s.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger on missing file: %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("missing ledger Len = %d, want 0", l.Len())
	}

	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := os.Stat(s.LedgerPath()); err != nil {
		t.Fatalf("Init did not create ledger: %v", err)
	}

	if err := s.SaveLedger(NewLedger(7, 8)); err != nil {
		t.Fatalf("SaveLedger: %v", err)
	}
	// Init must not clobber an existing ledger.
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	l, err = s.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if !l.Contains(7) || !l.Contains(8) {
		t.Fatalf("reloaded ledger = %v, want [7 8]", l.IDs())
	}

	entries, err := os.ReadDir(filepath.Dir(s.LedgerPath()))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ledger dir has %d entries, want only the ledger (temp files cleaned up)", len(entries))
	}
}

func TestStore_LoadLedgerRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := NewStore(path, "").LoadLedger()
	if err == nil || !strings.Contains(err.Error(), "parse ledger") {
		t.Fatalf("LoadLedger error = %v, want parse ledger error", err)
	}
}

func TestStore_CommitAndReadHistoryTail(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "state.json"), filepath.Join(dir, "history.jsonl"))

	ledger := NewLedger()
	at := time.Date(2024, 3, 23, 12, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		ledger = ledger.With(i)
		rec := PublishRecord{
			Image:        booru.Image{VKID: i, PostURL: "https://vk.com/wall-1_1"},
			RemotePostID: "post-" + string(rune('0'+i)),
			PublishedAt:  at.Add(time.Duration(i) * time.Hour),
		}
		if err := s.Commit(ledger, rec); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}

	// A torn line must not hide the records around it.
	f, err := os.OpenFile(s.HistoryPath(), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	_, _ = f.WriteString("{\"imageInfo\":\n")
	_ = f.Close()

	records, skipped, err := s.ReadHistory(3)
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
	if len(records) != 3 {
		t.Fatalf("ReadHistory returned %d records, want 3", len(records))
	}
	for i, want := range []int64{3, 4, 5} {
		if records[i].Image.VKID != want {
			t.Fatalf("records[%d].VKID = %d, want %d", i, records[i].Image.VKID, want)
		}
	}
	if !records[2].PublishedAt.Equal(at.Add(5 * time.Hour)) {
		t.Fatalf("PublishedAt = %v, want %v", records[2].PublishedAt, at.Add(5*time.Hour))
	}

	l, err := s.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if l.Len() != 5 {
		t.Fatalf("ledger Len = %d, want 5", l.Len())
	}

	all, _, err := s.ReadHistory(10)
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(all) != 5 || all[0].Image.VKID != 1 {
		t.Fatalf("ReadHistory(10) = %d records starting at %d, want 5 starting at 1", len(all), all[0].Image.VKID)
	}
}

func TestStore_ReadHistoryMissingFile(t *testing.T) {
	records, skipped, err := NewStore("", filepath.Join(t.TempDir(), "none.jsonl")).ReadHistory(5)
	if err != nil || records != nil || skipped != 0 {
		t.Fatalf("ReadHistory on missing file = %v, %d, %v; want nil, 0, nil", records, skipped, err)
	}
}

func TestStore_ReadHistoryHugeLimit(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "state.json"), filepath.Join(dir, "history.jsonl"))
	for i := int64(1); i <= 3; i++ {
		if err := s.Commit(NewLedger(i), PublishRecord{Image: booru.Image{VKID: i}}); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}

	records, _, err := s.ReadHistory(math.MaxInt)
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(records) != 3 || records[0].Image.VKID != 1 || records[2].Image.VKID != 3 {
		t.Fatalf("ReadHistory(MaxInt) = %d records, want 1..3 in order", len(records))
	}
}
