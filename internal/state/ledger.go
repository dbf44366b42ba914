package state

import (
	"encoding/json"
	"slices"
)

// Ledger is the set of stable image ids that were published or explicitly
// skipped. It is a value: With returns a new Ledger and never mutates the
// receiver, so a failed tick can simply drop the candidate ledger.
type Ledger struct {
	ids   map[int64]struct{}
	order []int64
}

// NewLedger returns a ledger holding ids, ignoring duplicates.
func NewLedger(ids ...int64) Ledger {
	l := Ledger{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		if _, ok := l.ids[id]; ok {
			continue
		}
		l.ids[id] = struct{}{}
		l.order = append(l.order, id)
	}
	return l
}

// Contains reports whether id was already published or skipped.
func (l Ledger) Contains(id int64) bool {
	_, ok := l.ids[id]
	return ok
}

// With returns a copy of l that also contains id.
func (l Ledger) With(id int64) Ledger {
	if l.Contains(id) {
		return NewLedger(l.order...)
	}
	return NewLedger(append(slices.Clone(l.order), id)...)
}

// Len is the number of recorded ids.
func (l Ledger) Len() int {
	return len(l.order)
}

// IDs returns the recorded ids in insertion order.
func (l Ledger) IDs() []int64 {
	return slices.Clone(l.order)
}

// ledgerFile is the on-disk shape of state.json.
type ledgerFile struct {
	SkippedVKIDs []int64 `json:"skippedVkIds"`
}

// MarshalJSON implements json.Marshaler.
func (l Ledger) MarshalJSON() ([]byte, error) {
	ids := l.order
	if ids == nil {
		ids = []int64{}
	}
	return json.Marshal(ledgerFile{SkippedVKIDs: ids})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var raw ledgerFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = NewLedger(raw.SkippedVKIDs...)
	return nil
}
