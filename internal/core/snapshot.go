package core

import (
	"fmt"
	"sort"
)

// SchemaVersionCurrent is the wire schema version written by this build.
// Older payloads without a version field decode as version 1.
const SchemaVersionCurrent = 1

// Snapshot is the unit of synchronization: the complete serializable state
// of one user's ledger at an instant. It is always persisted and replicated
// whole, never partially.
type Snapshot struct {
	SchemaVersion          int                         `json:"schemaVersion"`
	Transactions           []Transaction               `json:"transactions"`
	DeletedIDs             []string                    `json:"deletedIds"`
	BudgetsByMonth         map[string]int64            `json:"budgetsByMonth"`
	CategoryBudgetsByMonth map[string]map[string]int64 `json:"categoryBudgetsByMonth"`
	CustomCategoryNames    []string                    `json:"customCategoryNames"`
}

// EmptySnapshot returns the state of a ledger before any user action.
func EmptySnapshot() Snapshot {
	return Snapshot{
		SchemaVersion:          SchemaVersionCurrent,
		Transactions:           []Transaction{},
		DeletedIDs:             []string{},
		BudgetsByMonth:         map[string]int64{},
		CategoryBudgetsByMonth: map[string]map[string]int64{},
		CustomCategoryNames:    []string{},
	}
}

// Clone returns a deep copy. Collaborators always receive copies, never a
// reference into the live snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		SchemaVersion:          s.SchemaVersion,
		Transactions:           append([]Transaction(nil), s.Transactions...),
		DeletedIDs:             append([]string(nil), s.DeletedIDs...),
		BudgetsByMonth:         make(map[string]int64, len(s.BudgetsByMonth)),
		CategoryBudgetsByMonth: make(map[string]map[string]int64, len(s.CategoryBudgetsByMonth)),
		CustomCategoryNames:    append([]string(nil), s.CustomCategoryNames...),
	}
	for k, v := range s.BudgetsByMonth {
		out.BudgetsByMonth[k] = v
	}
	for month, caps := range s.CategoryBudgetsByMonth {
		inner := make(map[string]int64, len(caps))
		for cat, v := range caps {
			inner[cat] = v
		}
		out.CategoryBudgetsByMonth[month] = inner
	}
	return out
}

// IsDeleted reports whether id is tombstoned in this snapshot.
func (s Snapshot) IsDeleted(id string) bool {
	for _, d := range s.DeletedIDs {
		if d == id {
			return true
		}
	}
	return false
}

// FindTransaction returns the live transaction with the given id, if any.
func (s Snapshot) FindTransaction(id string) (Transaction, bool) {
	for _, tx := range s.Transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return Transaction{}, false
}

// Normalize sorts transactions by date descending (newest first, ties broken
// by LastModified then id so the order is deterministic), sorts and dedupes
// the tombstone and custom-category sets, and materializes nil collections.
// Sort order is a display concern only; identity is carried by ids.
func (s *Snapshot) Normalize() {
	if s.SchemaVersion == 0 {
		s.SchemaVersion = SchemaVersionCurrent
	}
	if s.Transactions == nil {
		s.Transactions = []Transaction{}
	}
	if s.BudgetsByMonth == nil {
		s.BudgetsByMonth = map[string]int64{}
	}
	if s.CategoryBudgetsByMonth == nil {
		s.CategoryBudgetsByMonth = map[string]map[string]int64{}
	}
	sort.SliceStable(s.Transactions, func(i, j int) bool {
		a, b := s.Transactions[i], s.Transactions[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		if !a.LastModified.Equal(b.LastModified) {
			return a.LastModified.After(b.LastModified)
		}
		return a.ID < b.ID
	})
	s.DeletedIDs = sortedSet(s.DeletedIDs)
	s.CustomCategoryNames = sortedSet(s.CustomCategoryNames)
}

// Validate checks the snapshot invariants: no tombstoned id appears as a
// live transaction, transaction ids are unique, and no amount, budget or
// category cap is negative.
func (s Snapshot) Validate() error {
	seen := make(map[string]struct{}, len(s.Transactions))
	dead := make(map[string]struct{}, len(s.DeletedIDs))
	for _, id := range s.DeletedIDs {
		dead[id] = struct{}{}
	}
	for _, tx := range s.Transactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction %s: %w", tx.ID, err)
		}
		if _, dup := seen[tx.ID]; dup {
			return fmt.Errorf("duplicate transaction id %s", tx.ID)
		}
		seen[tx.ID] = struct{}{}
		if _, gone := dead[tx.ID]; gone {
			return fmt.Errorf("tombstoned id %s present as live transaction", tx.ID)
		}
	}
	for month, v := range s.BudgetsByMonth {
		if !ValidMonthKey(month) {
			return fmt.Errorf("budget month %q: %w", month, ErrInvalidMonthKey)
		}
		if v < 0 {
			return fmt.Errorf("negative budget for %s", month)
		}
	}
	for month, caps := range s.CategoryBudgetsByMonth {
		if !ValidMonthKey(month) {
			return fmt.Errorf("category budget month %q: %w", month, ErrInvalidMonthKey)
		}
		for cat, v := range caps {
			if v < 0 {
				return fmt.Errorf("negative category cap for %s/%s", month, cat)
			}
		}
	}
	return nil
}

func sortedSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
