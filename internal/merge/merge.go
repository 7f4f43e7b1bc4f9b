// Package merge implements field-level conflict resolution between two
// ledger snapshots. Everything here is pure: no I/O, no clock reads, no
// logging. Given valid inputs the output always satisfies the snapshot
// invariants, so Merge is total and safe to re-run on redelivered data.
package merge

import (
	"saldo/internal/core"
)

// Merge combines a local and a remote snapshot into one.
//
// Resolution rules differ per field group on purpose:
//
//   - Tombstones: set union. A deletion on either side sticks, and a
//     tombstoned id never reappears as a live transaction.
//   - Transactions: last-writer-wins on LastModified per id. Ties go to the
//     remote copy so the outcome is deterministic under clock skew.
//   - Monthly budgets and category caps: the local value wins wherever local
//     defines one; months (and categories) only the remote knows are filled
//     in. Budgets carry no recency signal of their own, and they are
//     typically edited on the device the user is holding.
//   - Custom categories: sorted set union; names are additive and never
//     conflict.
func Merge(local, remote core.Snapshot) core.Snapshot {
	out := core.EmptySnapshot()

	// Tombstones first: the union gates which transactions survive.
	dead := make(map[string]struct{}, len(local.DeletedIDs)+len(remote.DeletedIDs))
	for _, id := range local.DeletedIDs {
		dead[id] = struct{}{}
	}
	for _, id := range remote.DeletedIDs {
		dead[id] = struct{}{}
	}
	for id := range dead {
		out.DeletedIDs = append(out.DeletedIDs, id)
	}

	// Seed from remote, then fold in local with strict LWW per id.
	byID := make(map[string]core.Transaction, len(remote.Transactions))
	for _, tx := range remote.Transactions {
		if _, gone := dead[tx.ID]; gone {
			continue
		}
		byID[tx.ID] = tx
	}
	for _, tx := range local.Transactions {
		if _, gone := dead[tx.ID]; gone {
			continue
		}
		existing, ok := byID[tx.ID]
		if !ok || tx.LastModified.After(existing.LastModified) {
			byID[tx.ID] = tx
		}
	}
	for _, tx := range byID {
		out.Transactions = append(out.Transactions, tx)
	}

	// Budgets: local wins where defined, remote fills the gaps.
	for month, v := range local.BudgetsByMonth {
		out.BudgetsByMonth[month] = v
	}
	for month, v := range remote.BudgetsByMonth {
		if _, ok := out.BudgetsByMonth[month]; !ok {
			out.BudgetsByMonth[month] = v
		}
	}

	// Category caps: same rule, one level deeper.
	for month, caps := range local.CategoryBudgetsByMonth {
		merged := make(map[string]int64, len(caps))
		for cat, v := range caps {
			merged[cat] = v
		}
		out.CategoryBudgetsByMonth[month] = merged
	}
	for month, remoteCaps := range remote.CategoryBudgetsByMonth {
		merged, ok := out.CategoryBudgetsByMonth[month]
		if !ok {
			merged = make(map[string]int64, len(remoteCaps))
			out.CategoryBudgetsByMonth[month] = merged
		}
		for cat, v := range remoteCaps {
			if _, defined := merged[cat]; !defined {
				merged[cat] = v
			}
		}
	}

	out.CustomCategoryNames = append(out.CustomCategoryNames, local.CustomCategoryNames...)
	out.CustomCategoryNames = append(out.CustomCategoryNames, remote.CustomCategoryNames...)

	out.Normalize()
	return out
}

// HasLocalChanges reports whether local holds anything the remote does not
// already have. It is a superset check, not a diff: a false positive only
// causes a redundant merge-and-push, while a false negative would lose an
// edit, so every comparison errs toward true.
func HasLocalChanges(local, remote core.Snapshot) bool {
	remoteDead := make(map[string]struct{}, len(remote.DeletedIDs))
	for _, id := range remote.DeletedIDs {
		remoteDead[id] = struct{}{}
	}
	for _, id := range local.DeletedIDs {
		if _, ok := remoteDead[id]; !ok {
			return true
		}
	}

	remoteByID := make(map[string]core.Transaction, len(remote.Transactions))
	for _, tx := range remote.Transactions {
		remoteByID[tx.ID] = tx
	}
	for _, tx := range local.Transactions {
		rt, ok := remoteByID[tx.ID]
		if !ok {
			return true
		}
		if tx.LastModified.After(rt.LastModified) {
			return true
		}
	}

	for month, v := range local.BudgetsByMonth {
		if rv, ok := remote.BudgetsByMonth[month]; !ok || rv != v {
			return true
		}
	}
	for month, caps := range local.CategoryBudgetsByMonth {
		remoteCaps := remote.CategoryBudgetsByMonth[month]
		for cat, v := range caps {
			if rv, ok := remoteCaps[cat]; !ok || rv != v {
				return true
			}
		}
	}

	return !sameSet(local.CustomCategoryNames, remote.CustomCategoryNames)
}

func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, v := range a {
		as[v] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, v := range b {
		bs[v] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for v := range as {
		if _, ok := bs[v]; !ok {
			return false
		}
	}
	return true
}
