// Package ledger implements the integer micro-unit balance ledger: idempotent
// per-day reward credit and append-only history, grounded on the example pack's
// gas-bank account/transaction model adapted to a single non-negative balance plus
// a monotonic lifetime-earned counter.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

// Store is the minimal persistence contract the ledger needs; storage.BalanceLedgerStore
// implementations satisfy it.
type Store interface {
	HasCreditedDay(dayID string) (bool, error)
	GetBalance(accountID string) (domain.BalanceRow, bool, error)
	PutBalance(row domain.BalanceRow) error
	AppendHistory(row domain.LedgerHistoryRow) error
	ListBalances() ([]domain.BalanceRow, error)
}

// CreditRewards credits the ledger for dayId from a finalized RewardDistribution.
// The call is idempotent by dayId: if dayId was already credited, it returns
// alreadyCredited=true and makes no changes.
func CreditRewards(store Store, dayID string, rewards []domain.RewardEntry, now time.Time) (alreadyCredited bool, err error) {
	return credit(store, dayID, rewards, domain.LedgerEntryReward, now)
}

// CreditOther credits a non-reward source (CRAWL, TASK) with the same idempotency
// and monotonicity invariants as CreditRewards.
func CreditOther(store Store, dayID string, entryType domain.LedgerEntryType, amounts map[string]float64, now time.Time) (alreadyCredited bool, err error) {
	entries := make([]domain.RewardEntry, 0, len(amounts))
	for acc, amt := range amounts {
		entries = append(entries, domain.RewardEntry{AccountID: acc, TotalReward: amt})
	}
	return credit(store, dayID, entries, entryType, now)
}

func credit(store Store, dayID string, entries []domain.RewardEntry, entryType domain.LedgerEntryType, now time.Time) (bool, error) {
	already, err := store.HasCreditedDay(dayID)
	if err != nil {
		return false, fmt.Errorf("ledger: check existing credit: %w", err)
	}
	if already {
		return true, nil
	}

	for _, entry := range entries {
		amountMicro := int64(math.Round(entry.TotalReward * 1_000_000))
		if amountMicro == 0 {
			continue
		}
		row, found, err := store.GetBalance(entry.AccountID)
		if err != nil {
			return false, fmt.Errorf("ledger: read balance for %s: %w", entry.AccountID, err)
		}
		if !found {
			row = domain.BalanceRow{AccountID: entry.AccountID}
		}
		row.BalanceMicro += amountMicro
		row.TotalEarnedMicro += amountMicro
		row.LastRewardDay = dayID

		if err := store.PutBalance(row); err != nil {
			return false, fmt.Errorf("ledger: write balance for %s: %w", entry.AccountID, err)
		}
		if err := store.AppendHistory(domain.LedgerHistoryRow{
			AccountID:         entry.AccountID,
			DayID:             dayID,
			AmountMicro:       amountMicro,
			BalanceAfterMicro: row.BalanceMicro,
			EntryType:         entryType,
			Timestamp:         now,
		}); err != nil {
			return false, fmt.Errorf("ledger: append history for %s: %w", entry.AccountID, err)
		}
	}

	return false, nil
}

// Leaderboard returns accounts ordered by TotalEarnedMicro descending, capped at limit.
func Leaderboard(store Store, limit int) ([]domain.BalanceRow, error) {
	rows, err := store.ListBalances()
	if err != nil {
		return nil, fmt.Errorf("ledger: list balances: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TotalEarnedMicro > rows[j].TotalEarnedMicro })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// TotalSupply sums BalanceMicro across all accounts.
func TotalSupply(store Store) (int64, error) {
	rows, err := store.ListBalances()
	if err != nil {
		return 0, fmt.Errorf("ledger: list balances: %w", err)
	}
	var total int64
	for _, r := range rows {
		total += r.BalanceMicro
	}
	return total, nil
}
