package ledger

import (
	"testing"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

type memStore struct {
	balances     map[string]domain.BalanceRow
	history      []domain.LedgerHistoryRow
	creditedDays map[string]bool
}

func newMemStore() *memStore {
	return &memStore{balances: map[string]domain.BalanceRow{}, creditedDays: map[string]bool{}}
}

func (m *memStore) HasCreditedDay(dayID string) (bool, error) { return m.creditedDays[dayID], nil }
func (m *memStore) GetBalance(accountID string) (domain.BalanceRow, bool, error) {
	row, ok := m.balances[accountID]
	return row, ok, nil
}
func (m *memStore) PutBalance(row domain.BalanceRow) error {
	m.balances[row.AccountID] = row
	return nil
}
func (m *memStore) AppendHistory(row domain.LedgerHistoryRow) error {
	m.history = append(m.history, row)
	m.creditedDays[row.DayID] = true
	return nil
}
func (m *memStore) ListBalances() ([]domain.BalanceRow, error) {
	rows := make([]domain.BalanceRow, 0, len(m.balances))
	for _, r := range m.balances {
		rows = append(rows, r)
	}
	return rows, nil
}

func TestCreditRewardsIsIdempotentByDay(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	rewards := []domain.RewardEntry{{AccountID: "alice", TotalReward: 1.5}}

	already, err := CreditRewards(store, "2026-01-28", rewards, now)
	if err != nil {
		t.Fatalf("CreditRewards: %v", err)
	}
	if already {
		t.Fatalf("first credit should not report already-credited")
	}

	again, err := CreditRewards(store, "2026-01-28", rewards, now)
	if err != nil {
		t.Fatalf("CreditRewards second call: %v", err)
	}
	if !again {
		t.Fatalf("second credit for same day should be a no-op")
	}

	row, _, _ := store.GetBalance("alice")
	if row.BalanceMicro != 1_500_000 {
		t.Fatalf("expected 1_500_000 micro-units, got %d", row.BalanceMicro)
	}
	if len(store.history) != 1 {
		t.Fatalf("expected exactly one history row, got %d", len(store.history))
	}
}

func TestCreditRewardsAccumulatesAcrossDays(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	CreditRewards(store, "2026-01-28", []domain.RewardEntry{{AccountID: "alice", TotalReward: 1.0}}, now)
	CreditRewards(store, "2026-01-29", []domain.RewardEntry{{AccountID: "alice", TotalReward: 2.0}}, now)

	row, _, _ := store.GetBalance("alice")
	if row.TotalEarnedMicro != 3_000_000 {
		t.Fatalf("expected totalEarnedMicro 3_000_000, got %d", row.TotalEarnedMicro)
	}
	if row.BalanceMicro > row.TotalEarnedMicro {
		t.Fatalf("balanceMicro must not exceed totalEarnedMicro")
	}
}

func TestLeaderboardOrdersByTotalEarnedDescending(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	CreditRewards(store, "d1", []domain.RewardEntry{{AccountID: "alice", TotalReward: 1}, {AccountID: "bob", TotalReward: 5}}, now)
	board, err := Leaderboard(store, 10)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].AccountID != "bob" {
		t.Fatalf("expected bob first, got %+v", board)
	}
}

func TestTotalSupplySumsBalances(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	CreditRewards(store, "d1", []domain.RewardEntry{{AccountID: "alice", TotalReward: 1}, {AccountID: "bob", TotalReward: 2}}, now)
	total, err := TotalSupply(store)
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	if total != 3_000_000 {
		t.Fatalf("expected 3_000_000, got %d", total)
	}
}
