// Package pgstore is the durable Postgres backend for every storage interface,
// selected when STORE_BACKEND=durable. Grounded on the example pack's
// packages/com.r3e.services.mixer postgres store (plain database/sql over
// lib/pq, raw parameterized SQL, JSON-serialized structured columns, pq.Array
// for string slices, sql.ErrNoRows mapped to a bool-ok return) adapted to the
// coordinator's six persistence contracts.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
	"github.com/r3e-network/ai4all-coordinator/internal/storage"
)

// Store implements every storage interface over a *sql.DB. The driver is
// registered by importing "github.com/lib/pq" for its side effect.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened Postgres connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var (
	_ storage.EventStore         = (*Store)(nil)
	_ storage.StateStore         = (*Store)(nil)
	_ storage.AssignmentStore    = (*Store)(nil)
	_ storage.SubmissionStore    = (*Store)(nil)
	_ storage.OperationalStore   = (*Store)(nil)
	_ storage.BalanceLedgerStore = (*Store)(nil)
)

// schema is the full set of tables the coordinator needs. Applied with
// IF NOT EXISTS so Migrate is idempotent across restarts.
const schema = `
CREATE TABLE IF NOT EXISTS coordinator_events (
	global_seq     BIGSERIAL PRIMARY KEY,
	event_id       TEXT NOT NULL UNIQUE,
	day_id         TEXT NOT NULL,
	sequence_number INTEGER NOT NULL,
	event_type     TEXT NOT NULL,
	actor_id       TEXT,
	payload        JSONB NOT NULL,
	prev_event_hash TEXT NOT NULL,
	event_hash     TEXT NOT NULL,
	occurred_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_coordinator_events_day ON coordinator_events (day_id, sequence_number);
CREATE INDEX IF NOT EXISTS idx_coordinator_events_type ON coordinator_events (event_type, occurred_at);
CREATE INDEX IF NOT EXISTS idx_coordinator_events_actor ON coordinator_events (actor_id, occurred_at);

CREATE TABLE IF NOT EXISTS coordinator_snapshots (
	day_id             TEXT PRIMARY KEY,
	day_number         INTEGER NOT NULL,
	state_hash         TEXT NOT NULL,
	last_event_hash    TEXT NOT NULL,
	reward_hash        TEXT NOT NULL,
	contributor_count  INTEGER NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS coordinator_states (
	day_id  TEXT PRIMARY KEY,
	state   JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS coordinator_assignments (
	day_id         TEXT NOT NULL,
	contributor_id TEXT NOT NULL,
	block_ids      TEXT[] NOT NULL,
	batch_number   INTEGER NOT NULL,
	assigned_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (day_id, contributor_id)
);

CREATE TABLE IF NOT EXISTS coordinator_submissions (
	id                    BIGSERIAL PRIMARY KEY,
	day_id                TEXT NOT NULL,
	contributor_id        TEXT NOT NULL,
	block_id              TEXT NOT NULL,
	block_type            TEXT NOT NULL,
	resource_usage        DOUBLE PRECISION NOT NULL,
	difficulty_multiplier DOUBLE PRECISION NOT NULL,
	validation_passed     BOOLEAN NOT NULL,
	canary_answer_correct BOOLEAN,
	submitted_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_coordinator_submissions_day ON coordinator_submissions (day_id);
CREATE INDEX IF NOT EXISTS idx_coordinator_submissions_node ON coordinator_submissions (contributor_id);

CREATE TABLE IF NOT EXISTS coordinator_node_keys (
	account_id     TEXT PRIMARY KEY,
	public_key_hex TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS coordinator_device_links (
	account_id TEXT NOT NULL,
	device_id  TEXT NOT NULL,
	PRIMARY KEY (account_id, device_id)
);

CREATE TABLE IF NOT EXISTS coordinator_day_lifecycle (
	id                 INTEGER PRIMARY KEY DEFAULT 1,
	phase              TEXT NOT NULL,
	day_id             TEXT NOT NULL,
	seed               BIGINT NOT NULL,
	roster_hash        TEXT NOT NULL,
	roster_account_ids TEXT[] NOT NULL,
	canary_block_ids   TEXT[] NOT NULL,
	day_number         INTEGER NOT NULL,
	CHECK (id = 1)
);

CREATE TABLE IF NOT EXISTS coordinator_balances (
	account_id          TEXT PRIMARY KEY,
	balance_micro       BIGINT NOT NULL,
	total_earned_micro  BIGINT NOT NULL,
	last_reward_day     TEXT
);

CREATE TABLE IF NOT EXISTS coordinator_ledger_history (
	id                  BIGSERIAL PRIMARY KEY,
	account_id          TEXT NOT NULL,
	day_id              TEXT NOT NULL,
	amount_micro        BIGINT NOT NULL,
	balance_after_micro BIGINT NOT NULL,
	entry_type          TEXT NOT NULL,
	occurred_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_coordinator_ledger_history_account ON coordinator_ledger_history (account_id);
CREATE INDEX IF NOT EXISTS idx_coordinator_ledger_history_day ON coordinator_ledger_history (day_id);
`

// Migrate applies the coordinator's schema. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// --- EventStore ---

func (s *Store) Append(events []domain.DomainEvent) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin append tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("pgstore: marshal payload for event %s: %w", e.EventID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO coordinator_events
			(event_id, day_id, sequence_number, event_type, actor_id, payload, prev_event_hash, event_hash, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, e.EventID, e.DayID, e.SequenceNumber, e.EventType, e.ActorID, payload, e.PrevEventHash, e.EventHash, e.Timestamp); err != nil {
			return fmt.Errorf("pgstore: insert event %s: %w", e.EventID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: commit append tx: %w", err)
	}
	return nil
}

func (s *Store) QueryByDay(dayID string) ([]domain.DomainEvent, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT event_id, day_id, sequence_number, event_type, actor_id, payload, prev_event_hash, event_hash, occurred_at
		FROM coordinator_events WHERE day_id = $1 ORDER BY sequence_number ASC
	`, dayID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query by day: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) QueryByType(eventType string, r *storage.EventRange) ([]domain.DomainEvent, error) {
	query := `
		SELECT event_id, day_id, sequence_number, event_type, actor_id, payload, prev_event_hash, event_hash, occurred_at
		FROM coordinator_events WHERE event_type = $1
	`
	args := []interface{}{eventType}
	query, args = appendRange(query, args, r)
	query += " ORDER BY global_seq ASC"

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query by type: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) QueryByActor(actorID string, r *storage.EventRange) ([]domain.DomainEvent, error) {
	query := `
		SELECT event_id, day_id, sequence_number, event_type, actor_id, payload, prev_event_hash, event_hash, occurred_at
		FROM coordinator_events WHERE actor_id = $1
	`
	args := []interface{}{actorID}
	query, args = appendRange(query, args, r)
	query += " ORDER BY global_seq ASC"

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query by actor: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func appendRange(query string, args []interface{}, r *storage.EventRange) (string, []interface{}) {
	if r == nil {
		return query, args
	}
	if !r.From.IsZero() {
		args = append(args, r.From)
		query += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if !r.To.IsZero() {
		args = append(args, r.To)
		query += fmt.Sprintf(" AND occurred_at <= $%d", len(args))
	}
	return query, args
}

func (s *Store) GetLastEvent() (domain.DomainEvent, bool, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT event_id, day_id, sequence_number, event_type, actor_id, payload, prev_event_hash, event_hash, occurred_at
		FROM coordinator_events ORDER BY global_seq DESC LIMIT 1
	`)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DomainEvent{}, false, nil
	}
	if err != nil {
		return domain.DomainEvent{}, false, fmt.Errorf("pgstore: get last event: %w", err)
	}
	return ev, true, nil
}

func (s *Store) GetLastEventForDay(dayID string) (domain.DomainEvent, bool, error) {
	row := s.db.QueryRowContext(context.Background(), `
		SELECT event_id, day_id, sequence_number, event_type, actor_id, payload, prev_event_hash, event_hash, occurred_at
		FROM coordinator_events WHERE day_id = $1 ORDER BY sequence_number DESC LIMIT 1
	`, dayID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DomainEvent{}, false, nil
	}
	if err != nil {
		return domain.DomainEvent{}, false, fmt.Errorf("pgstore: get last event for day: %w", err)
	}
	return ev, true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (domain.DomainEvent, error) {
	var e domain.DomainEvent
	var actorID sql.NullString
	var payload []byte
	if err := row.Scan(&e.EventID, &e.DayID, &e.SequenceNumber, &e.EventType, &actorID, &payload, &e.PrevEventHash, &e.EventHash, &e.Timestamp); err != nil {
		return domain.DomainEvent{}, err
	}
	e.ActorID = actorID.String
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return domain.DomainEvent{}, fmt.Errorf("unmarshal payload for event %s: %w", e.EventID, err)
	}
	return e, nil
}

func scanEvents(rows *sql.Rows) ([]domain.DomainEvent, error) {
	var out []domain.DomainEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- StateStore ---

func (s *Store) SaveSnapshot(snap domain.StateSnapshot) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO coordinator_snapshots (day_id, day_number, state_hash, last_event_hash, reward_hash, contributor_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (day_id) DO UPDATE SET
			day_number = EXCLUDED.day_number, state_hash = EXCLUDED.state_hash, last_event_hash = EXCLUDED.last_event_hash,
			reward_hash = EXCLUDED.reward_hash, contributor_count = EXCLUDED.contributor_count, created_at = EXCLUDED.created_at
	`, snap.DayID, snap.DayNumber, snap.StateHash, snap.LastEventHash, snap.RewardHash, snap.ContributorCount, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: save snapshot: %w", err)
	}
	return nil
}

func (s *Store) LoadSnapshot(dayID string) (domain.StateSnapshot, bool, error) {
	var snap domain.StateSnapshot
	err := s.db.QueryRowContext(context.Background(), `
		SELECT day_id, day_number, state_hash, last_event_hash, reward_hash, contributor_count, created_at
		FROM coordinator_snapshots WHERE day_id = $1
	`, dayID).Scan(&snap.DayID, &snap.DayNumber, &snap.StateHash, &snap.LastEventHash, &snap.RewardHash, &snap.ContributorCount, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StateSnapshot{}, false, nil
	}
	if err != nil {
		return domain.StateSnapshot{}, false, fmt.Errorf("pgstore: load snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *Store) LoadLatestSnapshot() (domain.StateSnapshot, bool, error) {
	var snap domain.StateSnapshot
	err := s.db.QueryRowContext(context.Background(), `
		SELECT day_id, day_number, state_hash, last_event_hash, reward_hash, contributor_count, created_at
		FROM coordinator_snapshots ORDER BY day_number DESC LIMIT 1
	`).Scan(&snap.DayID, &snap.DayNumber, &snap.StateHash, &snap.LastEventHash, &snap.RewardHash, &snap.ContributorCount, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StateSnapshot{}, false, nil
	}
	if err != nil {
		return domain.StateSnapshot{}, false, fmt.Errorf("pgstore: load latest snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *Store) SaveState(dayID string, state domain.NetworkState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("pgstore: marshal state: %w", err)
	}
	_, err = s.db.ExecContext(context.Background(), `
		INSERT INTO coordinator_states (day_id, state) VALUES ($1, $2)
		ON CONFLICT (day_id) DO UPDATE SET state = EXCLUDED.state
	`, dayID, blob)
	if err != nil {
		return fmt.Errorf("pgstore: save state: %w", err)
	}
	return nil
}

func (s *Store) LoadState(dayID string) (domain.NetworkState, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(context.Background(), `SELECT state FROM coordinator_states WHERE day_id = $1`, dayID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NetworkState{}, false, nil
	}
	if err != nil {
		return domain.NetworkState{}, false, fmt.Errorf("pgstore: load state: %w", err)
	}
	var state domain.NetworkState
	if err := json.Unmarshal(blob, &state); err != nil {
		return domain.NetworkState{}, false, fmt.Errorf("pgstore: unmarshal state: %w", err)
	}
	return state, true, nil
}

// --- AssignmentStore ---

func (s *Store) PutAssignments(dayID string, assignments []domain.BlockAssignment) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin put assignments tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM coordinator_assignments WHERE day_id = $1`, dayID); err != nil {
		return fmt.Errorf("pgstore: clear assignments: %w", err)
	}
	for _, a := range assignments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO coordinator_assignments (day_id, contributor_id, block_ids, batch_number, assigned_at)
			VALUES ($1, $2, $3, $4, $5)
		`, dayID, a.ContributorID, pq.Array(a.BlockIDs), a.BatchNumber, a.AssignedAt); err != nil {
			return fmt.Errorf("pgstore: insert assignment for %s: %w", a.ContributorID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: commit put assignments tx: %w", err)
	}
	return nil
}

func (s *Store) GetByDay(dayID string) ([]domain.BlockAssignment, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT contributor_id, block_ids, batch_number, assigned_at FROM coordinator_assignments WHERE day_id = $1
	`, dayID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get assignments by day: %w", err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (s *Store) GetByNode(accountID string) ([]domain.BlockAssignment, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT contributor_id, block_ids, batch_number, assigned_at FROM coordinator_assignments WHERE contributor_id = $1
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: get assignments by node: %w", err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func scanAssignments(rows *sql.Rows) ([]domain.BlockAssignment, error) {
	var out []domain.BlockAssignment
	for rows.Next() {
		var a domain.BlockAssignment
		if err := rows.Scan(&a.ContributorID, pq.Array(&a.BlockIDs), &a.BatchNumber, &a.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- SubmissionStore ---

func (s *Store) PutSubmissions(dayID string, submissions []domain.BlockSubmission) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin put submissions tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM coordinator_submissions WHERE day_id = $1`, dayID); err != nil {
		return fmt.Errorf("pgstore: clear submissions: %w", err)
	}
	for _, sub := range submissions {
		if err := insertSubmission(ctx, tx, dayID, sub); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: commit put submissions tx: %w", err)
	}
	return nil
}

func (s *Store) AppendSubmission(dayID string, submission domain.BlockSubmission) error {
	if err := insertSubmission(context.Background(), s.db, dayID, submission); err != nil {
		return err
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertSubmission(ctx context.Context, db execer, dayID string, sub domain.BlockSubmission) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO coordinator_submissions
		(day_id, contributor_id, block_id, block_type, resource_usage, difficulty_multiplier, validation_passed, canary_answer_correct, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, dayID, sub.ContributorID, sub.BlockID, sub.BlockType, sub.ResourceUsage, sub.DifficultyMultiplier, sub.ValidationPassed, sub.CanaryAnswerCorrect, sub.Timestamp)
	if err != nil {
		return fmt.Errorf("pgstore: insert submission for %s/%s: %w", sub.ContributorID, sub.BlockID, err)
	}
	return nil
}

func (s *Store) ListByDay(dayID string) ([]domain.BlockSubmission, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT contributor_id, block_id, block_type, resource_usage, difficulty_multiplier, validation_passed, canary_answer_correct, submitted_at
		FROM coordinator_submissions WHERE day_id = $1 ORDER BY id ASC
	`, dayID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list submissions by day: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

func (s *Store) ListByNode(accountID string) ([]domain.BlockSubmission, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT contributor_id, block_id, block_type, resource_usage, difficulty_multiplier, validation_passed, canary_answer_correct, submitted_at
		FROM coordinator_submissions WHERE contributor_id = $1 ORDER BY id ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list submissions by node: %w", err)
	}
	defer rows.Close()
	return scanSubmissions(rows)
}

func scanSubmissions(rows *sql.Rows) ([]domain.BlockSubmission, error) {
	var out []domain.BlockSubmission
	for rows.Next() {
		var sub domain.BlockSubmission
		var canaryAnswer sql.NullBool
		if err := rows.Scan(&sub.ContributorID, &sub.BlockID, &sub.BlockType, &sub.ResourceUsage, &sub.DifficultyMultiplier, &sub.ValidationPassed, &canaryAnswer, &sub.Timestamp); err != nil {
			return nil, err
		}
		if canaryAnswer.Valid {
			v := canaryAnswer.Bool
			sub.CanaryAnswerCorrect = &v
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// --- OperationalStore ---

func (s *Store) PutNodeKey(accountID, publicKeyHex string) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO coordinator_node_keys (account_id, public_key_hex) VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET public_key_hex = EXCLUDED.public_key_hex
	`, accountID, publicKeyHex)
	if err != nil {
		return fmt.Errorf("pgstore: put node key: %w", err)
	}
	return nil
}

func (s *Store) GetNodeKey(accountID string) (string, bool, error) {
	var key string
	err := s.db.QueryRowContext(context.Background(), `SELECT public_key_hex FROM coordinator_node_keys WHERE account_id = $1`, accountID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pgstore: get node key: %w", err)
	}
	return key, true, nil
}

func (s *Store) PutDeviceLink(accountID, deviceID string) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO coordinator_device_links (account_id, device_id) VALUES ($1, $2)
		ON CONFLICT (account_id, device_id) DO NOTHING
	`, accountID, deviceID)
	if err != nil {
		return fmt.Errorf("pgstore: put device link: %w", err)
	}
	return nil
}

func (s *Store) ListDevices(accountID string) ([]string, error) {
	rows, err := s.db.QueryContext(context.Background(), `SELECT device_id FROM coordinator_device_links WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list devices: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) SaveDayLifecycle(l storage.DayLifecycle) error {
	roster := append([]string(nil), l.RosterAccountIDs...)
	canaries := append([]string(nil), l.CanaryBlockIDs...)
	sort.Strings(canaries)

	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO coordinator_day_lifecycle (id, phase, day_id, seed, roster_hash, roster_account_ids, canary_block_ids, day_number)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			phase = EXCLUDED.phase, day_id = EXCLUDED.day_id, seed = EXCLUDED.seed, roster_hash = EXCLUDED.roster_hash,
			roster_account_ids = EXCLUDED.roster_account_ids, canary_block_ids = EXCLUDED.canary_block_ids, day_number = EXCLUDED.day_number
	`, string(l.Phase), l.DayID, l.Seed, l.RosterHash, pq.Array(roster), pq.Array(canaries), l.DayNumber)
	if err != nil {
		return fmt.Errorf("pgstore: save day lifecycle: %w", err)
	}
	return nil
}

func (s *Store) LoadDayLifecycle() (storage.DayLifecycle, bool, error) {
	var l storage.DayLifecycle
	var phase string
	err := s.db.QueryRowContext(context.Background(), `
		SELECT phase, day_id, seed, roster_hash, roster_account_ids, canary_block_ids, day_number
		FROM coordinator_day_lifecycle WHERE id = 1
	`).Scan(&phase, &l.DayID, &l.Seed, &l.RosterHash, pq.Array(&l.RosterAccountIDs), pq.Array(&l.CanaryBlockIDs), &l.DayNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DayLifecycle{}, false, nil
	}
	if err != nil {
		return storage.DayLifecycle{}, false, fmt.Errorf("pgstore: load day lifecycle: %w", err)
	}
	l.Phase = domain.Phase(phase)
	return l, true, nil
}

// --- BalanceLedgerStore ---

func (s *Store) HasCreditedDay(dayID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM coordinator_ledger_history WHERE day_id = $1`, dayID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("pgstore: has credited day: %w", err)
	}
	return count > 0, nil
}

func (s *Store) GetBalance(accountID string) (domain.BalanceRow, bool, error) {
	var row domain.BalanceRow
	var lastRewardDay sql.NullString
	err := s.db.QueryRowContext(context.Background(), `
		SELECT account_id, balance_micro, total_earned_micro, last_reward_day FROM coordinator_balances WHERE account_id = $1
	`, accountID).Scan(&row.AccountID, &row.BalanceMicro, &row.TotalEarnedMicro, &lastRewardDay)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BalanceRow{}, false, nil
	}
	if err != nil {
		return domain.BalanceRow{}, false, fmt.Errorf("pgstore: get balance: %w", err)
	}
	row.LastRewardDay = lastRewardDay.String
	return row, true, nil
}

func (s *Store) PutBalance(row domain.BalanceRow) error {
	if row.BalanceMicro < 0 {
		return fmt.Errorf("pgstore: negative balance for %s", row.AccountID)
	}
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO coordinator_balances (account_id, balance_micro, total_earned_micro, last_reward_day)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE SET
			balance_micro = EXCLUDED.balance_micro, total_earned_micro = EXCLUDED.total_earned_micro, last_reward_day = EXCLUDED.last_reward_day
	`, row.AccountID, row.BalanceMicro, row.TotalEarnedMicro, row.LastRewardDay)
	if err != nil {
		return fmt.Errorf("pgstore: put balance: %w", err)
	}
	return nil
}

func (s *Store) AppendHistory(row domain.LedgerHistoryRow) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO coordinator_ledger_history (account_id, day_id, amount_micro, balance_after_micro, entry_type, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, row.AccountID, row.DayID, row.AmountMicro, row.BalanceAfterMicro, string(row.EntryType), row.Timestamp)
	if err != nil {
		return fmt.Errorf("pgstore: append history: %w", err)
	}
	return nil
}

func (s *Store) ListBalances() ([]domain.BalanceRow, error) {
	rows, err := s.db.QueryContext(context.Background(), `SELECT account_id, balance_micro, total_earned_micro, last_reward_day FROM coordinator_balances`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list balances: %w", err)
	}
	defer rows.Close()
	var out []domain.BalanceRow
	for rows.Next() {
		var row domain.BalanceRow
		var lastRewardDay sql.NullString
		if err := rows.Scan(&row.AccountID, &row.BalanceMicro, &row.TotalEarnedMicro, &lastRewardDay); err != nil {
			return nil, err
		}
		row.LastRewardDay = lastRewardDay.String
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) ListHistory(accountID string) ([]domain.LedgerHistoryRow, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT account_id, day_id, amount_micro, balance_after_micro, entry_type, occurred_at
		FROM coordinator_ledger_history WHERE account_id = $1 ORDER BY id ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list history: %w", err)
	}
	defer rows.Close()
	var out []domain.LedgerHistoryRow
	for rows.Next() {
		var row domain.LedgerHistoryRow
		var entryType string
		if err := rows.Scan(&row.AccountID, &row.DayID, &row.AmountMicro, &row.BalanceAfterMicro, &entryType, &row.Timestamp); err != nil {
			return nil, err
		}
		row.EntryType = domain.LedgerEntryType(entryType)
		out = append(out, row)
	}
	return out, rows.Err()
}
