package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/simulator/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			test_id TEXT NOT NULL,
			user_id TEXT,
			status TEXT NOT NULL,
			total_scenarios INTEGER NOT NULL DEFAULT 0,
			completed_scenarios INTEGER NOT NULL DEFAULT 0,
			stats TEXT,
			error TEXT,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_test ON runs(test_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			scenario_id TEXT NOT NULL,
			status TEXT NOT NULL,
			turns TEXT NOT NULL DEFAULT '[]',
			total_turns INTEGER NOT NULL DEFAULT 0,
			summary TEXT,
			end_reason TEXT,
			goal_achieved INTEGER,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_run ON conversations(run_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_status ON conversations(status)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	var metadata sql.NullString
	if len(run.Metadata) > 0 {
		metadata = sql.NullString{String: string(run.Metadata), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, test_id, user_id, status, total_scenarios, completed_scenarios, started_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.TestID, run.UserID, run.Status, run.TotalScenarios, run.CompletedScenarios, run.StartedAt, metadata)
	return err
}

const runColumns = `run_id, test_id, user_id, status, total_scenarios, completed_scenarios, stats, error, started_at, completed_at, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var userID, stats, errMsg, metadata sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(&run.RunID, &run.TestID, &userID, &run.Status, &run.TotalScenarios, &run.CompletedScenarios,
		&stats, &errMsg, &run.StartedAt, &completedAt, &metadata); err != nil {
		return nil, err
	}
	run.UserID = userID.String
	run.Error = errMsg.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if stats.Valid && stats.String != "" {
		var st domain.RunStats
		if err := json.Unmarshal([]byte(stats.String), &st); err != nil {
			return nil, fmt.Errorf("failed to decode run stats: %w", err)
		}
		run.Stats = &st
	}
	if metadata.Valid {
		run.Metadata = json.RawMessage(metadata.String)
	}
	return &run, nil
}

// GetRun retrieves a run by ID. It returns (nil, nil) when the run does not exist.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns lists the most recent runs, optionally filtered by test.
func (s *SQLiteStore) ListRuns(ctx context.Context, testID string, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if testID != "" {
		query += ` WHERE test_id = ?`
		args = append(args, testID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// StartRun records the scenario total and moves the run to running.
func (s *SQLiteStore) StartRun(ctx context.Context, runID string, totalScenarios int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, total_scenarios = ?, completed_scenarios = 0 WHERE run_id = ? AND status = ?`,
		domain.RunStatusRunning, totalScenarios, runID, domain.RunStatusPending)
	return err
}

// IncrementCompletedScenarios atomically adds one to the completed counter
// and returns the new value.
func (s *SQLiteStore) IncrementCompletedScenarios(ctx context.Context, runID string) (int, error) {
	var completed int
	err := s.db.QueryRowContext(ctx,
		`UPDATE runs SET completed_scenarios = completed_scenarios + 1 WHERE run_id = ? RETURNING completed_scenarios`,
		runID).Scan(&completed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrRunNotFound
	}
	return completed, err
}

// CompleteRun marks the run completed with its stats unless it was canceled
// in the meantime. It reports whether the run was marked.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats *domain.RunStats) (bool, error) {
	var statsJSON sql.NullString
	if stats != nil {
		data, err := json.Marshal(stats)
		if err != nil {
			return false, fmt.Errorf("failed to encode run stats: %w", err)
		}
		statsJSON = sql.NullString{String: string(data), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, completed_at = ? WHERE run_id = ? AND status NOT IN (?, ?)`,
		domain.RunStatusCompleted, statsJSON, time.Now(), runID, domain.RunStatusCanceled, domain.RunStatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FailRun marks the run failed with message.
func (s *SQLiteStore) FailRun(ctx context.Context, runID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE run_id = ?`,
		domain.RunStatusFailed, message, time.Now(), runID)
	return err
}

// CancelRun marks a pending or running run canceled. It reports whether the
// run was still cancelable.
func (s *SQLiteStore) CancelRun(ctx context.Context, runID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ? WHERE run_id = ? AND status IN (?, ?)`,
		domain.RunStatusCanceled, time.Now(), runID, domain.RunStatusPending, domain.RunStatusRunning)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FailInterruptedRuns fails every pending or running run. It is meant for
// startup, when no run can still be executing.
func (s *SQLiteStore) FailInterruptedRuns(ctx context.Context, message string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE status IN (?, ?)`,
		domain.RunStatusFailed, message, time.Now(), domain.RunStatusPending, domain.RunStatusRunning)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CreateConversation inserts a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	turns, err := encodeTurns(conv.Turns)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, run_id, scenario_id, status, turns, total_turns, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ConversationID, conv.RunID, conv.ScenarioID, conv.Status, turns, len(conv.Turns), conv.StartedAt)
	return err
}

// UpdateConversation writes the turns and outcome of a running conversation.
// Finalized conversations are never rewritten.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *domain.Conversation) error {
	turns, err := encodeTurns(conv.Turns)
	if err != nil {
		return err
	}
	var goal sql.NullBool
	if conv.GoalAchieved != nil {
		goal = sql.NullBool{Bool: *conv.GoalAchieved, Valid: true}
	}
	var reason sql.NullString
	if conv.EndReason != nil {
		reason = sql.NullString{String: *conv.EndReason, Valid: true}
	}
	var completedAt sql.NullTime
	if conv.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *conv.CompletedAt, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, turns = ?, total_turns = ?, end_reason = ?, goal_achieved = ?, completed_at = ?
		 WHERE conversation_id = ? AND status = ?`,
		conv.Status, turns, len(conv.Turns), reason, goal, completedAt, conv.ConversationID, domain.ConversationStatusRunning)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConversationFinalized
	}
	return nil
}

const conversationColumns = `conversation_id, run_id, scenario_id, status, turns, total_turns, summary, end_reason, goal_achieved, started_at, completed_at`

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var turns string
	var summary, reason sql.NullString
	var goal sql.NullBool
	var completedAt sql.NullTime
	if err := row.Scan(&conv.ConversationID, &conv.RunID, &conv.ScenarioID, &conv.Status, &turns, &conv.TotalTurns,
		&summary, &reason, &goal, &conv.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(turns), &conv.Turns); err != nil {
		return nil, fmt.Errorf("failed to decode turns: %w", err)
	}
	if summary.Valid {
		conv.Summary = &summary.String
	}
	if reason.Valid {
		conv.EndReason = &reason.String
	}
	if goal.Valid {
		conv.GoalAchieved = &goal.Bool
	}
	if completedAt.Valid {
		conv.CompletedAt = &completedAt.Time
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID, or (nil, nil) when missing.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE conversation_id = ?`, conversationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

// ListConversations lists a run's conversations in start order.
func (s *SQLiteStore) ListConversations(ctx context.Context, runID string) ([]domain.Conversation, error) {
	return s.queryConversations(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE run_id = ? ORDER BY started_at ASC, rowid ASC`, runID)
}

// ListStaleConversations lists running conversations whose run reached a
// terminal status before endedBefore.
func (s *SQLiteStore) ListStaleConversations(ctx context.Context, endedBefore time.Time) ([]domain.Conversation, error) {
	return s.queryConversations(ctx,
		`SELECT c.conversation_id, c.run_id, c.scenario_id, c.status, c.turns, c.total_turns, c.summary, c.end_reason,
		        c.goal_achieved, c.started_at, c.completed_at
		 FROM conversations c JOIN runs r ON r.run_id = c.run_id
		 WHERE c.status = ? AND r.status IN (?, ?, ?) AND r.completed_at IS NOT NULL AND r.completed_at < ?
		 ORDER BY c.started_at ASC`,
		domain.ConversationStatusRunning,
		domain.RunStatusCompleted, domain.RunStatusFailed, domain.RunStatusCanceled,
		endedBefore)
}

func (s *SQLiteStore) queryConversations(ctx context.Context, query string, args ...any) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, rows.Err()
}

// SetConversationSummary stores the summary once; later writes are ignored.
func (s *SQLiteStore) SetConversationSummary(ctx context.Context, conversationID, summary string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET summary = ? WHERE conversation_id = ? AND summary IS NULL`,
		summary, conversationID)
	return err
}

// FailConversation moves a running conversation to error. It reports whether
// the conversation was still running.
func (s *SQLiteStore) FailConversation(ctx context.Context, conversationID, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET status = ?, end_reason = ?, goal_achieved = 0, completed_at = ?
		 WHERE conversation_id = ? AND status = ?`,
		domain.ConversationStatusError, reason, time.Now(), conversationID, domain.ConversationStatusRunning)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	payload := ""
	if event.Payload != nil {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, event.Type, payload)
	return err
}

// GetEvents retrieves events for a run.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, run_id, ts, type, payload FROM events WHERE run_id = ?`
	args := []any{runID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.RunID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func encodeTurns(turns []domain.Turn) (string, error) {
	if turns == nil {
		turns = []domain.Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return "", fmt.Errorf("failed to encode turns: %w", err)
	}
	return string(data), nil
}
