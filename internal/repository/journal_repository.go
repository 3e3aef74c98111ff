package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"TradeSentinel/internal/domain/models"
)

// Execer is satisfied by *sql.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ClickHouseJournal appends signals, trades and outcomes to a ClickHouse table.
// Startup and shutdown chatter is not journaled.
type ClickHouseJournal struct {
	db       Execer
	database string
	table    string
}

// NewClickHouseJournal validates the table identifier since it is interpolated into SQL.
func NewClickHouseJournal(db Execer, database, table string) (*ClickHouseJournal, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("journal: invalid table name %q", table)
	}
	qualified := table
	if database != "" {
		if !identRe.MatchString(database) {
			return nil, fmt.Errorf("journal: invalid database name %q", database)
		}
		qualified = database + "." + table
	}
	return &ClickHouseJournal{db: db, database: database, table: qualified}, nil
}

func (j *ClickHouseJournal) Name() string    { return "journal" }
func (j *ClickHouseJournal) Throttled() bool { return false }

// Schema returns the idempotent DDL for the journal table.
func (j *ClickHouseJournal) Schema() []string {
	var stmts []string
	if j.database != "" {
		stmts = append(stmts, "CREATE DATABASE IF NOT EXISTS "+j.database)
	}
	return append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts DateTime64(3, 'UTC'),
	kind LowCardinality(String),
	instrument LowCardinality(String),
	signal_id String,
	order_id String,
	result LowCardinality(String),
	profit Float64,
	fields String
) ENGINE = MergeTree ORDER BY (instrument, ts)`, j.table),
	)
}

func (j *ClickHouseJournal) Send(ctx context.Context, n models.Notification) error {
	switch n.Kind {
	case models.NotifySignal, models.NotifyTrade, models.NotifyNotTradable, models.NotifyOutcome:
	default:
		return nil
	}

	fields, err := json.Marshal(n.Fields)
	if err != nil {
		return fmt.Errorf("journal: marshal fields: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, kind, instrument, signal_id, order_id, result, profit, fields) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", j.table)
	_, err = j.db.ExecContext(ctx, q,
		n.CreatedAt.UTC(),
		string(n.Kind),
		n.Instrument,
		fieldString(n.Fields, "signal_id"),
		fieldString(n.Fields, "order_id"),
		fieldString(n.Fields, "result"),
		fieldFloat(n.Fields, "profit"),
		string(fields),
	)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

func fieldString(m map[string]interface{}, k string) string {
	if v, ok := m[k]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func fieldFloat(m map[string]interface{}, k string) float64 {
	switch v := m[k].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		var f float64
		if _, err := fmt.Sscan(v, &f); err == nil {
			return f
		}
	}
	return 0
}
