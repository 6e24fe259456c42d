package collector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"dbmon/internal/event"
	"dbmon/internal/logger"
	"dbmon/internal/models"
)

var (
	// ErrSessionNotFound is returned when the target session no longer
	// exists (already terminated, or stale data from the store).
	ErrSessionNotFound = errors.New("session not found")
	// ErrOwnSession is returned when asked to kill the collector's own
	// connection.
	ErrOwnSession = errors.New("cannot kill the monitor's own session")
)

// SQLCollector samples runtime state from a live SQL Server instance via
// its dynamic management views.
type SQLCollector struct {
	db   *sql.DB
	norm *event.Normalizer
}

func NewSQLCollector(connString string, norm *event.Normalizer) (*SQLCollector, error) {
	if connString == "" {
		return nil, fmt.Errorf("sql connection string is required for live collection")
	}
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql server connection: %w", err)
	}
	return &SQLCollector{db: db, norm: norm}, nil
}

func (c *SQLCollector) Close() error { return c.db.Close() }

// TestConnection verifies the instance is reachable.
func (c *SQLCollector) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping sql server: %w", err)
	}
	return nil
}

// Collect samples every event type in one pass. A failing query loses only
// its own event type, never the whole batch: the error is logged and
// collection continues.
func (c *SQLCollector) Collect(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	for _, eventType := range models.EventTypes {
		query, ok := Queries[eventType]
		if !ok {
			continue
		}
		batch, err := c.collectQuery(ctx, eventType, query)
		if err != nil {
			logger.Warn("Failed to collect event type",
				zap.String("event_type", eventType),
				zap.Error(err),
			)
			continue
		}
		events = append(events, batch...)
	}

	deadlocks, err := c.collectQuery(ctx, models.EventTypeDeadlocks, DeadlockQuery)
	if err != nil {
		logger.Warn("Failed to collect deadlocks", zap.Error(err))
	} else {
		events = append(events, deadlocks...)
	}

	return events, nil
}

// CollectType samples a single event type, used by the live delta views.
func (c *SQLCollector) CollectType(ctx context.Context, eventType string) ([]models.Event, error) {
	if eventType == models.EventTypeDeadlocks {
		return c.collectQuery(ctx, eventType, DeadlockQuery)
	}
	query, ok := Queries[eventType]
	if !ok {
		return nil, fmt.Errorf("no query for event type %q", eventType)
	}
	return c.collectQuery(ctx, eventType, query)
}

func (c *SQLCollector) collectQuery(ctx context.Context, eventType, query string) ([]models.Event, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", eventType, err)
	}
	defer rows.Close()

	raw, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s rows: %w", eventType, err)
	}

	events := make([]models.Event, 0, len(raw))
	for _, row := range raw {
		events = append(events, c.norm.FromRow(eventType, row))
	}
	return events, nil
}

// KillSession terminates a SQL Server session after verifying it exists and
// is not the monitor's own connection. KILL cannot run inside a
// transaction, so the statement goes straight to the pool connection.
func (c *SQLCollector) KillSession(ctx context.Context, sessionID int) error {
	var found int
	err := c.db.QueryRowContext(ctx,
		"SELECT session_id FROM sys.dm_exec_sessions WHERE session_id = @p1", sessionID,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up session %d: %w", sessionID, err)
	}

	var ownSPID int
	if err := c.db.QueryRowContext(ctx, "SELECT @@SPID").Scan(&ownSPID); err != nil {
		return fmt.Errorf("failed to read own spid: %w", err)
	}
	if sessionID == ownSPID {
		return ErrOwnSession
	}

	// Session IDs are validated integers, so building the statement with
	// Sprintf is safe; KILL does not accept parameters.
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("KILL %d", sessionID)); err != nil {
		return fmt.Errorf("failed to kill session %d: %w", sessionID, err)
	}
	logger.Info("Session killed", zap.Int("session_id", sessionID))
	return nil
}

// scanRows turns a generic result set into column-name keyed rows. Byte
// slices become strings so payloads serialize as text rather than base64.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
