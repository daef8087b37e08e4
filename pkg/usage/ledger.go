// Package usage keeps a local SQLite ledger of upstream completions.
// Only token counts, latency and a hash of the cache key are stored.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/chatline/pkg/models"
)

const pruneInterval = time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id                TEXT PRIMARY KEY,
	model             TEXT NOT NULL,
	key_hash          TEXT NOT NULL,
	prompt_tokens     INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens      INTEGER NOT NULL,
	latency_ms        INTEGER NOT NULL,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_records(created_at);
`

// Ledger records and summarizes usage.
type Ledger struct {
	db        *sql.DB
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRetention enables hourly pruning of records older than d.
// Zero disables pruning.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) { l.retention = d }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func withPruneInterval(d time.Duration) Option {
	return func(l *Ledger) { l.interval = d }
}

// Open opens (or creates) the ledger database at path.
func Open(path string, opts ...Option) (*Ledger, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage db: %w", err)
	}

	l := &Ledger{
		db:       db,
		interval: pruneInterval,
		log:      zerolog.Nop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.retention > 0 {
		l.wg.Add(1)
		go l.retentionLoop()
	}
	return l, nil
}

// Record stores one usage record.
func (l *Ledger) Record(ctx context.Context, rec models.UsageRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, model, key_hash, prompt_tokens, completion_tokens, total_tokens, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Model, rec.KeyHash, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.LatencyMs, created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Summary aggregates records created at or after since, grouped by model.
// A zero since covers everything.
func (l *Ledger) Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error) {
	query := `SELECT model, COUNT(*), COUNT(DISTINCT key_hash),
		SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens), AVG(latency_ms)
		FROM usage_records`
	var args []any
	if !since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, since.UnixNano())
	}
	query += ` GROUP BY model ORDER BY model`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("usage summary: %w", err)
	}
	defer rows.Close()

	var out []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Model, &s.RequestCount, &s.DistinctQueries,
			&s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes records created before cutoff and reports how many went.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM usage_records WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Ledger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
		err = l.db.Close()
	})
	return err
}

func (l *Ledger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			n, err := l.Prune(context.Background(), time.Now().Add(-l.retention))
			if err != nil {
				l.log.Warn().Err(err).Msg("usage prune failed")
				continue
			}
			if n > 0 {
				l.log.Debug().Int64("deleted", n).Msg("pruned usage records")
			}
		}
	}
}
