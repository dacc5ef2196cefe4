package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sidecarlabs/agora/pkg/models"
)

// SQLiteStore persists the registry in an SQLite database. Rating updates
// run inside a transaction: an append to the rating_events log plus the
// derived projection update commit together or not at all.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// DefaultDBPath returns the path to the registry database under the
// XDG data directory.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "agora", "registry.db")
}

// OpenSQLite opens (creating if necessary) an SQLite registry at path.
// WAL mode is enabled for concurrent reads.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{conn: conn, path: path}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS services (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		capabilities    TEXT NOT NULL,
		price_micros    INTEGER NOT NULL,
		currency        TEXT NOT NULL,
		endpoint        TEXT NOT NULL,
		retired         INTEGER NOT NULL DEFAULT 0,
		registered_at   TEXT NOT NULL,
		total_jobs      INTEGER NOT NULL DEFAULT 0,
		success_rate    REAL NOT NULL DEFAULT 0,
		avg_response_ms INTEGER NOT NULL DEFAULT 0,
		rating          REAL NOT NULL DEFAULT 0,
		review_count    INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS rating_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		service_id TEXT NOT NULL REFERENCES services(id),
		score      REAL NOT NULL,
		review     TEXT NOT NULL DEFAULT '',
		rated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rating_events_service
		ON rating_events(service_id);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Register persists a new descriptor.
func (s *SQLiteStore) Register(ctx context.Context, desc *models.ServiceDescriptor) error {
	if err := Validate(desc); err != nil {
		return err
	}

	caps, err := json.Marshal(desc.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	registeredAt := desc.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO services (id, name, description, capabilities,
			price_micros, currency, endpoint, retired, registered_at,
			total_jobs, success_rate, avg_response_ms, rating, review_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		desc.ID, desc.Name, desc.Description, string(caps),
		desc.Price.Micros, desc.Price.Currency, desc.Endpoint,
		registeredAt.Format(time.RFC3339Nano),
		desc.Reputation.TotalJobs, desc.Reputation.SuccessRate,
		desc.Reputation.AvgResponseTime.Milliseconds(),
		desc.Reputation.Rating, desc.Reputation.ReviewCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, desc.ID)
		}
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

// Get returns the descriptor for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.ServiceDescriptor, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, name, description, capabilities, price_micros, currency,
			endpoint, retired, registered_at, total_jobs, success_rate,
			avg_response_ms, rating, review_count
		FROM services WHERE id = ?`, id)

	desc, err := scanService(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return desc, nil
}

// Search returns services matching all filters. Filtering happens in Go on
// top of a full scan of non-retired rows; registries are small and the
// capability filter does not map cleanly to SQL.
func (s *SQLiteStore) Search(ctx context.Context, q models.SearchQuery) ([]*models.ServiceDescriptor, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, description, capabilities, price_micros, currency,
			endpoint, retired, registered_at, total_jobs, success_rate,
			avg_response_ms, rating, review_count
		FROM services WHERE retired = 0`)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var results []*models.ServiceDescriptor
	for rows.Next() {
		desc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		if matches(desc, q) {
			results = append(results, desc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}

	sortResults(results)
	return paginate(results, q.Limit, q.Offset), nil
}

// Rate appends a review to rating_events and updates the running-mean
// projection in the same transaction.
func (s *SQLiteStore) Rate(ctx context.Context, id string, score float64, review string) error {
	if err := ValidateScore(score); err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rating tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM services WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check service: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rating_events (service_id, score, review, rated_at)
		VALUES (?, ?, ?, ?)`,
		id, score, review, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("append rating event: %w", err)
	}

	// Running mean: new = (old*count + score) / (count+1).
	if _, err := tx.ExecContext(ctx, `
		UPDATE services
		SET rating = (rating * review_count + ?) / (review_count + 1),
			review_count = review_count + 1
		WHERE id = ?`, score, id); err != nil {
		return fmt.Errorf("update rating projection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rating tx: %w", err)
	}
	return nil
}

// Retire soft-retires a service.
func (s *SQLiteStore) Retire(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE services SET retired = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("retire service: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("retire service: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanService(row rowScanner) (*models.ServiceDescriptor, error) {
	var (
		desc         models.ServiceDescriptor
		caps         string
		priceMicros  int64
		currency     string
		retired      int
		registeredAt string
		avgMs        int64
	)
	err := row.Scan(&desc.ID, &desc.Name, &desc.Description, &caps,
		&priceMicros, &currency, &desc.Endpoint, &retired, &registeredAt,
		&desc.Reputation.TotalJobs, &desc.Reputation.SuccessRate,
		&avgMs, &desc.Reputation.Rating, &desc.Reputation.ReviewCount)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(caps), &desc.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	desc.Price = models.NewMoney(priceMicros, currency)
	desc.Retired = retired != 0
	desc.Reputation.AvgResponseTime = time.Duration(avgMs) * time.Millisecond
	if t, err := time.Parse(time.RFC3339Nano, registeredAt); err == nil {
		desc.RegisteredAt = t
	}
	return &desc, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

// Verify SQLiteStore implements Store at compile time.
var _ Store = (*SQLiteStore)(nil)
