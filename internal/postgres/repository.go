package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sprintboard/internal/config"
	"github.com/sprintboard/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaches
const uniqueViolation = "23505"

// Repository provides PostgreSQL-based data access for sprint results
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS results (
			id BIGSERIAL PRIMARY KEY,
			event VARCHAR(64) NOT NULL DEFAULT '',
			device VARCHAR(64) NOT NULL DEFAULT '',
			country VARCHAR(8) NOT NULL,
			time_seconds DOUBLE PRECISION NOT NULL,
			t_qr TIMESTAMP,
			nonce VARCHAR(128) NOT NULL,
			sig TEXT NOT NULL DEFAULT '',
			name VARCHAR(255) NOT NULL,
			age INT,
			gender VARCHAR(32),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(nonce)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_country_time ON results(country, time_seconds ASC)`,
		`CREATE INDEX IF NOT EXISTS idx_results_time ON results(time_seconds ASC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// InsertResult persists a registration and returns the stored row's id and
// creation time. A nonce seen before maps to domain.ErrDuplicateEntry.
func (r *Repository) InsertResult(ctx context.Context, reg domain.Registration) (int64, time.Time, error) {
	query := `
		INSERT INTO results (event, device, country, time_seconds, t_qr, nonce, sig, name, age, gender, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	now := time.Now().UTC()
	var id int64
	err := r.pool.QueryRow(ctx, query,
		reg.Event,
		reg.Device,
		reg.Country,
		reg.TimeSeconds(),
		reg.QRTimestamp(),
		reg.Nonce,
		reg.Sig,
		strings.TrimSpace(reg.Name),
		reg.Age,
		reg.Gender,
		now,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, time.Time{}, domain.ErrDuplicateEntry
		}
		return 0, time.Time{}, fmt.Errorf("inserting result: %w", err)
	}
	return id, now, nil
}

const rowColumns = `id, name, age, gender, country, time_seconds, created_at, t_qr`

func scanRow(scan func(dest ...any) error) (domain.Row, error) {
	var row domain.Row
	err := scan(
		&row.ID,
		&row.Name,
		&row.Age,
		&row.Gender,
		&row.Country,
		&row.TimeSeconds,
		&row.CreatedAt,
		&row.TQR,
	)
	return row, err
}

// GetResult retrieves a single result row by id
func (r *Repository) GetResult(ctx context.Context, id int64) (*domain.Row, error) {
	query := `SELECT ` + rowColumns + ` FROM results WHERE id = $1`
	row, err := scanRow(r.pool.QueryRow(ctx, query, id).Scan)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrResultNotFound
		}
		return nil, fmt.Errorf("getting result: %w", err)
	}
	return &row, nil
}

// DeleteResult removes a stored result row
func (r *Repository) DeleteResult(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResultNotFound
	}
	return nil
}

// ResultsByIDs retrieves result rows for the given ids. The returned map is
// keyed by id so callers can restore whatever ordering they started with.
func (r *Repository) ResultsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Row, error) {
	if len(ids) == 0 {
		return map[int64]domain.Row{}, nil
	}

	query := `SELECT ` + rowColumns + ` FROM results WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("getting results by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]domain.Row, len(ids))
	for rows.Next() {
		row, err := scanRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		if row.ID != nil {
			byID[*row.ID] = row
		}
	}
	return byID, rows.Err()
}

// TopByCountry returns the best n results for a country, fastest first
func (r *Repository) TopByCountry(ctx context.Context, country string, n int) ([]domain.Row, error) {
	query := `
		SELECT ` + rowColumns + `
		FROM results
		WHERE country = $1
		ORDER BY time_seconds ASC, id ASC
		LIMIT $2
	`
	return r.queryRows(ctx, query, country, n)
}

// TopGlobal returns the best n results worldwide, fastest first
func (r *Repository) TopGlobal(ctx context.Context, n int) ([]domain.Row, error) {
	query := `
		SELECT ` + rowColumns + `
		FROM results
		ORDER BY time_seconds ASC, id ASC
		LIMIT $1
	`
	return r.queryRows(ctx, query, n)
}

func (r *Repository) queryRows(ctx context.Context, query string, args ...any) ([]domain.Row, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var results []domain.Row
	for rows.Next() {
		row, err := scanRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// AllTimesByCountry returns id -> time for every result of a country.
// An empty country selects all results (for the global board rebuild).
func (r *Repository) AllTimesByCountry(ctx context.Context, country string) (map[int64]float64, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if country == "" {
		rows, err = r.pool.Query(ctx, `SELECT id, time_seconds FROM results`)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT id, time_seconds FROM results WHERE country = $1`, country)
	}
	if err != nil {
		return nil, fmt.Errorf("getting times: %w", err)
	}
	defer rows.Close()

	times := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var timeSec float64
		if err := rows.Scan(&id, &timeSec); err != nil {
			return nil, fmt.Errorf("scanning time: %w", err)
		}
		times[id] = timeSec
	}
	return times, rows.Err()
}

// Countries returns every country code with at least one recorded result
func (r *Repository) Countries(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT country FROM results ORDER BY country`)
	if err != nil {
		return nil, fmt.Errorf("listing countries: %w", err)
	}
	defer rows.Close()

	var countries []string
	for rows.Next() {
		var country string
		if err := rows.Scan(&country); err != nil {
			return nil, fmt.Errorf("scanning country: %w", err)
		}
		countries = append(countries, country)
	}
	return countries, rows.Err()
}

// ResultCount returns the total number of stored results
func (r *Repository) ResultCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM results`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting results: %w", err)
	}
	return count, nil
}
