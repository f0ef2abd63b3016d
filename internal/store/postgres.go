package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/i474232898/weather-pipeline/internal/weather"
)

// PgxPool is the subset of *pgxpool.Pool the repository needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// observationColumns is the logical warehouse schema, in COPY order.
var observationColumns = []string{"id", "city", "timestamp", "temperature", "humidity", "wind_speed", "condition"}

// copyColumns adds city_key, the case-folded city every read matches on.
var copyColumns = append(slices.Clone(observationColumns), "city_key")

// PostgresRepository implements weather.Repository on PostgreSQL.
// Rows live in <dataset>.<table>; the (city_key, timestamp) index is the clustering key.
type PostgresRepository struct {
	pool    PgxPool
	dataset string
	table   string
}

var _ weather.Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(pool PgxPool, dataset, table string) *PostgresRepository {
	return &PostgresRepository{pool: pool, dataset: dataset, table: table}
}

func (r *PostgresRepository) tableIdent() pgx.Identifier {
	return pgx.Identifier{r.dataset, r.table}
}

// InitializeSchema creates the dataset schema, table and clustering index if absent.
func (r *PostgresRepository) InitializeSchema(ctx context.Context) error {
	table := r.tableIdent().Sanitize()
	index := pgx.Identifier{r.table + "_city_timestamp_idx"}.Sanitize()

	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{r.dataset}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          TEXT             NOT NULL,
			city        TEXT             NOT NULL,
			"timestamp" TIMESTAMPTZ      NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			humidity    BIGINT           NOT NULL CHECK (humidity BETWEEN 0 AND 100),
			wind_speed  DOUBLE PRECISION NOT NULL CHECK (wind_speed >= 0),
			condition   TEXT             NOT NULL,
			city_key    TEXT             NOT NULL
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (city_key, "timestamp" DESC)`, index, table),
	}

	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return &weather.StorageError{Op: weather.StorageSchemaInit, Err: fmt.Errorf("postgres: %w", err)}
		}
	}
	slog.Info("postgres: schema ready", "table", table)
	return nil
}

// Write bulk-loads observations with COPY inside one transaction.
func (r *PostgresRepository) Write(ctx context.Context, observations []weather.Observation) (n int, err error) {
	if len(observations) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(observations))
	for _, o := range observations {
		if err := o.Validate(); err != nil {
			return 0, &weather.StorageError{Op: weather.StorageWrite, Err: err}
		}
		rows = append(rows, []any{o.ID, o.City, o.Timestamp, o.Temperature, int64(o.Humidity), o.WindSpeed, o.Condition, weather.CityKey(o.City)})
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, &weather.StorageError{Op: weather.StorageWrite, Err: fmt.Errorf("postgres: begin: %w", err)}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	copied, err := tx.CopyFrom(ctx, r.tableIdent(), copyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, &weather.StorageError{Op: weather.StorageWrite, Err: fmt.Errorf("postgres: copy: %w", err)}
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, &weather.StorageError{Op: weather.StorageWrite, Err: fmt.Errorf("postgres: commit: %w", err)}
	}
	return int(copied), nil
}

func (r *PostgresRepository) selectSQL(where, suffix string) string {
	return fmt.Sprintf(`SELECT id, city, "timestamp", temperature, humidity, wind_speed, condition
		FROM %s
		WHERE %s
		ORDER BY "timestamp" DESC%s`, r.tableIdent().Sanitize(), where, suffix)
}

// ReadLatest returns the most recent observation for a city.
func (r *PostgresRepository) ReadLatest(ctx context.Context, city string) (weather.Observation, error) {
	query := r.selectSQL(`city_key = $1`, "\n\t\tLIMIT 1")

	o, err := scanObservation(r.pool.QueryRow(ctx, query, weather.CityKey(city)))
	if errors.Is(err, pgx.ErrNoRows) {
		return weather.Observation{}, weather.ErrNotFound
	}
	if err != nil {
		return weather.Observation{}, &weather.StorageError{Op: weather.StorageRead, Err: fmt.Errorf("postgres: latest %q: %w", city, err)}
	}
	return o, nil
}

// ReadRange returns observations at or after since, newest first.
func (r *PostgresRepository) ReadRange(ctx context.Context, city string, since time.Time) ([]weather.Observation, error) {
	query := r.selectSQL(`city_key = $1 AND "timestamp" >= $2`, "")

	rows, err := r.pool.Query(ctx, query, weather.CityKey(city), since.UTC())
	if err != nil {
		return nil, &weather.StorageError{Op: weather.StorageRead, Err: fmt.Errorf("postgres: range %q: %w", city, err)}
	}
	defer rows.Close()

	results := make([]weather.Observation, 0)
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, &weather.StorageError{Op: weather.StorageRead, Err: fmt.Errorf("postgres: scan: %w", err)}
		}
		results = append(results, o)
	}
	if err := rows.Err(); err != nil {
		return nil, &weather.StorageError{Op: weather.StorageRead, Err: fmt.Errorf("postgres: range %q: %w", city, err)}
	}
	return results, nil
}

// Health checks database connectivity.
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

func scanObservation(row pgx.Row) (weather.Observation, error) {
	var (
		o        weather.Observation
		humidity int64
	)
	if err := row.Scan(&o.ID, &o.City, &o.Timestamp, &o.Temperature, &humidity, &o.WindSpeed, &o.Condition); err != nil {
		return weather.Observation{}, err
	}
	o.Humidity = int(humidity)
	o.Timestamp = o.Timestamp.UTC()
	return o, nil
}
