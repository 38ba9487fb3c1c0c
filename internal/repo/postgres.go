/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package repo

import (
    "context"
    "errors"
    "time"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/open-craft/sprints/internal/config"
    "github.com/open-craft/sprints/internal/domain"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS job_runs(
            id uuid PRIMARY KEY,
            started_at timestamptz NOT NULL,
            finished_at timestamptz,
            cells jsonb,
            cells_built int,
            cells_failed int,
            success boolean,
            error text)`,
        `CREATE TABLE IF NOT EXISTS snapshots(
            board_id bigint NOT NULL,
            window_start date NOT NULL,
            payload jsonb NOT NULL,
            created_at timestamptz NOT NULL DEFAULT now(),
            PRIMARY KEY(board_id, window_start))`,
        `CREATE TABLE IF NOT EXISTS webhooks(
            id bigserial PRIMARY KEY,
            url text NOT NULL UNIQUE,
            active boolean NOT NULL DEFAULT true,
            created_at timestamptz NOT NULL DEFAULT now())`,
    }
    for _, q := range stmts {
        if _, err := r.db.Pool.Exec(ctx, q); err != nil { return err }
    }
    return nil
}

// Job runs
func (r *Repository) StartJobRun(ctx context.Context, cellsJSON string) (string, error) {
    id := uuid.NewString()
    const q = `INSERT INTO job_runs(id, started_at, cells, success) VALUES($1, now(), $2, false)`
    if _, err := r.db.Pool.Exec(ctx, q, id, cellsJSON); err != nil { return "", err }
    return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id string, built, failed int, success bool, errStr string) error {
    const q = `UPDATE job_runs SET finished_at=now(), cells_built=$2, cells_failed=$3, success=$4, error=$5 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, built, failed, success, errStr)
    return err
}

type LastRun struct {
    ID          string     `json:"id"`
    StartedAt   time.Time  `json:"started_at"`
    FinishedAt  *time.Time `json:"finished_at"`
    Cells       string     `json:"cells"`
    CellsBuilt  int        `json:"cells_built"`
    CellsFailed int        `json:"cells_failed"`
    Success     bool       `json:"success"`
    Error       string     `json:"error"`
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
    const q = `SELECT id::text, started_at, finished_at, coalesce(cells::text,''),
        coalesce(cells_built,0), coalesce(cells_failed,0),
        coalesce(success,false), coalesce(error,'')
        FROM job_runs ORDER BY started_at DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    lr := &LastRun{}
    if err := row.Scan(&lr.ID, &lr.StartedAt, &lr.FinishedAt, &lr.Cells, &lr.CellsBuilt, &lr.CellsFailed, &lr.Success, &lr.Error); err != nil {
        return nil, err
    }
    return lr, nil
}

// Snapshots
type Snapshot struct {
    BoardID     int64
    WindowStart string
    Payload     []byte
}

func (r *Repository) SaveSnapshots(ctx context.Context, snaps []Snapshot) error {
    if len(snaps) == 0 { return nil }
    batch := &pgx.Batch{}
    const q = `INSERT INTO snapshots(board_id, window_start, payload)
        VALUES($1,$2,$3)
        ON CONFLICT (board_id, window_start) DO UPDATE SET payload=EXCLUDED.payload, created_at=now()`
    for _, s := range snaps {
        batch.Queue(q, s.BoardID, s.WindowStart, s.Payload)
    }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range snaps { if _, err := br.Exec(); err != nil { return err } }
    return nil
}

func (r *Repository) LatestSnapshot(ctx context.Context, boardID int64) ([]byte, time.Time, error) {
    const q = `SELECT payload, created_at FROM snapshots WHERE board_id=$1 ORDER BY window_start DESC LIMIT 1`
    var payload []byte
    var at time.Time
    if err := r.db.Pool.QueryRow(ctx, q, boardID).Scan(&payload, &at); err != nil { return nil, time.Time{}, err }
    return payload, at, nil
}

// Webhooks
func (r *Repository) AddWebhook(ctx context.Context, url string) (int64, error) {
    const q = `INSERT INTO webhooks(url) VALUES($1)
        ON CONFLICT(url) DO UPDATE SET active=true RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, url).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) ListWebhooks(ctx context.Context) ([]domain.Webhook, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT id, url, active, created_at FROM webhooks WHERE active ORDER BY id`)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.Webhook
    for rows.Next() {
        var w domain.Webhook
        if err := rows.Scan(&w.ID, &w.URL, &w.Active, &w.CreatedAt); err != nil { return nil, err }
        out = append(out, w)
    }
    return out, rows.Err()
}
