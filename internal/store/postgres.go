package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLog is the durable delivery audit store, selected by
// store.driver=postgres.
type PostgresLog struct {
	pool *pgxpool.Pool
}

const deliveryTable = `
CREATE TABLE IF NOT EXISTS webhook_delivery_log (
	id           BIGSERIAL PRIMARY KEY,
	delivery_id  TEXT NOT NULL,
	webhook_id   TEXT NOT NULL,
	event        TEXT NOT NULL,
	attempt      INT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	at           TIMESTAMPTZ NOT NULL
)`

func NewPostgresLog(ctx context.Context, dsn string, poolSize int) (*PostgresLog, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if poolSize > 0 {
		poolCfg.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, deliveryTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure delivery table: %w", err)
	}

	return &PostgresLog{pool: pool}, nil
}

func (p *PostgresLog) Append(ctx context.Context, rec DeliveryRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO webhook_delivery_log (delivery_id, webhook_id, event, attempt, status, error, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.DeliveryID, rec.WebhookID, rec.Event, rec.Attempt, rec.Status, rec.Error, rec.At)
	if err != nil {
		return fmt.Errorf("append delivery record: %w", err)
	}
	return nil
}

func (p *PostgresLog) Recent(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT delivery_id, webhook_id, event, attempt, status, error, at
		 FROM webhook_delivery_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query delivery records: %w", err)
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var rec DeliveryRecord
		if err := rows.Scan(&rec.DeliveryID, &rec.WebhookID, &rec.Event, &rec.Attempt, &rec.Status, &rec.Error, &rec.At); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (p *PostgresLog) Close() {
	p.pool.Close()
}
