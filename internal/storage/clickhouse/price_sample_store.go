package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore using ClickHouse.
type PriceSampleStore struct {
	conn *Conn
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(conn *Conn) *PriceSampleStore {
	return &PriceSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

// InsertBulk adds multiple samples. Fails entire batch on duplicate (asset_id, timestamp_ms).
func (s *PriceSampleStore) InsertBulk(ctx context.Context, samples []*domain.PriceSample) (err error) {
	if len(samples) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("insert_price_samples", start, err) }()

	// Check for intra-batch duplicates and collect per-asset time bounds
	type key struct {
		assetID     string
		timestampMs int64
	}
	type bounds struct{ min, max int64 }
	seen := make(map[key]struct{}, len(samples))
	ranges := make(map[string]bounds)
	for _, p := range samples {
		if p == nil || p.AssetID == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.AssetID, p.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}

		b, ok := ranges[p.AssetID]
		if !ok {
			b = bounds{p.TimestampMs, p.TimestampMs}
		}
		b.min = min(b.min, p.TimestampMs)
		b.max = max(b.max, p.TimestampMs)
		ranges[p.AssetID] = b
	}

	// MergeTree does not enforce keys: check existing rows per asset
	for assetID, b := range ranges {
		existing, err := s.timestamps(ctx, assetID, b.min, b.max)
		if err != nil {
			return fmt.Errorf("check existing samples: %w", err)
		}
		for _, ts := range existing {
			if _, dup := seen[key{assetID, ts}]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_samples (
			asset_id, symbol, timestamp_ms, price, source
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range samples {
		err = batch.Append(p.AssetID, p.Symbol, uint64(p.TimestampMs), p.Price, p.Source)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves samples for an asset within [start, end] (inclusive).
func (s *PriceSampleStore) GetByTimeRange(ctx context.Context, assetID string, start, end int64) ([]*domain.PriceSample, error) {
	query := `
		SELECT asset_id, symbol, timestamp_ms, price, source
		FROM price_samples
		WHERE asset_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceSamples(rows)
}

// timestamps returns stored timestamps of an asset within [start, end].
func (s *PriceSampleStore) timestamps(ctx context.Context, assetID string, start, end int64) ([]int64, error) {
	query := `
		SELECT timestamp_ms FROM price_samples
		WHERE asset_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
	`

	rows, err := s.conn.Query(ctx, query, assetID, uint64(start), uint64(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var ts uint64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, int64(ts))
	}
	return out, rows.Err()
}

// scanPriceSamples scans multiple rows.
func scanPriceSamples(rows chRows) ([]*domain.PriceSample, error) {
	var samples []*domain.PriceSample

	for rows.Next() {
		var p domain.PriceSample
		var timestampMs uint64

		if err := rows.Scan(&p.AssetID, &p.Symbol, &timestampMs, &p.Price, &p.Source); err != nil {
			return nil, fmt.Errorf("scan price sample row: %w", err)
		}

		p.TimestampMs = int64(timestampMs)
		samples = append(samples, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price sample rows: %w", err)
	}

	return samples, nil
}
