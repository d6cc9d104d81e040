package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/storage"
)

// PriceSampleStore is an in-memory implementation of storage.PriceSampleStore.
type PriceSampleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceSample // keyed by (asset_id, timestamp_ms)
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{
		data: make(map[string]*domain.PriceSample),
	}
}

// sampleKey generates a unique key for a price sample.
func sampleKey(assetID string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", assetID, timestampMs)
}

// InsertBulk adds multiple samples. Fails entire batch on duplicate.
func (s *PriceSampleStore) InsertBulk(_ context.Context, samples []*domain.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(samples))

	// First pass: check for duplicates (existing + intra-batch)
	for _, p := range samples {
		if p == nil || p.AssetID == "" {
			return storage.ErrInvalidInput
		}
		key := sampleKey(p.AssetID, p.TimestampMs)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range samples {
		sampleCopy := *p
		s.data[sampleKey(p.AssetID, p.TimestampMs)] = &sampleCopy
	}

	return nil
}

// GetByTimeRange retrieves samples for an asset within [start, end] (inclusive).
func (s *PriceSampleStore) GetByTimeRange(_ context.Context, assetID string, start, end int64) ([]*domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceSample
	for _, p := range s.data {
		if p.AssetID == assetID && p.TimestampMs >= start && p.TimestampMs <= end {
			sampleCopy := *p
			result = append(result, &sampleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// Len returns the number of stored samples.
func (s *PriceSampleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)
