package memory

import (
	"context"
	"errors"
	"testing"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/storage"
)

func TestPriceSampleStore_InsertBulkAndGet(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	samples := []*domain.PriceSample{
		{AssetID: "m1", Symbol: "BONK", TimestampMs: 2000, Price: 1.1, Source: "dexpairs"},
		{AssetID: "m1", Symbol: "BONK", TimestampMs: 1000, Price: 1.0, Source: "dexpairs"},
		{AssetID: "m2", Symbol: "WIF", TimestampMs: 1000, Price: 3.0, Source: "oracle"},
	}

	if err := store.InsertBulk(ctx, samples); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, "m1", 0, 5000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(result))
	}
	if result[0].TimestampMs != 1000 || result[1].TimestampMs != 2000 {
		t.Error("Results not ordered by timestamp")
	}
	if store.Len() != 3 {
		t.Errorf("Len = %d, want 3", store.Len())
	}
}

func TestPriceSampleStore_DuplicateKey(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	samples := []*domain.PriceSample{
		{AssetID: "m1", TimestampMs: 1000, Price: 1.0},
	}

	if err := store.InsertBulk(ctx, samples); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, samples)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestPriceSampleStore_IntraBatchDuplicate(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	samples := []*domain.PriceSample{
		{AssetID: "m1", TimestampMs: 1000, Price: 1.0},
		{AssetID: "m1", TimestampMs: 1000, Price: 1.1}, // duplicate key
	}

	err := store.InsertBulk(ctx, samples)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	if store.Len() != 0 {
		t.Errorf("Expected 0 samples (rollback), got %d", store.Len())
	}
}

func TestPriceSampleStore_GetByTimeRange(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	samples := []*domain.PriceSample{
		{AssetID: "m1", TimestampMs: 1000, Price: 1.0},
		{AssetID: "m1", TimestampMs: 2000, Price: 1.1},
		{AssetID: "m1", TimestampMs: 3000, Price: 1.2},
		{AssetID: "m1", TimestampMs: 4000, Price: 1.3},
	}
	if err := store.InsertBulk(ctx, samples); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	// Inclusive on both ends
	result, err := store.GetByTimeRange(ctx, "m1", 2000, 3000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("Expected 2 samples in range, got %d", len(result))
	}

	result, _ = store.GetByTimeRange(ctx, "unknown", 0, 5000)
	if len(result) != 0 {
		t.Errorf("Expected no samples for unknown asset, got %d", len(result))
	}
}

func TestPriceSampleStore_InvalidInput(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.PriceSample{{AssetID: "", TimestampMs: 1}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}

	err = store.InsertBulk(ctx, []*domain.PriceSample{nil})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
}
