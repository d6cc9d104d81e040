package memory

import (
	"context"
	"sort"
	"sync"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/storage"
)

// TradeRecordStore keeps trade records in insertion order behind a mutex.
type TradeRecordStore struct {
	mu    sync.RWMutex
	byID  map[string]int // trade_id -> index into rows
	rows  []domain.TradeRecord
	netCF float64
}

// NewTradeRecordStore creates an empty store.
func NewTradeRecordStore() *TradeRecordStore {
	return &TradeRecordStore{byID: make(map[string]int)}
}

// Insert appends t. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeRecordStore) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.TradeID == "" || !t.Direction.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[t.TradeID]; ok {
		return storage.ErrDuplicateKey
	}
	s.byID[t.TradeID] = len(s.rows)
	s.rows = append(s.rows, *t)
	s.netCF += cashFlow(t)
	return nil
}

// GetByID returns a copy of the record with tradeID.
func (s *TradeRecordStore) GetByID(_ context.Context, tradeID string) (*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[tradeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rec := s.rows[i]
	return &rec, nil
}

// List returns copies of the records matching f, newest first.
func (s *TradeRecordStore) List(_ context.Context, f storage.TradeFilter) ([]*domain.TradeRecord, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []*domain.TradeRecord
	for i := range s.rows {
		rec := s.rows[i]
		if (f.Symbol == "" || rec.Symbol == f.Symbol) && rec.ExecutedAt >= f.Since {
			out = append(out, &rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ExecutedAt != out[j].ExecutedAt {
			return out[i].ExecutedAt > out[j].ExecutedAt
		}
		return out[i].TradeID > out[j].TradeID
	})
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// NetCashFlow returns sell proceeds minus buy spend.
func (s *TradeRecordStore) NetCashFlow(context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.netCF, nil
}

func cashFlow(t *domain.TradeRecord) float64 {
	if t.Direction == domain.DirectionSell {
		return t.AmountOut
	}
	return -t.AmountIn
}

var _ storage.TradeRecordStore = (*TradeRecordStore)(nil)
