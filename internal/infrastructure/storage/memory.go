package storage

import (
	"context"
	"sync"

	"github.com/vitos/strategy_autotrade/internal/domain"
)

// MemoryStore keeps the ledger and session history for the process lifetime.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []domain.TradeRecord
	sessions []domain.SessionSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// TradeLedger Implementation

func (s *MemoryStore) Append(ctx context.Context, record domain.TradeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *MemoryStore) All(ctx context.Context) ([]domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TradeRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// SessionRepository Implementation

func (s *MemoryStore) SaveSession(ctx context.Context, summary domain.SessionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, summary)
	return nil
}

func (s *MemoryStore) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SessionSummary, 0, len(s.sessions))
	for i := len(s.sessions) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.sessions[i])
	}
	return out, nil
}
