package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vitos/strategy_autotrade/internal/domain"
)

// MockLedger records appends in order; All returns newest first.
type MockLedger struct {
	mu        sync.Mutex
	Records   []domain.TradeRecord
	AppendErr error
}

func (m *MockLedger) Append(ctx context.Context, record domain.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Records = append(m.Records, record)
	return nil
}

func (m *MockLedger) All(ctx context.Context) ([]domain.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TradeRecord, 0, len(m.Records))
	for i := len(m.Records) - 1; i >= 0; i-- {
		out = append(out, m.Records[i])
	}
	return out, nil
}

// Chronological returns a copy in append order.
func (m *MockLedger) Chronological() []domain.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TradeRecord(nil), m.Records...)
}

type MockSessionRepo struct {
	mu       sync.Mutex
	Sessions []domain.SessionSummary
}

func (m *MockSessionRepo) SaveSession(ctx context.Context, summary domain.SessionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sessions = append(m.Sessions, summary)
	return nil
}

func (m *MockSessionRepo) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SessionSummary(nil), m.Sessions...), nil
}

// MockSignalSource returns Text or Err. When Gate is set the call waits on it
// and ignores ctx, like a slow service that answers after a stop.
type MockSignalSource struct {
	mu     sync.Mutex
	Text   string
	Err    error
	Gate   chan struct{}
	Called chan struct{}
	Calls  int
}

func (m *MockSignalSource) Set(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Text, m.Err = text, err
}

func (m *MockSignalSource) Prediction(ctx context.Context, strategyID string) (string, error) {
	m.mu.Lock()
	m.Calls++
	gate, called := m.Gate, m.Called
	m.mu.Unlock()

	if called != nil {
		select {
		case called <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Text, m.Err
}

func (m *MockSignalSource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

type MockPriceFeed struct {
	mu    sync.Mutex
	Price decimal.Decimal
	Err   error
}

func (m *MockPriceFeed) Set(price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Price = decimal.RequireFromString(price)
	m.Err = nil
}

func (m *MockPriceFeed) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *MockPriceFeed) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return decimal.Zero, m.Err
	}
	return m.Price, nil
}

type MockNotifier struct {
	mu            sync.Mutex
	Notifications []domain.Notification
}

func (m *MockNotifier) Notify(n domain.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, n)
}

func (m *MockNotifier) Count(kind domain.NotificationKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, x := range m.Notifications {
		if x.Kind == kind {
			n++
		}
	}
	return n
}

var errSourceDown = errors.New("connection refused")
