package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/strategy_autotrade/internal/domain"
	"go.uber.org/zap"
)

const (
	testStrategy = "momentum-trading"
	momentumBuy  = "📈 Uptrend (Buy)"
	momentumSell = "📉 Downtrend (Sell)"
	momentumHold = "➖ Sideways (Hold)"
)

type controllerFixture struct {
	c        *AutoTradeController
	source   *MockSignalSource
	feed     *MockPriceFeed
	ledger   *MockLedger
	sessions *MockSessionRepo
	notifier *MockNotifier
}

// newUnpricedFixture builds a controller whose timers never fire during a
// test; cycles are driven by calling runCycle directly.
func newUnpricedFixture(t *testing.T, settings domain.TradeSettings) *controllerFixture {
	t.Helper()

	interpreter, err := NewSignalInterpreter(DefaultVocabularies())
	require.NoError(t, err)

	f := &controllerFixture{
		source:   &MockSignalSource{},
		feed:     &MockPriceFeed{},
		ledger:   &MockLedger{},
		sessions: &MockSessionRepo{},
		notifier: &MockNotifier{},
	}
	f.c, err = NewAutoTradeController(f.source, interpreter, f.feed, f.ledger, f.sessions, f.notifier, ControllerConfig{
		Strategy:         testStrategy,
		Settings:         settings,
		TickInterval:     time.Hour,
		DirectiveRefresh: time.Hour,
		PriceRefresh:     time.Hour,
		FetchTimeout:     100 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() { _ = f.c.Stop() })
	return f
}

func newFixture(t *testing.T, settings domain.TradeSettings) *controllerFixture {
	t.Helper()
	f := newUnpricedFixture(t, settings)
	f.setPrice(t, "100")
	return f
}

func (f *controllerFixture) setPrice(t *testing.T, price string) {
	t.Helper()
	f.feed.Set(price)
	require.NoError(t, f.c.RefreshPrice(context.Background()))
}

// start begins a session and returns it for direct cycle driving.
func (f *controllerFixture) start(t *testing.T) *autoTradeSession {
	t.Helper()
	_, err := f.c.Start("")
	require.NoError(t, err)

	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	require.NotNil(t, f.c.session)
	return f.c.session
}

func (f *controllerFixture) tradesOpened(sess *autoTradeSession) int {
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	return sess.tradesOpened
}

func TestController_StartOpensInDirectiveDirection(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	f.source.Set(momentumBuy, nil)

	sess := f.start(t)

	records := f.ledger.Chronological()
	require.Len(t, records, 1)
	assert.Equal(t, domain.TradeOpen, records[0].Action)
	assert.Equal(t, domain.SideBuy, records[0].Side)
	assert.Equal(t, int64(10), records[0].Quantity)
	assert.True(t, records[0].Price.Equal(d("100")))
	assert.Equal(t, domain.ReasonSignal, records[0].Reason)
	assert.Equal(t, 1, f.tradesOpened(sess))
	assert.True(t, f.c.Running())
	assert.GreaterOrEqual(t, f.notifier.Count(domain.NotifySuccess), 1)
}

func TestController_StopLossThenReopenThenBudgetStop(t *testing.T) {
	settings := domain.DefaultTradeSettings()
	settings.MaxTrades = 2
	f := newFixture(t, settings)
	f.source.Set(momentumBuy, nil)

	sess := f.start(t)

	f.setPrice(t, "94")
	f.c.runCycle(sess)

	records := f.ledger.Chronological()
	require.Len(t, records, 2)
	assert.Equal(t, domain.TradeClose, records[1].Action)
	assert.Equal(t, domain.ReasonStopLoss, records[1].Reason)
	require.NotNil(t, records[1].Profit)
	assert.True(t, records[1].Profit.Equal(d("-60")), "profit %s", records[1].Profit)
	assert.False(t, f.c.Snapshot().Position.IsOpen())
	assert.Equal(t, 1, f.tradesOpened(sess))

	// The close does not reopen in the same cycle; the next one does.
	f.c.runCycle(sess)
	records = f.ledger.Chronological()
	require.Len(t, records, 3)
	assert.Equal(t, domain.TradeOpen, records[2].Action)
	assert.True(t, records[2].Price.Equal(d("94")))
	assert.Equal(t, int64(10), records[2].Quantity)
	assert.Equal(t, 2, f.tradesOpened(sess))

	f.c.runCycle(sess)
	assert.False(t, f.c.Running())
	assert.Len(t, f.ledger.Chronological(), 3)
	assert.True(t, f.c.Snapshot().Position.IsOpen(), "budget stop leaves the position open")

	require.Len(t, f.sessions.Sessions, 1)
	summary := f.sessions.Sessions[0]
	assert.Equal(t, domain.StopBudgetExhausted, summary.StopReason)
	assert.Equal(t, 2, summary.TradesOpened)
	assert.Equal(t, 2, summary.MaxTrades)

	last := f.notifier.Notifications[len(f.notifier.Notifications)-1]
	assert.Equal(t, domain.NotifyInfo, last.Kind)
	assert.Contains(t, last.Message, "Maximum trades (2) reached")
}

func TestController_BudgetOfOneStopsOnNextCycle(t *testing.T) {
	settings := domain.DefaultTradeSettings()
	settings.MaxTrades = 1
	f := newFixture(t, settings)
	f.source.Set(momentumBuy, nil)

	sess := f.start(t)
	assert.True(t, f.c.Running())
	assert.Equal(t, 1, f.tradesOpened(sess))

	f.c.runCycle(sess)
	assert.False(t, f.c.Running())
	assert.True(t, f.c.Snapshot().Position.IsOpen())
	assert.Len(t, f.ledger.Chronological(), 1)
}

func TestController_OpposingDirectiveFlipsPosition(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	f.source.Set(momentumBuy, nil)
	sess := f.start(t)

	f.source.Set(momentumSell, nil)
	f.c.refreshDirective(sess)
	f.setPrice(t, "102")
	f.c.runCycle(sess)

	records := f.ledger.Chronological()
	require.Len(t, records, 3)
	assert.Equal(t, domain.TradeClose, records[1].Action)
	assert.Equal(t, domain.ReasonSignalChanged, records[1].Reason)
	assert.True(t, records[1].Profit.Equal(d("20")))
	assert.Equal(t, domain.TradeOpen, records[2].Action)
	assert.Equal(t, domain.SideSell, records[2].Side)
	assert.Equal(t, int64(9), records[2].Quantity)
	assert.Equal(t, 2, f.tradesOpened(sess))
}

func TestController_SameDirectionDoesNothingWithinThresholds(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	f.source.Set(momentumBuy, nil)
	sess := f.start(t)

	f.setPrice(t, "103")
	f.c.runCycle(sess)
	f.c.runCycle(sess)

	assert.Len(t, f.ledger.Chronological(), 1)
	assert.Equal(t, 1, f.tradesOpened(sess))
}

func TestController_NonActionableDirectivesDoNotTrade(t *testing.T) {
	for _, text := range []string{momentumHold, "Strong Buy", ""} {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t, domain.DefaultTradeSettings())
			f.source.Set(text, nil)
			sess := f.start(t)
			f.c.runCycle(sess)

			assert.Empty(t, f.ledger.Chronological())
			assert.True(t, f.c.Running())
			assert.Equal(t, 0, f.tradesOpened(sess))
		})
	}
}

func TestController_TakeProfit(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	f.source.Set(momentumSell, nil)
	sess := f.start(t)

	f.setPrice(t, "90")
	f.c.runCycle(sess)

	records := f.ledger.Chronological()
	require.Len(t, records, 2)
	assert.Equal(t, domain.ReasonTakeProfit, records[1].Reason)
	assert.True(t, records[1].Profit.Equal(d("100")))
}

func TestController_FetchFailureKeepsRunning(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	f.source.Set("", errSourceDown)

	sess := f.start(t)
	assert.True(t, f.c.Running())
	assert.Empty(t, f.ledger.Chronological())
	assert.GreaterOrEqual(t, f.notifier.Count(domain.NotifyError), 1)

	// Nothing was cached, so the next cycle fetches again.
	f.source.Set(momentumBuy, nil)
	f.c.runCycle(sess)

	records := f.ledger.Chronological()
	require.Len(t, records, 1)
	assert.Equal(t, domain.SideBuy, records[0].Side)
}

func TestController_FailedRefreshKeepsCachedDirective(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	f.source.Set(momentumBuy, nil)
	sess := f.start(t)

	f.source.Set("", errSourceDown)
	f.c.refreshDirective(sess)
	f.c.runCycle(sess)

	assert.Equal(t, domain.DirectiveBuy, *f.c.Snapshot().Session.LastDirective)
	assert.Len(t, f.ledger.Chronological(), 1)
}

func TestController_StartClosesManualPositionAndReopens(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	_, err := f.c.ManualOpen(context.Background(), domain.SideSell)
	require.NoError(t, err)

	f.source.Set(momentumBuy, nil)
	sess := f.start(t)

	records := f.ledger.Chronological()
	require.Len(t, records, 3)
	assert.Equal(t, domain.ReasonManual, records[0].Reason)
	assert.Equal(t, domain.TradeClose, records[1].Action)
	assert.Equal(t, domain.ReasonAutoTradingStarted, records[1].Reason)
	assert.True(t, records[1].Profit.IsZero())
	assert.Equal(t, domain.TradeOpen, records[2].Action)
	assert.Equal(t, domain.SideBuy, records[2].Side)
	assert.Equal(t, 1, f.tradesOpened(sess))
}

func TestController_StartWithHoldClosesManualPosition(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	_, err := f.c.ManualOpen(context.Background(), domain.SideBuy)
	require.NoError(t, err)

	f.source.Set(momentumHold, nil)
	f.start(t)

	records := f.ledger.Chronological()
	require.Len(t, records, 2)
	assert.Equal(t, domain.ReasonAutoTradingStarted, records[1].Reason)
	assert.False(t, f.c.Snapshot().Position.IsOpen())
}

func TestController_Rejections(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	ctx := context.Background()

	assert.ErrorIs(t, f.c.Stop(), domain.ErrAutoTradingInactive)
	_, err := f.c.Start("no-such-strategy")
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
	assert.False(t, f.c.Running())

	bad := domain.DefaultTradeSettings()
	bad.MaxTrades = 0
	assert.ErrorIs(t, f.c.UpdateSettings(bad), domain.ErrInvalidSettings)

	f.source.Set(momentumHold, nil)
	f.start(t)

	_, err = f.c.Start("")
	assert.ErrorIs(t, err, domain.ErrAutoTradingActive)
	_, err = f.c.ManualOpen(ctx, domain.SideBuy)
	assert.ErrorIs(t, err, domain.ErrAutoTradingActive)
	_, err = f.c.ManualClose(ctx)
	assert.ErrorIs(t, err, domain.ErrAutoTradingActive)
	assert.ErrorIs(t, f.c.UpdateSettings(domain.DefaultTradeSettings()), domain.ErrAutoTradingActive)
	assert.ErrorIs(t, f.c.SelectStrategy("mean-reversion"), domain.ErrAutoTradingActive)

	require.NoError(t, f.c.Stop())
	assert.ErrorIs(t, f.c.Stop(), domain.ErrAutoTradingInactive)
	require.Len(t, f.sessions.Sessions, 1)
	assert.Equal(t, domain.StopRequested, f.sessions.Sessions[0].StopReason)
}

func TestController_StopDuringFetchMutatesNothing(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	f.source.Set("", errSourceDown)
	sess := f.start(t)

	gate := make(chan struct{})
	called := make(chan struct{}, 1)
	f.source.mu.Lock()
	f.source.Gate, f.source.Called = gate, called
	f.source.Text, f.source.Err = momentumBuy, nil
	f.source.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.c.runCycle(sess)
		close(done)
	}()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("cycle never fetched")
	}
	require.NoError(t, f.c.Stop())
	close(gate)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cycle did not return")
	}

	assert.Empty(t, f.ledger.Chronological())
	assert.False(t, f.c.Running())
	assert.Equal(t, 0, sess.tradesOpened)
}

func TestController_RunShutdownStopsSession(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	f.source.Set(momentumBuy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.c.Run(ctx)
		close(done)
	}()

	f.start(t)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, f.c.Running())
	assert.True(t, f.c.Snapshot().Position.IsOpen())
	require.Len(t, f.sessions.Sessions, 1)
	assert.Equal(t, domain.StopShutdown, f.sessions.Sessions[0].StopReason)
}

func TestController_EveryPriceFailureNotifies(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	ctx := context.Background()
	feedDown := errors.New("feed down")

	f.feed.Fail(feedDown)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, f.c.RefreshPrice(ctx), domain.ErrFetchFailure)
	}
	assert.Equal(t, 3, f.notifier.Count(domain.NotifyError))

	price, _, err := f.c.LatestPrice()
	require.NoError(t, err)
	assert.True(t, price.Equal(d("100")), "stale price is kept")

	f.setPrice(t, "101")
	assert.Equal(t, 3, f.notifier.Count(domain.NotifyError))
	f.feed.Fail(feedDown)
	_ = f.c.RefreshPrice(ctx)
	assert.Equal(t, 4, f.notifier.Count(domain.NotifyError))
}

func TestController_PriceFailureAfterShutdownIsSilent(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.feed.Fail(errors.New("feed down"))
	assert.Error(t, f.c.RefreshPrice(ctx))
	assert.Equal(t, 0, f.notifier.Count(domain.NotifyError))
}

func TestController_ResumesLedgerNumbering(t *testing.T) {
	interpreter, err := NewSignalInterpreter(DefaultVocabularies())
	require.NoError(t, err)

	profit := d("0")
	ledger := &MockLedger{Records: []domain.TradeRecord{
		{ID: 7, Action: domain.TradeOpen, Side: domain.SideBuy, Price: d("100"), Quantity: 10, Reason: domain.ReasonManual},
		{ID: 8, Action: domain.TradeClose, Side: domain.SideBuy, Price: d("100"), Quantity: 10, Reason: domain.ReasonManual, Profit: &profit},
	}}
	feed := &MockPriceFeed{}
	feed.Set("100")

	c, err := NewAutoTradeController(&MockSignalSource{}, interpreter, feed, ledger, &MockSessionRepo{}, &MockNotifier{},
		ControllerConfig{Strategy: testStrategy, Settings: domain.DefaultTradeSettings()}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.RefreshPrice(context.Background()))

	_, err = c.ManualOpen(context.Background(), domain.SideSell)
	require.NoError(t, err)
	records := ledger.Chronological()
	require.Len(t, records, 3)
	assert.Equal(t, int64(9), records[2].ID)
}

func TestController_ConcurrentSettingsPatchesKeepEachField(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.c.PatchSettings(func(s *domain.TradeSettings) { s.InvestmentAmount = d("500") })
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.c.PatchSettings(func(s *domain.TradeSettings) { s.MaxTrades = 3 })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	settings := f.c.Settings()
	assert.True(t, settings.InvestmentAmount.Equal(d("500")))
	assert.Equal(t, 3, settings.MaxTrades)
}

func TestController_PatchSettingsRejectsInvalidResult(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())

	got, err := f.c.PatchSettings(func(s *domain.TradeSettings) {
		s.InvestmentAmount = d("250")
		s.MaxTrades = 0
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSettings)
	assert.Equal(t, 5, got.MaxTrades)
	assert.True(t, f.c.Settings().InvestmentAmount.Equal(d("1000")), "nothing stored")
}

func TestController_ManualTrading(t *testing.T) {
	ctx := context.Background()

	t.Run("no price yet", func(t *testing.T) {
		f := newUnpricedFixture(t, domain.DefaultTradeSettings())
		_, err := f.c.ManualOpen(ctx, domain.SideBuy)
		assert.ErrorIs(t, err, domain.ErrNoPrice)
		assert.Empty(t, f.ledger.Chronological())
	})

	t.Run("open and close", func(t *testing.T) {
		f := newFixture(t, domain.DefaultTradeSettings())
		pos, err := f.c.ManualOpen(ctx, domain.SideBuy)
		require.NoError(t, err)
		assert.Equal(t, int64(10), pos.Quantity)

		f.setPrice(t, "102")
		pos, err = f.c.ManualClose(ctx)
		require.NoError(t, err)
		assert.True(t, pos.RealizedProfit.Equal(d("20")))

		_, err = f.c.ManualClose(ctx)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("investment below price", func(t *testing.T) {
		settings := domain.DefaultTradeSettings()
		settings.InvestmentAmount = d("50")
		f := newFixture(t, settings)
		_, err := f.c.ManualOpen(ctx, domain.SideBuy)
		assert.ErrorIs(t, err, domain.ErrInsufficientInvestment)
		assert.False(t, f.c.Snapshot().Position.IsOpen())
	})
}

func TestController_Snapshot(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	f.source.Set(momentumBuy, nil)
	sess := f.start(t)
	f.setPrice(t, "105")

	status := f.c.Snapshot()
	assert.True(t, status.Running)
	assert.Equal(t, testStrategy, status.Strategy)
	require.NotNil(t, status.Session)
	assert.Equal(t, sess.id, status.Session.ID)
	assert.Equal(t, 1, status.Session.TradesOpened)
	assert.Equal(t, 5, status.Session.MaxTrades)
	require.NotNil(t, status.CurrentPrice)
	assert.True(t, status.CurrentPrice.Equal(d("105")))
	require.NotNil(t, status.UnrealizedPnL)
	assert.True(t, status.UnrealizedPnL.Equal(d("50")))
}

func TestController_SettingsAndStrategyWhileIdle(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())

	settings := domain.DefaultTradeSettings()
	settings.InvestmentAmount = d("500")
	require.NoError(t, f.c.UpdateSettings(settings))
	assert.True(t, f.c.Settings().InvestmentAmount.Equal(d("500")))

	require.NoError(t, f.c.SelectStrategy("mean-reversion"))
	assert.ErrorIs(t, f.c.SelectStrategy("nope"), domain.ErrUnknownStrategy)
	assert.Equal(t, "mean-reversion", f.c.Snapshot().Strategy)
	assert.Contains(t, f.c.Strategies(), testStrategy)

	f.source.Set("🔺 Oversold (Buy)", nil)
	f.start(t)
	records := f.ledger.Chronological()
	require.Len(t, records, 1)
	assert.Equal(t, int64(5), records[0].Quantity)
}

func TestController_NotificationsCarryTTL(t *testing.T) {
	f := newFixture(t, domain.DefaultTradeSettings())
	f.source.Set(momentumHold, nil)
	f.start(t)

	require.NotEmpty(t, f.notifier.Notifications)
	n := f.notifier.Notifications[0]
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, 5*time.Second, n.ExpiresAt.Sub(n.CreatedAt))
	assert.Contains(t, n.Message, testStrategy)
}
