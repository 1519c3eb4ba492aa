package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/strategy_autotrade/internal/domain"
	"go.uber.org/zap"
)

type ControllerConfig struct {
	Strategy         string
	Settings         domain.TradeSettings
	TickInterval     time.Duration
	DirectiveRefresh time.Duration
	PriceRefresh     time.Duration
	FetchTimeout     time.Duration
	NotificationTTL  time.Duration
}

func (c *ControllerConfig) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.DirectiveRefresh <= 0 {
		c.DirectiveRefresh = 30 * time.Second
	}
	if c.PriceRefresh <= 0 {
		c.PriceRefresh = time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 3 * time.Second
	}
	if c.NotificationTTL <= 0 {
		c.NotificationTTL = 5 * time.Second
	}
}

// AutoTradeController owns the position, the auto-trading session and every
// timer that drives them. While a session runs only the controller mutates
// the position; while idle only the manual operations do.
type AutoTradeController struct {
	source      domain.SignalSource
	interpreter *SignalInterpreter
	feed        domain.PriceFeed
	ledger      domain.TradeLedger
	sessions    domain.SessionRepository
	notifier    domain.Notifier
	book        *PositionBook
	risk        *RiskEvaluator
	cfg         ControllerConfig
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	strategy string
	settings domain.TradeSettings
	session  *autoTradeSession

	priceMu      sync.RWMutex
	latestPrice  decimal.Decimal
	priceAt      time.Time
	priceFailing bool
}

type autoTradeSession struct {
	id            string
	strategy      string
	startedAt     time.Time
	tradesOpened  int
	lastDirective *domain.Directive
	ctx           context.Context
	cancel        context.CancelFunc
}

type SessionStatus struct {
	ID            string            `json:"id"`
	Strategy      string            `json:"strategy"`
	StartedAt     time.Time         `json:"started_at"`
	TradesOpened  int               `json:"trades_opened"`
	MaxTrades     int               `json:"max_trades"`
	LastDirective *domain.Directive `json:"last_directive,omitempty"`
}

type ControllerStatus struct {
	Running        bool                 `json:"running"`
	Strategy       string               `json:"strategy"`
	Session        *SessionStatus       `json:"session,omitempty"`
	Position       domain.Position      `json:"position"`
	CurrentPrice   *decimal.Decimal     `json:"current_price,omitempty"`
	PriceUpdatedAt time.Time            `json:"price_updated_at"`
	UnrealizedPnL  *decimal.Decimal     `json:"unrealized_pnl,omitempty"`
	Settings       domain.TradeSettings `json:"settings"`
}

func NewAutoTradeController(
	source domain.SignalSource,
	interpreter *SignalInterpreter,
	feed domain.PriceFeed,
	ledger domain.TradeLedger,
	sessions domain.SessionRepository,
	notifier domain.Notifier,
	cfg ControllerConfig,
	logger *zap.Logger,
) (*AutoTradeController, error) {
	cfg.applyDefaults()
	if !interpreter.HasStrategy(cfg.Strategy) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownStrategy, cfg.Strategy)
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	book := NewPositionBook(ledger, time.Now)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
	defer cancel()
	if err := book.Resume(ctx); err != nil {
		return nil, err
	}

	return &AutoTradeController{
		source:      source,
		interpreter: interpreter,
		feed:        feed,
		ledger:      ledger,
		sessions:    sessions,
		notifier:    notifier,
		book:        book,
		risk:        NewRiskEvaluator(),
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
		strategy:    cfg.Strategy,
		settings:    cfg.Settings,
	}, nil
}

// Run keeps the price fresh until ctx ends, then stops any running session.
func (c *AutoTradeController) Run(ctx context.Context) {
	if err := c.RefreshPrice(ctx); err != nil {
		c.logger.Warn("Initial price refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(c.cfg.PriceRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.RefreshPrice(ctx)
		case <-ctx.Done():
			c.mu.Lock()
			if c.session != nil {
				c.stopLocked(c.session, domain.StopShutdown)
			}
			c.mu.Unlock()
			c.logger.Info("Controller stopped")
			return
		}
	}
}

// RefreshPrice pulls one price from the feed. On failure the previous price
// is kept and an error notification is emitted.
func (c *AutoTradeController) RefreshPrice(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	price, err := c.feed.CurrentPrice(fetchCtx)
	if err != nil {
		err = fmt.Errorf("%w: price: %v", domain.ErrFetchFailure, err)
		c.priceMu.Lock()
		first := !c.priceFailing
		c.priceFailing = true
		c.priceMu.Unlock()
		if ctx.Err() != nil {
			return err
		}
		if first {
			c.logger.Warn("Price refresh failed", zap.Error(err))
		} else {
			c.logger.Debug("Price refresh still failing", zap.Error(err))
		}
		c.notify(domain.NotifyError, "Failed to refresh market price")
		return err
	}

	c.priceMu.Lock()
	c.latestPrice = price
	c.priceAt = c.now()
	c.priceFailing = false
	c.priceMu.Unlock()
	return nil
}

// LatestPrice returns the most recent completed refresh.
func (c *AutoTradeController) LatestPrice() (decimal.Decimal, time.Time, error) {
	c.priceMu.RLock()
	defer c.priceMu.RUnlock()
	if c.priceAt.IsZero() {
		return decimal.Zero, time.Time{}, domain.ErrNoPrice
	}
	return c.latestPrice, c.priceAt, nil
}

func (c *AutoTradeController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Start moves Idle -> Running. An empty strategyID keeps the selected one.
// It returns the new session ID.
func (c *AutoTradeController) Start(strategyID string) (string, error) {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return "", domain.ErrAutoTradingActive
	}
	if strategyID == "" {
		strategyID = c.strategy
	}
	if !c.interpreter.HasStrategy(strategyID) {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownStrategy, strategyID)
	}
	if err := c.settings.Validate(); err != nil {
		c.mu.Unlock()
		return "", err
	}

	// Not derived from any request context: the session outlives the caller.
	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &autoTradeSession{
		id:        uuid.NewString(),
		strategy:  strategyID,
		startedAt: c.now(),
		ctx:       sessCtx,
		cancel:    cancel,
	}
	c.strategy = strategyID
	c.session = sess
	c.logger.Info("Auto-trading started",
		zap.String("session", sess.id),
		zap.String("strategy", strategyID),
		zap.Int("max_trades", c.settings.MaxTrades))
	c.notify(domain.NotifyInfo, "Auto-trading started for %s", strategyID)
	c.mu.Unlock()

	directive, err := c.fetchDirective(sess)

	c.mu.Lock()
	if !c.activeLocked(sess) {
		c.mu.Unlock()
		return sess.id, nil
	}
	if err == nil {
		sess.lastDirective = &directive
	} else {
		directive = domain.DirectiveUnknown
	}
	c.restartLocked(sess, directive)
	c.mu.Unlock()

	c.runCycle(sess)

	go c.tickLoop(sess)
	go c.directiveLoop(sess)
	return sess.id, nil
}

// Stop moves Running -> Idle. An open position stays open.
func (c *AutoTradeController) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return domain.ErrAutoTradingInactive
	}
	c.stopLocked(c.session, domain.StopRequested)
	return nil
}

// restartLocked closes a position left over from manual trading and, for an
// actionable directive, reopens in its direction.
func (c *AutoTradeController) restartLocked(sess *autoTradeSession, directive domain.Directive) {
	if !c.book.Position().IsOpen() {
		return
	}
	price, err := c.priceLocked()
	if err != nil {
		return
	}
	if err := c.closeLocked(sess.ctx, price, domain.ReasonAutoTradingStarted); err != nil {
		return
	}
	if directive.Actionable() {
		_ = c.openLocked(sess, directive, price, domain.ReasonSignal)
	}
}

func (c *AutoTradeController) tickLoop(sess *autoTradeSession) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCycle(sess)
		case <-sess.ctx.Done():
			c.logger.Debug("Trade cycle loop stopped", zap.String("session", sess.id))
			return
		}
	}
}

func (c *AutoTradeController) directiveLoop(sess *autoTradeSession) {
	ticker := time.NewTicker(c.cfg.DirectiveRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.refreshDirective(sess)
		case <-sess.ctx.Done():
			return
		}
	}
}

// refreshDirective replaces the cached directive. A failed fetch keeps the
// previous one.
func (c *AutoTradeController) refreshDirective(sess *autoTradeSession) {
	directive, err := c.fetchDirective(sess)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeLocked(sess) {
		return
	}
	if sess.lastDirective == nil || *sess.lastDirective != directive {
		c.logger.Info("Directive updated",
			zap.String("session", sess.id),
			zap.String("directive", string(directive)))
	}
	sess.lastDirective = &directive
}

// runCycle is one trade cycle. Cycles of a session never overlap: the start
// cycle finishes before tickLoop begins and tickLoop runs them in sequence.
func (c *AutoTradeController) runCycle(sess *autoTradeSession) {
	c.mu.Lock()
	if !c.activeLocked(sess) {
		c.mu.Unlock()
		return
	}
	if sess.tradesOpened >= c.settings.MaxTrades {
		c.stopLocked(sess, domain.StopBudgetExhausted)
		c.mu.Unlock()
		return
	}
	cached := sess.lastDirective
	c.mu.Unlock()

	var directive domain.Directive
	if cached != nil {
		directive = *cached
	} else {
		d, err := c.fetchDirective(sess)
		if err != nil {
			return
		}
		directive = d
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Stop may have been requested while the fetch was in flight.
	if !c.activeLocked(sess) {
		return
	}
	if cached == nil {
		sess.lastDirective = &directive
	}
	if directive == domain.DirectiveUnknown {
		c.logger.Debug("No actionable signal", zap.String("session", sess.id))
		return
	}

	price, err := c.priceLocked()
	if err != nil {
		return
	}

	pos := c.book.Position()
	if pos.IsOpen() {
		if directive.Opposes(pos.Side) {
			if err := c.closeLocked(sess.ctx, price, domain.ReasonSignalChanged); err != nil {
				return
			}
			_ = c.openLocked(sess, directive, price, domain.ReasonSignal)
			return
		}
		if decision := c.risk.Evaluate(pos, price, c.settings); decision != nil {
			c.logger.Info("Risk threshold reached",
				zap.String("reason", string(decision.Reason)),
				zap.Stringer("change_pct", decision.ChangePct))
			_ = c.closeLocked(sess.ctx, price, decision.Reason)
		}
		return
	}

	if directive.Actionable() {
		_ = c.openLocked(sess, directive, price, domain.ReasonSignal)
	}
}

// fetchDirective surfaces failures as notifications unless the session was
// cancelled underneath it.
func (c *AutoTradeController) fetchDirective(sess *autoTradeSession) (domain.Directive, error) {
	ctx, cancel := context.WithTimeout(sess.ctx, c.cfg.FetchTimeout)
	defer cancel()

	text, err := c.source.Prediction(ctx, sess.strategy)
	if err != nil {
		if sess.ctx.Err() != nil {
			return domain.DirectiveUnknown, sess.ctx.Err()
		}
		err = fmt.Errorf("%w: signal %s: %v", domain.ErrFetchFailure, sess.strategy, err)
		c.logger.Warn("Signal fetch failed", zap.String("session", sess.id), zap.Error(err))
		c.notify(domain.NotifyError, "Failed to fetch signal for %s", sess.strategy)
		return domain.DirectiveUnknown, err
	}

	directive := c.interpreter.Interpret(sess.strategy, text)
	if directive == domain.DirectiveUnknown {
		c.logger.Debug("Unrecognized prediction",
			zap.String("strategy", sess.strategy),
			zap.String("text", text))
	}
	return directive, nil
}

func (c *AutoTradeController) activeLocked(sess *autoTradeSession) bool {
	return c.session == sess && sess.ctx.Err() == nil
}

func (c *AutoTradeController) stopLocked(sess *autoTradeSession, reason domain.StopReason) {
	sess.cancel()
	c.session = nil

	summary := domain.SessionSummary{
		ID:           sess.id,
		Strategy:     sess.strategy,
		StartedAt:    sess.startedAt,
		StoppedAt:    c.now(),
		TradesOpened: sess.tradesOpened,
		MaxTrades:    c.settings.MaxTrades,
		StopReason:   reason,
	}
	if c.sessions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.FetchTimeout)
		if err := c.sessions.SaveSession(ctx, summary); err != nil {
			c.logger.Error("Failed to save session summary", zap.String("session", sess.id), zap.Error(err))
		}
		cancel()
	}

	c.logger.Info("Auto-trading stopped",
		zap.String("session", sess.id),
		zap.String("reason", string(reason)),
		zap.Int("trades_opened", sess.tradesOpened))

	if reason == domain.StopBudgetExhausted {
		c.notify(domain.NotifyInfo, "Maximum trades (%d) reached. Auto-trading stopped.", c.settings.MaxTrades)
		return
	}
	c.notify(domain.NotifyInfo, "Auto-trading stopped")
}

// openLocked counts the trade against sess when sess is non-nil.
func (c *AutoTradeController) openLocked(sess *autoTradeSession, directive domain.Directive, price decimal.Decimal, reason domain.TradeReason) error {
	side, ok := directive.Side()
	if !ok {
		return fmt.Errorf("directive %s has no side", directive)
	}
	ctx := context.Background()
	if sess != nil {
		ctx = sess.ctx
	}

	if _, err := c.openPositionLocked(ctx, side, price, reason); err != nil {
		return err
	}
	if sess != nil {
		sess.tradesOpened++
		c.logger.Debug("Trade budget", zap.Int("opened", sess.tradesOpened), zap.Int("max", c.settings.MaxTrades))
	}
	return nil
}

func (c *AutoTradeController) openPositionLocked(ctx context.Context, side domain.Side, price decimal.Decimal, reason domain.TradeReason) (domain.Position, error) {
	qty := domain.QuantityFor(c.settings.InvestmentAmount, price)
	pos, err := c.book.Open(ctx, side, price, qty, reason)
	if err != nil {
		c.logger.Error("Failed to open position",
			zap.String("side", string(side)),
			zap.Stringer("price", price),
			zap.Error(err))
		c.notify(domain.NotifyError, "Failed to open %s position: %v", side, err)
		return pos, err
	}

	c.logger.Info("Position opened",
		zap.String("side", string(side)),
		zap.Stringer("price", price),
		zap.Int64("quantity", qty),
		zap.String("reason", string(reason)))
	c.notify(domain.NotifySuccess, "Opened %s %d @ %s (%s)", side, qty, price.StringFixed(2), reason)
	return pos, nil
}

func (c *AutoTradeController) closeLocked(ctx context.Context, price decimal.Decimal, reason domain.TradeReason) error {
	pos, err := c.book.Close(ctx, price, reason, nil)
	if err != nil {
		c.logger.Error("Failed to close position", zap.Stringer("price", price), zap.Error(err))
		c.notify(domain.NotifyError, "Failed to close position: %v", err)
		return err
	}

	c.logger.Info("Position closed",
		zap.String("side", string(pos.Side)),
		zap.Stringer("price", price),
		zap.Stringer("profit", pos.RealizedProfit),
		zap.String("reason", string(reason)))
	c.notify(domain.NotifySuccess, "Closed %s @ %s (%s), profit %s",
		pos.Side, price.StringFixed(2), reason, pos.RealizedProfit.StringFixed(2))
	return nil
}

func (c *AutoTradeController) priceLocked() (decimal.Decimal, error) {
	price, _, err := c.LatestPrice()
	if err != nil {
		c.logger.Warn("No market price for trade cycle", zap.Error(err))
		c.notify(domain.NotifyError, "No market price available")
		return decimal.Zero, err
	}
	return price, nil
}

// ManualOpen is rejected while auto-trading runs.
func (c *AutoTradeController) ManualOpen(ctx context.Context, side domain.Side) (domain.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.book.Position(), domain.ErrAutoTradingActive
	}
	price, err := c.priceLocked()
	if err != nil {
		return c.book.Position(), err
	}
	return c.openPositionLocked(ctx, side, price, domain.ReasonManual)
}

// ManualClose is rejected while auto-trading runs.
func (c *AutoTradeController) ManualClose(ctx context.Context) (domain.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.book.Position(), domain.ErrAutoTradingActive
	}
	price, err := c.priceLocked()
	if err != nil {
		return c.book.Position(), err
	}
	if err := c.closeLocked(ctx, price, domain.ReasonManual); err != nil {
		return c.book.Position(), err
	}
	return c.book.Position(), nil
}

func (c *AutoTradeController) Settings() domain.TradeSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings is rejected while auto-trading runs.
func (c *AutoTradeController) UpdateSettings(settings domain.TradeSettings) error {
	_, err := c.PatchSettings(func(s *domain.TradeSettings) { *s = settings })
	return err
}

// PatchSettings applies patch to a copy of the current settings and stores
// the result if it validates. Read, patch and store happen under one lock.
func (c *AutoTradeController) PatchSettings(patch func(*domain.TradeSettings)) (domain.TradeSettings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.settings, domain.ErrAutoTradingActive
	}
	settings := c.settings
	patch(&settings)
	if err := settings.Validate(); err != nil {
		return c.settings, err
	}
	c.settings = settings
	c.logger.Info("Trade settings updated",
		zap.Stringer("investment", settings.InvestmentAmount),
		zap.Stringer("stop_loss_pct", settings.StopLossPct),
		zap.Stringer("take_profit_pct", settings.TakeProfitPct),
		zap.Int("max_trades", settings.MaxTrades),
		zap.String("time_frame", string(settings.TimeFrame)))
	return settings, nil
}

// SelectStrategy is rejected while auto-trading runs.
func (c *AutoTradeController) SelectStrategy(strategyID string) error {
	if !c.interpreter.HasStrategy(strategyID) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownStrategy, strategyID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return domain.ErrAutoTradingActive
	}
	c.strategy = strategyID
	return nil
}

func (c *AutoTradeController) Strategies() []string {
	return c.interpreter.Strategies()
}

func (c *AutoTradeController) Snapshot() ControllerStatus {
	price, priceAt, priceErr := c.LatestPrice()

	c.mu.Lock()
	defer c.mu.Unlock()

	status := ControllerStatus{
		Running:        c.session != nil,
		Strategy:       c.strategy,
		Position:       c.book.Position(),
		PriceUpdatedAt: priceAt,
		Settings:       c.settings,
	}
	if priceErr == nil {
		status.CurrentPrice = &price
		status.UnrealizedPnL = c.book.UnrealizedPnL(price)
	}
	if sess := c.session; sess != nil {
		status.Session = &SessionStatus{
			ID:            sess.id,
			Strategy:      sess.strategy,
			StartedAt:     sess.startedAt,
			TradesOpened:  sess.tradesOpened,
			MaxTrades:     c.settings.MaxTrades,
			LastDirective: sess.lastDirective,
		}
	}
	return status
}

// Trades returns the ledger newest first.
func (c *AutoTradeController) Trades(ctx context.Context) ([]domain.TradeRecord, error) {
	return c.ledger.All(ctx)
}

func (c *AutoTradeController) Sessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if c.sessions == nil {
		return nil, errors.New("session history is not configured")
	}
	return c.sessions.ListSessions(ctx, limit)
}

func (c *AutoTradeController) notify(kind domain.NotificationKind, format string, args ...any) {
	if c.notifier == nil {
		return
	}
	now := c.now()
	c.notifier.Notify(domain.Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		CreatedAt: now,
		ExpiresAt: now.Add(c.cfg.NotificationTTL),
	})
}
