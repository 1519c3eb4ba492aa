package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/vitos/strategy_autotrade/internal/domain"
	"github.com/vitos/strategy_autotrade/internal/usecase"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. TRADER_SERVER_PORT.
const EnvPrefix = "TRADER"

type Config struct {
	Server struct {
		Port int `yaml:"port" envconfig:"PORT"`
	} `yaml:"server" envconfig:"SERVER"`
	Logging struct {
		Level    string `yaml:"level" envconfig:"LEVEL"`
		Encoding string `yaml:"encoding" envconfig:"ENCODING"`
	} `yaml:"logging" envconfig:"LOGGING"`
	Signal struct {
		BaseURL   string `yaml:"base_url" envconfig:"BASE_URL"`
		TimeoutMs int    `yaml:"timeout_ms" envconfig:"TIMEOUT_MS"`
	} `yaml:"signal" envconfig:"SIGNAL"`
	Market struct {
		Baseline        float64 `yaml:"baseline" envconfig:"BASELINE"`
		MaxDeviationPct float64 `yaml:"max_deviation_pct" envconfig:"MAX_DEVIATION_PCT"`
		StepPct         float64 `yaml:"step_pct" envconfig:"STEP_PCT"`
		Seed            int64   `yaml:"seed" envconfig:"SEED"`
	} `yaml:"market" envconfig:"MARKET"`
	Polling struct {
		TickMs             int `yaml:"tick_ms" envconfig:"TICK_MS"`
		DirectiveRefreshMs int `yaml:"directive_refresh_ms" envconfig:"DIRECTIVE_REFRESH_MS"`
		PriceRefreshMs     int `yaml:"price_refresh_ms" envconfig:"PRICE_REFRESH_MS"`
		StatusPushMs       int `yaml:"status_push_ms" envconfig:"STATUS_PUSH_MS"`
	} `yaml:"polling" envconfig:"POLLING"`
	Notifications struct {
		TTLMs int `yaml:"ttl_ms" envconfig:"TTL_MS"`
	} `yaml:"notifications" envconfig:"NOTIFICATIONS"`
	Ledger struct {
		Driver string `yaml:"driver" envconfig:"DRIVER"`
		DSN    string `yaml:"dsn" envconfig:"DSN"`
	} `yaml:"ledger" envconfig:"LEDGER"`
	Trading struct {
		Strategy         string  `yaml:"strategy" envconfig:"STRATEGY"`
		InvestmentAmount float64 `yaml:"investment_amount" envconfig:"INVESTMENT_AMOUNT"`
		StopLossPct      float64 `yaml:"stop_loss_pct" envconfig:"STOP_LOSS_PCT"`
		TakeProfitPct    float64 `yaml:"take_profit_pct" envconfig:"TAKE_PROFIT_PCT"`
		TrailingStop     bool    `yaml:"trailing_stop" envconfig:"TRAILING_STOP"`
		MaxTrades        int     `yaml:"max_trades" envconfig:"MAX_TRADES"`
		TimeFrame        string  `yaml:"time_frame" envconfig:"TIME_FRAME"`
	} `yaml:"trading" envconfig:"TRADING"`
	// Strategies maps strategy ID -> phrase -> directive (buy, sell, hold).
	Strategies map[string]map[string]string `yaml:"strategies" ignored:"true"`
}

// Default mirrors config/config.yaml so a missing file still yields a runnable setup.
func Default() *Config {
	var cfg Config
	cfg.Server.Port = 8080
	cfg.Logging.Level = "info"
	cfg.Logging.Encoding = "json"
	cfg.Signal.BaseURL = "http://127.0.0.1:5001"
	cfg.Signal.TimeoutMs = 3000
	cfg.Market.Baseline = 100.25
	cfg.Market.MaxDeviationPct = 10
	cfg.Market.StepPct = 0.5
	cfg.Market.Seed = 1
	cfg.Polling.TickMs = 5000
	cfg.Polling.DirectiveRefreshMs = 30000
	cfg.Polling.PriceRefreshMs = 1000
	cfg.Polling.StatusPushMs = 2000
	cfg.Notifications.TTLMs = 5000
	cfg.Ledger.Driver = "memory"
	cfg.Trading.Strategy = "momentum-trading"
	cfg.Trading.InvestmentAmount = 1000
	cfg.Trading.StopLossPct = 5
	cfg.Trading.TakeProfitPct = 10
	cfg.Trading.MaxTrades = 5
	cfg.Trading.TimeFrame = string(domain.TimeFrame5m)
	return &cfg
}

// Load reads the YAML file over the defaults, then a .env file if present,
// then TRADER_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Signal.BaseURL == "" {
		return errors.New("signal.base_url is required")
	}
	if c.Signal.TimeoutMs <= 0 || c.Polling.TickMs <= 0 || c.Polling.DirectiveRefreshMs <= 0 ||
		c.Polling.PriceRefreshMs <= 0 || c.Polling.StatusPushMs <= 0 || c.Notifications.TTLMs <= 0 {
		return errors.New("timeouts and polling intervals must be positive")
	}
	if c.Polling.DirectiveRefreshMs < c.Polling.TickMs {
		return fmt.Errorf("polling.directive_refresh_ms (%d) must not be faster than polling.tick_ms (%d)",
			c.Polling.DirectiveRefreshMs, c.Polling.TickMs)
	}
	switch c.Ledger.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("ledger.driver must be memory or sqlite, got %q", c.Ledger.Driver)
	}
	if _, err := c.TradeSettings(); err != nil {
		return err
	}
	vocab, err := c.Vocabularies()
	if err != nil {
		return err
	}
	if _, ok := vocab[c.Trading.Strategy]; !ok {
		return fmt.Errorf("trading.strategy %q has no vocabulary", c.Trading.Strategy)
	}
	return nil
}

func (c *Config) TradeSettings() (domain.TradeSettings, error) {
	s := domain.TradeSettings{
		InvestmentAmount: decimal.NewFromFloat(c.Trading.InvestmentAmount),
		StopLossPct:      decimal.NewFromFloat(c.Trading.StopLossPct),
		TakeProfitPct:    decimal.NewFromFloat(c.Trading.TakeProfitPct),
		TrailingStop:     c.Trading.TrailingStop,
		MaxTrades:        c.Trading.MaxTrades,
		TimeFrame:        domain.TimeFrame(c.Trading.TimeFrame),
	}
	return s, s.Validate()
}

// Vocabularies falls back to the built-in catalogue when no strategies are configured.
func (c *Config) Vocabularies() (map[string]usecase.Vocabulary, error) {
	if len(c.Strategies) == 0 {
		return usecase.DefaultVocabularies(), nil
	}
	out := make(map[string]usecase.Vocabulary, len(c.Strategies))
	for id, phrases := range c.Strategies {
		vocab := make(usecase.Vocabulary, len(phrases))
		for phrase, raw := range phrases {
			d, ok := domain.ParseDirective(raw)
			if !ok {
				return nil, fmt.Errorf("strategies.%s: phrase %q has unknown directive %q", id, phrase, raw)
			}
			vocab[phrase] = d
		}
		out[id] = vocab
	}
	return out, nil
}

func (c *Config) ControllerConfig() (usecase.ControllerConfig, error) {
	settings, err := c.TradeSettings()
	if err != nil {
		return usecase.ControllerConfig{}, err
	}
	return usecase.ControllerConfig{
		Strategy:         c.Trading.Strategy,
		Settings:         settings,
		TickInterval:     ms(c.Polling.TickMs),
		DirectiveRefresh: ms(c.Polling.DirectiveRefreshMs),
		PriceRefresh:     ms(c.Polling.PriceRefreshMs),
		FetchTimeout:     ms(c.Signal.TimeoutMs),
		NotificationTTL:  ms(c.Notifications.TTLMs),
	}, nil
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
