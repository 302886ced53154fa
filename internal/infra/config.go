package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"trader_go/internal/domain"

	"github.com/shopspring/decimal"
)

// Trading modes. LIVE additionally requires the CONFIRM_REAL_MONEY latch.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// SymbolConfig is the yaml-facing shape of one traded symbol. Numeric
// fields stay float64 here; ToSpec converts to decimal at the boundary.
type SymbolConfig struct {
	Symbol        string  `yaml:"symbol"`
	BaseAsset     string  `yaml:"base_asset"`
	QuoteAsset    string  `yaml:"quote_asset"`
	PriceDecimals int32   `yaml:"price_decimals"`
	QtyDecimals   int32   `yaml:"qty_decimals"`
	MinNotional   float64 `yaml:"min_notional"`
	KlineInterval string  `yaml:"kline_interval"`
}

// ToSpec converts the yaml shape into the domain constraint object.
func (s SymbolConfig) ToSpec() domain.SymbolSpec {
	interval := s.KlineInterval
	if interval == "" {
		interval = "1m"
	}
	return domain.SymbolSpec{
		Symbol:        s.Symbol,
		BaseAsset:     s.BaseAsset,
		QuoteAsset:    s.QuoteAsset,
		PriceDecimals: s.PriceDecimals,
		QtyDecimals:   s.QtyDecimals,
		MinNotional:   decimal.NewFromFloat(s.MinNotional),
		KlineInterval: interval,
	}
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode               string         `yaml:"mode"` // paper | live
		Symbols            []SymbolConfig `yaml:"symbols"`
		MaxPerTrade        float64        `yaml:"max_per_trade"`     // quote notional cap per order
		DailyMaxLoss       float64        `yaml:"daily_max_loss"`    // quote, resets at UTC midnight
		CooldownAfterLossS int            `yaml:"cooldown_after_loss_sec"`
		MinConfidence      float64        `yaml:"min_confidence"` // 0..1
		FeeBps             int64          `yaml:"fee_bps"`
		MinProfitBps       int64          `yaml:"min_profit_bps"`
		StopLossPct        float64        `yaml:"stop_loss_pct"` // 0.05 = 5%
		TimeStopMin        int            `yaml:"time_stop_min"`
		DcaStepBps         int64          `yaml:"dca_step_bps"`
		SlippageBps        int64          `yaml:"slippage_bps"`
		HeartbeatSec       int            `yaml:"heartbeat_sec"`
		ReconcileSec       int            `yaml:"reconcile_sec"`
		BalancePollSec     int            `yaml:"balance_poll_sec"`
		KlineLimit         int            `yaml:"kline_limit"`
		PaperQuoteBalance  float64        `yaml:"paper_quote_balance"`
		SmaFast            int            `yaml:"sma_fast"`
		SmaSlow            int            `yaml:"sma_slow"`
	} `yaml:"trading"`

	API struct {
		Mexc struct {
			RestURL         string `yaml:"rest_url"`
			WSURL           string `yaml:"ws_url"`
			APIKey          string `yaml:"api_key"`    // prefer MEXC_API_KEY env
			APISecret       string `yaml:"api_secret"` // prefer MEXC_API_SECRET env
			RecvWindowMS    int64  `yaml:"recv_window_ms"`
			TimeoutSec      int    `yaml:"timeout_sec"`
			TimeSyncSec     int    `yaml:"time_sync_sec"`
			FeedEnabled     bool   `yaml:"feed_enabled"`
			FeedStaleAfterS int    `yaml:"feed_stale_after_sec"`
		} `yaml:"mexc"`
	} `yaml:"api"`

	Storage struct {
		DBPath       string `yaml:"db_path"`
		SnapshotPath string `yaml:"snapshot_path"`
		SnapshotSec  int    `yaml:"snapshot_sec"`
	} `yaml:"storage"`

	Debug struct {
		ListenAddr string `yaml:"listen_addr"` // pprof + /metrics; empty disables
	} `yaml:"debug"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	t := &c.Trading
	if t.Mode == "" {
		t.Mode = ModePaper
	}
	if t.HeartbeatSec <= 0 {
		t.HeartbeatSec = 30
	}
	if t.ReconcileSec <= 0 {
		t.ReconcileSec = 10
	}
	if t.BalancePollSec <= 0 {
		t.BalancePollSec = 25
	}
	if t.KlineLimit <= 0 {
		t.KlineLimit = 400
	}
	if t.SmaFast <= 0 {
		t.SmaFast = 7
	}
	if t.SmaSlow <= 0 {
		t.SmaSlow = 25
	}

	m := &c.API.Mexc
	if m.RestURL == "" {
		m.RestURL = "https://api.mexc.com"
	}
	if m.WSURL == "" {
		m.WSURL = "wss://wbs.mexc.com/ws"
	}
	if m.RecvWindowMS <= 0 {
		m.RecvWindowMS = 5000
	}
	if m.TimeoutSec <= 0 {
		m.TimeoutSec = 15
	}
	if m.TimeSyncSec <= 0 {
		m.TimeSyncSec = 300
	}
	if m.FeedStaleAfterS <= 0 {
		m.FeedStaleAfterS = 30
	}

	if c.Storage.SnapshotSec <= 0 {
		c.Storage.SnapshotSec = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	mode := strings.ToLower(c.Trading.Mode)
	if mode != ModePaper && mode != ModeLive {
		return fmt.Errorf("invalid trading mode: %s (want paper|live)", c.Trading.Mode)
	}
	c.Trading.Mode = mode

	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("at least one trading symbol is required")
	}
	seen := make(map[string]bool, len(c.Trading.Symbols))
	for _, sc := range c.Trading.Symbols {
		spec := sc.ToSpec()
		if err := spec.Validate(); err != nil {
			return err
		}
		if seen[spec.Symbol] {
			return fmt.Errorf("duplicate symbol: %s", spec.Symbol)
		}
		seen[spec.Symbol] = true
	}

	t := &c.Trading
	if t.MaxPerTrade <= 0 {
		return fmt.Errorf("max_per_trade must be positive")
	}
	if t.DailyMaxLoss < 0 || t.CooldownAfterLossS < 0 {
		return fmt.Errorf("daily_max_loss and cooldown_after_loss_sec must not be negative")
	}
	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0,1]")
	}
	if t.FeeBps < 0 || t.MinProfitBps < 0 || t.DcaStepBps < 0 || t.SlippageBps < 0 {
		return fmt.Errorf("basis point settings must not be negative")
	}
	if t.StopLossPct < 0 || t.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be within [0,1)")
	}
	if t.TimeStopMin < 0 {
		return fmt.Errorf("time_stop_min must not be negative")
	}
	if t.SmaFast >= t.SmaSlow {
		return fmt.Errorf("sma_fast (%d) must be smaller than sma_slow (%d)", t.SmaFast, t.SmaSlow)
	}
	if mode == ModePaper && t.PaperQuoteBalance <= 0 {
		return fmt.Errorf("paper_quote_balance must be positive in paper mode")
	}

	m := &c.API.Mexc
	if !hasPrefix(m.RestURL, "http://") && !hasPrefix(m.RestURL, "https://") {
		return fmt.Errorf("invalid REST URL: %s", m.RestURL)
	}
	if m.FeedEnabled && !hasPrefix(m.WSURL, "ws://") && !hasPrefix(m.WSURL, "wss://") {
		return fmt.Errorf("invalid WS URL: %s", m.WSURL)
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// SymbolSpecs returns the validated domain specs for all configured symbols.
func (c *Config) SymbolSpecs() []domain.SymbolSpec {
	specs := make([]domain.SymbolSpec, 0, len(c.Trading.Symbols))
	for _, sc := range c.Trading.Symbols {
		specs = append(specs, sc.ToSpec())
	}
	return specs
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
// Rule #5: 환경 변수는 설정 파일보다 우선합니다 (보안 강화).
func overrideWithEnv(cfg *Config) {
	// Security Warning: Log if secrets found in config file
	if cfg.API.Mexc.APIKey != "" || cfg.API.Mexc.APISecret != "" {
		// Using fmt instead of slog to avoid import cycle
		fmt.Println("⚠️  SECURITY WARNING: API secrets found in config file.")
		fmt.Println("   Recommendation: Use environment variables instead:")
		fmt.Println("   - MEXC_API_KEY, MEXC_API_SECRET")
	}

	if key := os.Getenv("MEXC_API_KEY"); key != "" {
		cfg.API.Mexc.APIKey = key
	}
	if secret := os.Getenv("MEXC_API_SECRET"); secret != "" {
		cfg.API.Mexc.APISecret = secret
	}
	if mode := os.Getenv("TRADER_MODE"); mode != "" {
		cfg.Trading.Mode = mode
	}
	if db := os.Getenv("TRADER_DB_PATH"); db != "" {
		cfg.Storage.DBPath = db
	}
}
