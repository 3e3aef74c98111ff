package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"local" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Broker struct {
		Type           string        `yaml:"type" default:"paper" validate:"oneof=gateway paper"`
		URL            string        `yaml:"url" validate:"required_if=Type gateway"`
		Email          string        `yaml:"email" validate:"required_if=Type gateway"`
		Password       string        `yaml:"password" validate:"required_if=Type gateway"`
		AccountMode    string        `yaml:"account_mode" default:"PRACTICE" validate:"oneof=PRACTICE REAL TOURNAMENT"`
		RequestTimeout time.Duration `yaml:"request_timeout" default:"30s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
		Paper          struct {
			Balance   float64  `yaml:"balance" default:"10000" validate:"gt=0"`
			Payout    float64  `yaml:"payout" default:"0.85" validate:"gte=0,lte=1"`
			Seed      int64    `yaml:"seed" default:"1"`
			NoPrimary []string `yaml:"no_primary"`
		} `yaml:"paper"`
	} `yaml:"broker"`
	Scanner struct {
		Instruments       []string      `yaml:"instruments" default:"[\"EURJPY-OTC\",\"EURUSD-OTC\",\"AUDCAD-OTC\",\"GBPUSD-OTC\",\"EURGBP-OTC\",\"GBPJPY-OTC\",\"USDCHF-OTC\"]" validate:"required,min=1,dive,required"`
		TimeframeSeconds  int           `yaml:"timeframe_seconds" default:"60" validate:"gt=0"`
		CandleCount       int           `yaml:"candle_count" default:"200" validate:"gte=50,lte=1000"`
		ScanInterval      time.Duration `yaml:"scan_interval" default:"10s" validate:"gt=0"`
		CompletenessRatio float64       `yaml:"completeness_ratio" default:"0.5" validate:"gt=0,lte=1"`
		FetchRetries      int           `yaml:"fetch_retries" default:"3" validate:"gte=1,lte=10"`
		FetchRetryDelay   time.Duration `yaml:"fetch_retry_delay" default:"2s"`
	} `yaml:"scanner"`
	Trading struct {
		Investment       float64       `yaml:"investment" default:"1" validate:"gt=0"`
		DurationMinutes  int           `yaml:"duration_minutes" default:"1" validate:"gte=1,lte=60"`
		SettlementBuffer time.Duration `yaml:"settlement_buffer" default:"20s" validate:"gte=0"`
		BalanceRetries   int           `yaml:"balance_retries" default:"3" validate:"gte=1"`
	} `yaml:"trading"`
	Dedup struct {
		Backend  string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		Mode     string        `yaml:"mode" default:"sliding" validate:"oneof=sliding bucket"`
		Cooldown time.Duration `yaml:"cooldown" default:"600s" validate:"gt=0"`
	} `yaml:"dedup"`
	Connection struct {
		StabilizationDelay time.Duration `yaml:"stabilization_delay" default:"2s"`
		FailureThreshold   int           `yaml:"failure_threshold" default:"5" validate:"gte=1,lte=50"`
		ClockSkewWarn      time.Duration `yaml:"clock_skew_warn" default:"30s"`
		Reconnect          struct {
			Policy      string        `yaml:"policy" default:"exponential" validate:"oneof=exponential linear"`
			MaxAttempts int           `yaml:"max_attempts" default:"5" validate:"gte=1"`
			BaseDelay   time.Duration `yaml:"base_delay" default:"5s"`
			Multiplier  float64       `yaml:"multiplier" default:"2" validate:"gte=1"`
			Cap         time.Duration `yaml:"cap" default:"300s"`
		} `yaml:"reconnect"`
	} `yaml:"connection"`
	Strategy struct {
		RSIPeriod       int     `yaml:"rsi_period" default:"14" validate:"gte=2"`
		BollingerPeriod int     `yaml:"bollinger_period" default:"14" validate:"gte=2"`
		BollingerDev    float64 `yaml:"bollinger_dev" default:"2" validate:"gt=0"`
		EMAPeriod       int     `yaml:"ema_period" default:"50" validate:"gte=2"`
		AvgBodyPeriod   int     `yaml:"avg_body_period" default:"10" validate:"gte=1"`
		RSIOverbought   float64 `yaml:"rsi_overbought" default:"70" validate:"gt=50,lte=100"`
		RSIOversold     float64 `yaml:"rsi_oversold" default:"30" validate:"gte=0,lt=50"`
		MinStreak       int     `yaml:"min_streak" default:"4" validate:"gte=1"`
		WickRatio       float64 `yaml:"wick_ratio" default:"0.35" validate:"gte=0"`
		MaxBodyMultiple float64 `yaml:"max_body_multiple" default:"2" validate:"gte=1"`
	} `yaml:"strategy"`
	Notify struct {
		Timezone     string  `yaml:"timezone" default:"America/Santo_Domingo"`
		BufferSize   int     `yaml:"buffer_size" default:"256" validate:"gte=1"`
		RatePerMin   float64 `yaml:"rate_per_minute" default:"20" validate:"gt=0"`
		Burst        float64 `yaml:"burst" default:"5" validate:"gte=1"`
		Telegram     struct {
			Token   string        `yaml:"token"`
			ChatID  string        `yaml:"chat_id"`
			BaseURL string        `yaml:"base_url" default:"https://api.telegram.org"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
		} `yaml:"telegram"`
		WhatsApp struct {
			Phone   string        `yaml:"phone"`
			APIKey  string        `yaml:"api_key"`
			BaseURL string        `yaml:"base_url" default:"https://api.callmebot.com/whatsapp.php"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
		} `yaml:"whatsapp"`
		Kafka struct {
			Enabled      bool          `yaml:"enabled"`
			Brokers      []string      `yaml:"brokers" validate:"required_if=Enabled true"`
			Topic        string        `yaml:"topic" default:"tradesentinel.events"`
			RequiredAcks int           `yaml:"required_acks" default:"1"`
			Compression  string        `yaml:"compression" default:"snappy"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
		} `yaml:"kafka"`
		Journal struct {
			Enabled     bool          `yaml:"enabled"`
			Host        string        `yaml:"host" validate:"required_if=Enabled true"`
			Port        int           `yaml:"port" default:"9000"`
			Database    string        `yaml:"database" default:"tradesentinel"`
			Table       string        `yaml:"table" default:"journal"`
			User        string        `yaml:"user" default:"default"`
			Password    string        `yaml:"password"`
			UseHTTP     bool          `yaml:"use_http"`
			DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		} `yaml:"journal"`
	} `yaml:"notify"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"tradesentinel"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Default returns a Config populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment lookup function.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("BROKER_EMAIL"); v != "" {
		c.Broker.Email = v
	}
	if v := getenv("BROKER_PASSWORD"); v != "" {
		c.Broker.Password = v
	}
	if v := getenv("ACCOUNT_MODE"); v != "" {
		c.Broker.AccountMode = strings.ToUpper(v)
	}
	if v := getenv("INSTRUMENTS"); v != "" {
		c.Scanner.Instruments = splitList(v)
	}
	if v := getenv("INVESTMENT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("INVESTMENT: %w", err)
		}
		c.Trading.Investment = f
	}
	if v := getenv("TRADE_DURATION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRADE_DURATION: %w", err)
		}
		c.Trading.DurationMinutes = n
	}
	if v := getenv("TELEGRAM_TOKEN"); v != "" {
		c.Notify.Telegram.Token = v
	}
	if v := getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Notify.Telegram.ChatID = v
	}
	if v := getenv("WHATSAPP_PHONE"); v != "" {
		c.Notify.WhatsApp.Phone = v
	}
	if v := getenv("WHATSAPP_API_KEY"); v != "" {
		c.Notify.WhatsApp.APIKey = v
	}
	if v := getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = n
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Connection.Reconnect.Cap > 0 && c.Connection.Reconnect.Cap < c.Connection.Reconnect.BaseDelay {
		return fmt.Errorf("connection.reconnect.cap must be >= base_delay")
	}
	if _, err := time.LoadLocation(c.Notify.Timezone); err != nil {
		return fmt.Errorf("notify.timezone: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
