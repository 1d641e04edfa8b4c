package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvVenueToken    = "DERIV_TOKEN"
	EnvTelegramToken = "TELEGRAM_TOKEN"
	EnvPort          = "PORT"
)

type Config struct {
	VenueToken       string        `yaml:"venue_token"`
	TelegramToken    string        `yaml:"telegram_token"`
	Port             int           `yaml:"port"`
	VenueURL         string        `yaml:"venue_url"`
	AppID            string        `yaml:"app_id"`
	TelegramAPIURL   string        `yaml:"telegram_api_url"`
	DefaultChatID    int64         `yaml:"default_chat_id"`
	Symbol           string        `yaml:"symbol"`
	Currency         string        `yaml:"currency"`
	DurationTicks    int           `yaml:"duration_ticks"`
	PollTimeout      time.Duration `yaml:"poll_timeout"`
	PollBackoff      time.Duration `yaml:"poll_backoff"`
	MaxLossStreak    int           `yaml:"max_loss_streak"`
	MaxDrawdownPct   float64       `yaml:"max_drawdown_pct"`
	StakeMinFraction float64       `yaml:"stake_min_fraction"`
	StakeMaxFraction float64       `yaml:"stake_max_fraction"`
	DecisionsPath    string        `yaml:"decisions_path"`
	LogLevel         string        `yaml:"log_level"`
}

func Defaults() Config {
	return Config{
		Port:             3000,
		VenueURL:         "wss://ws.derivws.com/websockets/v3",
		AppID:            "1089",
		TelegramAPIURL:   "https://api.telegram.org",
		Symbol:           "R_75",
		Currency:         "USD",
		DurationTicks:    5,
		PollTimeout:      100 * time.Second,
		PollBackoff:      2 * time.Second,
		MaxLossStreak:    3,
		MaxDrawdownPct:   5,
		StakeMinFraction: 0.01,
		StakeMaxFraction: 0.02,
		DecisionsPath:    "decisions.ndjson",
		LogLevel:         "info",
	}
}

// VenueEndpoint is the websocket URL including the application id.
func (c Config) VenueEndpoint() (string, error) {
	u, err := url.Parse(c.VenueURL)
	if err != nil {
		return "", fmt.Errorf("parse venue url: %w", err)
	}
	if c.AppID != "" {
		q := u.Query()
		q.Set("app_id", c.AppID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Load resolves configuration from defaults, an optional YAML file, the
// environment (after .env) and finally command-line flags.
func Load(args []string) (Config, error) {
	cfg := Defaults()

	fs := flag.NewFlagSet("bot", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	envFile := fs.String("env-file", ".env", "dotenv file loaded when present")
	flagged := cfg
	fs.StringVar(&flagged.Symbol, "symbol", cfg.Symbol, "instrument to trade")
	fs.StringVar(&flagged.Currency, "currency", cfg.Currency, "account currency")
	fs.IntVar(&flagged.Port, "port", cfg.Port, "liveness endpoint port")
	fs.IntVar(&flagged.DurationTicks, "duration", cfg.DurationTicks, "contract duration in ticks")
	fs.DurationVar(&flagged.PollTimeout, "poll-timeout", cfg.PollTimeout, "command long-poll timeout")
	fs.DurationVar(&flagged.PollBackoff, "poll-backoff", cfg.PollBackoff, "delay before restarting the command poll loop")
	fs.IntVar(&flagged.MaxLossStreak, "max-loss-streak", cfg.MaxLossStreak, "consecutive losses that stop trading")
	fs.Float64Var(&flagged.MaxDrawdownPct, "max-drawdown-pct", cfg.MaxDrawdownPct, "drawdown percent that stops trading")
	fs.StringVar(&flagged.DecisionsPath, "decisions-path", cfg.DecisionsPath, "path to decisions journal")
	fs.StringVar(&flagged.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if err := loadDotEnvIfPresent(*envFile); err != nil {
		return cfg, err
	}
	if *configPath != "" {
		if err := loadFile(*configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "symbol":
			cfg.Symbol = flagged.Symbol
		case "currency":
			cfg.Currency = flagged.Currency
		case "port":
			cfg.Port = flagged.Port
		case "duration":
			cfg.DurationTicks = flagged.DurationTicks
		case "poll-timeout":
			cfg.PollTimeout = flagged.PollTimeout
		case "poll-backoff":
			cfg.PollBackoff = flagged.PollBackoff
		case "max-loss-streak":
			cfg.MaxLossStreak = flagged.MaxLossStreak
		case "max-drawdown-pct":
			cfg.MaxDrawdownPct = flagged.MaxDrawdownPct
		case "decisions-path":
			cfg.DecisionsPath = flagged.DecisionsPath
		case "log-level":
			cfg.LogLevel = flagged.LogLevel
		}
	})

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadDotEnvIfPresent never overrides variables already in the environment.
func loadDotEnvIfPresent(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setString(EnvVenueToken, &cfg.VenueToken)
	setString(EnvTelegramToken, &cfg.TelegramToken)
	setString("DERIV_APP_ID", &cfg.AppID)
	setString("DERIV_URL", &cfg.VenueURL)
	setString("TELEGRAM_API_URL", &cfg.TelegramAPIURL)
	setString("SYMBOL", &cfg.Symbol)
	setString("LOG_LEVEL", &cfg.LogLevel)

	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		chatID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID must be a number: %w", err)
		}
		cfg.DefaultChatID = chatID
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.VenueToken == "" {
		return fmt.Errorf("%s is required", EnvVenueToken)
	}
	if cfg.TelegramToken == "" {
		return fmt.Errorf("%s is required", EnvTelegramToken)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if cfg.Symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}
	if cfg.DurationTicks <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	if cfg.PollTimeout <= 0 {
		return fmt.Errorf("poll-timeout must be > 0")
	}
	if cfg.PollBackoff <= 0 {
		return fmt.Errorf("poll-backoff must be > 0")
	}
	if cfg.MaxLossStreak <= 0 {
		return fmt.Errorf("max-loss-streak must be > 0")
	}
	if cfg.MaxDrawdownPct <= 0 || cfg.MaxDrawdownPct > 100 {
		return fmt.Errorf("max-drawdown-pct must be in (0, 100]")
	}
	if cfg.StakeMinFraction <= 0 || cfg.StakeMaxFraction <= 0 {
		return fmt.Errorf("stake fractions must be > 0")
	}
	return nil
}
