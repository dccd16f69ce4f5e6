package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	defaultDataDir = "data"
	// defaultMistakeWindow is the rolling escalation window: a
	// participant whose last mistake is older than this starts over
	// with clean counters.
	defaultMistakeWindow = 10 * time.Minute
	// defaultMistakeThreshold is how many mistakes inside the window
	// convert into one warning.
	defaultMistakeThreshold = 5
	// defaultMaxWarnings is how many warnings escalate into a ban.
	defaultMaxWarnings = 3
	// defaultAutoBanDuration is how long an escalated ban lasts before
	// the auto-unban fires. Zero would make escalated bans indefinite.
	defaultAutoBanDuration = 24 * time.Hour
)

type Config struct {
	DiscordGuildID    string
	CountingChannelID string
	// BotToken is loaded exclusively from secrets.toml (or the
	// DISCORD_BOT_TOKEN environment variable) and never written back
	// to config.json.
	BotToken string

	DataDir    string
	StatusAddr string // optional HTTP status listen address, e.g. ":8099"

	MistakeWindow    time.Duration
	MistakeThreshold int
	MaxWarnings      int
	AutoBanDuration  time.Duration
}

// EffectiveConfig is the redacted snapshot served by the status
// endpoint and written next to the data directory for operators.
type EffectiveConfig struct {
	DiscordGuildID    string `json:"discord_guild_id"`
	CountingChannelID string `json:"counting_channel_id"`
	BotTokenSet       bool   `json:"bot_token_set"`
	DataDir           string `json:"data_dir"`
	StatusAddr        string `json:"status_listen,omitempty"`
	MistakeWindow     string `json:"mistake_window"`
	MistakeThreshold  int    `json:"mistake_threshold"`
	MaxWarnings       int    `json:"max_warnings"`
	AutoBanDuration   string `json:"auto_ban_duration"`
}

type fileConfig struct {
	DiscordGuildID    string  `json:"discord_guild_id"`
	CountingChannelID string  `json:"counting_channel_id"`
	DataDir           string  `json:"data_dir"`
	StatusListen      string  `json:"status_listen"`
	MistakeWindow     *string `json:"mistake_window"`
	MistakeThreshold  *int    `json:"mistake_threshold"`
	MaxWarnings       *int    `json:"max_warnings"`
	AutoBanDuration   *string `json:"auto_ban_duration"`
}

// secretsConfig holds sensitive values that operators may prefer to
// keep out of the main config.json so it can be checked into version
// control or shared more freely.
type secretsConfig struct {
	DiscordBotToken string `toml:"discord_bot_token"`
}

func defaultConfig() Config {
	return Config{
		DataDir:          defaultDataDir,
		MistakeWindow:    defaultMistakeWindow,
		MistakeThreshold: defaultMistakeThreshold,
		MaxWarnings:      defaultMaxWarnings,
		AutoBanDuration:  defaultAutoBanDuration,
	}
}

func loadConfig(configPath, secretsPath string) Config {
	cfg := defaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		var fc fileConfig
		if err := fastJSONUnmarshal(data, &fc); err != nil {
			fatal("config parse failed", err, "path", configPath)
		}
		applyFileConfig(&cfg, fc)
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("config file not found, using defaults", "path", configPath)
	default:
		fatal("config read failed", err, "path", configPath)
	}

	loadSecrets(&cfg, secretsPath)

	if cfg.MistakeThreshold < 1 {
		cfg.MistakeThreshold = defaultMistakeThreshold
	}
	if cfg.MaxWarnings < 1 {
		cfg.MaxWarnings = defaultMaxWarnings
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	return cfg
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if v := strings.TrimSpace(fc.DiscordGuildID); v != "" {
		cfg.DiscordGuildID = v
	}
	if v := strings.TrimSpace(fc.CountingChannelID); v != "" {
		cfg.CountingChannelID = v
	}
	if v := strings.TrimSpace(fc.DataDir); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(fc.StatusListen); v != "" {
		cfg.StatusAddr = v
	}
	if fc.MistakeWindow != nil {
		if d, err := parseShortDuration(*fc.MistakeWindow); err == nil {
			cfg.MistakeWindow = d
		} else {
			logger.Warn("invalid mistake_window, keeping default", "value", *fc.MistakeWindow, "error", err)
		}
	}
	if fc.MistakeThreshold != nil {
		cfg.MistakeThreshold = *fc.MistakeThreshold
	}
	if fc.MaxWarnings != nil {
		cfg.MaxWarnings = *fc.MaxWarnings
	}
	if fc.AutoBanDuration != nil {
		// "0" turns escalated bans indefinite.
		if strings.TrimSpace(*fc.AutoBanDuration) == "0" {
			cfg.AutoBanDuration = 0
		} else if d, err := parseShortDuration(*fc.AutoBanDuration); err == nil {
			cfg.AutoBanDuration = d
		} else {
			logger.Warn("invalid auto_ban_duration, keeping default", "value", *fc.AutoBanDuration, "error", err)
		}
	}
}

func loadSecrets(cfg *Config, secretsPath string) {
	if env := strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")); env != "" {
		cfg.BotToken = env
	}
	if secretsPath == "" {
		return
	}
	data, err := os.ReadFile(secretsPath)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Warn("secrets read failed", "path", secretsPath, "error", err)
		return
	}
	var sc secretsConfig
	if err := toml.Unmarshal(data, &sc); err != nil {
		logger.Warn("secrets parse failed", "path", secretsPath, "error", err)
		return
	}
	if v := strings.TrimSpace(sc.DiscordBotToken); v != "" {
		cfg.BotToken = v
	}
}

func (c Config) effective() EffectiveConfig {
	autoBan := "0"
	if c.AutoBanDuration > 0 {
		autoBan = humanShortDuration(c.AutoBanDuration)
	}
	return EffectiveConfig{
		DiscordGuildID:    c.DiscordGuildID,
		CountingChannelID: c.CountingChannelID,
		BotTokenSet:       c.BotToken != "",
		DataDir:           c.DataDir,
		StatusAddr:        c.StatusAddr,
		MistakeWindow:     humanShortDuration(c.MistakeWindow),
		MistakeThreshold:  c.MistakeThreshold,
		MaxWarnings:       c.MaxWarnings,
		AutoBanDuration:   autoBan,
	}
}

func (c Config) statePath() string {
	return filepath.Join(c.DataDir, "state", "counting.db")
}
