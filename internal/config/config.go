package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Eliolocin/TomoriBot-sub001/internal/textutil"
)

// Config contains all runtime settings for the bot.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	DiscordToken      string
	BotName           string
	Locale            string
	AutoReplyChannels []string

	ProviderMode    string
	AnthropicAPIKey string
	Model           string
	SystemPrompt    string
	MaxTokens       int
	Temperature     float64

	HumanizerTier textutil.Tier

	PlainFlushLimit   int
	CodeFlushLimit    int
	MaxMessageLen     int
	InactivityTimeout time.Duration
	MaxEmptyRetries   int
	EmptyRetryDelay   time.Duration
	MaxFunctionRounds int

	TypingPerChar        time.Duration
	TypingMinVisible     time.Duration
	TypingMaxDuration    time.Duration
	ThinkingPauseMin     time.Duration
	ThinkingPauseMax     time.Duration
	ThinkingExtendChance float64

	StopMaxAge   time.Duration
	LockStaleAge time.Duration

	EmojiEnabled bool
	EmojiList    []string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "tomori"),
		DiscordToken:      stringsTrimSpace("DISCORD_TOKEN"),
		BotName:           envOrDefault("BOT_NAME", "Tomori"),
		Locale:            envOrDefault("BOT_LOCALE", "en"),
		AutoReplyChannels: listFromEnv("BOT_AUTO_REPLY_CHANNELS"),
		ProviderMode:      envOrDefault("LLM_PROVIDER", "auto"),
		AnthropicAPIKey:   stringsTrimSpace("ANTHROPIC_API_KEY"),
		Model:             envOrDefault("LLM_MODEL", "claude-sonnet-4-20250514"),
		SystemPrompt:      os.Getenv("BOT_SYSTEM_PROMPT"),
		MaxTokens:         4096,
		Temperature:       1.0,

		PlainFlushLimit:   500,
		CodeFlushLimit:    15000,
		MaxMessageLen:     1950,
		InactivityTimeout: 2 * time.Minute,
		MaxEmptyRetries:   2,
		EmptyRetryDelay:   time.Second,
		MaxFunctionRounds: 5,

		TypingPerChar:        45 * time.Millisecond,
		TypingMinVisible:     750 * time.Millisecond,
		TypingMaxDuration:    8 * time.Second,
		ThinkingPauseMin:     500 * time.Millisecond,
		ThinkingPauseMax:     2 * time.Second,
		ThinkingExtendChance: 0.25,

		StopMaxAge:   5 * time.Minute,
		LockStaleAge: 3 * time.Minute,

		EmojiEnabled: true,
		EmojiList:    listFromEnv("BOT_EMOJI_LIST"),

		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	cfg.HumanizerTier, err = textutil.ParseTier(envOrDefault("BOT_HUMANIZER_TIER", "heavy"))
	if err != nil {
		return Config{}, fmt.Errorf("BOT_HUMANIZER_TIER: %w", err)
	}
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.MaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.Temperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.Temperature)
	if err != nil {
		return Config{}, err
	}
	cfg.PlainFlushLimit, err = intFromEnv("STREAM_PLAIN_FLUSH_LIMIT", cfg.PlainFlushLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.CodeFlushLimit, err = intFromEnv("STREAM_CODE_FLUSH_LIMIT", cfg.CodeFlushLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMessageLen, err = intFromEnv("STREAM_MAX_MESSAGE_LEN", cfg.MaxMessageLen)
	if err != nil {
		return Config{}, err
	}
	cfg.InactivityTimeout, err = durationFromEnv("STREAM_INACTIVITY_TIMEOUT", cfg.InactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxEmptyRetries, err = intFromEnv("STREAM_MAX_EMPTY_RETRIES", cfg.MaxEmptyRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.EmptyRetryDelay, err = durationFromEnv("STREAM_EMPTY_RETRY_DELAY", cfg.EmptyRetryDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxFunctionRounds, err = intFromEnv("STREAM_MAX_FUNCTION_ROUNDS", cfg.MaxFunctionRounds)
	if err != nil {
		return Config{}, err
	}
	cfg.TypingPerChar, err = durationFromEnv("TYPING_PER_CHAR", cfg.TypingPerChar)
	if err != nil {
		return Config{}, err
	}
	cfg.TypingMinVisible, err = durationFromEnv("TYPING_MIN_VISIBLE", cfg.TypingMinVisible)
	if err != nil {
		return Config{}, err
	}
	cfg.TypingMaxDuration, err = durationFromEnv("TYPING_MAX_DURATION", cfg.TypingMaxDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.ThinkingPauseMin, err = durationFromEnv("TYPING_THINKING_MIN", cfg.ThinkingPauseMin)
	if err != nil {
		return Config{}, err
	}
	cfg.ThinkingPauseMax, err = durationFromEnv("TYPING_THINKING_MAX", cfg.ThinkingPauseMax)
	if err != nil {
		return Config{}, err
	}
	cfg.ThinkingExtendChance, err = floatFromEnv("TYPING_EXTEND_CHANCE", cfg.ThinkingExtendChance)
	if err != nil {
		return Config{}, err
	}
	cfg.StopMaxAge, err = durationFromEnv("STOP_MAX_AGE", cfg.StopMaxAge)
	if err != nil {
		return Config{}, err
	}
	cfg.LockStaleAge, err = durationFromEnv("LOCK_STALE_AGE", cfg.LockStaleAge)
	if err != nil {
		return Config{}, err
	}
	cfg.EmojiEnabled, err = boolFromEnv("BOT_EMOJI_ENABLED", cfg.EmojiEnabled)
	if err != nil {
		return Config{}, err
	}

	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return Config{}, fmt.Errorf("LLM_TEMPERATURE must be in [0, 2]")
	}
	if cfg.MaxMessageLen <= 0 || cfg.MaxMessageLen > 2000 {
		return Config{}, fmt.Errorf("STREAM_MAX_MESSAGE_LEN must be in (0, 2000]")
	}
	if cfg.PlainFlushLimit <= 0 || cfg.CodeFlushLimit <= cfg.PlainFlushLimit {
		return Config{}, fmt.Errorf("flush limits must be positive, with STREAM_CODE_FLUSH_LIMIT above STREAM_PLAIN_FLUSH_LIMIT")
	}
	if cfg.InactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("STREAM_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MaxEmptyRetries < 0 {
		return Config{}, fmt.Errorf("STREAM_MAX_EMPTY_RETRIES must be >= 0")
	}
	if cfg.MaxFunctionRounds <= 0 {
		return Config{}, fmt.Errorf("STREAM_MAX_FUNCTION_ROUNDS must be positive")
	}
	if cfg.ThinkingPauseMax < cfg.ThinkingPauseMin {
		return Config{}, fmt.Errorf("TYPING_THINKING_MAX must be >= TYPING_THINKING_MIN")
	}
	if cfg.ThinkingExtendChance < 0 || cfg.ThinkingExtendChance > 1 {
		return Config{}, fmt.Errorf("TYPING_EXTEND_CHANCE must be in [0, 1]")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string) []string {
	raw := stringsTrimSpace(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
