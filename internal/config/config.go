package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "NEWSDIGEST_CONFIG"
	httpAddrEnv       = "HTTP_ADDR"
	logLevelEnv       = "LOG_LEVEL"
	newsAPITokenEnv   = "THENEWSAPI_TOKEN"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddressEnv   = "REDIS_ADDRESS"
	chatGPTAPIKeyEnv  = "CHATGPT_API_KEY"
	chatGPTModelEnv   = "CHATGPT_MODEL"
	mlEndpointEnv     = "ML_ENDPOINT"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Cache backends and summarizer providers understood by the application.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	ProviderML      = "ml"
	ProviderChatGPT = "chatgpt"
)

// Duration decodes Go duration strings ("90s", "1h") from YAML.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Config holds high-level settings required across the application.
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Logging       LoggingConfig      `yaml:"logging"`
	NewsAPI       NewsAPIConfig      `yaml:"newsapi"`
	Summarizer    SummarizerConfig   `yaml:"summarizer"`
	ML            MLConfig           `yaml:"ml"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Workflow      WorkflowConfig     `yaml:"workflow"`
	Quality       QualityConfig      `yaml:"quality"`
	Cache         CacheConfig        `yaml:"cache"`
	Redis         RedisConfig        `yaml:"redis"`
	Database      DatabaseConfig     `yaml:"database"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`

	// RequestTimeout bounds one digest computation triggered over HTTP.
	RequestTimeout     Duration `yaml:"requestTimeout"`
	DefaultMaxArticles int      `yaml:"defaultMaxArticles"`
}

// LoggingConfig selects level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewsAPIConfig describes the article search provider. WindowDays and
// MinContentLength seed the first search of every run.
type NewsAPIConfig struct {
	BaseURL           string   `yaml:"baseUrl"`
	Token             string   `yaml:"token"`
	Timeout           Duration `yaml:"timeout"`
	MaxRetries        int      `yaml:"maxRetries"`
	InitialBackoff    Duration `yaml:"initialBackoff"`
	RequestsPerSecond float64  `yaml:"requestsPerSecond"`
	Burst             int      `yaml:"burst"`
	MinRelevance      float64  `yaml:"minRelevance"`
	ExtractContent    bool     `yaml:"extractContent"`
	WindowDays        int      `yaml:"windowDays"`
	MinContentLength  int      `yaml:"minContentLength"`
}

// SummarizerConfig picks the model provider and bounds its usage.
type SummarizerConfig struct {
	Provider      string `yaml:"provider"`
	MaxInputChars int    `yaml:"maxInputChars"`
	MaxConcurrent int    `yaml:"maxConcurrent"`
}

// MLConfig describes neural-service integration parameters.
type MLConfig struct {
	Endpoint string   `yaml:"endpoint"`
	APIKey   string   `yaml:"apiKey"`
	Timeout  Duration `yaml:"timeout"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string   `yaml:"endpoint"`
	Model        string   `yaml:"model"`
	APIKey       string   `yaml:"apiKey"`
	SystemPrompt string   `yaml:"systemPrompt"`
	Timeout      Duration `yaml:"timeout"`
}

// WorkflowConfig bounds the refinement loop and request sizes.
type WorkflowConfig struct {
	MaxEnhanceAttempts int `yaml:"maxEnhanceAttempts"`
	MaxArticlesLimit   int `yaml:"maxArticlesLimit"`
}

// QualityConfig holds the result quality floors.
type QualityConfig struct {
	MinArticles         int `yaml:"minArticles"`
	MinAvgContentLength int `yaml:"minAvgContentLength"`
	MinDistinctSources  int `yaml:"minDistinctSources"`
}

// CacheConfig selects the backend and lifetimes of cached digests.
type CacheConfig struct {
	Backend     string   `yaml:"backend"`
	TTL         Duration `yaml:"ttl"`
	WaitTimeout Duration `yaml:"waitTimeout"`
}

// RedisConfig describes the Redis cache backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken  string `yaml:"botToken"`
	ChatID    string `yaml:"chatId"`
	ParseMode string `yaml:"parseMode"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// SchedulerConfig defines when configured topics are recomputed.
type SchedulerConfig struct {
	Interval   Duration    `yaml:"interval"`
	WarmTopics []WarmTopic `yaml:"warmTopics"`
}

// WarmTopic is a topic recomputed on every scheduler tick.
type WarmTopic struct {
	Topic       string `yaml:"topic"`
	MaxArticles int    `yaml:"maxArticles"`
	Language    string `yaml:"language"`
	Category    string `yaml:"category"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg, err := load(os.Getenv(configPathEnv), os.Getenv)
	if err != nil {
		log.Printf("config: %v (falling back to defaults)", err)
		cfg = defaultConfig()
		cfg.applyEnvOverrides(os.Getenv)
	}
	return cfg
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
		}
		// Decoding over the defaults keeps every key the file leaves out.
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides(getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides(getenv func(string) string) {
	overrides := map[string]*string{
		httpAddrEnv:       &c.Server.Addr,
		logLevelEnv:       &c.Logging.Level,
		newsAPITokenEnv:   &c.NewsAPI.Token,
		databaseDSNEnv:    &c.Database.DSN,
		redisAddressEnv:   &c.Redis.Address,
		chatGPTAPIKeyEnv:  &c.ChatGPT.APIKey,
		chatGPTModelEnv:   &c.ChatGPT.Model,
		mlEndpointEnv:     &c.ML.Endpoint,
		telegramTokenEnv:  &c.Notifications.Telegram.BotToken,
		telegramChatIDEnv: &c.Notifications.Telegram.ChatID,
	}
	for name, field := range overrides {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*field = v
		}
	}

	if v := getenv("NEWSDIGEST_SUMMARIZER"); v != "" {
		c.Summarizer.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := getenv("NEWSDIGEST_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := getenv("NEWSDIGEST_MAX_CONCURRENT_SUMMARIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Summarizer.MaxConcurrent = n
		} else {
			log.Printf("config: ignoring NEWSDIGEST_MAX_CONCURRENT_SUMMARIES=%q: %v", v, err)
		}
	}
}

// Validate reports settings the application cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.Cache.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.Backend == BackendRedis && c.Redis.Address == "" {
		errs = append(errs, errors.New("redis backend requires redis.address"))
	}
	if c.Cache.Backend == BackendPostgres && c.Database.DSN == "" {
		errs = append(errs, errors.New("postgres backend requires database.dsn"))
	}

	switch c.Summarizer.Provider {
	case ProviderML, ProviderChatGPT:
	default:
		errs = append(errs, fmt.Errorf("unknown summarizer provider %q", c.Summarizer.Provider))
	}

	if c.NewsAPI.WindowDays < 0 || c.NewsAPI.MinContentLength < 0 {
		errs = append(errs, errors.New("newsapi.windowDays and newsapi.minContentLength must not be negative"))
	}
	if c.Cache.TTL.Duration < 0 || c.Cache.WaitTimeout.Duration < 0 {
		errs = append(errs, errors.New("cache durations must not be negative"))
	}
	for i, topic := range c.Scheduler.WarmTopics {
		if strings.TrimSpace(topic.Topic) == "" {
			errs = append(errs, fmt.Errorf("scheduler.warmTopics[%d]: empty topic", i))
		}
	}

	return errors.Join(errs...)
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:               ":8080",
			ReadTimeout:        Duration{10 * time.Second},
			WriteTimeout:       Duration{5 * time.Minute},
			ShutdownTimeout:    Duration{15 * time.Second},
			RequestTimeout:     Duration{4 * time.Minute},
			DefaultMaxArticles: 25,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		NewsAPI: NewsAPIConfig{
			BaseURL:           "https://api.thenewsapi.com/v1/news",
			Timeout:           Duration{10 * time.Second},
			MaxRetries:        3,
			InitialBackoff:    Duration{500 * time.Millisecond},
			RequestsPerSecond: 2,
			Burst:             2,
			MinRelevance:      0.1,
			ExtractContent:    true,
			WindowDays:        7,
		},
		Summarizer: SummarizerConfig{Provider: ProviderML, MaxInputChars: 4000, MaxConcurrent: 1},
		ML:         MLConfig{Endpoint: "http://localhost:8000", Timeout: Duration{60 * time.Second}},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a news editor who writes short, factual summaries.",
			Timeout:      Duration{30 * time.Second},
		},
		Workflow: WorkflowConfig{MaxEnhanceAttempts: 2, MaxArticlesLimit: 100},
		Quality:  QualityConfig{MinArticles: 3, MinAvgContentLength: 200, MinDistinctSources: 2},
		Cache: CacheConfig{
			Backend:     BackendMemory,
			TTL:         Duration{time.Hour},
			WaitTimeout: Duration{30 * time.Second},
		},
		Redis:         RedisConfig{Address: "localhost:6379"},
		Database:      DatabaseConfig{DSN: ""},
		Notifications: NotificationConfig{Telegram: TelegramConfig{ParseMode: ""}},
		Scheduler:     SchedulerConfig{Interval: Duration{6 * time.Hour}},
	}
}
