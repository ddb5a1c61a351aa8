package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
	"github.com/samber/lo"
)

// FileEnv names the environment variable holding an optional HCL config file.
// Environment variables override values from the file.
const FileEnv = "NEWS_DIGEST_CONFIG"

// Store holds the relational database connection.
type Store struct {
	DatabaseURL string `hcl:"database_url" env:"DATABASE_URL"`
	PostgresURL string `hcl:"postgres_url" env:"POSTGRES_URL"`
}

// DSN returns DATABASE_URL, falling back to POSTGRES_URL.
func (s Store) DSN() string {
	if s.DatabaseURL != "" {
		return s.DatabaseURL
	}
	return s.PostgresURL
}

// Archive contains Elasticsearch parameters. An empty address disables the archive.
type Archive struct {
	ElasticsearchAddr  string `hcl:"elasticsearch_addr" env:"ELASTICSEARCH_ADDR"`
	ElasticsearchIndex string `hcl:"elasticsearch_index" env:"ELASTICSEARCH_INDEX" default:"news_digest"`
}

// Enabled reports whether an archive cluster is configured.
func (a Archive) Enabled() bool { return a.ElasticsearchAddr != "" }

// Ingest configures the model, prompts, URL resolution and side channels of a refresh.
type Ingest struct {
	LLMProvider    string        `hcl:"llm_provider" env:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey   string        `hcl:"gemini_api_key" env:"GEMINI_API_KEY"`
	LLMAPIKey      string        `hcl:"llm_api_key" env:"LLM_API_KEY"`
	LLMModel       string        `hcl:"llm_model" env:"LLM_MODEL"`
	LLMBaseURL     string        `hcl:"llm_base_url" env:"LLM_BASE_URL"`
	LLMTimeout     time.Duration `hcl:"llm_timeout" env:"LLM_TIMEOUT" default:"2m"`
	LLMTemperature float64       `hcl:"llm_temperature" env:"LLM_TEMPERATURE" default:"0.3"`

	PromptCatalog  string `hcl:"prompt_catalog" env:"PROMPT_CATALOG"`
	OutputLanguage string `hcl:"output_language" env:"OUTPUT_LANGUAGE" default:"Korean"`

	ResolverMode   string        `hcl:"resolver_mode" env:"RESOLVER_MODE" default:"grounding"`
	RedirectHosts  []string      `hcl:"redirect_hosts" env:"REDIRECT_HOSTS"`
	ResolveTimeout time.Duration `hcl:"resolve_timeout" env:"RESOLVE_TIMEOUT" default:"5s"`
	ResolveBudget  time.Duration `hcl:"resolve_budget" env:"RESOLVE_BUDGET" default:"20s"`
	ResolveWorkers int           `hcl:"resolve_workers" env:"RESOLVE_WORKERS" default:"5"`
	ValidateLinks  bool          `hcl:"validate_links" env:"VALIDATE_LINKS" default:"false"`
	HTMLFallback   bool          `hcl:"html_fallback" env:"RESOLVE_HTML_FALLBACK" default:"false"`

	KafkaBrokers []string `hcl:"kafka_brokers" env:"KAFKA_BROKERS"`
	KafkaTopic   string   `hcl:"kafka_topic" env:"KAFKA_TOPIC" default:"news_digest_events"`

	TelegramBotToken    string `hcl:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN"`
	TelegramAdminChatID int64  `hcl:"telegram_admin_chat_id" env:"TELEGRAM_ADMIN_CHAT_ID"`
}

// APIKey returns the credential for the selected provider.
func (i Ingest) APIKey() string {
	if strings.EqualFold(i.LLMProvider, "gemini") || i.LLMProvider == "" {
		return lo.CoalesceOrEmpty(i.GeminiAPIKey, i.LLMAPIKey)
	}
	return i.LLMAPIKey
}

// Server describes the HTTP layer of the api binary.
type Server struct {
	BindAddr       string        `hcl:"bind_addr" env:"API_BIND_ADDR" default:"0.0.0.0:8080"`
	CronSecret     string        `hcl:"cron_secret" env:"CRON_SECRET"`
	AllowedOrigins []string      `hcl:"allowed_origins" env:"ALLOWED_ORIGINS"`
	RateLimit      int           `hcl:"rate_limit" env:"RATE_LIMIT" default:"30"`
	RateWindow     time.Duration `hcl:"rate_window" env:"RATE_WINDOW" default:"60s"`
	RefreshTimeout time.Duration `hcl:"refresh_timeout" env:"REFRESH_TIMEOUT" default:"10m"`
	DefaultPage    int           `hcl:"api_page_size" env:"API_PAGE_SIZE" default:"20"`
	MaxPage        int           `hcl:"api_max_page_size" env:"API_MAX_PAGE_SIZE" default:"100"`
}

// API holds configuration for the api binary.
type API struct {
	Server  Server
	Store   Store
	Ingest  Ingest
	Archive Archive
}

// Consumer configures the Kafka -> Elasticsearch archive worker.
type Consumer struct {
	KafkaBrokers     []string      `hcl:"kafka_brokers" env:"KAFKA_BROKERS" default:"kafka:9092"`
	KafkaTopic       string        `hcl:"kafka_topic" env:"KAFKA_TOPIC" default:"news_digest_events"`
	KafkaConsumer    string        `hcl:"kafka_consumer_group" env:"KAFKA_CONSUMER_GROUP" default:"news-digest-archiver"`
	KeywordLimit     int           `hcl:"worker_keyword_limit" env:"WORKER_KEYWORD_LIMIT" default:"8"`
	KeywordMinLength int           `hcl:"worker_keyword_min_len" env:"WORKER_KEYWORD_MIN_LEN" default:"2"`
	DedupeCapacity   int           `hcl:"worker_dedupe_capacity" env:"WORKER_DEDUPE_CAPACITY" default:"20000"`
	DedupeTTL        time.Duration `hcl:"worker_dedupe_ttl" env:"WORKER_DEDUPE_TTL" default:"24h"`
	BatchSize        int           `hcl:"worker_batch_size" env:"WORKER_BATCH_SIZE" default:"10"`
}

// Worker holds configuration for the worker binary.
type Worker struct {
	Consumer Consumer
	Archive  Archive
}

// Cleanup configures the archive pruning loop.
type Cleanup struct {
	Interval  time.Duration `hcl:"retention_cron" env:"RETENTION_CRON" default:"24h"`
	MaxAge    time.Duration `hcl:"retention_max_age" env:"RETENTION_MAX_AGE" default:"720h"`
	BatchSize int           `hcl:"retention_batch_size" env:"RETENTION_BATCH_SIZE" default:"500"`
}

// Retention holds configuration for the retention binary.
type Retention struct {
	Cleanup Cleanup
	Archive Archive
}

// CLI holds configuration for newsctl.
type CLI struct {
	Store  Store
	Ingest Ingest
}

// LoadAPI builds the api configuration.
func LoadAPI() (*API, error) {
	c := &API{}
	if err := loadAll(&c.Server, &c.Store, &c.Ingest, &c.Archive); err != nil {
		return nil, err
	}

	if c.Store.DSN() == "" {
		return nil, fmt.Errorf("DATABASE_URL or POSTGRES_URL must be set")
	}
	if c.Server.RateLimit <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT must be positive")
	}
	if c.Server.RateWindow <= 0 {
		return nil, fmt.Errorf("RATE_WINDOW must be positive")
	}
	if c.Server.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.Server.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.Server.DefaultPage > c.Server.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if err := c.Ingest.validate(); err != nil {
		return nil, err
	}
	c.Server.AllowedOrigins = splitAndTrim(c.Server.AllowedOrigins)

	return c, nil
}

// LoadWorker builds the worker configuration.
func LoadWorker() (*Worker, error) {
	c := &Worker{}
	if err := loadAll(&c.Consumer, &c.Archive); err != nil {
		return nil, err
	}

	c.Consumer.KafkaBrokers = splitAndTrim(c.Consumer.KafkaBrokers)
	if len(c.Consumer.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if !c.Archive.Enabled() {
		return nil, fmt.Errorf("ELASTICSEARCH_ADDR must be set")
	}
	if c.Consumer.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.Consumer.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.Consumer.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.Consumer.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

// LoadRetention builds the retention configuration.
func LoadRetention() (*Retention, error) {
	c := &Retention{}
	if err := loadAll(&c.Cleanup, &c.Archive); err != nil {
		return nil, err
	}

	if !c.Archive.Enabled() {
		return nil, fmt.Errorf("ELASTICSEARCH_ADDR must be set")
	}
	if c.Cleanup.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Cleanup.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.Cleanup.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

// LoadCLI builds the newsctl configuration. A missing DSN is allowed; the
// CLI then keeps records in memory for the lifetime of the command.
func LoadCLI() (*CLI, error) {
	c := &CLI{}
	if err := loadAll(&c.Store, &c.Ingest); err != nil {
		return nil, err
	}
	if err := c.Ingest.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (i *Ingest) validate() error {
	switch i.ResolverMode {
	case "grounding", "active":
	default:
		return fmt.Errorf("RESOLVER_MODE must be grounding or active, got %q", i.ResolverMode)
	}
	if i.ResolveWorkers <= 0 {
		return fmt.Errorf("RESOLVE_WORKERS must be positive")
	}
	if i.ResolveTimeout <= 0 || i.ResolveBudget <= 0 {
		return fmt.Errorf("RESOLVE_TIMEOUT and RESOLVE_BUDGET must be positive")
	}
	if i.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	i.RedirectHosts = splitAndTrim(i.RedirectHosts)
	i.KafkaBrokers = splitAndTrim(i.KafkaBrokers)
	return nil
}

func loadAll(dst ...any) error {
	for _, d := range dst {
		if err := load(d); err != nil {
			return err
		}
	}
	return nil
}

func load(dst any) error {
	path := strings.TrimSpace(os.Getenv(FileEnv))
	loader := aconfig.LoaderFor(dst, aconfig.Config{
		SkipFlags:          true,
		SkipFiles:          path == "",
		Files:              []string{path},
		FailOnFileNotFound: true,
		AllowUnknownFields: true,
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return nil
}

func splitAndTrim(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		for _, piece := range strings.Split(part, ",") {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
