package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"PatentReporter/internal/domain"
)

const (
	defaultTimezone    = "UTC"
	ConfigPathEnv      = "PATENT_REPORTER_CONFIG"
	openAIAPIKeyEnv    = "OPENAI_API_KEY"
	openAIModelEnv     = "OPENAI_MODEL"
	kiprisAPIKeyEnv    = "KIPRIS_API_KEY"
	databaseDSNEnv     = "DATABASE_DSN"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	minioAccessKeyEnv  = "MINIO_ACCESS_KEY"
	minioSecretKeyEnv  = "MINIO_SECRET_KEY"
	logLevelEnv        = "LOG_LEVEL"
	ProviderOpenAI     = "openai"
	ProviderInference  = "inference"
	DriverSQLite       = "sqlite"
	DriverPostgres     = "postgres"
	defaultKiprisURL   = "http://plus.kipris.or.kr/openapi/rest/patUtiModInfoSearchSevice/cpcSearchInfo"
	defaultOpenAIModel = "gpt-4o-mini"
)

var (
	// ErrMissingCredential reports a credential required by an enabled integration.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalid reports a setting outside its allowed range.
	ErrInvalid = errors.New("invalid setting")
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Generator GeneratorConfig `yaml:"generator" toml:"generator"`
	OpenAI    OpenAIConfig    `yaml:"openai" toml:"openai"`
	Inference InferenceConfig `yaml:"inference" toml:"inference"`
	Kipris    KiprisConfig    `yaml:"kipris" toml:"kipris"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline" toml:"pipeline"`
	Output    OutputConfig    `yaml:"output" toml:"output"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Minio     MinioConfig     `yaml:"minio" toml:"minio"`
	Telegram  TelegramConfig  `yaml:"telegram" toml:"telegram"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
}

// LoggingConfig selects slog level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// GeneratorConfig picks the text-generation backend.
type GeneratorConfig struct {
	Provider string `yaml:"provider" toml:"provider"`
}

// OpenAIConfig defines how to contact the OpenAI API.
type OpenAIConfig struct {
	BaseURL   string `yaml:"baseUrl" toml:"baseUrl"`
	Model     string `yaml:"model" toml:"model"`
	APIKey    string `yaml:"apiKey" toml:"apiKey"`
	MaxTokens int    `yaml:"maxTokens" toml:"maxTokens"`
}

// InferenceConfig describes a self-hosted inference service.
type InferenceConfig struct {
	URL    string `yaml:"url" toml:"url"`
	APIKey string `yaml:"apiKey" toml:"apiKey"`
}

// KiprisConfig groups settings for the KIPRIS patent search API.
type KiprisConfig struct {
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	APIKey      string `yaml:"apiKey" toml:"apiKey"`
	CPCNumber   string `yaml:"cpcNumber" toml:"cpcNumber"`
	TotalPages  int    `yaml:"totalPages" toml:"totalPages"`
	RowsPerPage int    `yaml:"rowsPerPage" toml:"rowsPerPage"`
}

// CacheConfig points at the CSV cache of raw records; an empty Path disables the cache.
type CacheConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// PipelineConfig tunes the batch stages and the report.
type PipelineConfig struct {
	BatchSize        int      `yaml:"batchSize" toml:"batchSize"`
	PerCategoryLimit int      `yaml:"perCategoryLimit" toml:"perCategoryLimit"`
	Categories       []string `yaml:"categories" toml:"categories"`
}

// OutputConfig controls where reports are written on disk; an empty Dir disables the file sink.
type OutputConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// StorageConfig selects the run-history database; an empty DSN disables it.
type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// MinioConfig enables uploading reports to object storage when Endpoint is set.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	AccessKey string `yaml:"accessKey" toml:"accessKey"`
	SecretKey string `yaml:"secretKey" toml:"secretKey"`
	Bucket    string `yaml:"bucket" toml:"bucket"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	UseSSL    bool   `yaml:"useSSL" toml:"useSSL"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken" toml:"botToken"`
	ChatID   string `yaml:"chatId" toml:"chatId"`
}

// SchedulerConfig defines how often watch mode re-runs the pipeline.
type SchedulerConfig struct {
	Interval string         `yaml:"interval" toml:"interval"`
	Timezone string         `yaml:"timezone" toml:"timezone"`
	location *time.Location `yaml:"-" toml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Every parses Interval; an empty or invalid value yields 24h.
func (s SchedulerConfig) Every() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Taxonomy builds the closed category set.
func (p PipelineConfig) Taxonomy() domain.Taxonomy {
	return domain.NewTaxonomy(p.Categories)
}

// Load applies defaults, the optional YAML or TOML file at path, then environment overrides.
// An empty path falls back to PATENT_REPORTER_CONFIG; no path at all means defaults only.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}

	if path != "" {
		fileCfg, keys, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = mergeConfig(cfg, fileCfg)
		keys.apply(&cfg)
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// clearableKeys records settings whose empty value is meaningful, so that an explicit
// "" in the file can switch a default-on integration off.
type clearableKeys struct {
	Cache *struct {
		Path *string `yaml:"path" toml:"path"`
	} `yaml:"cache" toml:"cache"`
	Output *struct {
		Dir *string `yaml:"dir" toml:"dir"`
	} `yaml:"output" toml:"output"`
}

func (k clearableKeys) apply(cfg *Config) {
	if k.Cache != nil && k.Cache.Path != nil {
		cfg.Cache.Path = *k.Cache.Path
	}
	if k.Output != nil && k.Output.Dir != nil {
		cfg.Output.Dir = *k.Output.Dir
	}
}

func readFile(path string) (Config, clearableKeys, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, clearableKeys{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var (
		fileCfg Config
		keys    clearableKeys
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, clearableKeys{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := toml.Unmarshal(raw, &keys); err != nil {
			return Config{}, clearableKeys{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, clearableKeys{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &keys); err != nil {
			return Config{}, clearableKeys{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return fileCfg, keys, nil
}

// Validate reports settings that must stop the program before any stage runs.
func (c Config) Validate() error {
	var errs []error

	switch c.Generator.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, fmt.Errorf("openai.apiKey (%s): %w", openAIAPIKeyEnv, ErrMissingCredential))
		}
		if c.OpenAI.Model == "" {
			errs = append(errs, fmt.Errorf("openai.model is empty: %w", ErrInvalid))
		}
	case ProviderInference:
		if c.Inference.URL == "" {
			errs = append(errs, fmt.Errorf("inference.url is empty: %w", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("generator.provider %q: %w", c.Generator.Provider, ErrInvalid))
	}

	if c.Pipeline.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.batchSize %d: %w", c.Pipeline.BatchSize, ErrInvalid))
	}
	if c.Pipeline.PerCategoryLimit < 1 {
		errs = append(errs, fmt.Errorf("pipeline.perCategoryLimit %d: %w", c.Pipeline.PerCategoryLimit, ErrInvalid))
	}
	if c.Kipris.TotalPages < 1 || c.Kipris.RowsPerPage < 1 {
		errs = append(errs, fmt.Errorf("kipris paging %d x %d: %w", c.Kipris.TotalPages, c.Kipris.RowsPerPage, ErrInvalid))
	}

	if c.Storage.DSN != "" && c.Storage.Driver != DriverSQLite && c.Storage.Driver != DriverPostgres {
		errs = append(errs, fmt.Errorf("storage.driver %q: %w", c.Storage.Driver, ErrInvalid))
	}
	if c.Minio.Endpoint != "" {
		if c.Minio.AccessKey == "" || c.Minio.SecretKey == "" {
			errs = append(errs, fmt.Errorf("minio credentials: %w", ErrMissingCredential))
		}
		if c.Minio.Bucket == "" {
			errs = append(errs, fmt.Errorf("minio.bucket is empty: %w", ErrInvalid))
		}
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		errs = append(errs, fmt.Errorf("telegram needs both botToken and chatId: %w", ErrMissingCredential))
	}

	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.OpenAI.Model = v
	}
	if v := os.Getenv(kiprisAPIKeyEnv); v != "" {
		c.Kipris.APIKey = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv(minioAccessKeyEnv); v != "" {
		c.Minio.AccessKey = v
	}
	if v := os.Getenv(minioSecretKeyEnv); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %s: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Generator.Provider != "" {
		base.Generator.Provider = override.Generator.Provider
	}

	if override.OpenAI.BaseURL != "" {
		base.OpenAI.BaseURL = override.OpenAI.BaseURL
	}
	if override.OpenAI.Model != "" {
		base.OpenAI.Model = override.OpenAI.Model
	}
	if override.OpenAI.APIKey != "" {
		base.OpenAI.APIKey = override.OpenAI.APIKey
	}
	if override.OpenAI.MaxTokens > 0 {
		base.OpenAI.MaxTokens = override.OpenAI.MaxTokens
	}

	if override.Inference.URL != "" {
		base.Inference.URL = override.Inference.URL
	}
	if override.Inference.APIKey != "" {
		base.Inference.APIKey = override.Inference.APIKey
	}

	if override.Kipris.Endpoint != "" {
		base.Kipris.Endpoint = override.Kipris.Endpoint
	}
	if override.Kipris.APIKey != "" {
		base.Kipris.APIKey = override.Kipris.APIKey
	}
	if override.Kipris.CPCNumber != "" {
		base.Kipris.CPCNumber = override.Kipris.CPCNumber
	}
	if override.Kipris.TotalPages != 0 {
		base.Kipris.TotalPages = override.Kipris.TotalPages
	}
	if override.Kipris.RowsPerPage != 0 {
		base.Kipris.RowsPerPage = override.Kipris.RowsPerPage
	}

	if override.Cache.Path != "" {
		base.Cache.Path = override.Cache.Path
	}

	if override.Pipeline.BatchSize != 0 {
		base.Pipeline.BatchSize = override.Pipeline.BatchSize
	}
	if override.Pipeline.PerCategoryLimit != 0 {
		base.Pipeline.PerCategoryLimit = override.Pipeline.PerCategoryLimit
	}
	if len(override.Pipeline.Categories) > 0 {
		base.Pipeline.Categories = override.Pipeline.Categories
	}

	if override.Output.Dir != "" {
		base.Output.Dir = override.Output.Dir
	}

	if override.Storage.Driver != "" {
		base.Storage.Driver = override.Storage.Driver
	}
	if override.Storage.DSN != "" {
		base.Storage.DSN = override.Storage.DSN
	}

	if override.Minio.Endpoint != "" {
		base.Minio = override.Minio
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.ChatID != "" {
		base.Telegram.ChatID = override.Telegram.ChatID
	}

	if override.Scheduler.Interval != "" {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Generator: GeneratorConfig{Provider: ProviderOpenAI},
		OpenAI: OpenAIConfig{
			Model:     defaultOpenAIModel,
			MaxTokens: 150,
		},
		Kipris: KiprisConfig{
			Endpoint:    defaultKiprisURL,
			CPCNumber:   "G06N",
			TotalPages:  1,
			RowsPerPage: 30,
		},
		Cache: CacheConfig{Path: "patent_data.csv"},
		Pipeline: PipelineConfig{
			BatchSize:        10,
			PerCategoryLimit: 30,
			Categories:       append([]string(nil), domain.DefaultCategories...),
		},
		Output:    OutputConfig{Dir: "outputs"},
		Storage:   StorageConfig{Driver: DriverSQLite},
		Scheduler: SchedulerConfig{Interval: "24h", Timezone: defaultTimezone},
	}
}
