// Package config loads process settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreSupabase = "supabase"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreJSON     = "json"
)

// Model providers.
const (
	ModelOpenAI = "openai"
	ModelGemini = "gemini"
)

// Search providers.
const (
	SearchSerper     = "serper"
	SearchBrave      = "brave"
	SearchGemini     = "gemini"
	SearchOpenAI     = "openai"
	SearchDuckDuckGo = "duckduckgo"
)

// Config stores all configuration for the application.
type Config struct {
	StoreBackend           string `mapstructure:"STORE_BACKEND"`
	SupabaseURL            string `mapstructure:"SUPABASE_URL"`
	SupabaseServiceRoleKey string `mapstructure:"SUPABASE_SERVICE_ROLE_KEY"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	SQLitePath             string `mapstructure:"SQLITE_PATH"`
	JSONStoreDir           string `mapstructure:"JSON_STORE_DIR"`

	ModelProvider string `mapstructure:"MODEL_PROVIDER"`
	OpenAIAPIKey  string `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel   string `mapstructure:"OPENAI_MODEL"`
	GeminiAPIKey  string `mapstructure:"GEMINI_API_KEY"`
	GeminiBaseURL string `mapstructure:"GEMINI_BASE_URL"`
	GeminiModel   string `mapstructure:"GEMINI_MODEL"`

	SearchProvider string `mapstructure:"SEARCH_PROVIDER"`
	SearchLimit    int    `mapstructure:"SEARCH_LIMIT"`
	SerperAPIKey   string `mapstructure:"SERPER_API_KEY"`
	BraveAPIKey    string `mapstructure:"BRAVE_API_KEY"`
	SearchBaseURL  string `mapstructure:"SEARCH_BASE_URL"`
	SearchRegion   string `mapstructure:"SEARCH_REGION"`

	TLSFingerprint    string  `mapstructure:"TLS_FINGERPRINT"`
	ProxyURLs         string  `mapstructure:"PROXY_URLS"`
	ProxyFile         string  `mapstructure:"PROXY_FILE"`
	RequestsPerSecond float64 `mapstructure:"REQUESTS_PER_SECOND"`
	RateJitter        float64 `mapstructure:"RATE_JITTER"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MaxRetries     int           `mapstructure:"MAX_RETRIES"`
	MaxAttempts    int           `mapstructure:"MAX_ATTEMPTS"`
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int           `mapstructure:"REDIS_DB"`

	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFormat   string `mapstructure:"LOG_FORMAT"`
	MetricsPort int    `mapstructure:"METRICS_PORT"`
}

var defaults = map[string]any{
	"STORE_BACKEND":             StoreSupabase,
	"SUPABASE_URL":              "",
	"SUPABASE_SERVICE_ROLE_KEY": "",
	"DATABASE_URL":              "",
	"SQLITE_PATH":               "",
	"JSON_STORE_DIR":            "",
	"MODEL_PROVIDER":            ModelOpenAI,
	"OPENAI_API_KEY":            "",
	"OPENAI_BASE_URL":           "",
	"OPENAI_MODEL":              "",
	"GEMINI_API_KEY":            "",
	"GEMINI_BASE_URL":           "",
	"GEMINI_MODEL":              "",
	"SEARCH_PROVIDER":           SearchSerper,
	"SEARCH_LIMIT":              10,
	"SERPER_API_KEY":            "",
	"BRAVE_API_KEY":             "",
	"SEARCH_BASE_URL":           "",
	"SEARCH_REGION":             "",
	"TLS_FINGERPRINT":           "chrome",
	"PROXY_URLS":                "",
	"PROXY_FILE":                "",
	"REQUESTS_PER_SECOND":       0.0,
	"RATE_JITTER":               0.0,
	"REQUEST_TIMEOUT":           30 * time.Second,
	"MAX_RETRIES":               0,
	"MAX_ATTEMPTS":              0,
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"LOG_LEVEL":                 "info",
	"LOG_FORMAT":                "text",
	"METRICS_PORT":              0,
}

// Error is returned when configuration is missing or invalid. It is always
// fatal before any target is touched.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "configuration: " + strings.Join(e.Problems, "; ")
}

// DefaultEnvFile is read when present; a missing file is not an error.
const DefaultEnvFile = ".env"

// Load builds a Config from defaults, envFile, the environment and flags, in
// increasing priority. Flags are matched by name: --search-provider binds
// SEARCH_PROVIDER. An envFile other than DefaultEnvFile must exist.
func Load(envFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *fs.PathError
			missing := errors.As(err, &pathErr) || errors.Is(err, os.ErrNotExist)
			if !missing || envFile != DefaultEnvFile {
				return nil, &Error{Problems: []string{fmt.Sprintf("read %s: %v", envFile, err)}}
			}
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			if _, ok := defaults[key]; ok && bindErr == nil {
				bindErr = v.BindPFlag(key, f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &Error{Problems: []string{fmt.Sprintf("decode: %v", err)}}
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.ModelProvider = strings.ToLower(strings.TrimSpace(c.ModelProvider))
	c.SearchProvider = strings.ToLower(strings.TrimSpace(c.SearchProvider))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

// ValidateStore checks only what the selected store backend needs.
func (c *Config) ValidateStore() error {
	var p []string
	switch c.StoreBackend {
	case StoreSupabase:
		if c.SupabaseURL == "" {
			p = append(p, "SUPABASE_URL is required for the supabase store")
		}
		if c.SupabaseServiceRoleKey == "" {
			p = append(p, "SUPABASE_SERVICE_ROLE_KEY is required for the supabase store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			p = append(p, "DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			p = append(p, "SQLITE_PATH is required for the sqlite store")
		}
	case StoreJSON:
		if c.JSONStoreDir == "" {
			p = append(p, "JSON_STORE_DIR is required for the json store")
		}
	default:
		p = append(p, fmt.Sprintf("STORE_BACKEND %q is not one of supabase, postgres, sqlite, json", c.StoreBackend))
	}
	return problems(p)
}

// Validate checks everything a full run needs.
func (c *Config) Validate() error {
	var p []string
	if err := c.ValidateStore(); err != nil {
		p = append(p, err.(*Error).Problems...)
	}

	switch c.ModelProvider {
	case ModelOpenAI:
		if c.OpenAIAPIKey == "" {
			p = append(p, "OPENAI_API_KEY is required for the openai model provider")
		}
	case ModelGemini:
		if c.GeminiAPIKey == "" {
			p = append(p, "GEMINI_API_KEY is required for the gemini model provider")
		}
	default:
		p = append(p, fmt.Sprintf("MODEL_PROVIDER %q is not one of openai, gemini", c.ModelProvider))
	}

	switch c.SearchProvider {
	case SearchSerper:
		if c.SerperAPIKey == "" {
			p = append(p, "SERPER_API_KEY is required for the serper search provider")
		}
	case SearchBrave:
		if c.BraveAPIKey == "" {
			p = append(p, "BRAVE_API_KEY is required for the brave search provider")
		}
	case SearchGemini:
		if c.GeminiAPIKey == "" {
			p = append(p, "GEMINI_API_KEY is required for the gemini search provider")
		}
	case SearchOpenAI:
		if c.OpenAIAPIKey == "" {
			p = append(p, "OPENAI_API_KEY is required for the openai search provider")
		}
	case SearchDuckDuckGo:
	default:
		p = append(p, fmt.Sprintf("SEARCH_PROVIDER %q is not one of serper, brave, gemini, openai, duckduckgo", c.SearchProvider))
	}

	if c.SearchLimit < 0 {
		p = append(p, "SEARCH_LIMIT must not be negative")
	}
	if c.RequestTimeout <= 0 {
		p = append(p, "REQUEST_TIMEOUT must be positive")
	}
	if c.MaxRetries < 0 {
		p = append(p, "MAX_RETRIES must not be negative")
	}
	if c.MaxAttempts < 0 {
		p = append(p, "MAX_ATTEMPTS must not be negative")
	}
	if c.MaxAttempts > 0 && c.RedisAddr == "" {
		p = append(p, "REDIS_ADDR is required when MAX_ATTEMPTS is set")
	}
	if c.RequestsPerSecond < 0 {
		p = append(p, "REQUESTS_PER_SECOND must not be negative")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		p = append(p, fmt.Sprintf("LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}
	return problems(p)
}

// Secrets lists configured credential values so they can be masked in
// output.
func (c *Config) Secrets() []string {
	var out []string
	for _, s := range []string{
		c.SupabaseServiceRoleKey,
		c.OpenAIAPIKey,
		c.GeminiAPIKey,
		c.SerperAPIKey,
		c.BraveAPIKey,
		c.RedisPassword,
	} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func problems(p []string) error {
	if len(p) == 0 {
		return nil
	}
	return &Error{Problems: p}
}
