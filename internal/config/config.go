// Package config loads and validates loader configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sentinel errors returned by Load and Validate.
var (
	ErrMissingEnv      = errors.New("missing environment variable")
	ErrOutOfRange      = errors.New("value out of range")
	ErrInvalidProject  = errors.New("invalid project format")
	ErrSectionNotFound = errors.New("config section not found")
	ErrUnknownVariant  = errors.New("unknown variant")
	ErrInvalidSetting  = errors.New("invalid setting")
)

var projectPattern = regexp.MustCompile(`.*-.*`)

const defaultDatabaseFile = "database.yaml"

// Names of the environment variables that carry the API connection and the
// entry cap. They are case sensitive and take no prefix.
const (
	EnvAuthToken  = "auth_token"
	EnvBaseURL    = "BaseUrl"
	EnvMaxEntries = "maxNoOfEntries"
	EnvProject    = "project"
)

// Variant selects which entity family a run collects.
type Variant string

// Supported variants.
const (
	VariantRentalContracts Variant = "rental-contracts"
	VariantValuations      Variant = "valuations"
)

// EntryRange returns the inclusive bounds for maxNoOfEntries.
func (v Variant) EntryRange() (int, int) {
	switch v {
	case VariantValuations:
		return 1, 9999
	default:
		return 1, 10
	}
}

// RequiresProject reports whether the variant filters by project.
func (v Variant) RequiresProject() bool {
	return v == VariantValuations
}

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	return v == VariantRentalContracts || v == VariantValuations
}

// Options tells Load where to look.
type Options struct {
	// Variant decides the entry range and whether project is required.
	Variant Variant
	// ConfigFile holds the database section plus optional ambient settings.
	ConfigFile string
	// Section names the database section inside ConfigFile.
	Section string
	// EnvFile is loaded into the environment first when it exists.
	EnvFile string
	// SkipDatabase leaves DB empty instead of requiring the section.
	SkipDatabase bool
	// SkipAPI leaves API empty and ignores Variant, for commands that only
	// touch the database.
	SkipAPI bool
}

// Config captures all settings for one run.
type Config struct {
	Variant Variant       `mapstructure:"-"`
	API     APIConfig     `mapstructure:"-"`
	DB      DBConfig      `mapstructure:"-"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Paging  PagingConfig  `mapstructure:"api"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Logging LoggingConfig `mapstructure:"logging"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// APIConfig holds the remote API parameters taken from the environment.
type APIConfig struct {
	BaseURL    string
	AuthToken  string
	MaxEntries int
	Project    string
}

// DBConfig mirrors the keyword parameters of the database section.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DBName   string `mapstructure:"dbname"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRedirects   int    `mapstructure:"max_redirects"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// PagingConfig controls listing requests.
type PagingConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// SinkConfig controls the upsert target.
type SinkConfig struct {
	Table        string `mapstructure:"table"`
	AbortOnError bool   `mapstructure:"abort_on_error"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ArchiveConfig enables the raw document landing zone.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig enables the Pub/Sub run notification.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables pushing run metrics to a Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load builds a Config from the env file, the environment and the config file.
func Load(opts Options) (Config, error) {
	if !opts.SkipAPI && !opts.Variant.Valid() {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownVariant, opts.Variant)
	}
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}
	if opts.ConfigFile == "" {
		opts.ConfigFile = defaultDatabaseFile
	}
	if opts.Section == "" {
		opts.Section = "postgresql"
	}

	v := viper.New()
	v.SetEnvPrefix("APITOSQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigFile(opts.ConfigFile)
	fileRead := true
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
		fileRead = false
	}

	var cfg Config
	if !opts.SkipAPI {
		api, err := loadAPI(opts.Variant)
		if err != nil {
			return Config{}, err
		}
		cfg.Variant = opts.Variant
		cfg.API = api
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if !opts.SkipDatabase {
		var sub *viper.Viper
		if fileRead {
			sub = v.Sub(opts.Section)
		}
		if sub == nil {
			return Config{}, fmt.Errorf("%w: section %s not found in the %s file",
				ErrSectionNotFound, opts.Section, opts.ConfigFile)
		}
		sub.SetDefault("port", 5432)
		if err := sub.Unmarshal(&cfg.DB); err != nil {
			return Config{}, fmt.Errorf("unmarshal section %s: %w", opts.Section, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_redirects", 10)
	v.SetDefault("http.user_agent", "apitosql/1.0")
	v.SetDefault("http.max_body_bytes", 0)
	v.SetDefault("api.page_size", 100)
	v.SetDefault("sink.table", "public.json_ruby")
	v.SetDefault("sink.abort_on_error", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("archive.backend", "")
	v.SetDefault("archive.base_dir", "data/raw")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "apitosql")
}

// loadAPI reads the API token, base URL, entry cap and project. They are read
// straight from the process environment because their names do not follow the
// APITOSQL_ prefix.
func loadAPI(variant Variant) (APIConfig, error) {
	required := []string{EnvAuthToken, EnvBaseURL, EnvMaxEntries}
	if variant.RequiresProject() {
		required = append(required, EnvProject)
	}
	values := make(map[string]string, len(required))
	for _, name := range required {
		val, ok := os.LookupEnv(name)
		if !ok || strings.TrimSpace(val) == "" {
			return APIConfig{}, fmt.Errorf("%w: %s", ErrMissingEnv, name)
		}
		values[name] = strings.TrimSpace(val)
	}

	maxEntries, err := strconv.Atoi(values[EnvMaxEntries])
	if err != nil {
		return APIConfig{}, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidSetting, EnvMaxEntries, values[EnvMaxEntries])
	}
	lo, hi := variant.EntryRange()
	if maxEntries < lo || maxEntries > hi {
		return APIConfig{}, fmt.Errorf("%w: number of entities out of range (%d-%d): %d", ErrOutOfRange, lo, hi, maxEntries)
	}

	api := APIConfig{
		BaseURL:    strings.TrimRight(values[EnvBaseURL], "/"),
		AuthToken:  values[EnvAuthToken],
		MaxEntries: maxEntries,
	}
	if variant.RequiresProject() {
		if !projectPattern.MatchString(values[EnvProject]) {
			return APIConfig{}, fmt.Errorf("%w: must be xxx-xxx, got %q", ErrInvalidProject, values[EnvProject])
		}
		api.Project = values[EnvProject]
	}
	return api, nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Variant != "" {
		if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
			return fmt.Errorf("%w: %s must be an absolute URL: %v", ErrInvalidSetting, EnvBaseURL, err)
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: http.timeout_seconds must be > 0", ErrInvalidSetting)
	}
	if c.HTTP.MaxRedirects < 0 {
		return fmt.Errorf("%w: http.max_redirects must be >= 0", ErrInvalidSetting)
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: http.max_body_bytes must be >= 0", ErrInvalidSetting)
	}
	if c.Paging.PageSize <= 0 {
		return fmt.Errorf("%w: api.page_size must be > 0", ErrInvalidSetting)
	}
	if strings.TrimSpace(c.Sink.Table) == "" {
		return fmt.Errorf("%w: sink.table must be set", ErrInvalidSetting)
	}
	switch c.Archive.Backend {
	case "", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("%w: archive.base_dir must be set for the local backend", ErrInvalidSetting)
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("%w: archive.gcs_bucket must be set for the gcs backend", ErrInvalidSetting)
		}
	default:
		return fmt.Errorf("%w: unknown archive.backend %q", ErrInvalidSetting, c.Archive.Backend)
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("%w: notify.project_id must be set when notify.topic is set", ErrInvalidSetting)
	}
	return nil
}

// Timeout converts the HTTP timeout into a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DSN renders the section parameters as a postgres:// connection URL.
func (d DBConfig) DSN() string {
	host := d.Host
	if host == "" {
		host = "localhost"
	}
	port := d.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + d.DBName,
	}
	switch {
	case d.User != "" && d.Password != "":
		u.User = url.UserPassword(d.User, d.Password)
	case d.User != "":
		u.User = url.User(d.User)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}
