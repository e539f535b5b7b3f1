package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const databaseYAML = `
postgresql:
  host: db.internal
  port: 6543
  dbname: immo
  user: loader
  password: s3cret
  sslmode: disable
http:
  timeout_seconds: 45
  max_redirects: 3
sink:
  abort_on_error: true
logging:
  development: false
  level: debug
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func setAPIEnv(t *testing.T, maxEntries string) {
	t.Helper()
	t.Setenv(EnvAuthToken, "token-123")
	t.Setenv(EnvBaseURL, "https://api.example.com/ws/")
	t.Setenv(EnvMaxEntries, maxEntries)
}

func TestLoadWithFileOverrides(t *testing.T) {
	setAPIEnv(t, "7")
	path := writeFile(t, "database.yaml", databaseYAML)

	cfg, err := Load(Options{Variant: VariantRentalContracts, ConfigFile: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://api.example.com/ws" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.API.AuthToken != "token-123" || cfg.API.MaxEntries != 7 {
		t.Fatalf("unexpected api config: %+v", cfg.API)
	}
	if cfg.DB.Host != "db.internal" || cfg.DB.Port != 6543 || cfg.DB.DBName != "immo" {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if got := cfg.HTTP.Timeout(); got != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %v", got)
	}
	if cfg.HTTP.MaxRedirects != 3 || !cfg.Sink.AbortOnError {
		t.Fatalf("expected file overrides to apply: %+v %+v", cfg.HTTP, cfg.Sink)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}
	if cfg.Paging.PageSize != 100 || cfg.Sink.Table != "public.json_ruby" {
		t.Fatalf("expected defaults to remain: %+v %+v", cfg.Paging, cfg.Sink)
	}
}

func TestLoadPrefixedEnvOverrides(t *testing.T) {
	setAPIEnv(t, "2")
	t.Setenv("APITOSQL_API_PAGE_SIZE", "25")
	t.Setenv("APITOSQL_ARCHIVE_BACKEND", "local")
	t.Setenv("APITOSQL_ARCHIVE_BASE_DIR", t.TempDir())
	path := writeFile(t, "database.yaml", databaseYAML)

	cfg, err := Load(Options{Variant: VariantRentalContracts, ConfigFile: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Paging.PageSize != 25 {
		t.Fatalf("expected page size 25, got %d", cfg.Paging.PageSize)
	}
	if cfg.Archive.Backend != "local" {
		t.Fatalf("expected local archive backend, got %q", cfg.Archive.Backend)
	}
}

func TestLoadEnvFile(t *testing.T) {
	for _, name := range []string{EnvAuthToken, EnvBaseURL, EnvMaxEntries} {
		// t.Setenv registers the restore; Unsetenv leaves the variable absent
		// so godotenv is allowed to populate it.
		t.Setenv(name, "")
		if err := os.Unsetenv(name); err != nil {
			t.Fatalf("unset %s: %v", name, err)
		}
	}
	envPath := writeFile(t, ".env", "auth_token=from-file\nBaseUrl=https://file.example.com\nmaxNoOfEntries=3\n")
	path := writeFile(t, "database.yaml", databaseYAML)

	cfg, err := Load(Options{Variant: VariantRentalContracts, ConfigFile: path, EnvFile: envPath})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.AuthToken != "from-file" || cfg.API.MaxEntries != 3 {
		t.Fatalf("expected env file values, got %+v", cfg.API)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	setAPIEnv(t, "1")
	path := writeFile(t, "database.yaml", databaseYAML)

	_, err := Load(Options{
		Variant:    VariantRentalContracts,
		ConfigFile: path,
		EnvFile:    filepath.Join(t.TempDir(), "missing.env"),
	})
	if err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}

func TestLoadEnvironmentErrors(t *testing.T) {
	path := writeFile(t, "database.yaml", databaseYAML)

	tests := []struct {
		name    string
		variant Variant
		env     map[string]string
		want    error
		substr  string
	}{
		{
			name:    "missing token",
			variant: VariantRentalContracts,
			env:     map[string]string{EnvBaseURL: "https://x.example.com", EnvMaxEntries: "1"},
			want:    ErrMissingEnv,
			substr:  EnvAuthToken,
		},
		{
			name:    "cap not an integer",
			variant: VariantRentalContracts,
			env:     map[string]string{EnvAuthToken: "t", EnvBaseURL: "https://x.example.com", EnvMaxEntries: "ten"},
			want:    ErrInvalidSetting,
			substr:  EnvMaxEntries,
		},
		{
			name:    "rental cap above range",
			variant: VariantRentalContracts,
			env:     map[string]string{EnvAuthToken: "t", EnvBaseURL: "https://x.example.com", EnvMaxEntries: "11"},
			want:    ErrOutOfRange,
			substr:  "1-10",
		},
		{
			name:    "cap zero",
			variant: VariantValuations,
			env: map[string]string{
				EnvAuthToken: "t", EnvBaseURL: "https://x.example.com", EnvMaxEntries: "0", EnvProject: "abc-def",
			},
			want:   ErrOutOfRange,
			substr: "1-9999",
		},
		{
			name:    "valuations missing project",
			variant: VariantValuations,
			env:     map[string]string{EnvAuthToken: "t", EnvBaseURL: "https://x.example.com", EnvMaxEntries: "50"},
			want:    ErrMissingEnv,
			substr:  EnvProject,
		},
		{
			name:    "valuations bad project",
			variant: VariantValuations,
			env: map[string]string{
				EnvAuthToken: "t", EnvBaseURL: "https://x.example.com", EnvMaxEntries: "50", EnvProject: "abcdef",
			},
			want:   ErrInvalidProject,
			substr: "xxx-xxx",
		},
		{
			name:    "relative base url",
			variant: VariantRentalContracts,
			env:     map[string]string{EnvAuthToken: "t", EnvBaseURL: "api/ws", EnvMaxEntries: "1"},
			want:    ErrInvalidSetting,
			substr:  EnvBaseURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, name := range []string{EnvAuthToken, EnvBaseURL, EnvMaxEntries, EnvProject} {
				t.Setenv(name, tt.env[name])
			}
			_, err := Load(Options{Variant: tt.variant, ConfigFile: path})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("expected error to mention %q, got %q", tt.substr, err.Error())
			}
		})
	}
}

func TestLoadValuationsProject(t *testing.T) {
	setAPIEnv(t, "9999")
	t.Setenv(EnvProject, "123-456")
	path := writeFile(t, "database.yaml", databaseYAML)

	cfg, err := Load(Options{Variant: VariantValuations, ConfigFile: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Project != "123-456" || cfg.API.MaxEntries != 9999 {
		t.Fatalf("unexpected api config: %+v", cfg.API)
	}
}

func TestLoadMissingSection(t *testing.T) {
	setAPIEnv(t, "1")
	path := writeFile(t, "database.yaml", "other:\n  host: x\n")

	_, err := Load(Options{Variant: VariantRentalContracts, ConfigFile: path, Section: "postgresql"})
	if !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "section postgresql not found") {
		t.Fatalf("expected descriptive message, got %q", err.Error())
	}
}

func TestLoadMissingFile(t *testing.T) {
	setAPIEnv(t, "1")
	missing := filepath.Join(t.TempDir(), "database.yaml")

	_, err := Load(Options{Variant: VariantRentalContracts, ConfigFile: missing})
	if !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}

	cfg, err := Load(Options{Variant: VariantRentalContracts, ConfigFile: missing, SkipDatabase: true})
	if err != nil {
		t.Fatalf("expected SkipDatabase to tolerate a missing file, got %v", err)
	}
	if cfg.DB != (DBConfig{}) {
		t.Fatalf("expected empty db config, got %+v", cfg.DB)
	}
}

func TestLoadSkipAPI(t *testing.T) {
	t.Setenv(EnvAuthToken, "")
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvMaxEntries, "")
	path := writeFile(t, "database.yaml", databaseYAML)

	cfg, err := Load(Options{ConfigFile: path, SkipAPI: true})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Variant != "" || cfg.API != (APIConfig{}) {
		t.Fatalf("expected empty api settings, got %q %+v", cfg.Variant, cfg.API)
	}
	if cfg.DB.DBName != "immo" {
		t.Fatalf("expected database section to load, got %+v", cfg.DB)
	}
}

func TestLoadUnknownVariant(t *testing.T) {
	_, err := Load(Options{Variant: "contracts"})
	if !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Variant: VariantRentalContracts,
		API:     APIConfig{BaseURL: "https://api.example.com"},
		HTTP:    HTTPConfig{TimeoutSeconds: 10, MaxRedirects: 10},
		Paging:  PagingConfig{PageSize: 100},
		Sink:    SinkConfig{Table: "public.json_ruby"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative base url", func(c *Config) { c.API.BaseURL = "api/ws" }, "BaseUrl"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"negative redirects", func(c *Config) { c.HTTP.MaxRedirects = -1 }, "http.max_redirects"},
		{"negative body limit", func(c *Config) { c.HTTP.MaxBodyBytes = -1 }, "http.max_body_bytes"},
		{"invalid page size", func(c *Config) { c.Paging.PageSize = 0 }, "api.page_size"},
		{"empty table", func(c *Config) { c.Sink.Table = " " }, "sink.table"},
		{"unknown archive", func(c *Config) { c.Archive.Backend = "s3" }, "archive.backend"},
		{"local archive without dir", func(c *Config) { c.Archive.Backend = "local" }, "archive.base_dir"},
		{"gcs archive without bucket", func(c *Config) { c.Archive.Backend = "gcs" }, "archive.gcs_bucket"},
		{"topic without project", func(c *Config) { c.Notify.Topic = "runs" }, "notify.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDBConfigDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  DBConfig
		want string
	}{
		{
			name: "full",
			cfg:  DBConfig{Host: "db", Port: 6543, DBName: "immo", User: "u", Password: "p@ss", SSLMode: "disable"},
			want: "postgres://u:p%40ss@db:6543/immo?sslmode=disable",
		},
		{
			name: "defaults",
			cfg:  DBConfig{DBName: "immo", User: "u"},
			want: "postgres://u@localhost:5432/immo",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.cfg.DSN(); got != tt.want {
				t.Fatalf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVariantRanges(t *testing.T) {
	t.Parallel()

	lo, hi := VariantRentalContracts.EntryRange()
	if lo != 1 || hi != 10 {
		t.Fatalf("rental contracts range = %d-%d", lo, hi)
	}
	lo, hi = VariantValuations.EntryRange()
	if lo != 1 || hi != 9999 {
		t.Fatalf("valuations range = %d-%d", lo, hi)
	}
	if VariantRentalContracts.RequiresProject() || !VariantValuations.RequiresProject() {
		t.Fatal("unexpected project requirement")
	}
}
