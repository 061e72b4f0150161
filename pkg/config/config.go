package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" required:"true"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	ServerHost                string        `koanf:"server_host" default:"0.0.0.0"`
	ServerPort                int           `koanf:"server_port" default:"3690" validate:"min=1,max=65535"`
	WorkerProcesses           int           `koanf:"worker_processes" default:"2" validate:"min=1"`
	SyncIntervalMinutes       int           `koanf:"sync_interval_minutes" default:"60"`

	// Catalog transport.
	CatalogTimeout    time.Duration `koanf:"catalog_timeout" default:"30s"`
	CatalogMaxRetries int           `koanf:"catalog_max_retries" default:"3" validate:"min=0"`

	// CatalogCredentials maps server UUID to password.
	CatalogCredentials map[string]string `koanf:"catalog_credentials"`

	// Sync and fetch batching.
	IDBatchSize       int `koanf:"id_batch_size" default:"1024" validate:"min=1"`
	FetchBatchSize    int `koanf:"fetch_batch_size" default:"100" validate:"min=1"`
	FetchRetryBatches int `koanf:"fetch_retry_batches" default:"16" validate:"min=2"`
	FetchMaxRounds    int `koanf:"fetch_max_rounds" default:"8" validate:"min=1"`

	// Annotations.
	SessionRecencyWindow time.Duration `koanf:"session_recency_window" default:"10m"`
}

const (
	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/shelfsync.yaml"
)

// New loads the config from defaults, then the YAML config file (if any),
// then environment variables. Later sources win.
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	err := k.Load(env.Provider("", ".", strings.ToLower), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := checkRequired(cfg); err != nil {
		return nil, err
	}
	if err := checkRanges(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a config backed by an in-memory database.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.DatabaseFilePath = ":memory:"
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 10 * time.Millisecond
	cfg.ServerHost = "127.0.0.1"
	return cfg
}

func checkRequired(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	var missing []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("required") != "true" {
			continue
		}
		if !v.Field(i).IsZero() {
			continue
		}
		key := toSnakeCase(field.Name)
		missing = append(missing, strings.ToUpper(key)+" (env) or "+key+" (yaml)")
	}

	if len(missing) > 0 {
		return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// checkRanges rejects numeric settings that would stall syncing, such as a
// zero batch size.
func checkRanges(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return errors.WithStack(err)
	}
	bad := make([]string, 0, len(errs))
	for _, fe := range errs {
		bad = append(bad, fmt.Sprintf("%s must be %s %s", toSnakeCase(fe.Field()), rangeWord(fe.Tag()), fe.Param()))
	}
	return errors.Errorf("invalid config: %s", strings.Join(bad, ", "))
}

func rangeWord(tag string) string {
	if tag == "max" {
		return "at most"
	}
	return "at least"
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
