package configuration

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/changeorders/pkg/logging"
)

const Production = "production"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist, looking first in the working
// directory and then in the nearest directory holding go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		if root, ok := findModuleRoot(); ok {
			for _, file := range envFiles {
				candidate := filepath.Join(root, file)
				if fs.FileExists(candidate) {
					existingFiles = append(existingFiles, candidate)
				}
			}
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}
	return len(existingFiles), godotenv.Load(existingFiles...)
}

func findModuleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"changeorders"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"changeorders"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type OutboxOptions struct {
	RelayEnabled         bool          `env:"OUTBOX_RELAY_ENABLED" envDefault:"true"`
	Table                string        `env:"OUTBOX_TABLE" envDefault:"public.changeorders_outbox"`
	RelayPollInterval    time.Duration `env:"OUTBOX_RELAY_POLL_INTERVAL" envDefault:"1s"`
	RelayBatchSize       int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`
	RelayLockTTL         time.Duration `env:"OUTBOX_RELAY_LOCK_TTL" envDefault:"60s"`
	RelayMaxAttempts     int           `env:"OUTBOX_RELAY_MAX_ATTEMPTS" envDefault:"25"`
	RelaySingleActive    bool          `env:"OUTBOX_RELAY_SINGLE_ACTIVE" envDefault:"true"`
	RelayDispatchTimeout time.Duration `env:"OUTBOX_RELAY_DISPATCH_TIMEOUT" envDefault:"30s"`

	LastErrorMaxBytes int `env:"OUTBOX_LAST_ERROR_MAX_BYTES" envDefault:"2048"`

	CleanerEnabled       bool          `env:"OUTBOX_CLEANER_ENABLED" envDefault:"true"`
	CleanerInterval      time.Duration `env:"OUTBOX_CLEANER_INTERVAL" envDefault:"1m"`
	CleanerRetention     time.Duration `env:"OUTBOX_CLEANER_RETENTION" envDefault:"168h"`
	CleanerDeadRetention time.Duration `env:"OUTBOX_CLEANER_DEAD_RETENTION" envDefault:"0"`
}

type ChangeOrdersOptions struct {
	Storage              string `env:"CHANGE_ORDERS_STORAGE" envDefault:"postgres"`
	NumberPrefix         string `env:"CHANGE_ORDERS_NUMBER_PREFIX" envDefault:"CO"`
	NumberPad            int    `env:"CHANGE_ORDERS_NUMBER_PAD" envDefault:"4"`
	NumberingMaxAttempts int    `env:"CHANGE_ORDERS_NUMBERING_MAX_ATTEMPTS" envDefault:"5"`
	DefaultCurrency      string `env:"CHANGE_ORDERS_DEFAULT_CURRENCY" envDefault:"USD"`
	NotificationsEnabled bool   `env:"CHANGE_ORDERS_NOTIFICATIONS_ENABLED" envDefault:"true"`
}

func (o *ChangeOrdersOptions) Validate() error {
	storage := strings.ToLower(strings.TrimSpace(o.Storage))
	switch storage {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("invalid CHANGE_ORDERS_STORAGE=%q (expected memory|postgres)", o.Storage)
	}
	o.Storage = storage

	o.NumberPrefix = strings.ToUpper(strings.TrimSpace(o.NumberPrefix))
	if o.NumberPrefix == "" {
		return fmt.Errorf("CHANGE_ORDERS_NUMBER_PREFIX must not be empty")
	}
	if o.NumberPad < 1 || o.NumberPad > 12 {
		return fmt.Errorf("CHANGE_ORDERS_NUMBER_PAD must be in [1,12], got %d", o.NumberPad)
	}
	if o.NumberingMaxAttempts < 1 {
		return fmt.Errorf("CHANGE_ORDERS_NUMBERING_MAX_ATTEMPTS must be positive, got %d", o.NumberingMaxAttempts)
	}

	o.DefaultCurrency = strings.ToUpper(strings.TrimSpace(o.DefaultCurrency))
	if money.GetCurrency(o.DefaultCurrency) == nil {
		return fmt.Errorf("invalid CHANGE_ORDERS_DEFAULT_CURRENCY=%q", o.DefaultCurrency)
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	Outbox        OutboxOptions
	ChangeOrders  ChangeOrdersOptions

	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"migrations/changeorders"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	PageSize         int    `env:"PAGE_SIZE" envDefault:"25"`
	MaxPageSize      int    `env:"MAX_PAGE_SIZE" envDefault:"100"`
	// Looked up on every request; a random uuidv4 is used when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// Identifies the acting user. Authentication happens upstream.
	ActorIDHeader string `env:"ACTOR_ID_HEADER" envDefault:"X-Actor-ID"`
	// Comma separated list; empty disables CORS handling.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	logCloser io.Closer
	logger    *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) AllowedOrigins() []string {
	var out []string
	for _, part := range strings.Split(c.CORSAllowedOrigins, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Use() *Configuration {
	return singleton()
}

// Load builds a configuration from the given env files without touching the
// process-wide singleton.
func Load(envFiles []string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.ChangeOrders.Validate(); err != nil {
		return fmt.Errorf("change orders configuration error: %w", err)
	}
	if c.PageSize < 1 || c.MaxPageSize < c.PageSize {
		return fmt.Errorf("invalid paging configuration: PAGE_SIZE=%d MAX_PAGE_SIZE=%d", c.PageSize, c.MaxPageSize)
	}

	closer, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logCloser = closer
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

// Unload releases the log file.
func (c *Configuration) Unload() {
	if c.logCloser != nil {
		if err := c.logCloser.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
