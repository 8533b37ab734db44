package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mylabook/opsflow/pkg/constants"
	"github.com/mylabook/opsflow/pkg/utils"
	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server        ServerConfig        `toml:"server"`
	Database      DatabaseConfig      `toml:"database"`
	Auth          AuthConfig          `toml:"auth"`
	Logging       LoggingConfig       `toml:"logging"`
	Notifications NotificationsConfig `toml:"notifications"`
	Templates     TemplatesConfig     `toml:"templates"`
}

type ServerConfig struct {
	Port                   string   `toml:"port"`
	AllowedOrigins         []string `toml:"allowed_origins"`
	MCPEnabled             bool     `toml:"mcp_enabled"`
	MCPPath                string   `toml:"mcp_path"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds"`
}

type DatabaseConfig struct {
	Driver   string `toml:"driver"` // mysql | sqlite
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Name     string `toml:"name"`
	// SQLitePath is used when driver is sqlite; ":memory:" keeps everything in process.
	SQLitePath string `toml:"sqlite_path"`
	// FallbackToMemory opens a seeded in-memory store when MySQL cannot be reached.
	FallbackToMemory bool `toml:"fallback_to_memory"`
	SeedDemoData     bool `toml:"seed_demo_data"`
	StrictAssertions bool `toml:"strict_assertions"`
}

type AuthConfig struct {
	JWTSecret     string `toml:"jwt_secret"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
}

type LoggingConfig struct {
	Level           string `toml:"level"`
	Format          string `toml:"format"` // text | json | logfmt
	ReportTimestamp bool   `toml:"report_timestamp"`
}

type NotificationsConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	ReadTimeoutSeconds  int `toml:"read_timeout_seconds"`
}

type TemplatesConfig struct {
	Dir         string `toml:"dir"`
	SeedOnStart bool   `toml:"seed_on_start"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:                   "3001",
			AllowedOrigins:         []string{"http://localhost:5173", "http://localhost:3000"},
			MCPEnabled:             true,
			MCPPath:                "/mcp",
			ShutdownTimeoutSeconds: 5,
		},
		Database: DatabaseConfig{
			Driver:           "mysql",
			Host:             "127.0.0.1",
			Port:             "3306",
			User:             "root",
			Name:             "opsflow",
			SQLitePath:       ":memory:",
			FallbackToMemory: true,
			SeedDemoData:     true,
		},
		Auth: AuthConfig{
			JWTSecret:     "default-secret-change-in-production",
			TokenTTLHours: 24,
		},
		Logging: LoggingConfig{
			Level:           "info",
			Format:          "text",
			ReportTimestamp: true,
		},
		Notifications: NotificationsConfig{
			PollIntervalSeconds: 30,
			ReadTimeoutSeconds:  int(constants.NotificationReadTimeout / time.Second),
		},
		Templates: TemplatesConfig{
			Dir:         "templates",
			SeedOnStart: true,
		},
	}
}

// Load reads a TOML file over defaults. A missing or empty file leaves the defaults untouched.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	return cfg, nil
}

// LoadAll resolves the full configuration: defaults, TOML file, .env, then process environment.
func LoadAll(path string, envFiles ...string) (Config, error) {
	cfg, err := Load(path, Default())
	if err != nil {
		return Config{}, err
	}

	for _, f := range envFiles {
		if _, statErr := os.Stat(f); statErr != nil {
			continue
		}
		// godotenv never overrides variables already present in the environment
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = utils.ToBool(v)
		}
	}

	str("PORT", &c.Server.Port)
	flag("MCP_ENABLED", &c.Server.MCPEnabled)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	str("DB_DRIVER", &c.Database.Driver)
	str("DB_HOST", &c.Database.Host)
	str("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	str("DB_SQLITE_PATH", &c.Database.SQLitePath)
	flag("DB_FALLBACK_TO_MEMORY", &c.Database.FallbackToMemory)
	flag("DB_SEED_DEMO_DATA", &c.Database.SeedDemoData)
	flag("DB_STRICT_ASSERTIONS", &c.Database.StrictAssertions)

	str("JWT_SECRET", &c.Auth.JWTSecret)
	num("TOKEN_TTL_HOURS", &c.Auth.TokenTTLHours)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)

	num("NOTIFICATION_POLL_INTERVAL", &c.Notifications.PollIntervalSeconds)
	num("NOTIFICATION_READ_TIMEOUT", &c.Notifications.ReadTimeoutSeconds)

	str("TEMPLATES_DIR", &c.Templates.Dir)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return errors.New("server.port is required")
	}
	if !strings.HasPrefix(c.Server.MCPPath, "/") {
		return fmt.Errorf("server.mcp_path must start with '/': %q", c.Server.MCPPath)
	}

	switch strings.ToLower(c.Database.Driver) {
	case "mysql":
		if strings.TrimSpace(c.Database.Name) == "" {
			return errors.New("database.name is required for mysql")
		}
	case "sqlite":
		if strings.TrimSpace(c.Database.SQLitePath) == "" {
			return errors.New("database.sqlite_path is required for sqlite")
		}
	default:
		return fmt.Errorf("invalid database.driver: %q", c.Database.Driver)
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTLHours <= 0 {
		return fmt.Errorf("auth.token_ttl_hours must be > 0, got %d", c.Auth.TokenTTLHours)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid logging.format: %q", c.Logging.Format)
	}

	poll := c.PollInterval()
	if poll < constants.NotificationMinPollPeriod || poll > constants.NotificationMaxPollPeriod {
		return fmt.Errorf("notifications.poll_interval_seconds must be between %d and %d, got %d",
			int(constants.NotificationMinPollPeriod/time.Second), int(constants.NotificationMaxPollPeriod/time.Second),
			c.Notifications.PollIntervalSeconds)
	}
	if c.Notifications.ReadTimeoutSeconds <= 0 {
		return errors.New("notifications.read_timeout_seconds must be > 0")
	}
	return nil
}

// PollInterval is the notification refresh period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Notifications.PollIntervalSeconds) * time.Second
}

// ReadTimeout bounds each notification read against the store.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.Notifications.ReadTimeoutSeconds) * time.Second
}

// TokenTTL is the lifetime of issued session tokens.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
