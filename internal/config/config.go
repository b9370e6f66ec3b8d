// Package config loads server settings.
//
// Sources, lowest precedence first:
//
//  1. built-in defaults
//  2. a YAML file named by -config or CONFIG_FILE
//  3. environment variables (cmd/server loads .env into the environment first)
//  4. command-line flags
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`

	// JWTSecret signs session cookies. Empty means the server generates a
	// random one at startup, so sessions do not survive a restart.
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`

	LogLevel string `yaml:"log_level"`

	// VoteOnFirstCall makes a vote for an unknown username count right away
	// instead of only registering the user.
	VoteOnFirstCall bool `yaml:"vote_on_first_call"`

	// AllowedOrigins are extra Origin host patterns accepted on /ws.
	AllowedOrigins []string `yaml:"allowed_origins"`

	GitHub GitHubConfig `yaml:"github"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
}

// GitHubConfig enables "Login with GitHub" when ClientID and ClientSecret
// are both set.
type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// RedisConfig enables the cross-instance event relay when URL is set.
type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

// KafkaConfig enables the event audit stream when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func Default() Config {
	return Config{
		Port:       8080,
		DBPath:     "data/voteboard.db",
		SessionTTL: 24 * time.Hour,
		LogLevel:   "info",
		Redis:      RedisConfig{Channel: "voteboard:events"},
		Kafka:      KafkaConfig{Topic: "voteboard-events"},
	}
}

// Load builds the configuration from args (without the program name) and
// the environment as seen through getenv.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("voteboard", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (or CONFIG_FILE)")
	port := fs.Int("port", 0, "HTTP port (or PORT)")
	dbPath := fs.String("db", "", "SQLite database path (or DB_PATH)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (or LOG_LEVEL)")
	voteOnFirst := fs.Bool("vote-on-first-call", false, "count a vote for an unknown user immediately (or VOTE_ON_FIRST_CALL)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	path := *configPath
	if path == "" {
		path = getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	// Only flags given on the command line override.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "db":
			cfg.DBPath = *dbPath
		case "log-level":
			cfg.LogLevel = *logLevel
		case "vote-on-first-call":
			cfg.VoteOnFirstCall = *voteOnFirst
		}
	})

	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		cfg.Port = p
	}
	if v := getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid SESSION_TTL %q: %w", v, err)
		}
		cfg.SessionTTL = d
	}
	if v := getenv("VOTE_ON_FIRST_CALL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid VOTE_ON_FIRST_CALL %q", v)
		}
		cfg.VoteOnFirstCall = b
	}

	setString(&cfg.DBPath, getenv("DB_PATH"))
	setString(&cfg.JWTSecret, getenv("JWT_SECRET"))
	setString(&cfg.LogLevel, getenv("LOG_LEVEL"))
	setString(&cfg.GitHub.ClientID, getenv("GITHUB_CLIENT_ID"))
	setString(&cfg.GitHub.ClientSecret, getenv("GITHUB_CLIENT_SECRET"))
	setString(&cfg.GitHub.CallbackURL, getenv("GITHUB_CALLBACK_URL"))
	setString(&cfg.Redis.URL, getenv("REDIS_URL"))
	setString(&cfg.Redis.Channel, getenv("REDIS_CHANNEL"))
	setString(&cfg.Kafka.Topic, getenv("KAFKA_TOPIC"))

	if v := getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// splitList parses "a, b,,c" into [a b c].
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: port %d out of range", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("config: database path is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("config: session TTL must be positive, got %s", c.SessionTTL))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("config: JWT secret must be at least 16 characters"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("config: kafka topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", c.LogLevel)
	}
	return l, nil
}
