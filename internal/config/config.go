package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/matcher"
)

// ServerConfig captures all tunable parameters for the search API process.
// Values are loaded from environment variables with defaults that let the
// binary run locally against the in-memory store.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	StoreTimeout    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisPrefix   string

	KafkaBrokers     []string
	SearchEventTopic string

	AMQPURL      string
	AMQPExchange string

	PGDSN         string
	MigrationPath string

	// CandidatesFile seeds the in-memory store when no Postgres or Redis is configured.
	CandidatesFile string

	Match MatchConfig

	LogLevel      string
	LogFormat     string
	RunMigrations bool
}

// MatchConfig holds the accepted search parameter ranges.
type MatchConfig struct {
	RouteRadiusDefaultKm  float64
	RouteRadiusMaxKm      float64
	WantedRadiusDefaultKm float64
	WantedRadiusMaxKm     float64
	LimitDefault          int
	LimitMax              int
	MarginDegrees         float64
}

// Limits converts the configured ranges into matcher limits.
func (m MatchConfig) Limits() matcher.Limits {
	l := matcher.DefaultLimits()
	l.RouteRadiusDefaultKm = m.RouteRadiusDefaultKm
	l.RouteRadiusMaxKm = m.RouteRadiusMaxKm
	l.WantedRadiusDefaultKm = m.WantedRadiusDefaultKm
	l.WantedRadiusMaxKm = m.WantedRadiusMaxKm
	l.LimitDefault = m.LimitDefault
	l.LimitMax = m.LimitMax
	l.MarginDegrees = m.MarginDegrees
	return l
}

func defaultMatchConfig() MatchConfig {
	d := matcher.DefaultLimits()
	return MatchConfig{
		RouteRadiusDefaultKm:  d.RouteRadiusDefaultKm,
		RouteRadiusMaxKm:      d.RouteRadiusMaxKm,
		WantedRadiusDefaultKm: d.WantedRadiusDefaultKm,
		WantedRadiusMaxKm:     d.WantedRadiusMaxKm,
		LimitDefault:          d.LimitDefault,
		LimitMax:              d.LimitMax,
		MarginDegrees:         geo.DefaultMarginDegrees,
	}
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:         ":8080",
		ReadTimeout:      5 * time.Second,
		WriteTimeout:     10 * time.Second,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		StoreTimeout:     3 * time.Second,
		RedisPrefix:      "candidates",
		SearchEventTopic: "route-search-events",
		AMQPExchange:     "route-matching",
		MigrationPath:    "migrations/001_create_candidates.sql",
		Match:            defaultMatchConfig(),
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.StoreTimeout, "STORE_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisPrefix, "REDIS_PREFIX")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.SearchEventTopic, "KAFKA_SEARCH_TOPIC")

	cfg.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	setStringFromEnv(&cfg.AMQPExchange, "AMQP_EXCHANGE")

	cfg.PGDSN = os.Getenv("PG_DSN")
	setStringFromEnv(&cfg.MigrationPath, "MIGRATION_PATH")
	cfg.CandidatesFile = strings.TrimSpace(os.Getenv("CANDIDATES_FILE"))

	setFloatFromEnv(&cfg.Match.RouteRadiusDefaultKm, "ROUTE_RADIUS_DEFAULT_KM", &errs)
	setFloatFromEnv(&cfg.Match.RouteRadiusMaxKm, "ROUTE_RADIUS_MAX_KM", &errs)
	setFloatFromEnv(&cfg.Match.WantedRadiusDefaultKm, "WANTED_RADIUS_DEFAULT_KM", &errs)
	setFloatFromEnv(&cfg.Match.WantedRadiusMaxKm, "WANTED_RADIUS_MAX_KM", &errs)
	setIntFromEnv(&cfg.Match.LimitDefault, "MATCH_LIMIT_DEFAULT", &errs)
	setIntFromEnv(&cfg.Match.LimitMax, "MATCH_LIMIT_MAX", &errs)
	setFloatFromEnv(&cfg.Match.MarginDegrees, "BBOX_MARGIN_DEG", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if err := cfg.Match.Limits().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("match limits: %w", err))
	}
	if cfg.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STORE_TIMEOUT must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig configures the candidate update consumer.
type ConsumerConfig struct {
	MetricsAddr string

	KafkaBrokers []string
	UpdateTopic  string
	GroupID      string

	RedisAddr     string
	RedisPassword string
	RedisPrefix   string

	RetryAttempts int
	RetryDelay    time.Duration

	LogLevel  string
	LogFormat string
}

func defaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MetricsAddr:   ":2112",
		KafkaBrokers:  []string{"localhost:9092"},
		UpdateTopic:   "candidate-updates",
		GroupID:       "route-matching-consumer",
		RedisAddr:     "localhost:6379",
		RedisPrefix:   "candidates",
		RetryAttempts: 3,
		RetryDelay:    200 * time.Millisecond,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := defaultConsumerConfig()
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.UpdateTopic, "KAFKA_UPDATE_TOPIC")
	setStringFromEnv(&cfg.GroupID, "KAFKA_GROUP")

	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisPrefix, "REDIS_PREFIX")

	setIntFromEnv(&cfg.RetryAttempts, "REDIS_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "REDIS_RETRY_DELAY", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must name at least one broker"))
	}
	if cfg.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("REDIS_RETRY_ATTEMPTS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
