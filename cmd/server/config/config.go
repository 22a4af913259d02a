// Package config loads server configuration from the environment.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// HTTPConfig holds the REST listener settings.
type HTTPConfig struct {
	Addr              string
	RateLimitInterval time.Duration
	RateLimitBurst    int
}

// BusConfig selects the message bus. Empty KafkaBrokers means the
// in-process bus.
type BusConfig struct {
	KafkaBrokers  []string
	ConsumerGroup string
	Partitions    int
}

// RetryConfig holds the retry/dead-letter policy knobs.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RedisConfig holds Redis connection and behavior settings for the
// latest-status store.
type RedisConfig struct {
	URL                string
	Stream             string
	DialTimeout        *time.Duration
	ReadTimeout        *time.Duration
	WriteTimeout       *time.Duration
	PoolSize           *int
	MinIdleConns       *int
	MaxRetries         *int
	HealthcheckTimeout time.Duration
	StatusTTL          time.Duration
	StreamMaxLen       int64
	TLSConfig          *tls.Config
}

// LoadHTTP reads the REST listener settings. Rate limiting is enabled only
// when both knobs are set.
func LoadHTTP() (HTTPConfig, error) {
	cfg := HTTPConfig{Addr: strings.TrimSpace(os.Getenv("HTTP_ADDR"))}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	interval, err := optionalDuration("HTTP_RATE_LIMIT_INTERVAL")
	if err != nil {
		return cfg, err
	}
	burst, err := optionalInt("HTTP_RATE_LIMIT_BURST")
	if err != nil {
		return cfg, err
	}
	if (interval == nil) != (burst == nil) {
		return cfg, errors.New("HTTP_RATE_LIMIT_INTERVAL and HTTP_RATE_LIMIT_BURST must be set together")
	}
	if interval != nil {
		cfg.RateLimitInterval = *interval
		cfg.RateLimitBurst = *burst
	}
	return cfg, nil
}

// LoadBus reads message bus settings.
func LoadBus() (BusConfig, error) {
	cfg := BusConfig{
		ConsumerGroup: strings.TrimSpace(os.Getenv("CONSUMER_GROUP")),
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "freightline"
	}

	if raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); raw != "" {
		for _, broker := range strings.Split(raw, ",") {
			broker = strings.TrimSpace(broker)
			if broker != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
			}
		}
	}

	partitions, err := optionalInt("BUS_PARTITIONS")
	if err != nil {
		return cfg, err
	}
	if partitions != nil {
		if *partitions < 1 {
			return cfg, errors.New("BUS_PARTITIONS must be >= 1")
		}
		cfg.Partitions = *partitions
	}
	return cfg, nil
}

// LoadRetry reads the retry policy, falling back to three attempts with a
// one second base delay capped at ten seconds.
func LoadRetry() (RetryConfig, error) {
	cfg := RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}

	attempts, err := optionalInt("RETRY_MAX_ATTEMPTS")
	if err != nil {
		return cfg, err
	}
	if attempts != nil {
		if *attempts < 1 {
			return cfg, errors.New("RETRY_MAX_ATTEMPTS must be >= 1")
		}
		cfg.MaxAttempts = *attempts
	}

	base, err := optionalDuration("RETRY_BASE_DELAY")
	if err != nil {
		return cfg, err
	}
	if base != nil {
		cfg.BaseDelay = *base
	}

	max, err := optionalDuration("RETRY_MAX_DELAY")
	if err != nil {
		return cfg, err
	}
	if max != nil {
		cfg.MaxDelay = *max
	}
	return cfg, nil
}

// LoadRedis reads Redis settings. enabled is false when REDIS_URL is unset,
// in which case the latest-status view stays in memory.
func LoadRedis() (RedisConfig, bool, error) {
	cfg := RedisConfig{
		URL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		Stream: strings.TrimSpace(os.Getenv("REDIS_STREAM")),
	}
	if cfg.URL == "" {
		return cfg, false, nil
	}

	var err error
	if cfg.DialTimeout, err = optionalDuration("REDIS_DIAL_TIMEOUT"); err != nil {
		return cfg, false, err
	}
	if cfg.ReadTimeout, err = optionalDuration("REDIS_READ_TIMEOUT"); err != nil {
		return cfg, false, err
	}
	if cfg.WriteTimeout, err = optionalDuration("REDIS_WRITE_TIMEOUT"); err != nil {
		return cfg, false, err
	}
	if cfg.PoolSize, err = optionalInt("REDIS_POOL_SIZE"); err != nil {
		return cfg, false, err
	}
	if cfg.MinIdleConns, err = optionalInt("REDIS_MIN_IDLE_CONNS"); err != nil {
		return cfg, false, err
	}
	if cfg.MaxRetries, err = optionalInt("REDIS_MAX_RETRIES"); err != nil {
		return cfg, false, err
	}

	if cfg.HealthcheckTimeout, err = requiredDuration("REDIS_HEALTHCHECK_TIMEOUT"); err != nil {
		return cfg, false, err
	}

	ttl, err := optionalDuration("REDIS_STATUS_TTL")
	if err != nil {
		return cfg, false, err
	}
	if ttl != nil {
		cfg.StatusTTL = *ttl
	}

	maxLen, err := optionalInt("REDIS_STREAM_MAXLEN")
	if err != nil {
		return cfg, false, err
	}
	if maxLen != nil {
		cfg.StreamMaxLen = int64(*maxLen)
	}

	if cfg.TLSConfig, err = loadRedisTLSFromEnv(); err != nil {
		return cfg, false, err
	}

	return cfg, true, nil
}

// DatabaseURL returns the Postgres connection string, empty when the server
// should run on in-memory stores.
func DatabaseURL() string {
	return strings.TrimSpace(os.Getenv("DATABASE_URL"))
}

// InventoryServiceURL returns the base URL of an external inventory ledger.
// Empty means the in-process ledger serves intake directly.
func InventoryServiceURL() string {
	return strings.TrimSpace(os.Getenv("INVENTORY_SERVICE_URL"))
}

func loadRedisTLSFromEnv() (*tls.Config, error) {
	caFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CA_FILE"))
	certFile := strings.TrimSpace(os.Getenv("REDIS_TLS_CERT_FILE"))
	keyFile := strings.TrimSpace(os.Getenv("REDIS_TLS_KEY_FILE"))
	serverName := strings.TrimSpace(os.Getenv("REDIS_TLS_SERVER_NAME"))
	insecureStr := strings.TrimSpace(os.Getenv("REDIS_TLS_INSECURE_SKIP_VERIFY"))

	if caFile == "" && certFile == "" && keyFile == "" && serverName == "" && insecureStr == "" {
		return nil, nil
	}
	if (certFile == "") != (keyFile == "") {
		return nil, errors.New("REDIS_TLS_CERT_FILE and REDIS_TLS_KEY_FILE must be set together")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	if insecureStr != "" {
		insecure, err := strconv.ParseBool(insecureStr)
		if err != nil {
			return nil, fmt.Errorf("REDIS_TLS_INSECURE_SKIP_VERIFY: %w", err)
		}
		tlsConfig.InsecureSkipVerify = insecure
	}

	if caFile != "" {
		pemData, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read REDIS_TLS_CA_FILE: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, errors.New("REDIS_TLS_CA_FILE contains no valid certificates")
		}
		tlsConfig.RootCAs = pool
	}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load redis TLS keypair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt(name string) (*int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func requiredDuration(name string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}
