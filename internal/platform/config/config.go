package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures every recognized option of the aggregation core. All values
// come from TELLUS_* environment variables with conservative defaults, so main
// stays lean and tests can construct configs directly.
type Config struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json

	// ResolveTimeout is the global deadline for one aggregation resolution.
	ResolveTimeout time.Duration

	Retry     Retry
	Rates     Rates
	Providers Providers
	TTL       TTL
	Redis     Redis
	Postgres  Postgres
	Kafka     Kafka
}

// Retry bounds the backoff loop around transient fetch failures.
type Retry struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Limit is one provider's outbound request budget.
type Limit struct {
	MaxRequests int
	Window      time.Duration
}

// Rates holds the per-provider limits. Defaults assume the providers'
// documented or conservatively observed quotas.
type Rates struct {
	WorldBank Limit
	WHO       Limit
	FAO       Limit
	OpenMeteo Limit
	NASAPower Limit
}

// For returns the limit for a provider id, falling back to the most
// conservative configured limit for unknown ids.
func (r Rates) For(providerID string) Limit {
	switch providerID {
	case "worldbank":
		return r.WorldBank
	case "who":
		return r.WHO
	case "fao":
		return r.FAO
	case "openmeteo":
		return r.OpenMeteo
	case "nasapower":
		return r.NASAPower
	}
	return Limit{MaxRequests: 1, Window: time.Second}
}

// Providers holds base URLs and the per-request HTTP timeout. URLs are
// overridable so adapter tests can point at local stub servers.
type Providers struct {
	WorldBankURL string
	WHOURL       string
	FAOURL       string
	OpenMeteoURL string
	NASAPowerURL string
	HTTPTimeout  time.Duration
}

// TTL sets cache lifetimes per indicator class. Slowly-changing annual
// aggregates keep entries longer than daily climate data.
type TTL struct {
	Economic     time.Duration
	Health       time.Duration
	Agricultural time.Duration
	Climate      time.Duration
}

// Redis configures the cache store backend. An empty URL disables it.
type Redis struct {
	URL string
}

// Postgres configures the cache store backend. An empty URL disables it.
type Postgres struct {
	URL string
}

// Kafka configures the fetch-audit event stream. No brokers disables it.
type Kafka struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

// FromEnv builds and validates a Config from environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		LogLevel:       getString("TELLUS_LOG_LEVEL", "info"),
		LogFormat:      getString("TELLUS_LOG_FORMAT", "text"),
		ResolveTimeout: getDuration("TELLUS_RESOLVE_TIMEOUT", 60*time.Second),
		Retry: Retry{
			MaxAttempts: getInt("TELLUS_RETRY_MAX_ATTEMPTS", 3),
			BaseBackoff: getDuration("TELLUS_RETRY_BASE_BACKOFF", 500*time.Millisecond),
			MaxBackoff:  getDuration("TELLUS_RETRY_MAX_BACKOFF", 8*time.Second),
		},
		Rates: Rates{
			WorldBank: limitFromEnv("WORLDBANK", Limit{MaxRequests: 10, Window: time.Second}),
			WHO:       limitFromEnv("WHO", Limit{MaxRequests: 5, Window: time.Second}),
			FAO:       limitFromEnv("FAO", Limit{MaxRequests: 5, Window: time.Second}),
			OpenMeteo: limitFromEnv("OPENMETEO", Limit{MaxRequests: 10, Window: time.Second}),
			NASAPower: limitFromEnv("NASAPOWER", Limit{MaxRequests: 5, Window: time.Second}),
		},
		Providers: Providers{
			WorldBankURL: getString("TELLUS_WORLDBANK_URL", "https://api.worldbank.org"),
			WHOURL:       getString("TELLUS_WHO_URL", "https://ghoapi.azureedge.net"),
			FAOURL:       getString("TELLUS_FAO_URL", "https://faostatservices.fao.org"),
			OpenMeteoURL: getString("TELLUS_OPENMETEO_URL", "https://archive-api.open-meteo.com"),
			NASAPowerURL: getString("TELLUS_NASAPOWER_URL", "https://power.larc.nasa.gov"),
			HTTPTimeout:  getDuration("TELLUS_HTTP_TIMEOUT", 15*time.Second),
		},
		TTL: TTL{
			Economic:     getDuration("TELLUS_TTL_ECONOMIC", 24*time.Hour),
			Health:       getDuration("TELLUS_TTL_HEALTH", 24*time.Hour),
			Agricultural: getDuration("TELLUS_TTL_AGRICULTURAL", 24*time.Hour),
			Climate:      getDuration("TELLUS_TTL_CLIMATE", 6*time.Hour),
		},
		Redis:    Redis{URL: getString("TELLUS_REDIS_URL", "")},
		Postgres: Postgres{URL: getString("TELLUS_POSTGRES_URL", "")},
		Kafka: Kafka{
			Brokers:           getList("TELLUS_KAFKA_BROKERS"),
			Topic:             getString("TELLUS_KAFKA_TOPIC", "tellus.fetch.audit"),
			Partitions:        int32(getInt("TELLUS_KAFKA_PARTITIONS", 3)),
			ReplicationFactor: int16(getInt("TELLUS_KAFKA_REPLICATION", 1)),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every option against its allowed range.
func (c Config) Validate() error {
	if c.ResolveTimeout <= 0 {
		return fmt.Errorf("resolve timeout must be positive, got %s", c.ResolveTimeout)
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		return fmt.Errorf("retry max attempts must be in [1, 10], got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseBackoff <= 0 {
		return fmt.Errorf("retry base backoff must be positive, got %s", c.Retry.BaseBackoff)
	}
	if c.Retry.MaxBackoff < c.Retry.BaseBackoff {
		return fmt.Errorf("retry max backoff %s below base backoff %s", c.Retry.MaxBackoff, c.Retry.BaseBackoff)
	}
	for _, l := range []struct {
		name  string
		limit Limit
	}{
		{"worldbank", c.Rates.WorldBank},
		{"who", c.Rates.WHO},
		{"fao", c.Rates.FAO},
		{"openmeteo", c.Rates.OpenMeteo},
		{"nasapower", c.Rates.NASAPower},
	} {
		if l.limit.MaxRequests < 1 {
			return fmt.Errorf("rate limit for %s needs at least 1 request, got %d", l.name, l.limit.MaxRequests)
		}
		if l.limit.Window <= 0 {
			return fmt.Errorf("rate window for %s must be positive, got %s", l.name, l.limit.Window)
		}
	}
	if c.Providers.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.Providers.HTTPTimeout)
	}
	for _, ttl := range []struct {
		name string
		d    time.Duration
	}{
		{"economic", c.TTL.Economic},
		{"health", c.TTL.Health},
		{"agricultural", c.TTL.Agricultural},
		{"climate", c.TTL.Climate},
	} {
		if ttl.d <= 0 {
			return fmt.Errorf("ttl for %s class must be positive, got %s", ttl.name, ttl.d)
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic required when brokers are set")
	}
	return nil
}

func limitFromEnv(provider string, def Limit) Limit {
	return Limit{
		MaxRequests: getInt("TELLUS_RATE_"+provider+"_MAX_REQUESTS", def.MaxRequests),
		Window:      getDuration("TELLUS_RATE_"+provider+"_WINDOW", def.Window),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
