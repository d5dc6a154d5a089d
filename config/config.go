package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Observ    ObservabilityConfig
	Platforms PlatformsConfig
	Business  BusinessConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig selects the ledger backend. An empty URL keeps the ledger
// in memory.
type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicSales    string
	TopicSync     string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
	PrometheusPort string
}

type PlatformsConfig struct {
	WooCommerce WooCommerceConfig
	Eventbrite  EventbriteConfig
	Square      SquareConfig
}

type WooCommerceConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Statuses       []string
	DateMetaKeys   []string
	TimeMetaKeys   []string
}

type EventbriteConfig struct {
	BaseURL        string
	Token          string
	OrganizationID string
}

type SquareConfig struct {
	Environment string
	BaseURL     string
	AccessToken string
	LocationID  string
	APIVersion  string
}

type BusinessConfig struct {
	Timezone         string
	SyncInterval     time.Duration
	ImportBatchSize  int
	SyncBatchSize    int
	LookbackDays     int
	EventCacheTTL    time.Duration
	EventCacheErrTTL time.Duration
	HTTPTimeout      time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
}

// Location resolves the business timezone, falling back to UTC.
func (b BusinessConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		log.Printf("Unknown timezone %q, using UTC", b.Timezone)
		return time.UTC
	}
	return loc
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       getList("KAFKA_BROKERS", "localhost:9092"),
			TopicSales:    getEnv("KAFKA_TOPIC_SALES", "sale.recorded"),
			TopicSync:     getEnv("KAFKA_TOPIC_SYNC", "sync.requested"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "sales-reconciler-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			PrometheusPort: getEnv("PROMETHEUS_PORT", "9090"),
		},
		Platforms: PlatformsConfig{
			WooCommerce: WooCommerceConfig{
				BaseURL:        getEnv("WOOCOMMERCE_URL", ""),
				ConsumerKey:    getEnv("WOOCOMMERCE_CONSUMER_KEY", ""),
				ConsumerSecret: getEnv("WOOCOMMERCE_CONSUMER_SECRET", ""),
				Statuses:       getList("WOOCOMMERCE_STATUSES", ""),
				DateMetaKeys:   getList("WOOCOMMERCE_DATE_META_KEYS", ""),
				TimeMetaKeys:   getList("WOOCOMMERCE_TIME_META_KEYS", ""),
			},
			Eventbrite: EventbriteConfig{
				BaseURL:        getEnv("EVENTBRITE_URL", ""),
				Token:          getEnv("EVENTBRITE_TOKEN", ""),
				OrganizationID: getEnv("EVENTBRITE_ORGANIZATION_ID", ""),
			},
			Square: SquareConfig{
				Environment: getEnv("SQUARE_ENVIRONMENT", "production"),
				BaseURL:     getEnv("SQUARE_URL", ""),
				AccessToken: getEnv("SQUARE_ACCESS_TOKEN", ""),
				LocationID:  getEnv("SQUARE_LOCATION_ID", ""),
				APIVersion:  getEnv("SQUARE_API_VERSION", ""),
			},
		},
		Business: BusinessConfig{
			Timezone:         getEnv("TIMEZONE", "UTC"),
			SyncInterval:     getDuration("SYNC_INTERVAL", 15*time.Minute),
			ImportBatchSize:  getInt("IMPORT_BATCH_SIZE", 25),
			SyncBatchSize:    getInt("SYNC_BATCH_SIZE", 100),
			LookbackDays:     getInt("SYNC_LOOKBACK_DAYS", 30),
			EventCacheTTL:    getDuration("EVENT_CACHE_TTL", time.Hour),
			EventCacheErrTTL: getDuration("EVENT_CACHE_ERROR_TTL", 5*time.Minute),
			HTTPTimeout:      getDuration("PLATFORM_HTTP_TIMEOUT", 30*time.Second),
			MaxRetries:       getInt("PLATFORM_MAX_RETRIES", 3),
			RetryDelay:       getDuration("PLATFORM_RETRY_DELAY", 500*time.Millisecond),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s", cfg.Server.Env, cfg.Server.Port)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return d
}

// getList splits a comma separated value, dropping blanks.
func getList(key, defaultVal string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultVal), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
