package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DispatchInline = "inline"
	DispatchQueued = "queued"
)

type Config struct {
	// App mode & server
	Mode        string
	ServerAddr  string
	TLSCertFile string
	TLSKeyFile  string
	LogLevel    string
	JWTSecret   string

	// Fan-out dispatch
	DispatchMode string

	// Kafka
	KafkaBroker      string
	KafkaTopicPrefix string
	KafkaGroupID     string
	KafkaPartitions  int
	KafkaReadTO      time.Duration
	KafkaWriteTO     time.Duration

	// Redis pub/sub
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	PubSubNamespace string

	// Cassandra
	CassandraHost     string
	CassandraKeyspace string
	CassandraUsername string
	CassandraPassword string
	CassandraTimeout  time.Duration
	CassandraDC       string

	// Feed engine
	FanoutConcurrency int
	DefaultPageSize   int
	MaxPageSize       int

	// Worker
	WorkerCount      int
	WorkerQueueSize  int
	WorkerMaxRetryTO time.Duration
}

var cfg *Config

// Init loads the config using Viper and returns it
func Init() *Config {
	viper.SetDefault("MODE", "server")
	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("DISPATCH_MODE", DispatchInline)

	viper.SetDefault("KAFKA_BROKER", "localhost:29092")
	viper.SetDefault("KAFKA_TOPIC_PREFIX", "activityfeed")
	viper.SetDefault("KAFKA_GROUP_ID", "fanout-workers")
	viper.SetDefault("KAFKA_PARTITIONS", 1)
	viper.SetDefault("KAFKA_READ_TIMEOUT", "10s")
	viper.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	viper.SetDefault("PUBSUB_NAMESPACE", "seguir")

	viper.SetDefault("CASSANDRA_HOST", "localhost")
	viper.SetDefault("CASSANDRA_KEYSPACE", "activityfeed")
	viper.SetDefault("CASSANDRA_TIMEOUT", "10s")
	// Optional: Cassandra username/password/DC, Redis address and TLS files can be empty

	viper.SetDefault("FEED_FANOUT_CONCURRENCY", 20)
	viper.SetDefault("FEED_DEFAULT_PAGE_SIZE", 50)
	viper.SetDefault("FEED_MAX_PAGE_SIZE", 200)

	viper.SetDefault("WORKER_COUNT", 0)
	viper.SetDefault("WORKER_QUEUE_SIZE", 0)
	viper.SetDefault("WORKER_MAX_RETRY_ELAPSED", "30s")

	// Load env variables
	viper.AutomaticEnv()

	// Optional config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	_ = viper.ReadInConfig() // ignore error if no file

	cfg = &Config{
		Mode:              viper.GetString("MODE"),
		ServerAddr:        viper.GetString("SERVER_ADDR"),
		TLSCertFile:       viper.GetString("TLS_CERT_FILE"),
		TLSKeyFile:        viper.GetString("TLS_KEY_FILE"),
		LogLevel:          viper.GetString("LOG_LEVEL"),
		JWTSecret:         viper.GetString("JWT_SECRET"),
		DispatchMode:      viper.GetString("DISPATCH_MODE"),
		KafkaBroker:       viper.GetString("KAFKA_BROKER"),
		KafkaTopicPrefix:  viper.GetString("KAFKA_TOPIC_PREFIX"),
		KafkaGroupID:      viper.GetString("KAFKA_GROUP_ID"),
		KafkaPartitions:   viper.GetInt("KAFKA_PARTITIONS"),
		KafkaReadTO:       parseDuration(viper.GetString("KAFKA_READ_TIMEOUT"), 10*time.Second),
		KafkaWriteTO:      parseDuration(viper.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),
		RedisAddr:         viper.GetString("REDIS_ADDR"),
		RedisPassword:     viper.GetString("REDIS_PASSWORD"),
		RedisDB:           viper.GetInt("REDIS_DB"),
		PubSubNamespace:   viper.GetString("PUBSUB_NAMESPACE"),
		CassandraHost:     viper.GetString("CASSANDRA_HOST"),
		CassandraKeyspace: viper.GetString("CASSANDRA_KEYSPACE"),
		CassandraUsername: viper.GetString("CASSANDRA_USERNAME"),
		CassandraPassword: viper.GetString("CASSANDRA_PASSWORD"),
		CassandraTimeout:  parseDuration(viper.GetString("CASSANDRA_TIMEOUT"), 10*time.Second),
		CassandraDC:       viper.GetString("CASSANDRA_DC"),
		FanoutConcurrency: viper.GetInt("FEED_FANOUT_CONCURRENCY"),
		DefaultPageSize:   viper.GetInt("FEED_DEFAULT_PAGE_SIZE"),
		MaxPageSize:       viper.GetInt("FEED_MAX_PAGE_SIZE"),
		WorkerCount:       viper.GetInt("WORKER_COUNT"),
		WorkerQueueSize:   viper.GetInt("WORKER_QUEUE_SIZE"),
		WorkerMaxRetryTO:  parseDuration(viper.GetString("WORKER_MAX_RETRY_ELAPSED"), 30*time.Second),
	}

	return cfg
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// Get returns the loaded config instance
func Get() *Config {
	return cfg
}
