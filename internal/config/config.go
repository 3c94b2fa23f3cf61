// Package config is the viper-backed configuration surface for the crawler
// core, scoped to the options named in spec §6: shard/concurrency limits,
// bloom parameters, politeness delays, timeouts, stop conditions, and
// filesystem roots.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the flat configuration struct for the crawler core, following
// cmd/root.go's SetDefault-per-concern shape but collapsed to one struct
// instead of the teacher's six nested sub-configs, since this core has a
// single concern (the frontier-and-politeness engine), not a whole app.
type Config struct {
	// Sharding / concurrency
	Shards                int
	FetcherTasksPerShard  int
	ParserWorkersPerShard int
	ParserQueueItems      int
	ParserQueueBytes      int64

	// Dedup
	BloomCapacity int64
	BloomFPR      float64

	// URLs
	MaxURLLen int
	MaxDepth  int

	// Timeouts
	FetchDeadline       time.Duration
	RobotsFetchDeadline time.Duration

	// Politeness
	DefaultCrawlDelay time.Duration
	MinCrawlDelay     time.Duration
	MaxCrawlDelay     time.Duration
	RobotsTTL         time.Duration
	RobotsNegativeTTL time.Duration
	SeededOnly        bool
	UserAgent         string

	// Stop conditions
	StopMaxPages         int64
	StopMaxDuration      time.Duration
	ShutdownIdleGrace    time.Duration
	FetchShutdownGrace   time.Duration

	// Periodic housekeeping
	MetricsInterval        time.Duration
	StaleClaimInterval     time.Duration
	HeartbeatInterval      time.Duration
	HeartbeatDeadAfter     time.Duration

	// Storage roots
	ContentRoot          string
	FrontierRoot         string
	SaveExtractedTextOnly bool

	// Redis
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	// Process identity (set per fetcher process, not from config file)
	Shard int
}

// Load reads configuration from (in order of increasing precedence) built-in
// defaults, a config file (config.yaml in "." or "./config"), a .env file,
// and environment variables -- the same layering cmd/root.go's initConfig
// uses, minus the sub-packages this core has no use for (Elasticsearch,
// gin server, job scheduler).
func Load(cfgFile string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "config: no .env file found: %v\n", err)
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "config: no config file found, using defaults and env vars\n")
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("shards", 1)
	v.SetDefault("fetcher_tasks_per_shard", 500)
	v.SetDefault("parser_workers_per_shard", 0) // 0 => max(1, cores-1) at runtime
	v.SetDefault("parser_queue_items", 200)
	v.SetDefault("parser_queue_bytes", 50*1024*1024)

	v.SetDefault("bloom_capacity", 200_000_000)
	v.SetDefault("bloom_fpr", 1e-4)

	v.SetDefault("max_url_len", 2048)
	v.SetDefault("max_depth", 0)

	v.SetDefault("fetch_deadline_seconds", 30)
	v.SetDefault("robots_fetch_deadline_seconds", 10)

	v.SetDefault("default_crawl_delay_seconds", 1)
	v.SetDefault("min_crawl_delay_seconds", 1)
	v.SetDefault("max_crawl_delay_seconds", 60)
	v.SetDefault("robots_ttl_seconds", 24*60*60)
	v.SetDefault("robots_negative_ttl_seconds", 60*60)
	v.SetDefault("seeded_only", false)
	v.SetDefault("user_agent", "corecrawl/1.0")

	v.SetDefault("stop_max_pages", 0)
	v.SetDefault("stop_max_duration_seconds", 0)
	v.SetDefault("shutdown_idle_grace_seconds", 120)
	v.SetDefault("fetch_shutdown_grace_seconds", 30)

	v.SetDefault("metrics_interval_seconds", 60)
	v.SetDefault("stale_claim_interval_seconds", 300)
	v.SetDefault("heartbeat_interval_seconds", 10)
	v.SetDefault("heartbeat_dead_after_seconds", 60)

	v.SetDefault("content_root", "./data/content")
	v.SetDefault("frontier_root", "./data/frontier")
	v.SetDefault("save_extracted_text_only", false)

	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Shards:                v.GetInt("shards"),
		FetcherTasksPerShard:  v.GetInt("fetcher_tasks_per_shard"),
		ParserWorkersPerShard: v.GetInt("parser_workers_per_shard"),
		ParserQueueItems:      v.GetInt("parser_queue_items"),
		ParserQueueBytes:      v.GetInt64("parser_queue_bytes"),

		BloomCapacity: v.GetInt64("bloom_capacity"),
		BloomFPR:      v.GetFloat64("bloom_fpr"),

		MaxURLLen: v.GetInt("max_url_len"),
		MaxDepth:  v.GetInt("max_depth"),

		FetchDeadline:       time.Duration(v.GetInt64("fetch_deadline_seconds")) * time.Second,
		RobotsFetchDeadline: time.Duration(v.GetInt64("robots_fetch_deadline_seconds")) * time.Second,

		DefaultCrawlDelay: time.Duration(v.GetInt64("default_crawl_delay_seconds")) * time.Second,
		MinCrawlDelay:     time.Duration(v.GetInt64("min_crawl_delay_seconds")) * time.Second,
		MaxCrawlDelay:     time.Duration(v.GetInt64("max_crawl_delay_seconds")) * time.Second,
		RobotsTTL:         time.Duration(v.GetInt64("robots_ttl_seconds")) * time.Second,
		RobotsNegativeTTL: time.Duration(v.GetInt64("robots_negative_ttl_seconds")) * time.Second,
		SeededOnly:        v.GetBool("seeded_only"),
		UserAgent:         v.GetString("user_agent"),

		StopMaxPages:       v.GetInt64("stop_max_pages"),
		StopMaxDuration:    time.Duration(v.GetInt64("stop_max_duration_seconds")) * time.Second,
		ShutdownIdleGrace:  time.Duration(v.GetInt64("shutdown_idle_grace_seconds")) * time.Second,
		FetchShutdownGrace: time.Duration(v.GetInt64("fetch_shutdown_grace_seconds")) * time.Second,

		MetricsInterval:    time.Duration(v.GetInt64("metrics_interval_seconds")) * time.Second,
		StaleClaimInterval: time.Duration(v.GetInt64("stale_claim_interval_seconds")) * time.Second,
		HeartbeatInterval:  time.Duration(v.GetInt64("heartbeat_interval_seconds")) * time.Second,
		HeartbeatDeadAfter: time.Duration(v.GetInt64("heartbeat_dead_after_seconds")) * time.Second,

		ContentRoot:           v.GetString("content_root"),
		FrontierRoot:          v.GetString("frontier_root"),
		SaveExtractedTextOnly: v.GetBool("save_extracted_text_only"),

		RedisAddress:  v.GetString("redis.address"),
		RedisPassword: v.GetString("redis.password"),
		RedisDB:       v.GetInt("redis.db"),
	}
}
