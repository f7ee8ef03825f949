package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Rewards      RewardsConfig      `mapstructure:"rewards"`
	Raffle       RaffleConfig       `mapstructure:"raffle"`
	Achievements AchievementsConfig `mapstructure:"achievements"`
	Events       EventsConfig       `mapstructure:"events"`
	Security     SecurityConfig     `mapstructure:"security"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// AdminKeyHash, when set, is a bcrypt hash checked instead of AdminKey.
	AdminKeyHash string `mapstructure:"admin_key_hash"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// RewardsConfig holds the reward formula constants. The exact numbers are
// operational tuning knobs, so they live in config rather than code.
type RewardsConfig struct {
	HighScoreBonus int64         `mapstructure:"high_score_bonus"`
	StreakStepRate float64       `mapstructure:"streak_step_rate"`
	MultiplierCap  float64       `mapstructure:"multiplier_cap"`
	StreakWindow   time.Duration `mapstructure:"streak_window"`
	// DifficultyStep scales the base reward per difficulty tier above 1.
	DifficultyStep float64 `mapstructure:"difficulty_step"`
	Kind           string  `mapstructure:"kind"`
}

type RaffleConfig struct {
	PayoutAmount int64         `mapstructure:"payout_amount"`
	EntryWindow  time.Duration `mapstructure:"entry_window"`
	// SweepInterval controls how often paid rounds are closed.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type AchievementsConfig struct {
	// Tiers maps tier number N (1-based) to the minimum cumulative score
	// for that tier. Must be ascending; tier 0 is implicit at score 0.
	Tiers []int64 `mapstructure:"tiers"`
}

type EventsConfig struct {
	// DedupTTL bounds the cache fast-path entries for seen source event ids.
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
	// SeenRetention bounds the persisted seen-event set; older rows are pruned.
	SeenRetention time.Duration `mapstructure:"seen_retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	MaxScore      int64         `mapstructure:"max_score"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins restricts websocket origins. Empty permits all
	// origins (development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/engine.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("rewards.high_score_bonus", 20)
	v.SetDefault("rewards.streak_step_rate", 0.1)
	v.SetDefault("rewards.multiplier_cap", 1.0)
	v.SetDefault("rewards.streak_window", "24h")
	v.SetDefault("rewards.difficulty_step", 0.5)
	v.SetDefault("rewards.kind", "points")
	v.SetDefault("raffle.payout_amount", 500)
	v.SetDefault("raffle.entry_window", "168h")
	v.SetDefault("raffle.sweep_interval", "1m")
	v.SetDefault("achievements.tiers", []int64{100, 500, 2000, 10000})
	v.SetDefault("events.dedup_ttl", "24h")
	v.SetDefault("events.seen_retention", "720h")
	v.SetDefault("events.prune_interval", "1h")
	v.SetDefault("events.max_score", 1000000)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
