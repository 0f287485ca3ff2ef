package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Game     GameConfig     `mapstructure:"game"`
	Security SecurityConfig `mapstructure:"security"`
	Sync     SyncConfig     `mapstructure:"sync"`
}

type ServerConfig struct {
	Port     int      `mapstructure:"port"`
	Debug    bool     `mapstructure:"debug"`
	AdminKey string   `mapstructure:"admin_key"`
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
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

// GameConfig tunes the progression, gacha and capture engines.
type GameConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`

	MaxStamina      int `mapstructure:"max_stamina"`
	StaminaRegenS   int `mapstructure:"stamina_regen_s"`
	LoginBonusCoins int `mapstructure:"login_bonus_coins"`
	VIPBonusFactor  int `mapstructure:"vip_bonus_factor"`

	SRGuarantee  int `mapstructure:"sr_guarantee"`
	SSRGuarantee int `mapstructure:"ssr_guarantee"`
	MaxStack     int `mapstructure:"max_stack"`

	ActivePoolSize   int `mapstructure:"active_pool_size"`
	QuestionsPerRun  int `mapstructure:"questions_per_run"`
	OptionsPerAnswer int `mapstructure:"options_per_answer"`

	DailyLimits    map[string]int `mapstructure:"daily_limits"`
	VIPDailyLimits map[string]int `mapstructure:"vip_daily_limits"` // 0 = unlimited
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// SyncConfig controls the best-effort remote mirror.
type SyncConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	HistoryFetch   int           `mapstructure:"history_fetch"`
	WriteQueueSize int           `mapstructure:"write_queue_size"`
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
	v.SetDefault("database.sqlite_path", "./data/progress.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("game.catalog_path", "./data/catalog.yaml")
	v.SetDefault("game.max_stamina", 100)
	v.SetDefault("game.stamina_regen_s", 180)
	v.SetDefault("game.login_bonus_coins", 50)
	v.SetDefault("game.vip_bonus_factor", 2)
	v.SetDefault("game.sr_guarantee", 10)
	v.SetDefault("game.ssr_guarantee", 100)
	v.SetDefault("game.max_stack", 99)
	v.SetDefault("game.active_pool_size", 21)
	v.SetDefault("game.questions_per_run", 7)
	v.SetDefault("game.options_per_answer", 4)
	v.SetDefault("game.daily_limits", map[string]int{
		"scan": 3, "quiz": 5, "lecture": 3, "translation": 5,
	})
	v.SetDefault("game.vip_daily_limits", map[string]int{
		"scan": 20, "quiz": 0, "lecture": 0, "translation": 0,
	})
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.flush_interval", "30s")
	v.SetDefault("sync.history_fetch", 30)
	v.SetDefault("sync.write_queue_size", 1024)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
