package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Realtime      ServerConfig        `mapstructure:"realtime"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MySQL         MySQLConfig         `mapstructure:"mysql"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Leader        LeaderConfig        `mapstructure:"leader"`
	Instance      InstanceConfig      `mapstructure:"instance"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Ranking       RankingConfig       `mapstructure:"ranking"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// StorageConfig selects the store backend: "mysql" or "memory" (single process, no durability).
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type LeaderConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	Key     string        `mapstructure:"key"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type SchedulerConfig struct {
	Spec             string        `mapstructure:"spec"`
	Workers          int           `mapstructure:"workers"`
	SweepTimeout     time.Duration `mapstructure:"sweep_timeout"`
	EndingSoonWindow time.Duration `mapstructure:"ending_soon_window"`
}

type NotificationsConfig struct {
	Channel       string        `mapstructure:"channel"`
	Workers       int           `mapstructure:"workers"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

type RankingConfig struct {
	PriceWeight      float64       `mapstructure:"price_weight"`
	DeliveryWeight   float64       `mapstructure:"delivery_weight"`
	ReputationWeight float64       `mapstructure:"reputation_weight"`
	DeliveryScale    float64       `mapstructure:"delivery_scale"`
	DeliveryBonus    float64       `mapstructure:"delivery_bonus"`
	MaxReputation    float64       `mapstructure:"max_reputation"`
	ReputationTTL    time.Duration `mapstructure:"reputation_ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("realtime.port", 8081)
	v.SetDefault("realtime.host", "0.0.0.0")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "market_user:market_pass@tcp(localhost:3306)/market_db?parseTime=true&clientFoundRows=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.migrate_on_start", true)
	v.SetDefault("storage.driver", "mysql")
	v.SetDefault("leader.enabled", true)
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("leader.key", "auction_scheduler_leader")
	v.SetDefault("instance.id", "auction-service-1")
	v.SetDefault("scheduler.spec", "@every 30s")
	v.SetDefault("scheduler.workers", 8)
	v.SetDefault("scheduler.sweep_timeout", 25*time.Second)
	v.SetDefault("scheduler.ending_soon_window", time.Hour)
	v.SetDefault("notifications.channel", "auction_notifications")
	v.SetDefault("notifications.workers", 16)
	v.SetDefault("notifications.timeout", 20*time.Second)
	v.SetDefault("notifications.rate_per_second", 200.0)
	v.SetDefault("notifications.burst", 50)
	v.SetDefault("ranking.price_weight", 0.4)
	v.SetDefault("ranking.delivery_weight", 0.4)
	v.SetDefault("ranking.reputation_weight", 0.2)
	v.SetDefault("ranking.delivery_scale", 15.0)
	v.SetDefault("ranking.delivery_bonus", 0.1)
	v.SetDefault("ranking.max_reputation", 5.0)
	v.SetDefault("ranking.reputation_ttl", 5*time.Minute)
	v.SetDefault("log.level", "info")
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()

	bindings := map[string]string{
		"server.port":                   "SERVER_PORT",
		"server.host":                   "SERVER_HOST",
		"realtime.port":                 "REALTIME_PORT",
		"realtime.host":                 "REALTIME_HOST",
		"redis.address":                 "REDIS_ADDRESS",
		"redis.password":                "REDIS_PASSWORD",
		"redis.db":                      "REDIS_DB",
		"mysql.dsn":                     "MYSQL_DSN",
		"mysql.max_open_conns":          "MYSQL_MAX_OPEN_CONNS",
		"mysql.max_idle_conns":          "MYSQL_MAX_IDLE_CONNS",
		"mysql.conn_max_lifetime":       "MYSQL_CONN_MAX_LIFETIME",
		"mysql.migrate_on_start":        "MYSQL_MIGRATE_ON_START",
		"storage.driver":                "STORAGE_DRIVER",
		"leader.enabled":                "LEADER_ENABLED",
		"leader.ttl":                    "LEADER_TTL",
		"leader.key":                    "LEADER_KEY",
		"instance.id":                   "INSTANCE_ID",
		"scheduler.spec":                "SCHEDULER_SPEC",
		"scheduler.workers":             "SCHEDULER_WORKERS",
		"scheduler.sweep_timeout":       "SCHEDULER_SWEEP_TIMEOUT",
		"scheduler.ending_soon_window":  "SCHEDULER_ENDING_SOON_WINDOW",
		"notifications.channel":         "NOTIFICATIONS_CHANNEL",
		"notifications.workers":         "NOTIFICATIONS_WORKERS",
		"notifications.timeout":         "NOTIFICATIONS_TIMEOUT",
		"notifications.rate_per_second": "NOTIFICATIONS_RATE_PER_SECOND",
		"notifications.burst":           "NOTIFICATIONS_BURST",
		"ranking.reputation_ttl":        "RANKING_REPUTATION_TTL",
		"log.level":                     "LOG_LEVEL",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

// Load reads an optional .env file, then defaults, config.yaml and environment variables.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/freelance-market/")

	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("config: scheduler.workers must be positive, got %d", c.Scheduler.Workers)
	}
	if c.Notifications.Workers <= 0 {
		return fmt.Errorf("config: notifications.workers must be positive, got %d", c.Notifications.Workers)
	}
	if c.Scheduler.SweepTimeout <= 0 {
		return fmt.Errorf("config: scheduler.sweep_timeout must be positive")
	}
	if c.Ranking.DeliveryScale <= 0 || c.Ranking.MaxReputation <= 0 {
		return fmt.Errorf("config: ranking.delivery_scale and ranking.max_reputation must be positive")
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Realtime: %s:%d, Redis: %s, Storage: %s, Scheduler: %s, Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Realtime.Host,
		c.Realtime.Port,
		c.Redis.Address,
		c.Storage.Driver,
		c.Scheduler.Spec,
		c.Instance.ID,
	)
}
