// Ininicializing common application configuration
package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Tariff   TariffConfig   `mapstructure:"tariff"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	AppVersion     string        `mapstructure:"app_version"`
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	LogLevel       string        `mapstructure:"log_level"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres | memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`

	// Настройки пула соединений
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

type RabbitMQConfig struct {
	URL       string `mapstructure:"url"`
	QueueName string `mapstructure:"queue_name"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type StatsConfig struct {
	Heartbeat           time.Duration `mapstructure:"heartbeat"`
	InactivityThreshold time.Duration `mapstructure:"inactivity_threshold"`
	ThrottledInterval   time.Duration `mapstructure:"throttled_interval"`
}

type TariffConfig struct {
	DayRate      float64 `mapstructure:"day_rate"`
	NightRate    float64 `mapstructure:"night_rate"`
	NightStart   int     `mapstructure:"night_start"` // час, 0-23
	NightEnd     int     `mapstructure:"night_end"`
	ExchangeRate float64 `mapstructure:"exchange_rate"`
}

type WorkerConfig struct {
	AmountRefreshInterval time.Duration `mapstructure:"amount_refresh_interval"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads config/config.yaml (or the file at path) and lets
// PARKING_* environment variables override any key.
func LoadConfig(path ...string) (*viper.Viper, error) {

	viperInstance := viper.New()
	setDefaults(viperInstance)

	if len(path) > 0 && path[0] != "" {
		viperInstance.SetConfigFile(path[0])
	} else {
		viperInstance.AddConfigPath("./config")
		viperInstance.SetConfigName("config")
		viperInstance.SetConfigType("yaml")
	}

	viperInstance.SetEnvPrefix("PARKING")
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	err := viperInstance.ReadInConfig()

	if err != nil {
		return nil, err
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		log.Printf("unable to decode config into struct, %v", err)
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.prefix", "parking")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("rabbitmq.queue_name", "parking.push")

	v.SetDefault("stats.heartbeat", 30*time.Second)
	v.SetDefault("stats.inactivity_threshold", 5*time.Minute)
	v.SetDefault("stats.throttled_interval", 2*time.Minute)

	v.SetDefault("tariff.day_rate", 3.0)
	v.SetDefault("tariff.night_rate", 4.0)
	v.SetDefault("tariff.night_start", 0)
	v.SetDefault("tariff.night_end", 6)
	v.SetDefault("tariff.exchange_rate", 36.0)

	v.SetDefault("worker.amount_refresh_interval", 5*time.Minute)
	v.SetDefault("metrics.enabled", true)
}
