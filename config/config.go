// Ininicializing common application configuration
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Booking    BookingConfig    `mapstructure:"booking"`
	Commission CommissionConfig `mapstructure:"commission"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Review     ReviewConfig     `mapstructure:"review"`
	Discount   DiscountConfig   `mapstructure:"discount"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

type ServerConfig struct {
	AppVersion     string        `mapstructure:"app_version"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Timeout        time.Duration `mapstructure:"timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Env            string        `mapstructure:"environment"`
	Mode           string        `mapstructure:"mode"`
}

type DatabaseConfig struct {
	// postgres or memory
	Driver          string        `mapstructure:"driver"`
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
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Настройки пула соединений
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`

	QueuePrefix string `mapstructure:"queue_prefix"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	Enabled  bool   `mapstructure:"enabled"`
}

type BookingConfig struct {
	ResponseWindow time.Duration `mapstructure:"response_window"`
}

type CommissionConfig struct {
	Deadline        time.Duration      `mapstructure:"deadline"`
	ReminderAfter   time.Duration      `mapstructure:"reminder_after"`
	UrgentAfter     time.Duration      `mapstructure:"urgent_after"`
	FinalAfter      time.Duration      `mapstructure:"final_after"` // 0 = deadline - 30m
	Rates           map[string]float64 `mapstructure:"rates"`
	ReactivationFee int64              `mapstructure:"reactivation_fee"`
}

type ChatConfig struct {
	WarningThreshold  int `mapstructure:"warning_threshold"`
	RestrictThreshold int `mapstructure:"restrict_threshold"`
	MaxMessageLength  int `mapstructure:"max_message_length"`
}

type ReviewConfig struct {
	LinkSecret  string        `mapstructure:"link_secret"`
	LinkTTL     time.Duration `mapstructure:"link_ttl"`
	BaseURL     string        `mapstructure:"base_url"`
	MaxTextSize int           `mapstructure:"max_text_size"`
}

type DiscountConfig struct {
	MaxPercentage int `mapstructure:"max_percentage"`
	MaxValidDays  int `mapstructure:"max_valid_days"`
}

type WorkerConfig struct {
	ExpiryInterval     time.Duration `mapstructure:"expiry_interval"`
	CommissionInterval time.Duration `mapstructure:"commission_interval"`
	BatchSize          int           `mapstructure:"batch_size"`
}

func LoadConfig() (*viper.Viper, error) {

	viperInstance := viper.New()

	viperInstance.AddConfigPath("./config")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	viperInstance.SetEnvPrefix("SPA")
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	setDefaults(viperInstance)

	err := viperInstance.ReadInConfig()

	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetServerAddress возвращает адрес для http.Server
func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// setDefaults устанавливает значения по умолчанию
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.mode", "debug")

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "spa_user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "spa_booking")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_timeout", 4*time.Second)
	v.SetDefault("redis.queue_prefix", "spa_booking")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)

	// Booking defaults
	v.SetDefault("booking.response_window", 30*time.Minute)

	// Commission defaults
	v.SetDefault("commission.deadline", 5*time.Hour)
	v.SetDefault("commission.reminder_after", 2*time.Hour)
	v.SetDefault("commission.urgent_after", 150*time.Minute)
	v.SetDefault("commission.final_after", time.Duration(0))
	v.SetDefault("commission.rates", map[string]float64{"pro": 0.30, "plus": 0})
	v.SetDefault("commission.reactivation_fee", 25000)

	// Chat defaults
	v.SetDefault("chat.warning_threshold", 3)
	v.SetDefault("chat.restrict_threshold", 5)
	v.SetDefault("chat.max_message_length", 2000)

	// Review defaults
	v.SetDefault("review.link_secret", "change-me-review-link-secret")
	v.SetDefault("review.link_ttl", 7*24*time.Hour)
	v.SetDefault("review.base_url", "http://localhost:3000")
	v.SetDefault("review.max_text_size", 1000)

	// Discount defaults
	v.SetDefault("discount.max_percentage", 100)
	v.SetDefault("discount.max_valid_days", 365)

	// Worker defaults
	v.SetDefault("worker.expiry_interval", time.Minute)
	v.SetDefault("worker.commission_interval", time.Minute)
	v.SetDefault("worker.batch_size", 100)
}
