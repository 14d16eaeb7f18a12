package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

type Config struct {
	// InstanceID identifies this server process in the connection registry
	// and as a fanout address. Defaults to the hostname.
	InstanceID string `yaml:"instance_id" env:"INSTANCE_ID"`

	DB struct {
		Host            string        `yaml:"host" env:"DB_HOST" validate:"required"`
		Port            int           `yaml:"port" env:"DB_PORT" validate:"required"`
		User            string        `yaml:"user" env:"DB_USER" validate:"required"`
		Pass            string        `yaml:"pass" env:"DB_PASS" validate:"required"`
		DBName          string        `yaml:"dbname" env:"DB_DBNAME" validate:"required"`
		MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" validate:"gte=0"`
		MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" validate:"gte=0"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" validate:"gte=0"`
		Slaves          []string      `yaml:"slaves" env:"DB_SLAVES"`
	} `yaml:"db"`
	Redis struct {
		Host string `yaml:"host" env:"REDIS_HOST" validate:"required"`
		Port int    `yaml:"port" env:"REDIS_PORT" validate:"required"`
		Pass string `yaml:"pass" env:"REDIS_PASS"`
		DB   int    `yaml:"db" env:"REDIS_DB"`
	} `yaml:"redis"`
	RabbitMQ struct {
		Host           string        `yaml:"host" env:"RABBITMQ_HOST" validate:"required"`
		Port           int           `yaml:"port" env:"RABBITMQ_PORT" validate:"required"`
		User           string        `yaml:"user" env:"RABBITMQ_USER" validate:"required"`
		Pass           string        `yaml:"pass" env:"RABBITMQ_PASS" validate:"required"`
		VHost          string        `yaml:"vhost" env:"RABBITMQ_VHOST"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" env:"RABBITMQ_CONNECT_TIMEOUT" validate:"required"`
		Heartbeat      time.Duration `yaml:"heartbeat" env:"RABBITMQ_HEARTBEAT" validate:"required"`
	} `yaml:"rabbitmq"`
	Server struct {
		Addr         string        `yaml:"addr" env:"SERVER_ADDR" validate:"required"`
		ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" validate:"gte=0"`
		WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" validate:"gte=0"`
		IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" validate:"gte=0"`
	} `yaml:"server"`
	Registry struct {
		// HeartbeatTimeout is the registry entry TTL; a connection that stops
		// heartbeating for this long counts as offline.
		HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout" env:"REGISTRY_HEARTBEAT_TIMEOUT" validate:"required"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"REGISTRY_HEARTBEAT_INTERVAL" validate:"required"`
	} `yaml:"registry"`
	Worker struct {
		Lanes         int           `yaml:"lanes" env:"WORKER_LANES" validate:"gte=1"`
		MaxAttempts   int           `yaml:"max_attempts" env:"WORKER_MAX_ATTEMPTS" validate:"gte=1"`
		AckDeadline   time.Duration `yaml:"ack_deadline" env:"WORKER_ACK_DEADLINE" validate:"required"`
		SweepInterval time.Duration `yaml:"sweep_interval" env:"WORKER_SWEEP_INTERVAL" validate:"required"`
	} `yaml:"worker"`
	Retries struct {
		Attempts int     `yaml:"attempts" env:"RETRIES_ATTEMPTS" validate:"gte=1"`
		DelayMs  int     `yaml:"delay_ms" env:"RETRIES_DELAY_MS" validate:"gte=0"`
		Backoff  float64 `yaml:"backoff" env:"RETRIES_BACKOFF" validate:"gte=1"`
	} `yaml:"retries"`
	CacheTTLHours int      `yaml:"cache_ttl_hours" env:"CACHE_TTL_HOURS" validate:"gte=1"`
	Email         Email    `yaml:"email"`
	Telegram      Telegram `yaml:"telegram"`
}

type Email struct {
	SmtpHost string `yaml:"smtp_host" env:"EMAIL_SMTP_HOST"`
	SmtpPort int    `yaml:"smtp_port" env:"EMAIL_SMTP_PORT"`
	User     string `yaml:"user" env:"EMAIL_USER"`
	Pass     string `yaml:"pass" env:"EMAIL_PASS"`
}

type Telegram struct {
	BotToken string `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
}

func MustLoad() (*Config, error) {
	var c Config
	cfg := config.New()
	if err := cfg.LoadConfigFiles("config.yaml"); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Failed to load config.yaml, using env")
	}
	if err := cfg.LoadEnvFiles(".env"); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Failed to load .env")
	}
	if err := cfg.Unmarshal(&c); err != nil {
		return nil, err
	}
	if c.InstanceID == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		c.InstanceID = host
	}
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) DBDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.DBName)
}

func (c *Config) RabbitMQDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.RabbitMQ.User, c.RabbitMQ.Pass, c.RabbitMQ.Host, c.RabbitMQ.Port, c.RabbitMQ.VHost)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) DefaultRetryStrategy() retry.Strategy {
	return retry.Strategy{
		Attempts: c.Retries.Attempts,
		Delay:    time.Duration(c.Retries.DelayMs) * time.Millisecond,
		Backoff:  c.Retries.Backoff,
	}
}
