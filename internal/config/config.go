package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Store struct {
		Driver string `env:"DRIVER" envDefault:"postgres"` // postgres、sqlite 或 mongo
	} `envPrefix:"STORE_"`
	Database struct {
		DSN            string `env:"DSN"`
		ConnectTimeout int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout   int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		MaxOpenConns   int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns   int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime    int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	Mongo struct {
		URI            string `env:"URI" envDefault:"mongodb://localhost:27017"`
		Database       string `env:"DATABASE" envDefault:"date_poll"`
		Collection     string `env:"COLLECTION" envDefault:"availability"`
		ConnectTimeout int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout   int    `env:"QUERY_TIMEOUT" envDefault:"10"`
	} `envPrefix:"MONGO_"`
	Redis struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		Host           string `env:"HOST" envDefault:"localhost"`
		Port           int    `env:"PORT" envDefault:"6379"`
		Password       string `env:"PASSWORD"`
		ConnectTimeout int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		RangeTTL       int    `env:"RANGE_TTL" envDefault:"30"`
	} `envPrefix:"REDIS_"`
	RabbitMQ struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		DSN            string `env:"DSN"`
		Exchange       string `env:"EXCHANGE" envDefault:"availability_changes"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Session struct {
		CookieName string `env:"COOKIE_NAME" envDefault:"__qunqun_date_poll_session"`
		Expiration int    `env:"EXPIRATION" envDefault:"2592000"` // 30 天
		Secret     string `env:"SECRET,required,notEmpty"`
	} `envPrefix:"SESSION_"`
	Commit struct {
		Concurrency int `env:"CONCURRENCY" envDefault:"16"` // 0 表示不限制
		MaxDates    int `env:"MAX_DATES" envDefault:"366"`  // 一次提交最多包含的日期数，0 表示不限制
	} `envPrefix:"COMMIT_"`
	Seed struct {
		Density float64 `env:"DENSITY" envDefault:"0.6"`
	} `envPrefix:"SEED_"`
}

var ErrUnknownStoreDriver = errors.New("未知的存储驱动")

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok {
			// 只返回第一个错误使得日志更清晰
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}

	switch cfg.Store.Driver {
	case "postgres", "sqlite", "mongo":
	default:
		return nil, ErrUnknownStoreDriver
	}

	return cfg, nil
}
