package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel string   `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort string   `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	Redis    Redis    `yaml:"redis"`
	Presence Presence `yaml:"presence"`
	AI       AI       `yaml:"ai"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

// Presence tunes the roster heartbeat. A member missing TTL worth of heartbeats drops out of the roster.
type Presence struct {
	Heartbeat time.Duration `yaml:"heartbeat" env:"PRESENCE_HEARTBEAT" env-default:"2s"`
	TTL       time.Duration `yaml:"ttl" env:"PRESENCE_TTL" env-default:"6s"`
}

type AI struct {
	Difficulty string        `yaml:"difficulty" env:"AI_DIFFICULTY" env-default:"impossible"`
	ThinkDelay time.Duration `yaml:"think-delay" env:"AI_THINK_DELAY" env-default:"600ms"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
