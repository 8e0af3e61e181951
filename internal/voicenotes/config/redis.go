package config

import "time"

// RedisConfig содержит настройки подключения к Redis для канала рассылки.
type RedisConfig struct {
	Host     string `yaml:"host" env:"VOICE_REDIS_HOST" env-default:"0.0.0.0"`
	Port     int    `yaml:"port" env:"VOICE_REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"VOICE_REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"VOICE_REDIS_DB" env-default:"0"`
	PoolSize int    `yaml:"pool_size" env:"VOICE_REDIS_POOL_SIZE" env-default:"10"`
	Timeout  int    `yaml:"timeout" env:"VOICE_REDIS_TIMEOUT" env-default:"5"`
}

// GetTimeout возвращает timeout как time.Duration.
func (r *RedisConfig) GetTimeout() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}
