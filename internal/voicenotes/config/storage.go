package config

// StorageConfig содержит настройки объектного хранилища аудио.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint" env:"VOICE_STORAGE_ENDPOINT" env-default:"0.0.0.0:9000"`
	PublicURL string `yaml:"public_url" env:"VOICE_STORAGE_PUBLIC_URL" env-default:"http://0.0.0.0:9000"`
	AccessKey string `yaml:"access_key" env:"VOICE_STORAGE_ACCESS_KEY" env-default:"minioadmin"`
	SecretKey string `yaml:"secret_key" env:"VOICE_STORAGE_SECRET_KEY" env-default:"minioadmin"`
	Bucket    string `yaml:"bucket" env:"VOICE_STORAGE_BUCKET" env-default:"voice-notes"`
	UseSSL    bool   `yaml:"use_ssl" env:"VOICE_STORAGE_USE_SSL" env-default:"false"`
}
