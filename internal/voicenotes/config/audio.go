package config

import "time"

// AudioConfig содержит настройки циклов выборки записи и воспроизведения.
// Интервалы заданы явно: модель планирования должна оставаться наблюдаемой,
// а не прятаться в реактивных привязках.
type AudioConfig struct {
	RecordPollMs   int `yaml:"record_poll_ms" env:"VOICE_RECORD_POLL_MS" env-default:"200"`
	PlaybackTickMs int `yaml:"playback_tick_ms" env:"VOICE_PLAYBACK_TICK_MS" env-default:"250"`
	SampleRate     int `yaml:"sample_rate" env:"VOICE_SAMPLE_RATE" env-default:"16000"`
}

// GetRecordPollInterval возвращает интервал отчета о длительности записи.
func (a *AudioConfig) GetRecordPollInterval() time.Duration {
	return time.Duration(a.RecordPollMs) * time.Millisecond
}

// GetPlaybackTickInterval возвращает интервал рассылки состояния воспроизведения.
func (a *AudioConfig) GetPlaybackTickInterval() time.Duration {
	return time.Duration(a.PlaybackTickMs) * time.Millisecond
}
