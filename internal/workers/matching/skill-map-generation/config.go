// internal/workers/matching/skill-map-generation/config.go
package skillmapgeneration

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 5 * time.Minute,
	}
}
