// internal/workers/matching/cv-processing/config.go
package cvprocessing

import "time"

type Config struct {
	// Timeout budgets the AI calls of one job.
	Timeout       time.Duration
	StoreTimeout  time.Duration
	MaxTextLength int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       5 * time.Minute,
		StoreTimeout:  10 * time.Second,
		MaxTextLength: 20000,
	}
}
