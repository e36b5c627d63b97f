// internal/workers/matching/fit-score-calculation/config.go
package fitscorecalculation

import "time"

type Config struct {
	Timeout      time.Duration
	StoreTimeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      10 * time.Minute,
		StoreTimeout: 10 * time.Second,
	}
}
