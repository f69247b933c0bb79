package config

import "time"

type Config struct {
	TranscriptPollInterval  time.Duration
	TranscriptPollAttempts  int
	StaleResultWindow       time.Duration
	SweepInterval           time.Duration
	BalanceSnapshotInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		TranscriptPollInterval:  2 * time.Second,
		TranscriptPollAttempts:  45,
		StaleResultWindow:       10 * time.Minute,
		SweepInterval:           1 * time.Minute,
		BalanceSnapshotInterval: 30 * time.Second,
	}
}
