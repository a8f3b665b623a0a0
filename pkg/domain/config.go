package domain

import "time"

// Config is the flat set of tunables enumerated in spec §6. Every field
// has a default (see DefaultConfig); profileLevel = -1 is a sentinel
// meaning "do not reconfigure the source" (spec §9).
type Config struct {
	SampleSize                int
	SampleSpeed               time.Duration
	CardinalityUpdateInterval time.Duration

	MinimumCardinality int64
	MinimumReduction   float64
	IndexExtension     bool
	LongestIndexable   int

	RecentQueriesOnlyDays int
	MinimumQueryCount     int64

	IndexSynchronizationInterval time.Duration
	ProfileLevel                 int
	DoChanges                    bool
	ShowChangesOnly              bool

	Simple  bool
	Verbose bool
	Debug   bool
}

// DefaultConfig returns the option defaults listed in spec §6.
func DefaultConfig() Config {
	return Config{
		SampleSize:                   100_000,
		SampleSpeed:                  600 * time.Second,
		CardinalityUpdateInterval:    30 * 24 * time.Hour,
		MinimumCardinality:           3,
		MinimumReduction:             0.70,
		IndexExtension:               true,
		LongestIndexable:             500,
		RecentQueriesOnlyDays:        -1,
		MinimumQueryCount:            1,
		IndexSynchronizationInterval: 60 * time.Second,
		ProfileLevel:                 2,
		DoChanges:                    false,
		ShowChangesOnly:              false,
	}
}

// CollectionSampleSize is the sample size used for collection (field)
// statistics: sampleSize/10 (spec §4.3).
func (c Config) CollectionSampleSize() int {
	return c.SampleSize / 10
}

// IndexSampleSize is the sample size used for index prefix statistics:
// sampleSize (spec §4.3).
func (c Config) IndexSampleSize() int {
	return c.SampleSize
}
