package config

import (
	"fmt"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// positiveDuration reads key as a duration that must be greater than zero.
func positiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

// nonNegativeFloat reads key as a float that must not be negative.
func nonNegativeFloat(key, fallback string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, fallback), 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative number", key)
	}
	return f, nil
}
