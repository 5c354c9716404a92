// SPDX-License-Identifier: MIT

// Package config holds the simulator's runtime knobs, loaded from the
// environment with sane defaults.
package config

import "time"

// Config is the full set of runtime knobs for a simulation run.
type Config struct {
	// Timing and movement.
	UpdateInterval     time.Duration // wall-clock duration of one tick
	NominalMaxSpeedMPS float64       // top speed used by the route integrator

	// Battery model. Drain values are applied once per tick, not scaled by
	// elapsed time.
	MinBattery          float64
	LowBatteryThreshold float64
	BatteryFull         float64
	BatteryDrainIdle    float64
	BatteryDrainActive  float64
	ChargeRatePerMin    float64

	// Endpoints.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	BackendBaseURL string
	OpsListenAddr  string

	// Scenario.
	ScenarioPath string

	// Logging.
	LogLevel string
}

// FromEnv builds a Config from environment variables, falling back to the
// built-in defaults.
func FromEnv() Config {
	return Config{
		UpdateInterval:     ParseDuration("SCOOTSIM_UPDATE_INTERVAL", 5*time.Second),
		NominalMaxSpeedMPS: ParseFloat("SCOOTSIM_NOMINAL_MAX_SPEED_MPS", 5.42), // ~19.5 km/h

		MinBattery:          ParseFloat("SCOOTSIM_MIN_BATTERY", 5),
		LowBatteryThreshold: ParseFloat("SCOOTSIM_LOW_BATTERY_THRESHOLD", 20),
		BatteryFull:         ParseFloat("SCOOTSIM_BATTERY_FULL", 100),
		BatteryDrainIdle:    ParseFloat("SCOOTSIM_BATTERY_DRAIN_IDLE", 0.01),
		BatteryDrainActive:  ParseFloat("SCOOTSIM_BATTERY_DRAIN_ACTIVE", 0.025),
		ChargeRatePerMin:    ParseFloat("SCOOTSIM_CHARGE_RATE_PER_MIN", 3.0),

		RedisAddr:      ParseString("SCOOTSIM_REDIS_ADDR", "redis:6379"),
		RedisPassword:  ParseString("SCOOTSIM_REDIS_PASSWORD", ""),
		RedisDB:        ParseInt("SCOOTSIM_REDIS_DB", 0),
		BackendBaseURL: ParseString("SCOOTSIM_BACKEND_URL", "http://system:3000/api/v1"),
		OpsListenAddr:  ParseString("SCOOTSIM_OPS_ADDR", ":9464"),

		ScenarioPath: ParseString("SCOOTSIM_SCENARIO", ""),

		LogLevel: ParseString("LOG_LEVEL", "info"),
	}
}
