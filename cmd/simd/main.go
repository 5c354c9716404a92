// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/velomob/scootsim/internal/backend"
	"github.com/velomob/scootsim/internal/config"
	"github.com/velomob/scootsim/internal/listener"
	sslog "github.com/velomob/scootsim/internal/log"
	"github.com/velomob/scootsim/internal/ops"
	"github.com/velomob/scootsim/internal/scenario"
	"github.com/velomob/scootsim/internal/scooter"
	"github.com/velomob/scootsim/internal/sim"
	"github.com/velomob/scootsim/internal/telemetry"
	"github.com/velomob/scootsim/internal/zone"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	scenarioPath := flag.String("scenario", "", "path to scenario file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.FromEnv()
	if *scenarioPath != "" {
		cfg.ScenarioPath = *scenarioPath
	}

	runID := uuid.NewString()
	sslog.Configure(sslog.Config{
		Level:   cfg.LogLevel,
		Service: "scootsim",
		RunID:   runID,
	})
	logger := sslog.WithComponent("simd")

	logger.Info().
		Str("event", "simd.starting").
		Str("version", version).
		Str("scenario", cfg.ScenarioPath).
		Msg("simulator starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Str("event", "simd.failed").Msg("simulator exited with error")
	}
	logger.Info().Str("event", "simd.stopped").Msg("simulator stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	scn, err := scenario.Load(cfg.ScenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}

	be := backend.New(cfg.BackendBaseURL, sslog.WithComponent("backend"))
	if err := be.WaitReady(ctx, 2*time.Minute, 3*time.Second); err != nil {
		return fmt.Errorf("backend: %w", err)
	}

	defs, err := be.FetchZones(ctx, scn.City)
	if err != nil {
		if errors.Is(err, backend.ErrCityNotFound) {
			return fmt.Errorf("city %q is not provisioned on the backend: %w", scn.City, err)
		}
		return fmt.Errorf("fetch zones: %w", err)
	}
	city := zone.NewCity(scn.City, defs, sslog.WithComponent("zone"))

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Str("event", "simd.redis_connected").Msg("connected to redis")

	broadcaster := telemetry.NewBroadcaster(rdb, sslog.WithComponent("telemetry"))

	simulator := sim.New(sim.Deps{
		City:      city,
		Telemetry: broadcaster,
		Backend:   be,
		Logger:    sslog.WithComponent("sim"),
	}, sim.Options{
		UpdateInterval:     cfg.UpdateInterval,
		NominalMaxSpeedMPS: cfg.NominalMaxSpeedMPS,
		ScooterParams: scooter.Params{
			MinBattery:          cfg.MinBattery,
			LowBatteryThreshold: cfg.LowBatteryThreshold,
			BatteryFull:         cfg.BatteryFull,
			BatteryDrainIdle:    cfg.BatteryDrainIdle,
			BatteryDrainActive:  cfg.BatteryDrainActive,
			ChargeRatePerMin:    cfg.ChargeRatePerMin,
		},
	})

	seedFleet(ctx, simulator, scn, be, logger)

	adminL := listener.NewAdminListener(rdb, simulator.Intake(), sslog.WithComponent("listener.admin"))
	rentalL := listener.NewRentalListener(rdb, simulator.Intake(), sslog.WithComponent("listener.rental"))
	opsSrv := ops.New(cfg.OpsListenAddr, version, sslog.WithComponent("ops"), ops.NewRedisChecker(rdb))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return adminL.Run(ctx) })
	g.Go(func() error { return rentalL.Run(ctx) })
	g.Go(func() error { return opsSrv.Run(ctx) })
	g.Go(func() error { return simulator.Run(ctx) })
	return g.Wait()
}

// seedFleet registers the scenario's fleet: user pool, routes, riding
// batches and parked scooters.
func seedFleet(ctx context.Context, simulator *sim.Simulator, scn *scenario.Scenario, be *backend.Client, logger zerolog.Logger) {
	users := be.FetchUsers(ctx)
	filtered := users[:0:0]
	for _, u := range users {
		if scn.Users.MinID > 0 && u.ID < scn.Users.MinID {
			continue
		}
		if scn.Users.MaxID > 0 && u.ID > scn.Users.MaxID {
			continue
		}
		filtered = append(filtered, u)
	}
	if scn.Users.MaxUsers > 0 && len(filtered) > scn.Users.MaxUsers {
		filtered = filtered[:scn.Users.MaxUsers]
	}
	simulator.SetUserPool(sim.NewUserPool(filtered, scn.Seed))
	logger.Info().Int("users", len(filtered)).Str("event", "simd.users_pooled").Msg("rental user pool ready")

	for _, r := range scn.Routes {
		simulator.AddRoute(r.ID, r.Points())
	}

	nextID := 1
	for _, b := range scn.Batches {
		batch := sim.SeedBatch{
			RouteID: b.RouteID,
			Count:   b.Count,
			Battery: b.Battery,
		}
		switch {
		case b.ParkAfterTrips > 0:
			trips, z := b.ParkAfterTrips, b.ParkZone
			batch.Hook = func() sim.ScenarioHook {
				return &sim.ParkNearestZoneHook{RequiredTrips: trips, Zone: z}
			}
		case b.BreakdownAfter > 0:
			runtime := b.BreakdownAfter.Std()
			batch.Hook = func() sim.ScenarioHook {
				return &sim.BreakdownHook{MaxRuntime: runtime}
			}
		}
		nextID = simulator.SeedRouteBatch(ctx, nextID, batch)
	}

	for _, st := range scn.Stationary {
		nextID = simulator.SeedStationary(ctx, nextID, st.Zone, st.Count, st.Battery, scn.Seed+int64(nextID))
	}

	logger.Info().
		Int("scooters", nextID-1).
		Str("event", "simd.fleet_seeded").
		Msg("fleet seeded")
}
