package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/hearthside/leadscore/internal/bucket"
	"github.com/hearthside/leadscore/internal/config"
	"github.com/hearthside/leadscore/internal/pkg/logger"
	"github.com/hearthside/leadscore/internal/pkg/runlock"
	"github.com/hearthside/leadscore/internal/run"
	"github.com/hearthside/leadscore/internal/scoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single scoring pass and exit (cron mode)")
	flag.Parse()

	log := logger.New()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.Database.URL == "" {
		log.Fatal().Msg("database url is required (config or DATABASE_URL)")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}

	var redisClient *redis.Client
	var cache *run.Cache
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		cache = run.NewCache(redisClient, cfg.Redis.CacheTTL())
	}

	store := run.NewStore(db)
	lock := runlock.New(redisClient, db, "scoring-run", 2*time.Hour)
	orch := run.New(store, store, lock, cache, log, run.Config{
		Workers:    cfg.Scoring.Workers,
		JitterDays: cfg.Scoring.JitterDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	execute := func() {
		weights, err := scoring.LoadWeights(cfg.Scoring.WeightsPath)
		if err != nil {
			log.Error().Err(err).Msg("weights rejected; run not started")
			return
		}
		defs, err := loadDefs(cfg.Scoring.BucketsPath)
		if err != nil {
			log.Error().Err(err).Msg("bucket definitions rejected; run not started")
			return
		}
		if _, err := orch.Execute(ctx, weights, defs); err != nil {
			if errors.Is(err, run.ErrRunInProgress) {
				log.Warn().Msg("previous run still in flight; skipping")
				return
			}
			log.Error().Err(err).Msg("scoring run failed")
		}
	}

	if *once {
		execute()
		return
	}

	log.Info().Dur("interval", cfg.Scheduler.Interval()).Msg("scorer started")
	execute()

	ticker := time.NewTicker(cfg.Scheduler.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case <-ticker.C:
			execute()
		}
	}
}

func loadDefs(path string) ([]bucket.Definition, error) {
	if path == "" {
		return bucket.DefaultDefinitions(), nil
	}
	return bucket.LoadDefinitions(path)
}
