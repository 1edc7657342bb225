// Package app assembles the services behind the HTTP API and the CLI.
package app

import (
	"log/slog"
	"time"

	"task-tracker-api/internal/cache"
	"task-tracker-api/internal/clock"
	"task-tracker-api/internal/experiment"
	"task-tracker-api/internal/lifecycle"
	"task-tracker-api/internal/misscount"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/policy"
	"task-tracker-api/internal/realtime"
	"task-tracker-api/internal/sweep"
	"task-tracker-api/internal/tasks"
	"task-tracker-api/internal/tracking"

	"gorm.io/gorm"
)

type Options struct {
	ParamsTTL     time.Duration
	MissCountTTL  time.Duration
	SweepInterval time.Duration
	Location      *time.Location
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Services is the wired object graph. Every service shares one clock, one
// parameter registry and one hub.
type Services struct {
	DB          *gorm.DB
	Store       cache.Store
	Registry    *params.Registry
	ParamsAdmin *params.Service
	Assigner    *experiment.Assigner
	Recorder    *tracking.Recorder
	Sessions    *tracking.Sessions
	Lifecycle   *lifecycle.Service
	Tasks       *tasks.Service
	MissCount   *misscount.Counter
	Trigger     *policy.TriggerService
	Sweeper     *sweep.Sweeper
	Scheduler   *sweep.Scheduler
	Hub         *realtime.Hub
	Location    *time.Location
	Logger      *slog.Logger
}

func New(db *gorm.DB, store cache.Store, opts Options) *Services {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if store == nil {
		store = cache.NopStore{}
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	now := opts.Clock.Now
	log := opts.Logger

	registry := params.NewRegistry(db, params.RegistryOptions{
		TTL:    opts.ParamsTTL,
		Now:    now,
		Logger: log.With("component", "params"),
	})
	hub := realtime.NewHub()
	assigner := experiment.NewAssigner(registry, now, log.With("component", "experiment"))
	recorder := tracking.NewRecorder(db, assigner, now, log.With("component", "tracking"))
	counter := misscount.NewCounter(db, store, opts.MissCountTTL, log.With("component", "misscount"))
	lc := lifecycle.NewService(db, registry, lifecycle.Options{
		Counts:    counter,
		Recorder:  recorder,
		Publisher: hub,
		Now:       now,
		Logger:    log.With("component", "lifecycle"),
	})
	purger, _ := store.(cache.Purger)
	sweeper := sweep.NewSweeper(db, registry, sweep.Options{
		Counts:    counter,
		Publisher: hub,
		Purger:    purger,
		Now:       now,
		Logger:    log.With("component", "sweep"),
	})

	return &Services{
		DB:          db,
		Store:       store,
		Registry:    registry,
		ParamsAdmin: params.NewService(db, registry),
		Assigner:    assigner,
		Recorder:    recorder,
		Sessions:    tracking.NewSessions(recorder, registry),
		Lifecycle:   lc,
		Tasks:       tasks.NewService(db, tasks.Deps{
			Params:    registry,
			Assigner:  assigner,
			Recorder:  recorder,
			Lifecycle: lc,
			Counts:    counter,
			Publisher: hub,
			Now:       now,
			Location:  opts.Location,
			Logger:    log.With("component", "tasks"),
		}),
		MissCount: counter,
		Trigger:   policy.NewTriggerService(db, counter, assigner, registry, log.With("component", "trigger")),
		Sweeper:   sweeper,
		Scheduler: sweep.NewScheduler(sweeper, opts.SweepInterval, log.With("component", "scheduler")),
		Hub:       hub,
		Location:  opts.Location,
		Logger:    log,
	}
}
