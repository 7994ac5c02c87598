// Package app assembles the alarm core shared by the bot and MCP binaries.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hray3182/NoteAlarm/internal/alarm"
	"github.com/hray3182/NoteAlarm/internal/cache"
	"github.com/hray3182/NoteAlarm/internal/config"
	"github.com/hray3182/NoteAlarm/internal/database"
	"github.com/hray3182/NoteAlarm/internal/repository"
	"github.com/hray3182/NoteAlarm/internal/scheduler"
	"github.com/hray3182/NoteAlarm/internal/store"
)

// Core owns the persistence and scheduling pieces of one alarm host. Only
// one host should run against a database at a time, since the facility is
// in-process.
type Core struct {
	cfg      *config.Config
	DB       *database.DB
	Cache    *cache.Cache
	Repo     *repository.ReminderRepository
	Store    *store.Store
	Local    *scheduler.Local
	Gate     *scheduler.Gate
	Registry *alarm.Registry
}

// Open connects to the database, applies migrations and opens the cache.
func Open(ctx context.Context, cfg *config.Config) (*Core, error) {
	perm, err := scheduler.ParsePermission(cfg.Scheduler.Permission)
	if err != nil {
		return nil, err
	}

	db, err := database.New(ctx, cfg.Database.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Connected to database")

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Println("Database migrations completed")

	c, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	repo := repository.NewReminderRepository(db)
	local := scheduler.NewLocal(
		scheduler.WithMaxWait(cfg.TickInterval()),
		scheduler.WithPermission(perm),
	)

	return &Core{
		cfg:      cfg,
		DB:       db,
		Cache:    c,
		Repo:     repo,
		Store:    store.New(repo, c),
		Local:    local,
		Gate:     scheduler.NewGate(local),
		Registry: alarm.NewRegistry(),
	}, nil
}

// Controller builds the lifecycle controller that presents alarms on surface
// and shows times in loc.
func (c *Core) Controller(surface alarm.Surface, loc *time.Location) *alarm.Controller {
	return alarm.NewController(c.Store, c.Local, c.Gate, c.Registry, surface, alarm.WithLocation(loc))
}

// Run starts the delivery loop and the reconciler. Both stop with ctx.
func (c *Core) Run(ctx context.Context, ctrl *alarm.Controller) {
	go c.Local.Start(ctx, ctrl.Deliver)
	go alarm.NewReconciler(c.Repo, c.Store, ctrl, c.cfg.ReconcileInterval()).Run(ctx)
}

func (c *Core) Close() {
	if err := c.Cache.Close(); err != nil {
		log.Printf("[app] failed to close cache: %v", err)
	}
	c.DB.Close()
}
