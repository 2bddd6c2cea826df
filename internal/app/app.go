package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"currency-rate-alerts/internal/alerts"
	"currency-rate-alerts/internal/broadcast"
	"currency-rate-alerts/internal/config"
	"currency-rate-alerts/internal/conversation"
	"currency-rate-alerts/internal/dispatch"
	"currency-rate-alerts/internal/fetcher"
	"currency-rate-alerts/internal/monitor"
	"currency-rate-alerts/internal/scheduler"
	"currency-rate-alerts/internal/storage"
	"currency-rate-alerts/internal/telegram"
)

// inactiveAlertRetention is how long soft-deleted alerts are kept before
// the maintenance sweep hard-deletes them.
const inactiveAlertRetention = 90 * 24 * time.Hour

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// Runtime bundles the wired components. The conversation controller and
// alert service are exported for the embedding command layer.
type Runtime struct {
	Store        *storage.Store
	Fetcher      fetcher.Fetcher
	Dispatcher   *dispatch.Dispatcher
	Alerts       *alerts.Service
	Monitor      *monitor.Monitor
	Broadcaster  *broadcast.Broadcaster
	States       *conversation.StateStore
	Conversation *conversation.Controller
}

// Close releases runtime resources.
func (r *Runtime) Close() {
	if r != nil && r.Store != nil {
		r.Store.Close()
	}
}

// BuildRuntime wires every component from configuration.
func (a *App) BuildRuntime(ctx context.Context) (*Runtime, error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	store := storage.NewStore(pool)

	source := fetcher.NewNBKR(fetcher.NBKROptions{
		BaseURL:    a.Config.Fetcher.BaseURL,
		Timeout:    a.Config.Fetcher.RequestTimeout,
		UserAgent:  a.Config.Fetcher.UserAgent,
		Currencies: a.Config.Monitor.Currencies,
	}, a.Logger)

	transport := telegram.NewClient(
		a.Config.Telegram.BotToken,
		a.Config.Telegram.APIBase,
		a.Config.Telegram.RequestTimeout,
		a.Logger,
	)

	dispatcher := dispatch.New(transport, dispatch.Options{
		Pacing:      a.Config.Dispatch.Pacing,
		SendTimeout: a.Config.Dispatch.SendTimeout,
	}, a.Logger)

	alertSvc := alerts.NewService(store, a.Config.Monitor.Currencies, a.Logger)

	mon := monitor.New(source, alertSvc, store, monitor.NewSnapshotCache(), dispatcher, monitor.Options{
		HistoryThresholdPct: decimal.NewFromFloat(a.Config.Monitor.HistoryThresholdPct),
	}, a.Logger)

	broadcaster := broadcast.New(source, store, dispatcher, a.Logger)

	states := conversation.NewStateStore(a.Config.Conversation.TTL)
	controller := conversation.NewController(states, alertSvc, mon, a.Logger)

	return &Runtime{
		Store:        store,
		Fetcher:      source,
		Dispatcher:   dispatcher,
		Alerts:       alertSvc,
		Monitor:      mon,
		Broadcaster:  broadcaster,
		States:       states,
		Conversation: controller,
	}, nil
}

// Run executes the long-running service: the monitoring cycle, the daily
// broadcast, and the maintenance sweeps, each on its own schedule.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.Config.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required")
	}

	runtime, err := a.BuildRuntime(ctx)
	if err != nil {
		return err
	}
	defer runtime.Close()

	monitorSched := scheduler.New(scheduler.WeekdaySchedule{
		Weekday: a.Config.Monitor.WeekdayInterval,
		Weekend: a.Config.Monitor.WeekendInterval,
	}, scheduler.Options{
		Name:         "monitor",
		StartupDelay: a.Config.Monitor.StartupDelay,
		RunOnStart:   true,
	}, a.Logger)

	broadcastSched := scheduler.New(scheduler.DailyAt{
		Hour:   a.Config.Broadcast.Hour,
		Minute: a.Config.Broadcast.Minute,
	}, scheduler.Options{Name: "broadcast"}, a.Logger)

	maintenanceSched := scheduler.New(scheduler.Every(a.Config.Conversation.SweepInterval),
		scheduler.Options{Name: "maintenance"}, a.Logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return monitorSched.Run(groupCtx, runtime.Monitor.Cycle)
	})
	group.Go(func() error {
		return broadcastSched.Run(groupCtx, runtime.Broadcaster.Run)
	})
	group.Go(func() error {
		return maintenanceSched.Run(groupCtx, func(tickCtx context.Context, _ time.Time) error {
			return a.maintain(tickCtx, runtime)
		})
	})

	a.Logger.Info().Msg("service started")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("service stopped")
	return nil
}

// maintain reclaims expired conversation state and prunes long-inactive
// alert rows.
func (a *App) maintain(ctx context.Context, runtime *Runtime) error {
	if removed := runtime.States.Sweep(); removed > 0 {
		a.Logger.Debug().Int("removed", removed).Msg("expired conversation states swept")
	}
	if err := runtime.Alerts.SweepInactive(ctx, inactiveAlertRetention); err != nil {
		a.Logger.Error().Err(err).Msg("alert retention sweep failed")
	}
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting rate history.
type ExportOptions struct {
	Currency  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}
