package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/luminad/internal/config"
)

// App is the main application container: it owns the services and
// drives the device core's cooperative tick loop.
type App struct {
	cfg      *config.Config
	services *Services

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new App instance with all services initialized but not
// started.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
		done:     make(chan struct{}),
	}, nil
}

// Start boots the device core and starts the tick loop. The provided
// context is used for cancellation.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.services.Manager.Begin()
	go a.run()

	log.Info().Msg("luminad started")
	return nil
}

// run is the tick loop. Every state update, animation step and network
// poll happens here, one cooperative cycle at a time. A reboot request
// restarts the core in place instead of the process.
func (a *App) run() {
	defer close(a.done)

	ticker := time.NewTicker(a.cfg.Timing.TickInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.services.Manager.Tick()
			if a.services.Manager.RebootRequested() {
				a.services.RestartCore()
			}
		}
	}
}

// Stop gracefully shuts down all services.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
		<-a.done
	}

	if a.services != nil {
		return a.services.Stop()
	}
	return nil
}

// Wait blocks until the application context is cancelled.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// SignalContext creates a context that is cancelled when SIGINT or
// SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
