package service

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/fx"
)

// Application wraps the fx.App of service mode so the Windows service host can drive it
type Application struct {
	app      *fx.App
	ctx      context.Context
	cancel   context.CancelFunc
	ready    chan struct{}
	doneChan chan struct{}
}

func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Run starts the service and blocks until SIGINT/SIGTERM or Shutdown
func (a *Application) Run() {
	defer close(a.doneChan)

	a.app = fx.New(ServiceModules(), EventLogger())

	if err := a.app.Start(a.ctx); err != nil {
		log.Printf("failed to start: %v", err)
		return
	}
	close(a.ready)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		a.Shutdown()
	case <-a.ctx.Done():
	}
}

// Shutdown stops the fx app within fx.DefaultTimeout
func (a *Application) Shutdown() {
	a.cancel()
	if a.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
		defer cancel()
		if err := a.app.Stop(ctx); err != nil {
			log.Printf("failed to stop cleanly: %v", err)
		}
	}
}

// Ready is closed once every fx OnStart hook has run, the HTTP server included
func (a *Application) Ready() <-chan struct{} {
	return a.ready
}

// Done is closed when Run returns
func (a *Application) Done() <-chan struct{} {
	return a.doneChan
}

// Wait blocks until Run returns
func (a *Application) Wait() {
	<-a.doneChan
}
