// Package connector owns the top-level lifecycle: loading configuration,
// building every App, starting them, handling OS signals with a bounded
// graceful shutdown, and placing every failed message on an error queue.
// The error_flow settings in app and component config are not read; no
// failure is routed to an error flow.
package connector

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenzoki/cellorg/internal/app"
	"github.com/tenzoki/cellorg/internal/config"
	"github.com/tenzoki/cellorg/internal/logging"
	"github.com/tenzoki/cellorg/internal/message"
)

// ErrorRecord is one entry placed on the connector's error queue: the
// message that failed, which app/component it failed in, and why.
type ErrorRecord struct {
	App       string
	Component string
	Err       error
	Message   *message.Message
}

// Connector runs a set of Apps to completion or until signaled to stop.
type Connector struct {
	apps            []*app.App
	appNames        []string
	numInstances    func(app, flow, component string) int
	shutdownTimeout time.Duration

	errorQueue chan ErrorRecord
	log        zerolog.Logger
}

// NumInstancesFunc resolves how many worker goroutines an (app, flow,
// component) triple should run; Root/App config feeds this via
// ComponentConfig.NumInstances, defaulting to 1.
type NumInstancesFunc func(app, flow, component string) int

// New builds every App in apps. errorQueueSize bounds the connector's
// shared error queue, which receives every failed message from every app;
// when the queue is full the record is dropped with a warning.
func New(root *config.Root, apps []config.App, numInstances NumInstancesFunc, errorQueueSize int, shutdownTimeout time.Duration) (*Connector, error) {
	logging.Init(logging.Config{Level: logging.Level(root.Logging.Level), JSONOutput: root.Logging.JSON})

	if errorQueueSize <= 0 {
		errorQueueSize = 64
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	c := &Connector{
		numInstances:    numInstances,
		shutdownTimeout: shutdownTimeout,
		errorQueue:      make(chan ErrorRecord, errorQueueSize),
		log:             logging.ForApp(root.Name),
	}

	for _, appCfg := range apps {
		appCfg := appCfg
		built, err := app.Build(appCfg, c.log, func(msg *message.Message, component string, err error) {
			c.routeError(appCfg.Name, component, msg, err)
		})
		if err != nil {
			return nil, fmt.Errorf("connector: %w", err)
		}
		c.apps = append(c.apps, built)
		c.appNames = append(c.appNames, appCfg.Name)
	}

	return c, nil
}

func (c *Connector) routeError(appName, component string, msg *message.Message, err error) {
	select {
	case c.errorQueue <- ErrorRecord{App: appName, Component: component, Err: err, Message: msg}:
	default:
		c.log.Warn().Str("app", appName).Str("component", component).Err(err).Msg("error queue full, dropping error record")
	}
}

// Errors exposes the connector's error queue for a supervisor/CLI to drain
// and log (or route to an operator-configured error flow).
func (c *Connector) Errors() <-chan ErrorRecord { return c.errorQueue }

// Run starts every app and blocks until ctx is canceled or the process
// receives SIGINT/SIGTERM, then performs a bounded graceful shutdown.
func (c *Connector) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for i, a := range c.apps {
		appName := c.appNames[i]
		if err := a.Start(ctx, func(flow, component string) int {
			n := c.numInstances(appName, flow, component)
			if n <= 0 {
				return 1
			}
			return n
		}); err != nil {
			return fmt.Errorf("connector: starting app: %w", err)
		}
	}

	c.log.Info().Int("apps", len(c.apps)).Msg("connector running")

	<-ctx.Done()
	c.log.Info().Msg("shutdown signal received, draining flows")

	for _, a := range c.apps {
		a.Stop(c.shutdownTimeout)
	}

	return nil
}
