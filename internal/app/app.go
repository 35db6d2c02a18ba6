// Package app builds and runs one App document: its shared broker
// connection and its flows, in either explicit or simplified mode.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenzoki/cellorg/internal/broker"
	"github.com/tenzoki/cellorg/internal/config"
	"github.com/tenzoki/cellorg/internal/flow"
	"github.com/tenzoki/cellorg/internal/message"
)

// ImplicitFlowSuffix names the synthesized flow a simplified-mode app's
// flat component list becomes.
const ImplicitFlowSuffix = "_implicit_flow"

// App is a running instance of one configuration document.
type App struct {
	Name      string
	br        broker.Broker
	flows     []*flow.Flow
	log       zerolog.Logger
	errorSink func(msg *message.Message, component string, err error)
}

// Build constructs an App from cfg. errorSink receives every message whose
// transform pipeline or Invoke fails in any of the app's flows, whatever
// the outcome it is settled with. The app's and its components' error_flow
// settings are not consulted here or by the connector's sink: failures are
// not routed to an error flow.
func Build(cfg config.App, log zerolog.Logger, errorSink func(msg *message.Message, component string, err error)) (*App, error) {
	a := &App{Name: cfg.Name, log: log.With().Str("app", cfg.Name).Logger(), errorSink: errorSink}

	if cfg.Broker != nil {
		br, err := newBroker(*cfg.Broker)
		if err != nil {
			return nil, fmt.Errorf("app %q: building broker: %w", cfg.Name, err)
		}
		a.br = br
	}

	flowConfigs := cfg.Flows
	if cfg.IsSimplified() {
		flowConfigs = []config.FlowConfig{{
			Name:       cfg.Name + ImplicitFlowSuffix,
			Components: cfg.Components,
		}}
	}

	for _, fc := range flowConfigs {
		br := a.br
		if fc.Broker != nil {
			var err error
			br, err = newBroker(*fc.Broker)
			if err != nil {
				return nil, fmt.Errorf("app %q: flow %q: building broker: %w", cfg.Name, fc.Name, err)
			}
		}

		f, err := flow.Build(cfg.Name, fc, flow.BuildOptions{
			Broker:    br,
			ErrorSink: a.errorSink,
			Log:       a.log,
		})
		if err != nil {
			return nil, fmt.Errorf("app %q: %w", cfg.Name, err)
		}
		a.flows = append(a.flows, f)
	}

	return a, nil
}

// Start connects the app's broker(s) and starts every flow.
func (a *App) Start(ctx context.Context, numInstances func(flow, component string) int) error {
	if a.br != nil {
		if err := a.br.Connect(ctx); err != nil {
			return fmt.Errorf("app %q: connecting broker: %w", a.Name, err)
		}
	}
	for _, f := range a.flows {
		flowName := f.Name
		f.Start(func(component string) int { return numInstances(flowName, component) })
	}
	return nil
}

// Stop gracefully shuts down every flow, then disconnects the broker.
func (a *App) Stop(timeout time.Duration) {
	for _, f := range a.flows {
		f.Stop(timeout)
	}
	if a.br != nil {
		_ = a.br.Disconnect()
	}
}

// Flows exposes the app's running flows (used by the connector to build
// an error-flow lookup across apps).
func (a *App) Flows() []*flow.Flow { return a.flows }

func newBroker(cfg config.BrokerConfig) (broker.Broker, error) {
	switch cfg.BrokerType {
	case "", "dev":
		return broker.NewDevBroker(), nil
	case "nats":
		return broker.NewNATSBroker(cfg.Host), nil
	case "amqp":
		return broker.NewAMQPBroker(cfg.Host, cfg.VPNName), nil
	default:
		return nil, fmt.Errorf("unknown broker_type %q", cfg.BrokerType)
	}
}
