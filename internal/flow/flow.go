// Package flow wires a configured list of components into a running
// pipeline of component.Stage values, starts their worker groups, and
// coordinates graceful shutdown.
package flow

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tenzoki/cellorg/internal/broker"
	"github.com/tenzoki/cellorg/internal/component"
	"github.com/tenzoki/cellorg/internal/config"
	"github.com/tenzoki/cellorg/internal/message"
	"github.com/tenzoki/cellorg/internal/transform"
)

// Flow is a started pipeline: an ordered chain of stages, plus any Source
// components feeding the first stage.
type Flow struct {
	App  string
	Name string

	stages  []*component.Stage
	sources []sourceRunner
	log     zerolog.Logger
}

type sourceRunner struct {
	name string
	src  component.Source
}

// BuildOptions carries everything a flow needs that isn't in its own
// config: a way to construct broker-aware components, an error sink to
// route failures, and the logger the app handed down.
type BuildOptions struct {
	Broker    Broker
	ErrorSink component.ErrorSink
	Log       zerolog.Logger
}

// Broker aliases broker.Broker so callers outside this package don't
// need to import broker just to build a Flow.
type Broker = broker.Broker

// Build constructs a Flow from cfg, in the order its components are
// declared; each stage's Next pointer is set to the following stage, with
// the last stage's Next left nil (components form a line, not
// a graph).
func Build(app string, cfg config.FlowConfig, opts BuildOptions) (*Flow, error) {
	f := &Flow{App: app, Name: cfg.Name, log: opts.Log.With().Str("flow", cfg.Name).Logger()}

	stages := make([]*component.Stage, 0, len(cfg.Components))
	for _, cc := range cfg.Components {
		stage, src, err := buildStage(app, cfg.Name, cc, opts)
		if err != nil {
			return nil, fmt.Errorf("flow %q: component %q: %w", cfg.Name, cc.Name, err)
		}
		stages = append(stages, stage)
		if src != nil {
			f.sources = append(f.sources, sourceRunner{name: cc.Name, src: src})
		}
	}

	for i := 0; i < len(stages)-1; i++ {
		stages[i].Next = stages[i+1]
	}
	f.stages = stages

	for _, s := range stages {
		if em, ok := s.Impl.(component.Emitter); ok {
			s := s
			em.SetEmit(s.Forward)
		}
	}

	return f, nil
}

func buildStage(app, flowName string, cc config.ComponentConfig, opts BuildOptions) (*component.Stage, component.Source, error) {
	impl, err := component.Build(cc.Implementation(), component.Config{
		App:           app,
		Flow:          flowName,
		Name:          cc.Name,
		Params:        cc.Config,
		Broker:        opts.Broker,
		Subscriptions: toSubscriptionSpecs(cc.Subscriptions),
		Topic:         topicFromConfig(cc),
	})
	if err != nil {
		return nil, nil, err
	}

	pipeline, err := transform.Build(cc.Transforms)
	if err != nil {
		return nil, nil, fmt.Errorf("building transforms: %w", err)
	}

	log := opts.Log.With().Str("flow", flowName).Str("component", cc.Name).Logger()
	stage := component.NewStage(cc.Name, impl, cc.Config, pipeline, cc.InputQueueSize, log)
	stage.ErrorSink = opts.ErrorSink

	if src, ok := impl.(component.Source); ok {
		return stage, src, nil
	}
	return stage, nil, nil
}

func toSubscriptionSpecs(subs []config.SubscriptionConfig) []component.SubscriptionSpec {
	out := make([]component.SubscriptionSpec, len(subs))
	for i, s := range subs {
		out[i] = component.SubscriptionSpec{Topic: s.Topic, Queue: s.Queue}
	}
	return out
}

func topicFromConfig(cc config.ComponentConfig) string {
	t, _ := cc.Config["topic"].(string)
	return t
}

// Start launches every stage's worker goroutines and every source
// component's Run loop. Sources feed the first stage's input channel.
func (f *Flow) Start(numInstances func(name string) int) {
	for _, s := range f.stages {
		s.Start(numInstances(s.Name))
	}

	if len(f.stages) == 0 {
		return
	}
	first := f.stages[0]

	for _, sr := range f.sources {
		sr := sr
		if ticker, ok := sr.src.(component.TickSource); ok {
			ticker.OnTick(func(p message.TimerPayload) {
				_ = first.SendEvent(message.Event{Kind: message.EventTimer, Timer: &p})
			})
		}
		go func() {
			err := sr.src.Run(func(msg *message.Message) {
				_ = first.Send(msg)
			})
			if err != nil {
				f.log.Error().Err(err).Str("component", sr.name).Msg("source component exited with error")
			}
		}()
	}
}

// Inject pushes a message directly onto the first stage's input, for
// flows with no Source component (e.g. the implicit flow of an app whose
// first component is an ordinary invoke-only component fed by another
// flow or the app's API).
func (f *Flow) Inject(msg *message.Message) error {
	if len(f.stages) == 0 {
		return fmt.Errorf("flow %q has no stages", f.Name)
	}
	return f.stages[0].Send(msg)
}

// Stop signals every stage to stop accepting new work and waits up to
// timeout for in-flight messages to drain (two-phase shutdown:
// signal, then bounded-timeout join).
func (f *Flow) Stop(timeout time.Duration) {
	for _, s := range f.stages {
		s.Stop()
	}

	done := make(chan struct{})
	go func() {
		for _, s := range f.stages {
			s.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		f.log.Warn().Dur("timeout", timeout).Msg("flow shutdown timed out waiting for workers to drain")
	}
}
