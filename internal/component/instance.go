package component

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tenzoki/cellorg/internal/cerr"
	"github.com/tenzoki/cellorg/internal/message"
	"github.com/tenzoki/cellorg/internal/transform"
)

// ErrorSink receives a failed message and the error that failed it, for
// routing to an error flow or the connector's error queue.
type ErrorSink func(msg *message.Message, componentName string, err error)

// Stage is one configured component's worker group within a flow: a
// shared input queue fed by the previous stage (or a source component),
// NumInstances worker goroutines draining it, and a Next stage (or nil at
// the end of a flow) that receives each successfully produced message.
//
// Ordering: messages published to Input are delivered FIFO to whichever
// worker instance picks them up next (Go's channel semantics give
// round-robin-by-contention across instances), so ordering is preserved
// within one instance but not guaranteed across instances of the same
// stage.
type Stage struct {
	Name   string
	Impl   Component
	Self   map[string]any
	Transforms *transform.Pipeline

	Input chan message.Event

	Next      *Stage
	ErrorSink ErrorSink

	log zerolog.Logger

	wg   sync.WaitGroup
	stop chan struct{}
}

// NewStage constructs a Stage. queueSize bounds Input (16 when not
// positive); Start sets the worker-goroutine count for this component.
func NewStage(name string, impl Component, self map[string]any, pipeline *transform.Pipeline, queueSize int, log zerolog.Logger) *Stage {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Stage{
		Name:       name,
		Impl:       impl,
		Self:       self,
		Transforms: pipeline,
		Input:      make(chan message.Event, queueSize),
		log:        log,
		stop:       make(chan struct{}),
	}
}

// Start launches instances worker goroutines.
func (s *Stage) Start(instances int) {
	if instances <= 0 {
		instances = 1
	}
	for i := 0; i < instances; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop signals every worker to exit after its current message and returns
// without waiting; messages still queued on Input are not processed. This
// is the signal half of the two-phase shutdown: the caller joins with
// Wait, bounding it with a time.After select where needed.
func (s *Stage) Stop() {
	close(s.stop)
}

// Wait blocks until every worker goroutine has returned.
func (s *Stage) Wait() {
	s.wg.Wait()
}

func (s *Stage) worker(instance int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-s.Input:
			if !ok {
				return
			}
			s.process(ev, instance)
		}
	}
}

func (s *Stage) process(ev message.Event, instance int) {
	if ev.Kind != message.EventMessage {
		s.processEvent(ev, instance)
		return
	}

	msg := ev.Message
	log := s.log.With().Int("instance", instance).Str("message_id", msg.ID).Logger()

	if s.Transforms != nil {
		if err := s.Transforms.Apply(msg, s.Self); err != nil {
			s.fail(msg, err, log)
			return
		}
	}

	result, err := s.Impl.Invoke(msg)
	if err != nil {
		s.fail(msg, err, log)
		return
	}

	if result == nil || IsDiscard(result) {
		msg.Ack()
		return
	}

	msg.Previous = result
	msg.Payload = result
	s.Forward(msg)
}

// Forward sends msg to the next stage's input, acking it if this is the
// last stage in the flow. Used both for a stage's own Invoke result and,
// for components implementing Emitter, for extra messages produced
// mid-invocation (iterate's fan-out can emit several messages per input).
func (s *Stage) Forward(msg *message.Message) {
	if s.Next == nil {
		msg.Ack()
		return
	}

	select {
	case s.Next.Input <- message.Event{Kind: message.EventMessage, Message: msg}:
	case <-s.stop:
		msg.Nack(message.Rejected)
	}
}

func (s *Stage) processEvent(ev message.Event, instance int) {
	// Timer and cache-expiry events bypass Invoke (a plain Component has
	// no hook for them) and are passed straight to the next stage's input;
	// the last stage of a flow drops them.
	if s.Next != nil {
		select {
		case s.Next.Input <- ev:
		case <-s.stop:
		}
	}
}

func (s *Stage) fail(msg *message.Message, err error, log zerolog.Logger) {
	outcome := message.Rejected
	var ce *cerr.Error
	if asCerr(err, &ce) && ce.Category == cerr.Runtime && ce.Transient {
		outcome = message.Failed
	}

	log.Error().Err(err).Msg("component invoke failed")

	if s.ErrorSink != nil {
		s.ErrorSink(msg, s.Name, err)
	}
	msg.Nack(outcome)
}

func asCerr(err error, target **cerr.Error) bool {
	for err != nil {
		if ce, ok := err.(*cerr.Error); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Send publishes a message onto the stage's input queue, used by source
// components and test harnesses to inject work.
func (s *Stage) Send(msg *message.Message) error {
	return s.SendEvent(message.Event{Kind: message.EventMessage, Message: msg})
}

// SendEvent publishes a raw Event onto the stage's input queue, used by
// non-Message sources (timer-input) to deliver EventTimer/EventCacheExpiry
// events directly.
func (s *Stage) SendEvent(ev message.Event) error {
	select {
	case s.Input <- ev:
		return nil
	case <-s.stop:
		return fmt.Errorf("component: stage %q is stopped", s.Name)
	}
}
