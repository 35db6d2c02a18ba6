package component

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/tenzoki/cellorg/internal/message"
)

func init() {
	Register("stdin-input", newStdinInput)
	Register("stdout-output", newStdoutOutput)
	Register("timer-input", newTimerInput)
	Register("file-input", newFileInput)
}

// stdinInput is a Source reading one message per line of os.Stdin,
// supplementing the broker-only sources with the
// original's stdin_input component (non-broker development source).
type stdinInput struct{}

func newStdinInput(Config) (Component, error) { return &stdinInput{}, nil }

func (s *stdinInput) Invoke(msg *message.Message) (any, error) { return msg.Payload, nil }

func (s *stdinInput) Run(emit func(*message.Message)) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		emit(message.New("", scanner.Text(), nil))
	}
	return scanner.Err()
}

// stdoutOutput writes its input payload to os.Stdout, one line per
// message.
type stdoutOutput struct {
	out *bufio.Writer
}

func newStdoutOutput(Config) (Component, error) {
	return &stdoutOutput{out: bufio.NewWriter(os.Stdout)}, nil
}

func (s *stdoutOutput) Invoke(msg *message.Message) (any, error) {
	fmt.Fprintf(s.out, "%v\n", msg.Payload)
	s.out.Flush()
	return msg.Payload, nil
}

// timerInput is a Source emitting an EventTimer tick on a fixed interval;
// it has no natural Message to attach to, so Run reports each tick through
// the OnTick callback rather than through emit's Message path — callers that
// want a Message per tick should wrap it with a "timer-to-message" invoke
// chain downstream. Exposed here mainly to exercise the Timer event kind
// the Event type defines but no other source populates.
type timerInput struct {
	interval time.Duration
	name     string
	tick     func(message.TimerPayload)
}

func newTimerInput(cfg Config) (Component, error) {
	seconds, _ := cfg.Params["interval_seconds"].(float64)
	if seconds <= 0 {
		return nil, fmt.Errorf("timer-input: component_config.interval_seconds must be > 0")
	}
	name, _ := cfg.Params["name"].(string)
	return &timerInput{interval: time.Duration(seconds * float64(time.Second)), name: name}, nil
}

func (t *timerInput) Invoke(msg *message.Message) (any, error) { return msg.Payload, nil }

// OnTick lets the flow builder observe raw timer ticks (as opposed to the
// Message-oriented Run/emit path every other Source uses), since a timer
// has no payload of its own.
func (t *timerInput) OnTick(fn func(message.TimerPayload)) { t.tick = fn }

func (t *timerInput) Run(emit func(*message.Message)) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	var n int64
	for range ticker.C {
		n++
		if t.tick != nil {
			t.tick(message.TimerPayload{Name: t.name, Tick: n})
		}
	}
	return nil
}

// fileInput is a Source emitting one message per line of a configured
// file, supplementing the original's file_input component.
type fileInput struct {
	path string
}

func newFileInput(cfg Config) (Component, error) {
	path, _ := cfg.Params["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("file-input: component_config.path is required")
	}
	return &fileInput{path: path}, nil
}

func (f *fileInput) Invoke(msg *message.Message) (any, error) { return msg.Payload, nil }

func (f *fileInput) Run(emit func(*message.Message)) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("file-input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		emit(message.New("", scanner.Text(), nil))
	}
	return scanner.Err()
}
