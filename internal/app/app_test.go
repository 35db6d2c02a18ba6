package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/cellorg/internal/app"
	"github.com/tenzoki/cellorg/internal/component"
	"github.com/tenzoki/cellorg/internal/config"
	"github.com/tenzoki/cellorg/internal/message"
)

func init() {
	component.Register("test_app_always_fails", func(component.Config) (component.Component, error) {
		return appAlwaysFails{}, nil
	})
}

type appAlwaysFails struct{}

func (appAlwaysFails) Invoke(*message.Message) (any, error) {
	return nil, fmt.Errorf("deliberate failure")
}

func TestAppRoutesComponentFailuresToErrorSink(t *testing.T) {
	var mu sync.Mutex
	var gotComponent string
	var gotErr error

	a, err := app.Build(config.App{
		Name:       "failing",
		Components: []config.ComponentConfig{{Name: "broken", ComponentClass: "test_app_always_fails"}},
	}, zerolog.Nop(), func(msg *message.Message, componentName string, err error) {
		mu.Lock()
		gotComponent = componentName
		gotErr = err
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background(), func(string, string) int { return 1 }))
	defer a.Stop(time.Second)

	require.NoError(t, a.Flows()[0].Inject(message.New("", "x", nil)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "broken", gotComponent)
	assert.ErrorContains(t, gotErr, "deliberate failure")
}

func TestAppSimplifiedModeSynthesizesImplicitFlow(t *testing.T) {
	a, err := app.Build(config.App{
		Name:       "simple",
		Components: []config.ComponentConfig{{Name: "pass", ComponentClass: "pass_through"}},
	}, zerolog.Nop(), nil)
	require.NoError(t, err)

	require.Len(t, a.Flows(), 1)
	assert.Equal(t, "simple"+app.ImplicitFlowSuffix, a.Flows()[0].Name)
}
