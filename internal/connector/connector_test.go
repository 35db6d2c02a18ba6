package connector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/cellorg/internal/config"
	"github.com/tenzoki/cellorg/internal/connector"
)

func newTestRoot() *config.Root {
	return &config.Root{Name: "test-connector"}
}

func TestRunStopsPromptlyWhenContextCanceled(t *testing.T) {
	apps := []config.App{{
		Name:       "simple",
		Components: []config.ComponentConfig{{Name: "pass", ComponentClass: "pass_through"}},
	}}

	c, err := connector.New(newTestRoot(), apps, func(string, string, string) int { return 1 }, 0, 200*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestNewRejectsAppWithUnregisteredComponent(t *testing.T) {
	apps := []config.App{{
		Name:       "broken",
		Components: []config.ComponentConfig{{Name: "x", ComponentClass: "no_such_component"}},
	}}

	_, err := connector.New(newTestRoot(), apps, func(string, string, string) int { return 1 }, 0, 0)
	assert.Error(t, err)
}

func TestErrorsChannelStartsEmpty(t *testing.T) {
	apps := []config.App{{
		Name:       "simple2",
		Components: []config.ComponentConfig{{Name: "pass", ComponentClass: "pass_through"}},
	}}

	c, err := connector.New(newTestRoot(), apps, func(string, string, string) int { return 1 }, 0, 0)
	require.NoError(t, err)

	select {
	case rec := <-c.Errors():
		t.Fatalf("unexpected error record on a freshly built connector: %+v", rec)
	default:
	}
}
