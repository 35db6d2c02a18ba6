package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/cellorg/internal/config"
)

func TestImplementationPrefersComponentClass(t *testing.T) {
	c := config.ComponentConfig{ComponentClass: "pass_through", ComponentModule: "legacy.module.Impl"}
	assert.Equal(t, "pass_through", c.Implementation())

	c = config.ComponentConfig{ComponentModule: "legacy.module.Impl"}
	assert.Equal(t, "legacy.module.Impl", c.Implementation())
}

func TestIsSimplifiedRequiresComponentsAndNoFlows(t *testing.T) {
	assert.True(t, (&config.App{Components: []config.ComponentConfig{{Name: "a"}}}).IsSimplified())
	assert.False(t, (&config.App{Flows: []config.FlowConfig{{Name: "f"}}}).IsSimplified())
	assert.False(t, (&config.App{}).IsSimplified())
}

func TestInstanceCountsDefaultsToOneAndSynthesizesImplicitFlow(t *testing.T) {
	apps := []config.App{
		{
			Name: "simple",
			Components: []config.ComponentConfig{
				{Name: "a", ComponentClass: "pass_through"},
				{Name: "b", ComponentClass: "pass_through", NumInstances: 3},
			},
		},
		{
			Name: "explicit",
			Flows: []config.FlowConfig{
				{Name: "main", Components: []config.ComponentConfig{{Name: "c", ComponentClass: "pass_through"}}},
			},
		},
	}

	counts := config.InstanceCounts(apps)
	assert.Equal(t, 1, counts["simple/simple_implicit_flow/a"])
	assert.Equal(t, 3, counts["simple/simple_implicit_flow/b"])
	assert.Equal(t, 1, counts["explicit/main/c"])
}

func TestValidateRejectsAppWithNeitherFlowsNorComponents(t *testing.T) {
	err := config.Validate([]config.App{{Name: "empty"}})
	assert.Error(t, err)
}

func TestValidateRejectsDuplicateFlowNames(t *testing.T) {
	apps := []config.App{{
		Name: "dup",
		Flows: []config.FlowConfig{
			{Name: "main", Components: []config.ComponentConfig{{Name: "a", ComponentClass: "pass_through"}}},
			{Name: "main", Components: []config.ComponentConfig{{Name: "b", ComponentClass: "pass_through"}}},
		},
	}}
	assert.Error(t, config.Validate(apps))
}

func TestValidateRejectsComponentWithNoImplementation(t *testing.T) {
	apps := []config.App{{
		Name:       "broken",
		Components: []config.ComponentConfig{{Name: "a"}},
	}}
	assert.Error(t, config.Validate(apps))
}

func TestValidateAcceptsWellFormedSimplifiedApp(t *testing.T) {
	apps := []config.App{{
		Name:       "ok",
		Components: []config.ComponentConfig{{Name: "a", ComponentClass: "pass_through"}},
	}}
	require.NoError(t, config.Validate(apps))
}
