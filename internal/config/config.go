// Package config loads App and Flow configuration documents: YAML files
// describing a connector's apps, each app's flows (explicit or simplified
// mode), and each flow's component chain.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tenzoki/cellorg/internal/transform"
)

// Root is the top-level document: a connector's global settings plus the
// list of app documents to load.
type Root struct {
	Name    string       `yaml:"name"`
	Debug   bool         `yaml:"debug"`
	Logging LoggingConfig `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
	Apps    []string      `yaml:"apps"`
	BaseDir []string      `yaml:"basedir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// App is one configuration-driven application: shared broker defaults plus
// either an explicit flow list or a simplified flat component list.
type App struct {
	Name   string         `yaml:"name"`
	Broker *BrokerConfig  `yaml:"broker,omitempty"`

	// Explicit mode.
	Flows []FlowConfig `yaml:"flows,omitempty"`

	// Simplified mode: a flat component list with no flow wrapper; an
	// implicit flow named "<app_name>_implicit_flow" is synthesized.
	Components []ComponentConfig `yaml:"components,omitempty"`

	ErrorFlow string `yaml:"error_flow,omitempty"`
}

// IsSimplified reports whether an App document uses the simplified
// (flat components, no flows list) mode.
func (a *App) IsSimplified() bool {
	return len(a.Flows) == 0 && len(a.Components) > 0
}

// FlowConfig is one flow's component chain and optional broker override.
type FlowConfig struct {
	Name       string            `yaml:"name"`
	Broker     *BrokerConfig     `yaml:"broker,omitempty"`
	Components []ComponentConfig `yaml:"components"`
}

// ComponentConfig is one component instance group's configuration.
type ComponentConfig struct {
	Name string `yaml:"name"`

	// ComponentClass and ComponentModule both select an implementation;
	// when both are set, ComponentClass wins.
	ComponentClass  string `yaml:"component_class,omitempty"`
	ComponentModule string `yaml:"component_module,omitempty"`

	NumInstances   int `yaml:"num_instances,omitempty"`
	InputQueueSize int `yaml:"input_queue_size,omitempty"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions,omitempty"`

	Transforms []transform.Config `yaml:"input_transforms,omitempty"`

	// Config carries component-specific parameters, addressable from
	// "self:<attr>" expressions.
	Config map[string]any `yaml:"component_config,omitempty"`

	ErrorFlow string `yaml:"error_flow,omitempty"`
}

// Implementation resolves which identifier names this component's
// implementation, applying the component_class-wins-over-component_module
// rule.
func (c ComponentConfig) Implementation() string {
	if c.ComponentClass != "" {
		return c.ComponentClass
	}
	return c.ComponentModule
}

// SubscriptionConfig is one topic subscription a broker-input component
// registers.
type SubscriptionConfig struct {
	Topic string `yaml:"topic"`
	Queue string `yaml:"queue,omitempty"`
}

// BrokerConfig describes how to reach a broker and authenticate with it.
type BrokerConfig struct {
	BrokerType              string   `yaml:"broker_type"`
	Host                    string   `yaml:"host"`
	Username                string   `yaml:"username,omitempty"`
	Password                string   `yaml:"password,omitempty"`
	VPNName                 string   `yaml:"vpn_name,omitempty"`
	QueueName               string   `yaml:"queue_name,omitempty"`
	Subscriptions           []string `yaml:"subscriptions,omitempty"`
	TrustStorePath          string   `yaml:"trust_store_path,omitempty"`
	RestoreSubscriptionsWithRebind bool `yaml:"restore_subscriptions_with_rebind,omitempty"`
}

// LoadRoot reads and parses the top-level connector document.
func LoadRoot(filename string) (*Root, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", filename, err)
	}

	var root Root
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", filename, err)
	}

	if root.Logging.Level == "" {
		root.Logging.Level = "info"
	}

	return &root, nil
}

// LoadApps expands root's app glob patterns and loads every matched
// document, decoding multiple "---"-separated YAML documents per file the
// way flow bundles are commonly split across files.
func (r *Root) LoadApps() ([]App, error) {
	var apps []App

	for _, pattern := range r.Apps {
		resolved := pattern
		if !filepath.IsAbs(resolved) && len(r.BaseDir) > 0 {
			resolved = filepath.Join(r.BaseDir[0], pattern)
		}

		matches, err := filepath.Glob(resolved)
		if err != nil {
			return nil, fmt.Errorf("config: invalid glob pattern %q: %w", pattern, err)
		}

		for _, file := range matches {
			docs, err := loadAppDocuments(file)
			if err != nil {
				return nil, err
			}
			apps = append(apps, docs...)
		}
	}

	return apps, nil
}

func loadAppDocuments(file string) ([]App, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("config: reading app file %s: %w", file, err)
	}

	var apps []App
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc struct {
			App App `yaml:"app"`
		}
		if err := decoder.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("config: parsing app file %s: %w", file, err)
		}
		if doc.App.Name != "" {
			apps = append(apps, doc.App)
		}
	}
	return apps, nil
}

// InstanceCounts builds a lookup of "app/flow/component" -> num_instances
// (defaulting to 1) across every app, for the connector's NumInstancesFunc.
func InstanceCounts(apps []App) map[string]int {
	counts := make(map[string]int)
	for _, a := range apps {
		flows := a.Flows
		if a.IsSimplified() {
			flows = []FlowConfig{{Name: a.Name + "_implicit_flow", Components: a.Components}}
		}
		for _, f := range flows {
			for _, c := range f.Components {
				n := c.NumInstances
				if n <= 0 {
					n = 1
				}
				counts[a.Name+"/"+f.Name+"/"+c.Name] = n
			}
		}
	}
	return counts
}

// Validate checks structural invariants that are cheap to catch before a
// connector starts: every app must be either explicit or simplified (not
// both empty), every component must name an implementation, and every flow
// needs a unique name within its app.
func Validate(apps []App) error {
	for _, app := range apps {
		if len(app.Flows) == 0 && len(app.Components) == 0 {
			return fmt.Errorf("config: app %q has neither flows nor components", app.Name)
		}
		seen := make(map[string]bool)
		for _, flow := range app.Flows {
			if seen[flow.Name] {
				return fmt.Errorf("config: app %q has duplicate flow name %q", app.Name, flow.Name)
			}
			seen[flow.Name] = true
			if err := validateComponents(app.Name, flow.Name, flow.Components); err != nil {
				return err
			}
		}
		if len(app.Components) > 0 {
			implicitName := app.Name + "_implicit_flow"
			if err := validateComponents(app.Name, implicitName, app.Components); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateComponents(app, flow string, components []ComponentConfig) error {
	for _, c := range components {
		if c.Name == "" {
			return fmt.Errorf("config: app %q flow %q has a component with no name", app, flow)
		}
		if c.Implementation() == "" {
			return fmt.Errorf("config: app %q flow %q component %q has neither component_class nor component_module", app, flow, c.Name)
		}
	}
	return nil
}
