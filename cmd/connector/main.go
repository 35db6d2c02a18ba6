// Command connector runs a configuration-driven flow processing runtime:
// it loads a root document naming one or more app documents, builds each
// app's flows and components, and runs until signaled to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tenzoki/cellorg/internal/config"
	"github.com/tenzoki/cellorg/internal/connector"
)

var (
	configPath      string
	shutdownTimeout time.Duration
	errorQueueSize  int
)

func main() {
	root := &cobra.Command{
		Use:   "connector",
		Short: "Run the configuration-driven flow processing runtime",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/connector.yaml", "path to the root connector config")

	root.AddCommand(runCmd(), validateCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the connector and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, apps, err := load()
			if err != nil {
				return err
			}

			counts := config.InstanceCounts(apps)
			numInstances := func(app, flow, component string) int {
				if n, ok := counts[app+"/"+flow+"/"+component]; ok {
					return n
				}
				return 1
			}

			c, err := connector.New(root, apps, numInstances, errorQueueSize, shutdownTimeout)
			if err != nil {
				return err
			}

			go logErrors(c)

			return c.Run(context.Background())
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "bound on graceful shutdown drain")
	cmd.Flags().IntVar(&errorQueueSize, "error-queue-size", 64, "capacity of the connector's error queue")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate configuration without starting the runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, apps, err := load()
			if err != nil {
				return err
			}
			fmt.Printf("ok: %d app(s) validated\n", len(apps))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the connector version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("connector dev")
			return nil
		},
	}
}

func load() (*config.Root, []config.App, error) {
	path := config.ResolveConfigPath(configPath)
	if path == "" {
		path = configPath
	}

	root, err := config.LoadRoot(path)
	if err != nil {
		return nil, nil, err
	}
	apps, err := root.LoadApps()
	if err != nil {
		return nil, nil, err
	}
	if err := config.Validate(apps); err != nil {
		return nil, nil, err
	}
	return root, apps, nil
}

func logErrors(c *connector.Connector) {
	for rec := range c.Errors() {
		fmt.Fprintf(os.Stderr, "error: app=%s component=%s: %v\n", rec.App, rec.Component, rec.Err)
	}
}
