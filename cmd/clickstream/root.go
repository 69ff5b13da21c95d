package main

import (
	"github.com/spf13/cobra"

	"clickstream/internal/config"
	"clickstream/sdk"
)

// cli holds state shared by the subcommands of one invocation.
type cli struct {
	configPath string
	appID      string
	endpoint   string
	cfg        *config.Config

	// transport replaces the HTTP transport in tests.
	transport sdk.Transport
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "clickstream",
		Short:         "Record clickstream events and inspect local SDK state",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if c.appID != "" {
				cfg.AppID = c.appID
			}
			if c.endpoint != "" {
				cfg.Endpoint = c.endpoint
			}
			c.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "path to a clickstream config file")
	flags.StringVar(&c.appID, "app-id", "", "override the configured app id")
	flags.StringVar(&c.endpoint, "endpoint", "", "override the configured ingestion endpoint")

	root.AddCommand(newSendCmd(c), newOutboxCmd(c), newConfigCmd(c))
	return root
}
