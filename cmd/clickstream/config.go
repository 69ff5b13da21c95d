package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

func newConfigCmd(c *cli) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if validate {
				if err := c.cfg.Validate(); err != nil {
					return fmt.Errorf("configuration is invalid: %w", err)
				}
			}

			shown := c.cfg.Clone()
			if shown.AuthCookie != "" {
				shown.AuthCookie = redacted
			}
			out, err := yaml.Marshal(shown)
			if err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			cmd.Print(string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "fail when the configuration cannot be used to send events")
	return cmd
}
