package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clickstream/sdk"
)

const defaultSendTimeout = 20 * time.Second

func newSendCmd(c *cli) *cobra.Command {
	var (
		attrs   []string
		userID  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <event-name>",
		Short: "Record one event and deliver it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes, err := parseAttributes(attrs)
			if err != nil {
				return err
			}

			var opts []sdk.Option
			if c.transport != nil {
				opts = append(opts, sdk.WithTransport(c.transport))
			}
			var client sdk.Client
			p, err := client.Init(c.cfg, opts...)
			if err != nil {
				return fmt.Errorf("failed to initialize clickstream: %w", err)
			}

			if cmd.Flags().Changed("user-id") {
				p.SetUserID(&userID)
			}
			p.Record(sdk.Event{Name: args[0], Attributes: attributes})
			p.Flush()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			state, err := p.State(ctx)
			if err != nil {
				return err
			}
			if err := client.Shutdown(ctx); err != nil {
				return err
			}

			cmd.Printf("Recorded %s (sequence id %d, session %s)\n", args[0], state.SequenceID, state.Session.ID)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "event attribute as key=value, repeatable")
	cmd.Flags().StringVar(&userID, "user-id", "", "set the user id before recording, empty resets the identity")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultSendTimeout, "how long to wait for delivery")
	return cmd
}

// parseAttributes reads key=value pairs. Values that parse as integers,
// floats or booleans keep that type.
func parseAttributes(pairs []string) (sdk.Attributes, error) {
	attrs := make(sdk.Attributes, 0, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected key=value", pair)
		}
		attrs.Set(key, parseValue(raw))
	}
	return attrs, nil
}

func parseValue(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
