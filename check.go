package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

type endpointCheck struct {
	name   string
	path   string
	params url.Values
}

func newCheckCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Call each WHOOP endpoint once and report whether it answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			client := NewWhoopClient(cfg.ClientConfig(), WithLogger(logger))
			failed := runChecks(cmd.Context(), client, endpointChecks(time.Now(), days), cmd.OutOrStdout())
			if failed > 0 {
				return fmt.Errorf("%d endpoint check(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "look-back window for collection endpoints")
	return cmd
}

func endpointChecks(now time.Time, days int) []endpointCheck {
	params := url.Values{}
	params.Set("limit", "5")
	params.Set("start", now.AddDate(0, 0, -days).UTC().Format(time.RFC3339))
	params.Set("end", now.UTC().Format(time.RFC3339))

	return []endpointCheck{
		{name: "User Profile", path: "/v2/user/profile/basic"},
		{name: "Body Measurement", path: "/v2/user/measurement/body"},
		{name: "Recovery Data", path: "/v2/recovery", params: params},
		{name: "Sleep Data", path: "/v2/activity/sleep", params: params},
		{name: "Workout Data", path: "/v2/activity/workout", params: params},
		{name: "Cycle Data", path: "/v2/cycle", params: params},
	}
}

// runChecks reports one line per endpoint and returns the number of failures.
func runChecks(ctx context.Context, client *WhoopClient, checks []endpointCheck, out io.Writer) int {
	failed := 0
	for i, check := range checks {
		fmt.Fprintf(out, "%d. %s: GET %s ", i+1, check.name, check.path)

		data, err := client.Get(ctx, check.path, check.params)
		if err != nil {
			failed++
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				fmt.Fprintf(out, "❌ HTTP %d: %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				fmt.Fprintf(out, "❌ %v\n", err)
			}
			continue
		}

		if records, err := recordsOf(data); err == nil && records != nil {
			fmt.Fprintf(out, "✅ %d record(s)\n", len(records))
		} else {
			fmt.Fprintf(out, "✅ %d field(s)\n", len(data))
		}
	}
	return failed
}
