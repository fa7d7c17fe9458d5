// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cogment/rag-backend/clients/api"
)

const (
	statusEndpointKey = "endpoint"
	statusEndpointEnv = "RAG_ENDPOINT"
	statusTimeoutKey  = "timeout"
)

var statusViper = viper.New()

var statusCmd = &cobra.Command{
	Use:          "status",
	Short:        "Check the health of a running RAG backend",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _args []string) error {
		client, err := api.NewClient(statusViper.GetString(statusEndpointKey), "", 0)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), statusViper.GetDuration(statusTimeoutKey))
		defer cancel()

		return runStatus(ctx, cmd.OutOrStdout(), client, statusViper.GetString(statusEndpointKey))
	},
}

func runStatus(ctx context.Context, out io.Writer, client *api.Client, endpoint string) error {
	res, latency, err := client.Health(ctx)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("unable to reach [%s], timeout exceeded", endpoint)
		}
		return fmt.Errorf("unable to reach [%s]: %w", endpoint, err)
	}
	if res.Status != "ok" {
		return fmt.Errorf("[%s] is unhealthy, status is %q", endpoint, res.Status)
	}

	fmt.Fprintf(
		out,
		"[%s] is %s, answered in %s\n",
		endpoint,
		color.GreenString(res.Status),
		humanize.FtoaWithDigits(float64(latency.Microseconds())/1000.0, 2)+"ms",
	)
	return nil
}

func init() {
	statusViper.SetDefault(statusEndpointKey, "http://localhost:8000")
	_ = statusViper.BindEnv(statusEndpointKey, statusEndpointEnv)
	statusCmd.Flags().String(
		statusEndpointKey,
		statusViper.GetString(statusEndpointKey),
		"Base URL of the RAG backend",
	)

	statusViper.SetDefault(statusTimeoutKey, 5*time.Second)
	statusCmd.Flags().Duration(
		statusTimeoutKey,
		statusViper.GetDuration(statusTimeoutKey),
		"Timeout for the health check",
	)

	// Don't sort alphabetically, keep insertion order
	statusCmd.Flags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = statusViper.BindPFlags(statusCmd.Flags())
}
