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

package client

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/openlyinc/pointy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cogment/rag-backend/clients/api"
)

// queryViper represents the configuration of the `rag-backend client query` command
var queryViper = viper.New()

const (
	queryEndpointKey = "endpoint"
	queryEndpointEnv = "RAG_ENDPOINT"
	queryTokenKey    = "token"
	queryTokenEnv    = "RAG_TOKEN"
	queryTopKKey     = "top_k"
	// Sources longer than this are truncated in the text output
	maxSourceWidth = 120
)

func init() {
	queryViper.SetDefault(queryEndpointKey, "http://localhost:8000")
	_ = queryViper.BindEnv(queryEndpointKey, queryEndpointEnv)
	queryCmd.Flags().String(
		queryEndpointKey,
		queryViper.GetString(queryEndpointKey),
		"Base URL of the RAG backend",
	)

	_ = queryViper.BindEnv(queryTokenKey, queryTokenEnv)
	queryCmd.Flags().String(
		queryTokenKey,
		"",
		"Bearer token, required when the RAG backend has authentication enabled",
	)

	queryViper.SetDefault(queryTopKKey, 0)
	queryCmd.Flags().Int(
		queryTopKKey,
		queryViper.GetInt(queryTopKKey),
		"Number of chunks used as context, the RAG backend default is used when 0",
	)

	// Don't sort alphabetically, keep insertion order
	queryCmd.Flags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = queryViper.BindPFlags(queryCmd.Flags())
}

// queryCmd represents the `rag-backend client query` command
var queryCmd = &cobra.Command{
	Use:          "query <question>",
	Short:        "Ask a question to a running RAG backend",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		consoleOutputFormat, err := retrieveConsoleOutputFormat()
		if err != nil {
			return err
		}

		var topK *int
		if value := queryViper.GetInt(queryTopKKey); value != 0 {
			topK = pointy.Int(value)
		}

		client, err := api.NewClient(
			queryViper.GetString(queryEndpointKey),
			queryViper.GetString(queryTokenKey),
			clientViper.GetDuration(clientTimeoutKey),
		)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), clientViper.GetDuration(clientTimeoutKey))
		defer cancel()

		res, err := client.Query(ctx, strings.Join(args, " "), topK)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("timeout (%v) exceeded", clientViper.GetDuration(clientTimeoutKey))
			}
			return err
		}

		return renderQueryResponse(cmd.OutOrStdout(), consoleOutputFormat, res)
	},
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-3]) + "..."
}

func renderQueryResponse(out io.Writer, format consoleOutputFormat, res *api.QueryResponse) error {
	switch format {
	case text:
		fmt.Fprintln(out, res.Answer)
		if len(res.Sources) == 0 {
			return nil
		}
		fmt.Fprintln(out)

		table := tablewriter.NewWriter(out)
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		table.SetHeader([]string{"#", "source"})
		for index, source := range res.Sources {
			table.Append([]string{
				fmt.Sprintf("%d", index+1),
				truncate(source, maxSourceWidth),
			})
		}
		table.SetCaption(true, fmt.Sprintf("%d sources", len(res.Sources)))
		table.Render()
	case json:
		return renderJSON(out, res)
	}
	return nil
}
