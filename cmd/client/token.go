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
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cogment/rag-backend/services/api/httpserver"
)

// tokenViper represents the configuration of the `rag-backend client token` command
var tokenViper = viper.New()

const (
	tokenSubjectKey = "subject"
	tokenSecretKey  = "secret"
	tokenSecretEnv  = "RAG_AUTH_SECRET"
	tokenTTLKey     = "ttl"
)

func init() {
	tokenViper.SetDefault(tokenSubjectKey, "rag-backend-client")
	tokenCmd.Flags().String(
		tokenSubjectKey,
		tokenViper.GetString(tokenSubjectKey),
		"Subject of the token",
	)

	_ = tokenViper.BindEnv(tokenSecretKey, tokenSecretEnv)
	tokenCmd.Flags().String(
		tokenSecretKey,
		"",
		"Secret used to sign the token, it must match the RAG backend auth secret",
	)

	tokenViper.SetDefault(tokenTTLKey, 24*time.Hour)
	tokenCmd.Flags().Duration(
		tokenTTLKey,
		tokenViper.GetDuration(tokenTTLKey),
		"Validity duration of the token, 0 for a token that never expires",
	)

	// Don't sort alphabetically, keep insertion order
	tokenCmd.Flags().SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = tokenViper.BindPFlags(tokenCmd.Flags())
}

// tokenCmd represents the `rag-backend client token` command
var tokenCmd = &cobra.Command{
	Use:          "token",
	Short:        "Generate a bearer token for the RAG backend",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _args []string) error {
		consoleOutputFormat, err := retrieveConsoleOutputFormat()
		if err != nil {
			return err
		}

		token, err := httpserver.MakeAndSerializeToken(
			tokenViper.GetString(tokenSubjectKey),
			tokenViper.GetString(tokenSecretKey),
			tokenViper.GetDuration(tokenTTLKey),
		)
		if err != nil {
			return err
		}

		switch consoleOutputFormat {
		case text:
			fmt.Fprintln(cmd.OutOrStdout(), token)
		case json:
			return renderJSON(cmd.OutOrStdout(), map[string]string{"token": token})
		}
		return nil
	},
}
