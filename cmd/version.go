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
	"fmt"
	"runtime"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/cogment/rag-backend/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the RAG backend",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), formatVersion())
	},
}

func formatVersion() string {
	return columnize.SimpleFormat([]string{
		"version|" + version.Version,
		"hash|" + version.Hash,
		"go|" + runtime.Version(),
		"platform|" + runtime.GOOS + "/" + runtime.GOARCH,
	})
}
