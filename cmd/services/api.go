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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cogment/rag-backend/cmd/services/utils"
	"github.com/cogment/rag-backend/services/api"
	"github.com/cogment/rag-backend/version"
)

// apiViper represents the configuration of the api command
var apiViper = viper.New()

const (
	apiSearchEndpointKey   = "azure_search_endpoint"
	apiSearchEndpointEnv   = "AZURE_SEARCH_ENDPOINT"
	apiSearchKeyKey        = "azure_search_key"
	apiSearchKeyEnv        = "AZURE_SEARCH_KEY"
	apiSearchIndexKey      = "azure_search_index_name"
	apiSearchIndexEnv      = "AZURE_SEARCH_INDEX_NAME"
	apiSearchVersionKey    = "azure_search_api_version"
	apiSearchVersionEnv    = "AZURE_SEARCH_API_VERSION"
	apiSearchChunkFieldKey = "azure_search_chunk_field"
	apiSearchChunkFieldEnv = "AZURE_SEARCH_CHUNK_FIELD"
	apiOpenAIEndpointKey   = "azure_openai_endpoint"
	apiOpenAIEndpointEnv   = "AZURE_OPENAI_ENDPOINT"
	apiOpenAIVersionKey    = "azure_openai_api_version"
	apiOpenAIVersionEnv    = "AZURE_OPENAI_API_VERSION"
	apiOpenAIModelKey      = "azure_openai_model"
	apiOpenAIModelEnv      = "AZURE_OPENAI_MODEL"
	apiOpenAIKeyKey        = "azure_openai_api_key"
	apiOpenAIKeyEnv        = "AZURE_OPENAI_API_KEY"
	apiMaxTokensKey        = "max_tokens"
	apiMaxTokensEnv        = "RAG_MAX_TOKENS"
	apiPortKey             = "port"
	apiPortEnv             = "RAG_PORT"
	apiGrpcPortKey         = "grpc_port"
	apiGrpcPortEnv         = "RAG_GRPC_PORT"
	apiWorkersKey          = "workers"
	apiWorkersEnv          = "RAG_WORKERS"
	apiAuthSecretKey       = "auth_secret"
	apiAuthSecretEnv       = "RAG_AUTH_SECRET"
	apiPromptsFileKey      = "prompts_file"
	apiPromptsFileEnv      = "RAG_PROMPTS_FILE"
	apiCacheKey            = "cache"
	apiCacheEnv            = "RAG_CACHE"
	apiCacheSizeKey        = "cache_size"
	apiCacheSizeEnv        = "RAG_CACHE_SIZE"
	apiCacheTTLKey         = "cache_ttl"
	apiCacheTTLEnv         = "RAG_CACHE_TTL"
	apiCacheFileKey        = "cache_file"
	apiCacheFileEnv        = "RAG_CACHE_FILE"
	apiOtelEndpointKey     = "otel_endpoint"
	apiOtelEndpointEnv     = "RAG_OTEL_ENDPOINT"
	apiEnvFileKey          = "env_file"
	apiEnvFileEnv          = "RAG_ENV_FILE"
	apiDefaultEnvFile      = ".env"
)

type apiSetting struct {
	key      string
	env      string
	required bool
}

// Settings that can also be defined in the dotenv file, under their environment variable name
var apiSettings = []apiSetting{
	{apiSearchEndpointKey, apiSearchEndpointEnv, true},
	{apiSearchKeyKey, apiSearchKeyEnv, true},
	{apiSearchIndexKey, apiSearchIndexEnv, true},
	{apiSearchVersionKey, apiSearchVersionEnv, false},
	{apiSearchChunkFieldKey, apiSearchChunkFieldEnv, false},
	{apiOpenAIEndpointKey, apiOpenAIEndpointEnv, true},
	{apiOpenAIVersionKey, apiOpenAIVersionEnv, false},
	{apiOpenAIModelKey, apiOpenAIModelEnv, false},
	{apiOpenAIKeyKey, apiOpenAIKeyEnv, false},
	{apiMaxTokensKey, apiMaxTokensEnv, false},
	{apiPortKey, apiPortEnv, false},
	{apiGrpcPortKey, apiGrpcPortEnv, false},
	{apiWorkersKey, apiWorkersEnv, false},
	{apiAuthSecretKey, apiAuthSecretEnv, false},
	{apiPromptsFileKey, apiPromptsFileEnv, false},
	{apiCacheKey, apiCacheEnv, false},
	{apiCacheSizeKey, apiCacheSizeEnv, false},
	{apiCacheTTLKey, apiCacheTTLEnv, false},
	{apiCacheFileKey, apiCacheFileEnv, false},
	{apiOtelEndpointKey, apiOtelEndpointEnv, false},
}

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the RAG backend http api",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _args []string) error {
		err := configureLog(servicesViper)
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"version": version.Version,
			"hash":    version.Hash,
		}).Info("starting the rag backend api")

		err = loadEnvFile(apiViper, afero.NewOsFs(), apiViper.GetString(apiEnvFileKey))
		if err != nil {
			return err
		}

		options, err := makeAPIOptions(apiViper)
		if err != nil {
			return err
		}

		ctx := utils.ContextWithUserTermination(context.Background())

		err = api.Run(ctx, options)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("interrupted by user")
				return nil
			}
			return err
		}
		return nil
	},
}

// loadEnvFile applies the settings of a dotenv file as defaults, environment
// variables and flags keep precedence. A missing file is ignored.
func loadEnvFile(cfg *viper.Viper, fs afero.Fs, path string) error {
	if path == "" {
		return nil
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return err
	}
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return fmt.Errorf("unable to access env file %q: %w", path, err)
	}
	if !exists {
		log.WithField("path", path).Debug("No env file found")
		return nil
	}

	fileViper := viper.New()
	fileViper.SetFs(fs)
	fileViper.SetConfigFile(path)
	fileViper.SetConfigType("env")
	if err := fileViper.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read env file %q: %w", path, err)
	}

	loaded := 0
	for _, setting := range apiSettings {
		fileKey := strings.ToLower(setting.env)
		if fileViper.IsSet(fileKey) {
			cfg.SetDefault(setting.key, fileViper.Get(fileKey))
			loaded++
		}
	}
	log.WithFields(logrus.Fields{
		"path":     path,
		"settings": loaded,
	}).Debug("Env file loaded")
	return nil
}

func checkRequiredSettings(cfg *viper.Viper) error {
	missing := []string{}
	for _, setting := range apiSettings {
		if setting.required && strings.TrimSpace(cfg.GetString(setting.key)) == "" {
			missing = append(missing, fmt.Sprintf("%s (%s)", setting.key, setting.env))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func makeAPIOptions(cfg *viper.Viper) (api.Options, error) {
	if err := checkRequiredSettings(cfg); err != nil {
		return api.Options{}, err
	}

	options := api.DefaultOptions

	options.Search.Endpoint = cfg.GetString(apiSearchEndpointKey)
	options.Search.Key = cfg.GetString(apiSearchKeyKey)
	options.Search.IndexName = cfg.GetString(apiSearchIndexKey)
	options.Search.APIVersion = cfg.GetString(apiSearchVersionKey)
	options.Search.ChunkField = cfg.GetString(apiSearchChunkFieldKey)

	options.Chat.Endpoint = cfg.GetString(apiOpenAIEndpointKey)
	options.Chat.APIVersion = cfg.GetString(apiOpenAIVersionKey)
	options.Chat.Model = cfg.GetString(apiOpenAIModelKey)
	options.Chat.APIKey = cfg.GetString(apiOpenAIKeyKey)
	options.Chat.MaxTokens = cfg.GetInt(apiMaxTokensKey)

	options.Port = cfg.GetUint(apiPortKey)
	options.GrpcPort = cfg.GetUint(apiGrpcPortKey)
	options.Workers = cfg.GetInt(apiWorkersKey)
	options.AuthSecret = cfg.GetString(apiAuthSecretKey)
	promptsFile, err := homedir.Expand(cfg.GetString(apiPromptsFileKey))
	if err != nil {
		return api.Options{}, err
	}
	options.PromptsFile = promptsFile
	options.Cache = cfg.GetString(apiCacheKey)
	options.CacheSize = cfg.GetInt(apiCacheSizeKey)
	options.CacheTTL = cfg.GetDuration(apiCacheTTLKey)
	cacheFile, err := homedir.Expand(cfg.GetString(apiCacheFileKey))
	if err != nil {
		return api.Options{}, err
	}
	options.CacheFile = cacheFile
	options.OtelEndpoint = cfg.GetString(apiOtelEndpointKey)

	if options.Workers <= 0 {
		return api.Options{}, fmt.Errorf(
			"invalid argument \"--%s\" specified, expected a strictly positive number",
			apiWorkersKey,
		)
	}
	if options.Chat.MaxTokens <= 0 {
		return api.Options{}, fmt.Errorf(
			"invalid argument \"--%s\" specified, expected a strictly positive number",
			apiMaxTokensKey,
		)
	}

	return options, nil
}

func populateAPIFlags(cfg *viper.Viper, flags *pflag.FlagSet) {
	defaults := api.DefaultOptions

	_ = cfg.BindEnv(apiSearchEndpointKey, apiSearchEndpointEnv)
	flags.String(apiSearchEndpointKey, "", "Azure AI Search service endpoint")

	_ = cfg.BindEnv(apiSearchKeyKey, apiSearchKeyEnv)
	flags.String(apiSearchKeyKey, "", "Azure AI Search api key")

	_ = cfg.BindEnv(apiSearchIndexKey, apiSearchIndexEnv)
	flags.String(apiSearchIndexKey, "", "Azure AI Search index queried for context")

	cfg.SetDefault(apiSearchVersionKey, defaults.Search.APIVersion)
	_ = cfg.BindEnv(apiSearchVersionKey, apiSearchVersionEnv)
	flags.String(apiSearchVersionKey, cfg.GetString(apiSearchVersionKey), "Azure AI Search api version")

	cfg.SetDefault(apiSearchChunkFieldKey, defaults.Search.ChunkField)
	_ = cfg.BindEnv(apiSearchChunkFieldKey, apiSearchChunkFieldEnv)
	flags.String(
		apiSearchChunkFieldKey,
		cfg.GetString(apiSearchChunkFieldKey),
		"Index document field holding the text chunk",
	)

	_ = cfg.BindEnv(apiOpenAIEndpointKey, apiOpenAIEndpointEnv)
	flags.String(apiOpenAIEndpointKey, "", "Azure OpenAI service endpoint")

	cfg.SetDefault(apiOpenAIVersionKey, defaults.Chat.APIVersion)
	_ = cfg.BindEnv(apiOpenAIVersionKey, apiOpenAIVersionEnv)
	flags.String(apiOpenAIVersionKey, cfg.GetString(apiOpenAIVersionKey), "Azure OpenAI api version")

	cfg.SetDefault(apiOpenAIModelKey, defaults.Chat.Model)
	_ = cfg.BindEnv(apiOpenAIModelKey, apiOpenAIModelEnv)
	flags.String(apiOpenAIModelKey, cfg.GetString(apiOpenAIModelKey), "Azure OpenAI chat model deployment")

	_ = cfg.BindEnv(apiOpenAIKeyKey, apiOpenAIKeyEnv)
	flags.String(
		apiOpenAIKeyKey,
		"",
		"Azure OpenAI api key, the Azure default credential is used when empty",
	)

	cfg.SetDefault(apiMaxTokensKey, defaults.Chat.MaxTokens)
	_ = cfg.BindEnv(apiMaxTokensKey, apiMaxTokensEnv)
	flags.Int(apiMaxTokensKey, cfg.GetInt(apiMaxTokensKey), "Maximum number of tokens of a generated answer")

	cfg.SetDefault(apiPortKey, defaults.Port)
	_ = cfg.BindEnv(apiPortKey, apiPortEnv)
	flags.Uint(apiPortKey, cfg.GetUint(apiPortKey), "The http port to listen on")

	cfg.SetDefault(apiGrpcPortKey, defaults.GrpcPort)
	_ = cfg.BindEnv(apiGrpcPortKey, apiGrpcPortEnv)
	flags.Uint(apiGrpcPortKey, cfg.GetUint(apiGrpcPortKey), "The gRPC health port to listen on, disabled when 0")

	cfg.SetDefault(apiWorkersKey, defaults.Workers)
	_ = cfg.BindEnv(apiWorkersKey, apiWorkersEnv)
	flags.Int(apiWorkersKey, cfg.GetInt(apiWorkersKey), "Maximum number of queries processed concurrently")

	_ = cfg.BindEnv(apiAuthSecretKey, apiAuthSecretEnv)
	flags.String(
		apiAuthSecretKey,
		"",
		"Secret used to verify the bearer tokens, authentication is disabled when empty",
	)

	_ = cfg.BindEnv(apiPromptsFileKey, apiPromptsFileEnv)
	flags.String(apiPromptsFileKey, "", "YAML file overriding the built-in prompts")

	cfg.SetDefault(apiCacheKey, defaults.Cache)
	_ = cfg.BindEnv(apiCacheKey, apiCacheEnv)
	flags.String(
		apiCacheKey,
		cfg.GetString(apiCacheKey),
		fmt.Sprintf("Answer cache as one of [%s, %s, %s]", api.CacheNone, api.CacheMemory, api.CacheBolt),
	)

	cfg.SetDefault(apiCacheSizeKey, defaults.CacheSize)
	_ = cfg.BindEnv(apiCacheSizeKey, apiCacheSizeEnv)
	flags.Int(apiCacheSizeKey, cfg.GetInt(apiCacheSizeKey), "Maximum number of answers in the memory cache")

	cfg.SetDefault(apiCacheTTLKey, defaults.CacheTTL)
	_ = cfg.BindEnv(apiCacheTTLKey, apiCacheTTLEnv)
	flags.Duration(apiCacheTTLKey, cfg.GetDuration(apiCacheTTLKey), "Lifetime of the cached answers, 0 to never expire")

	cfg.SetDefault(apiCacheFileKey, defaults.CacheFile)
	_ = cfg.BindEnv(apiCacheFileKey, apiCacheFileEnv)
	flags.String(apiCacheFileKey, cfg.GetString(apiCacheFileKey), "File of the bolt cache")

	_ = cfg.BindEnv(apiOtelEndpointKey, apiOtelEndpointEnv)
	flags.String(apiOtelEndpointKey, "", "OTLP/HTTP endpoint receiving the traces, tracing is disabled when empty")

	cfg.SetDefault(apiEnvFileKey, apiDefaultEnvFile)
	_ = cfg.BindEnv(apiEnvFileKey, apiEnvFileEnv)
	flags.String(apiEnvFileKey, cfg.GetString(apiEnvFileKey), "Dotenv file defining settings, ignored when missing")

	// Don't sort alphabetically, keep insertion order
	flags.SortFlags = false

	// Bind "cobra" flags defined in the CLI with viper
	_ = cfg.BindPFlags(flags)
}

func init() {
	populateAPIFlags(apiViper, apiCmd.Flags())
}
