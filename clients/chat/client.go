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

package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "chat-client")

var ErrNoChoices = errors.New("chat completion returned no choices")

type Options struct {
	Endpoint   string
	APIVersion string
	// Model is the name of the Azure OpenAI deployment
	Model     string
	APIKey    string
	MaxTokens int
	// Credential is used when no APIKey is set, it defaults to the Azure default credential chain
	Credential azcore.TokenCredential
	HTTPClient *http.Client
	MaxRetries int
	Timeout    time.Duration
}

var DefaultOptions = Options{
	APIVersion: "2024-02-01",
	Model:      "embedding-deploy",
	MaxTokens:  800,
	MaxRetries: 2,
	Timeout:    60 * time.Second,
}

type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat completion failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat completion failed with status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	client    openai.Client
	model     string
	maxTokens int
}

func NewClient(options Options) (*Client, error) {
	if options.Endpoint == "" {
		return nil, fmt.Errorf("azure openai endpoint is required")
	}
	if options.APIVersion == "" {
		options.APIVersion = DefaultOptions.APIVersion
	}
	if options.Model == "" {
		options.Model = DefaultOptions.Model
	}
	if options.MaxTokens <= 0 {
		options.MaxTokens = DefaultOptions.MaxTokens
	}

	requestOptions := []option.RequestOption{
		azure.WithEndpoint(strings.TrimRight(options.Endpoint, "/"), options.APIVersion),
		option.WithMaxRetries(options.MaxRetries),
	}

	if options.APIKey != "" {
		log.Debug("authenticating to azure openai using an api key")
		requestOptions = append(requestOptions, azure.WithAPIKey(options.APIKey))
	} else {
		credential := options.Credential
		if credential == nil {
			log.Debug("authenticating to azure openai using the default azure credential")
			defaultCredential, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return nil, fmt.Errorf("unable to create the default azure credential: %w", err)
			}
			credential = defaultCredential
		}
		requestOptions = append(requestOptions, azure.WithTokenCredential(credential))
	}

	if options.HTTPClient != nil {
		requestOptions = append(requestOptions, option.WithHTTPClient(options.HTTPClient))
	}
	if options.Timeout > 0 {
		requestOptions = append(requestOptions, option.WithRequestTimeout(options.Timeout))
	}

	return &Client{
		client:    openai.NewClient(requestOptions...),
		model:     options.Model,
		maxTokens: options.MaxTokens,
	}, nil
}

// CompleteWithSystem sends a system and a user message and returns the trimmed content of the first choice.
func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt string, userPrompt string) (string, error) {
	start := time.Now()

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxTokens: openai.Int(int64(c.maxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &ResponseError{
				StatusCode: apiErr.StatusCode,
				Message:    apiErr.Message,
			}
		}
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}

	log.WithFields(logrus.Fields{
		"model":             c.model,
		"prompt_tokens":     completion.Usage.PromptTokens,
		"completion_tokens": completion.Usage.CompletionTokens,
		"duration":          time.Since(start),
	}).Debug("chat completion done")

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
