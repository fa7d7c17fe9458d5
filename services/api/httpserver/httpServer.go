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

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"

	"github.com/cogment/rag-backend/services/rag"
	"github.com/cogment/rag-backend/version"
)

var log = logrus.WithField("component", "http-server")

var infos = openapi.Info{
	Title: "RAG Backend",
	Description: "Answers questions using the documents of an Azure AI Search index as context" +
		" for an Azure OpenAI chat model.\n" +
		"\n" +
		"The API is composed of two groups of routes:\n" +
		"- [Service](#tag/Service)\n" +
		"- [Query](#tag/Query)\n",
	Version: version.Version,
}

// Querier answers a query, it is implemented by the rag engine.
type Querier interface {
	Query(ctx context.Context, request rag.QueryRequest) (*rag.QueryResponse, error)
}

type Options struct {
	Port       uint
	AuthSecret string
	// Gatherer exposed on /metrics, defaults to the prometheus default gatherer
	Gatherer prometheus.Gatherer
}

type Server struct {
	http.Server
	querier Querier

	gin  *gin.Engine
	fizz *fizz.Fizz
}

func New(querier Querier, options Options) (*Server, error) {
	// Debug mode can be helpful during development
	gin.SetMode(gin.ReleaseMode)

	tonic.SetErrorHook(tonicErrorHook)

	ginEngine := gin.New()
	fizzEngine := fizz.NewFromEngine(ginEngine)

	server := &Server{
		Server: http.Server{
			Addr:    fmt.Sprintf(":%d", options.Port),
			Handler: fizzEngine,
		},
		querier: querier,
		gin:     ginEngine,
		fizz:    fizzEngine,
	}

	server.gin.HandleMethodNotAllowed = true

	// Allows all origins
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders(authorizationHeaderKey, requestIDHeaderKey)
	corsConfig.AddExposeHeaders(requestIDHeaderKey)

	server.fizz.Use(cors.New(corsConfig))

	server.fizz.Use(requestIDMiddleware)

	// Use a custom error handler
	server.fizz.Use(ginErrorHandlerMiddleware)

	// Use the custom logger middleware
	server.fizz.Use(ginLoggerMiddleware)

	// Recovery middleware recovers from any panics and writes a 500 if there was one.
	server.fizz.Use(gin.Recovery())

	serviceGroup := server.fizz.Group(
		"",
		"Service",
		"Information about the running service.",
	)
	serviceGroup.GET("/", []fizz.OperationOption{
		fizz.Summary("Retrieve information about this API"),
	}, tonic.Handler(server.getInfo, http.StatusOK))

	serviceGroup.GET("/health", []fizz.OperationOption{
		fizz.Summary("Check the service health"),
	}, tonic.Handler(server.health, http.StatusOK))

	server.fizz.GET("/openapi.json", []fizz.OperationOption{
		fizz.Summary("Retrieve the open api specification"),
		fizz.Response("500", "Bad server configuration or state", httpError{}, nil, nil),
	}, server.fizz.OpenAPI(&infos, "json"))

	queryGroup := server.fizz.Group(
		"",
		"Query",
		"Ask questions answered from the documents of the search index.",
	)
	queryGroup.Use(makeAuthMiddleware(options.AuthSecret))
	queryGroup.POST("/query", []fizz.OperationOption{
		fizz.Summary("Answer a question"),
		fizz.Description("Retrieve the `top_k` most relevant chunks from the search index " +
			"and generate an answer using them as context.\n" +
			"\n" +
			"When the service is configured with an authentication secret, " +
			"a bearer token is required in the `Authorization` header."),
		fizz.Response("400", "Invalid query", httpError{}, nil, nil),
		fizz.Response("401", "Missing or invalid bearer token", httpError{}, nil, nil),
		fizz.Response("500", "Retrieval or generation failure", httpError{}, nil, nil),
	}, tonic.Handler(server.query, http.StatusOK))

	gatherer := options.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	ginEngine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	ginEngine.NoRoute(func(c *gin.Context) {
		_ = c.AbortWithError(http.StatusNotFound, fmt.Errorf("not found"))
	})

	ginEngine.NoMethod(func(c *gin.Context) {
		_ = c.AbortWithError(http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	})

	return server, nil
}

func (server *Server) GenerateOpenAPISpec(outputFile string) error {
	f, err := os.Create(outputFile)
	if err != nil {
		return err
	}
	defer f.Close()

	server.fizz.Generator().SetInfo(&infos)
	serializedJSON, err := json.MarshalIndent(server.fizz.Generator().API(), "", "\t")
	if err != nil {
		return err
	}
	_, err = f.Write(serializedJSON)
	return err
}

type infoResponse struct {
	Message     string `json:"message" description:"Human-readable response description"`
	Version     string `json:"version" description:"Service version"`
	VersionHash string `json:"version_hash"`
}

func (server *Server) getInfo(*gin.Context) (*infoResponse, error) {
	return &infoResponse{
		Message:     "This is the RAG Backend",
		Version:     version.Version,
		VersionHash: version.Hash,
	}, nil
}

type healthResponse struct {
	Status string `json:"status" description:"Always \"ok\" when the service is able to answer"`
}

func (server *Server) health(*gin.Context) (*healthResponse, error) {
	return &healthResponse{Status: "ok"}, nil
}

type queryRequest struct {
	Query string `json:"query" validate:"required" description:"The question to answer"`
	TopK  *int   `json:"top_k,omitempty" description:"Number of chunks retrieved from the search index, between 1 and 20, defaults to 5"`
}

type queryResponse struct {
	Answer  string   `json:"answer" description:"The generated answer"`
	Sources []string `json:"sources" description:"The distinct chunks used as context"`
}

func (server *Server) query(c *gin.Context, request *queryRequest) (*queryResponse, error) {
	topK := rag.DefaultTopK
	if request.TopK != nil {
		topK = *request.TopK
	}

	res, err := server.querier.Query(c.Request.Context(), rag.QueryRequest{
		Query: request.Query,
		TopK:  topK,
	})
	if err != nil {
		if errors.Is(err, rag.ErrInvalidRequest) {
			return nil, wrapError(http.StatusBadRequest, err)
		}
		return nil, wrapError(
			http.StatusInternalServerError,
			fmt.Errorf("an internal error occurred while processing the request: %w", err),
		)
	}

	return &queryResponse{
		Answer:  res.Answer,
		Sources: res.Sources,
	}, nil
}
