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

package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mwitkow/go-conntrack"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/cogment/rag-backend/clients/chat"
	"github.com/cogment/rag-backend/clients/search"
	"github.com/cogment/rag-backend/services/api/httpserver"
	"github.com/cogment/rag-backend/services/cache"
	"github.com/cogment/rag-backend/services/cache/bolt"
	"github.com/cogment/rag-backend/services/cache/memory"
	"github.com/cogment/rag-backend/services/rag"
	"github.com/cogment/rag-backend/services/utils"
	"github.com/cogment/rag-backend/utils/tracing"
	"github.com/cogment/rag-backend/version"
)

var log = logrus.WithField("component", "api")

const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheBolt   = "bolt"
)

type Options struct {
	Search      search.Options
	Chat        chat.Options
	Port        uint
	GrpcPort    uint
	Workers     int
	AuthSecret  string
	PromptsFile string
	Cache       string
	CacheSize   int
	CacheTTL    time.Duration
	CacheFile   string
	// OtelEndpoint is the OTLP/HTTP traces endpoint, tracing is disabled when empty
	OtelEndpoint string
	Registerer   prometheus.Registerer
	Gatherer     prometheus.Gatherer
}

var DefaultOptions = Options{
	Search:       search.DefaultOptions,
	Chat:         chat.DefaultOptions,
	Port:         8000,
	GrpcPort:     0,
	Workers:      rag.DefaultOptions.Workers,
	AuthSecret:   "",
	PromptsFile:  "",
	Cache:        CacheNone,
	CacheSize:    256,
	CacheTTL:     10 * time.Minute,
	CacheFile:    ".rag_backend_cache.db",
	OtelEndpoint: "",
}

// CreateCacheBackend returns the configured cache backend, nil when caching is disabled.
func CreateCacheBackend(options Options) (cache.Backend, error) {
	switch options.Cache {
	case "", CacheNone:
		return nil, nil
	case CacheMemory:
		log.WithFields(logrus.Fields{
			"size": options.CacheSize,
			"ttl":  options.CacheTTL,
		}).Info("Using an in-memory answer cache")
		return memory.CreateMemoryBackend(options.CacheSize, options.CacheTTL)
	case CacheBolt:
		log.WithFields(logrus.Fields{
			"file": options.CacheFile,
			"ttl":  options.CacheTTL,
		}).Info("Using a file answer cache")
		return bolt.CreateBoltBackend(options.CacheFile, options.CacheTTL)
	default:
		return nil, fmt.Errorf(
			"unknown cache backend [%s], expecting one of [%s, %s, %s]",
			options.Cache, CacheNone, CacheMemory, CacheBolt,
		)
	}
}

// CreateEngine builds the query engine and its dependencies.
func CreateEngine(options Options, backend cache.Backend) (*rag.Engine, error) {
	prompts := rag.DefaultPrompts
	if options.PromptsFile != "" {
		var err error
		prompts, err = rag.LoadPrompts(options.PromptsFile)
		if err != nil {
			return nil, err
		}
	}

	searchClient, err := search.NewClient(options.Search)
	if err != nil {
		return nil, err
	}

	chatClient, err := chat.NewClient(options.Chat)
	if err != nil {
		return nil, err
	}

	registerer := options.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	metrics, err := rag.NewMetrics(registerer)
	if err != nil {
		return nil, err
	}

	return rag.NewEngine(searchClient, chatClient, rag.Options{
		Workers: options.Workers,
		Prompts: prompts,
		Cache:   backend,
		Metrics: metrics,
	})
}

func Run(ctx context.Context, options Options) error {
	shutdownTracing, err := tracing.Setup(ctx, options.OtelEndpoint, "rag-backend", version.Version)
	if err != nil {
		return fmt.Errorf("unable to setup tracing: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(stopCtx); err != nil {
			log.WithField("error", err).Warning("Error while flushing traces")
		}
	}()

	backend, err := CreateCacheBackend(options)
	if err != nil {
		return err
	}
	if backend != nil {
		defer backend.Destroy()
	}

	engine, err := CreateEngine(options, backend)
	if err != nil {
		return err
	}

	httpServer, err := httpserver.New(engine, httpserver.Options{
		Port:       options.Port,
		AuthSecret: options.AuthSecret,
		Gatherer:   options.Gatherer,
	})
	if err != nil {
		return err
	}

	var grpcServer *grpc.Server
	var healthServer *health.Server
	var grpcListener net.Listener
	if options.GrpcPort > 0 {
		grpcListener, err = net.Listen("tcp", fmt.Sprintf(":%d", options.GrpcPort))
		if err != nil {
			return fmt.Errorf("unable to listen to tcp port %d: %v", options.GrpcPort, err)
		}
		grpcServer = utils.NewGrpcServer(false)
		healthServer = utils.RegisterHealthServer(grpcServer)
	}

	httpListener, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("unable to listen to tcp port %d: %v", options.Port, err)
	}
	httpPort, err := utils.ExtractPort(httpListener.Addr().String())
	if err != nil {
		return err
	}
	// Accepted and closed connections are exposed on /metrics
	httpListener = conntrack.NewListener(httpListener, conntrack.TrackWithName("http"))

	group, ctx := errgroup.WithContext(ctx)

	if grpcServer != nil {
		group.Go(func() error {
			log.WithField("grpc_port", options.GrpcPort).Info("grpc health server listening")
			if err := grpcServer.Serve(grpcListener); err != nil {
				return fmt.Errorf("unexpected error while serving grpc services: %v", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		log.WithFields(logrus.Fields{
			"port":    httpPort,
			"workers": options.Workers,
		}).Info("http server listening")
		if err := httpServer.Serve(httpListener); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("unexpected error while serving http routes: %v", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("Gracefully stopping")

		if healthServer != nil {
			healthServer.Shutdown()
		}

		stopGroup, stopCtx := errgroup.WithContext(context.Background())
		stopGroup.Go(func() error {
			log.Debug("Stopping the http server")
			stopCtx, cancel := context.WithTimeout(stopCtx, 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(stopCtx)
		})

		if grpcServer != nil {
			stopGroup.Go(func() error {
				log.Debug("Stopping the grpc server")
				stopCtx, cancel := context.WithTimeout(stopCtx, 5*time.Second)
				defer cancel()
				return utils.StopGrpcServer(stopCtx, grpcServer)
			})
		}

		if err := stopGroup.Wait(); err != nil {
			log.WithField("error", err).Warning("Error while stopping")
		}
		return ctx.Err()
	})

	return group.Wait()
}
