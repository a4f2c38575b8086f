// Copyright (C) 2025 Moats AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/moats-ai/moats/services/llm"
	"github.com/moats-ai/moats/services/verifier/core"
	"github.com/moats-ai/moats/services/verifier/nlp"
	"github.com/moats-ai/moats/services/verifier/retrieval"
	"github.com/moats-ai/moats/services/verifier/routes"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "moats-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("verifier-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient builds the vector store client. The verifier has
// no lightweight mode: retrieval is the whole point, so a missing or
// invalid URL is fatal.
func newWeaviateClient() *weaviate.Client {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" {
		log.Fatal("FATAL: WEAVIATE_SERVICE_URL is not set")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		log.Fatalf("FATAL: WEAVIATE_SERVICE_URL is invalid: %q", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to create Weaviate client: %v", err)
	}
	return client
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		slog.Warn("Invalid integer environment variable, keeping default",
			"name", name, "value", raw, "default", fallback)
		return fallback
	}
	return value
}

func main() {
	port := os.Getenv("VERIFIER_PORT")
	if port == "" {
		port = "12310"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	weaviateClient := newWeaviateClient()

	log.Println("Configuring the LLM backend")
	backend, err := llm.NewBackend()
	if err != nil {
		log.Fatalf("Failed to initialize LLM backend: %v", err)
	}

	tagger, err := nlp.NewTagger()
	if err != nil {
		log.Fatalf("Failed to initialize NLP tagger: %v", err)
	}

	reranker, err := retrieval.NewHTTPReranker()
	if err != nil {
		log.Fatalf("Failed to initialize reranker: %v", err)
	}
	var retrieverReranker retrieval.Reranker
	if reranker != nil {
		retrieverReranker = reranker
	}
	retriever := retrieval.NewWeaviateRetriever(weaviateClient, backend, retrieverReranker)

	pipeline := core.NewPipeline(
		core.NewSegmenter(tagger),
		core.NewExtractor(tagger),
		retriever,
		core.NewComparator(0),
		core.NewVerdictGenerator(backend),
		core.PipelineConfig{
			TopK:    envInt("VERIFIER_TOP_K", 5),
			Workers: envInt("VERIFIER_WORKERS", 4),
		},
	)

	router := gin.Default()
	router.Use(otelgin.Middleware("verifier-service"))

	routes.SetupRoutes(router, pipeline)

	log.Println("Starting the verifier server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
