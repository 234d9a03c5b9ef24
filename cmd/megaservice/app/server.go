// Package app provides the megaservice application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/kart-io/megaservice/cmd/megaservice/app/options"
	megasvc "github.com/kart-io/megaservice/internal/megaservice"
	"github.com/kart-io/megaservice/pkg/infra/app"
	"github.com/kart-io/megaservice/pkg/infra/config"
)

// commandDesc is the description of the command.
const commandDesc = `ChatQnA Megaservice

Orchestrates the embedding, retriever, rerank, LLM and guardrail
microservices into a single RAG question answering endpoint.

This server provides:
  - OpenAI compatible /v1/chatqna with streaming answers
  - Conversation history stored in MongoDB
  - Optional Redis answer cache and etcd registration for Traefik`

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	var application *app.App
	application = app.NewApp(
		app.WithName(megasvc.Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return run(opts, application.Viper())
		}),
	)
	return application
}

// run contains the main logic for initializing and running the server.
func run(opts *options.ServerOptions, v *viper.Viper) error {
	cfg, err := opts.Config()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Watcher = config.NewWatcher(v)

	ctx := setupSignalContext()

	server, err := cfg.NewServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return server.Run(ctx)
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}
