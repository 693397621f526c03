package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/grpc"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/httpapi"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/observability"
)

type serveOptions struct {
	oracle   string
	grpcAddr string
	httpAddr string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the negotiation API over gRPC and HTTP",
		Long: `Serve the NegotiationService over gRPC and the REST and websocket API over
HTTP until interrupted. An empty address disables that transport.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.oracle, "oracle", "", "oracle provider override (groq, openai, gemini, offline)")
	f.StringVar(&opts.grpcAddr, "grpc-addr", "", "gRPC listen address (default from server.grpc_addr)")
	f.StringVar(&opts.httpAddr, "http-addr", "", "HTTP listen address (default from server.http_addr)")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootOptions, opts *serveOptions) error {
	ctx := cmd.Context()

	cfg, logger, err := root.loadWithOracle(cmd, opts.oracle)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("grpc-addr") {
		cfg.Server.GRPCAddr = opts.grpcAddr
	}
	if cmd.Flags().Changed("http-addr") {
		cfg.Server.HTTPAddr = opts.httpAddr
	}
	if cfg.Server.GRPCAddr == "" && cfg.Server.HTTPAddr == "" {
		return errors.New("at least one of --grpc-addr and --http-addr is required")
	}
	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second

	if cfg.Server.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName:    cfg.Server.ServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.Server.OTLPEndpoint,
		})
		if err != nil {
			return err
		}
		defer func() {
			tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := shutdownTracer(tctx); err != nil {
				logger.Warn("tracer_shutdown_failed", "error", err.Error())
			}
		}()
	}

	stack, err := newEngineStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	stopCleanup := stack.kernel.StartCleanupLoop(kernel.DefaultCleanupConfig())
	defer stopCleanup()

	logger.Info("consensus_starting",
		"version", version,
		"grpc_addr", cfg.Server.GRPCAddr,
		"http_addr", cfg.Server.HTTPAddr,
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.GRPCAddr != "" {
		srv := grpc.NewGracefulServer(grpc.NewNegotiationServer(stack.kernel, stack.oracle, logger), cfg.Server.GRPCAddr)
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}
	if cfg.Server.HTTPAddr != "" {
		api := httpapi.NewServer(stack.kernel, stack.oracle, newParser(stack.provider, cfg.Oracle.Model, logger), logger)
		g.Go(func() error {
			return api.ListenAndServe(gctx, cfg.Server.HTTPAddr, shutdownTimeout)
		})
	}

	// Closing every session ends the open event streams the graceful stops
	// wait on.
	g.Go(func() error {
		<-gctx.Done()
		kctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := stack.kernel.Shutdown(kctx); err != nil {
			logger.Warn("kernel_shutdown_failed", "error", err.Error())
		}
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("consensus_stopped", "reason", ctx.Err().Error())
		return nil
	}
	return err
}
