package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ekisa-team/ttsd/internal/config"
	"github.com/ekisa-team/ttsd/internal/envvar"
	"github.com/ekisa-team/ttsd/internal/server/grpc"
	httpserver "github.com/ekisa-team/ttsd/internal/server/http"
)

const shutdownTimeout = 10 * time.Second

const (
	flagHTTPPort = "http-port"
	flagGRPCPort = "grpc-port"
)

type serveFlags struct {
	noGRPC bool
	watch  bool
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, root, flags)
		},
	}

	f := cmd.Flags()
	f.Int(flagHTTPPort, config.DefaultHTTPPort,
		fmt.Sprintf("HTTP listen port (overrides config and %s)", envvar.TTSDServerHTTPPort))
	f.Int(flagGRPCPort, config.DefaultGRPCPort,
		fmt.Sprintf("gRPC health listen port (overrides config and %s)", envvar.TTSDServerGRPCPort))
	f.BoolVar(&flags.noGRPC, "no-grpc", false, "Disable the gRPC health server")
	f.BoolVar(&flags.watch, "watch", true, "Reload models when the config file changes")

	return cmd
}

func runServe(cmd *cobra.Command, root *rootFlags, flags *serveFlags) error {
	cfg, err := config.LoadAndValidate(root.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", root.configPath, err)
	}

	httpPort, grpcPort := resolvePorts(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := newRuntime(ctx, cfg, runtimeOptions{archive: true, metrics: true})
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Error("Failed to release runtime", "error", err)
		}
	}()

	handler, _ := httpserver.NewRouter(httpserver.RouterDeps{
		TTS:     rt.tts,
		Bark:    rt.bark,
		Metrics: rt.metrics,
		Server:  cfg.Server,
		Version: version,
	})
	httpSrv := httpserver.NewServer(httpPort, handler)

	var grpcSrv *grpc.Server
	if !flags.noGRPC {
		grpcSrv = grpc.NewServer(grpcPort, rt.tts.Ready)
	}

	if flags.watch {
		watcher, err := config.NewWatcher(root.configPath, onConfigReload(ctx, rt, grpcSrv, root.configPath))
		if err != nil {
			slog.Warn("Config watcher disabled", "path", root.configPath, "error", err)
		} else {
			defer watcher.Close()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpSrv.Start)
	if grpcSrv != nil {
		g.Go(grpcSrv.Start)
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if grpcSrv != nil {
			grpcSrv.Shutdown(shutdownCtx)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info("Servers stopped")
	return nil
}

// resolvePorts returns the listen ports. A flag set on the command line wins over the
// environment, the config file and the defaults.
func resolvePorts(cmd *cobra.Command, cfg *config.Config) (httpPort, grpcPort int) {
	return flagOr(cmd, flagHTTPPort, cfg.HTTPPort()), flagOr(cmd, flagGRPCPort, cfg.GRPCPort())
}

func flagOr(cmd *cobra.Command, name string, fallback int) int {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		return fallback
	}
	return v
}

// onConfigReload reloads models from every accepted config and refreshes gRPC health.
// grpcSrv may be nil.
func onConfigReload(ctx context.Context, rt *runtime, grpcSrv *grpc.Server, path string) func(*config.Config, error) {
	return func(next *config.Config, err error) {
		if err != nil {
			slog.Error("Config reload rejected, keeping previous models", "path", path, "error", err)
			return
		}

		rt.reload(ctx, next)
		if grpcSrv != nil {
			grpcSrv.Refresh()
		}
	}
}
