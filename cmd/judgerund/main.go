// Program judgerund is the judge run service: by default it listens for
// gRPC submissions and spawns isolated worker processes to execute them; run
// with --worker it instead becomes the isolated child itself (the self-exec
// target spawned by internal/worker), and with --worker-test-shell it
// isolates itself and drops into an interactive shell for manual inspection
// of the jail.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/kkloberdanz/judgerun/internal/authn"
	"github.com/kkloberdanz/judgerun/internal/config"
	"github.com/kkloberdanz/judgerun/internal/grpcapi"
	"github.com/kkloberdanz/judgerun/internal/isolation"
	"github.com/kkloberdanz/judgerun/internal/run"
	"github.com/kkloberdanz/judgerun/internal/telemetry"
	"github.com/kkloberdanz/judgerun/internal/workerside"
)

var (
	configPath    string
	workerFlag    bool
	testShellFlag bool
)

func main() {
	telemetry.Init()

	rootCmd := &cobra.Command{
		Use:   "judgerund",
		Short: "judgerund sandboxed code execution service",
		RunE:  runService,
	}
	rootCmd.Flags().StringVar(&configPath, "config", "/etc/judgerund/judgerund.toml", "Path to TOML config file")
	rootCmd.Flags().BoolVar(&workerFlag, "worker", false, "Run as the isolated worker child (internal use)")
	rootCmd.Flags().BoolVar(&testShellFlag, "worker-test-shell", false, "Isolate and exec an interactive shell for manual jail inspection")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runService(cmd *cobra.Command, args []string) error {
	if workerFlag {
		return workerside.Run()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if testShellFlag {
		return workerside.RunTestShell(&cfg.Isolation)
	}

	if err := cfg.Isolation.CompileSeccomp(); err != nil {
		return fmt.Errorf("compile seccomp filter: %w", err)
	}

	_, service, err := isolation.SetupServiceCgroup("judgerun_service", cfg.Isolation.RelaxedDebugProfile)
	if err != nil {
		return fmt.Errorf("setup service cgroup: %w", err)
	}

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("determine own executable path: %w", err)
	}

	manager := run.New(run.WorkerFactory{
		WorkerBinary: binary,
		ParentCgroup: service,
		Isolation:    cfg.Isolation,
	}, nil)

	server := grpcapi.NewServer(manager, cfg.Recipe, cfg.MaxProgramLength)

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	tlsConf, err := loadServerTLS(cfg)
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer(
		grpc.Creds(credentials.NewTLS(tlsConf)),
		grpc.UnaryInterceptor(authn.UnaryInterceptor),
		grpc.StreamInterceptor(authn.StreamInterceptor),
	)
	grpcapi.RegisterServer(grpcServer, server)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		slog.Info("received shutdown signal")
		manager.Shutdown()
		grpcServer.GracefulStop()
	}()

	slog.Info("judgerund listening", "addr", cfg.ListenAddr)
	if err := grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	slog.Info("judgerund finished")
	return nil
}

func loadServerTLS(cfg config.Config) (*tls.Config, error) {
	caCert, err := os.ReadFile(cfg.CAPath)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}
	return authn.ServerTLSConfig(caCert, cert)
}
