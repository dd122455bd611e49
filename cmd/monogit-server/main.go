// Command monogit-server wires configuration, the object store, the
// pack-exchange protocol, and the HTTP/SSH transports together into a
// running server (spec.md §6).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/grafana/monogit/internal/config"
	"github.com/grafana/monogit/internal/logging"
	"github.com/grafana/monogit/log"
	"github.com/grafana/monogit/store"
	transporthttp "github.com/grafana/monogit/transport/http"
	transportssh "github.com/grafana/monogit/transport/ssh"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	var jsonLogs bool

	cmd := &cobra.Command{
		Use:   "monogit-server",
		Short: "Serve git-upload-pack/git-receive-pack over HTTP and SSH",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(logLevel, jsonLogs)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "emit logs as JSON")

	return cmd
}

func run(logLevel string, jsonLogs bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logLevel, jsonLogs)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = log.ToContext(ctx, logger)

	objStore, err := store.OpenSQLStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening object store: %w", err)
	}
	defer objStore.Close()

	httpHandler := &transporthttp.Server{Store: objStore, Logger: logger}
	httpSrv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: httpHandler.Router(),
	}

	sshSrv := &transportssh.Server{Store: objStore, Logger: logger, HostKeyDir: cfg.SSHRoot}
	sshAddr := sshListenAddr(cfg)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Addr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		logger.Info("ssh server listening", "addr", sshAddr)
		if err := sshSrv.Listen(groupCtx, sshAddr); err != nil {
			return fmt.Errorf("ssh server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// sshListenAddr picks the SSH bind address: HOST on the fixed port 2222.
// The environment carries no SSH port setting, and the port is not derived
// from PORT.
func sshListenAddr(cfg *config.Config) string {
	return cfg.Host + ":2222"
}
