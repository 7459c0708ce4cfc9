package cmd

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
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/auth"
	"github.com/ziadkadry99/docqa/internal/server"
)

var (
	serverPort     int
	serverAllowAll bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the docqa HTTP API",
	Long: `Starts the docqa REST API: authentication, document upload, processing,
deletion and listing, and question answering over each tenant's documents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctx, a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		tokens, err := auth.NewTokens([]byte(a.cfg.Auth.JWTSecret), a.cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("%w\nSet auth.jwt_secret in %s or DOCQA_AUTH__JWT_SECRET", err, cfgFile)
		}

		// Files left mid-processing by a previous run go back to staging.
		if n, err := a.manager.RecoverInterrupted(ctx); err != nil {
			a.log.Warn("recovering interrupted files", zap.Error(err))
		} else if n > 0 {
			a.log.Info("recovered interrupted files", zap.Int("count", n))
		}

		if keep := a.cfg.Log.AuditRetention; keep > 0 {
			n, err := a.audit.DeleteBefore(ctx, time.Now().Add(-keep))
			if err != nil {
				a.log.Warn("pruning audit entries", zap.Error(err))
			} else if n > 0 {
				a.log.Info("pruned audit entries", zap.Int64("count", n), zap.Duration("retention", keep))
			}
		}

		port := a.cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = serverPort
		}

		srv := server.New(server.Config{
			Port:              port,
			AllowAll:          serverAllowAll || a.cfg.Server.AllowAllOrigins,
			RequestTimeout:    a.cfg.Server.RequestTimeout,
			AllowRegistration: a.cfg.Auth.AllowRegistration,
		}, server.Deps{
			Ingest:   a.manager,
			Answerer: a.answerer,
			Users:    auth.NewStore(a.db),
			Tokens:   tokens,
			Audit:    a.audit,
			Logger:   a.log,
		})

		go func() {
			<-ctx.Done()
			a.log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Warn("shutdown", zap.Error(err))
			}
		}()

		a.log.Info("docqa starting",
			zap.String("version", Version),
			zap.String("data_dir", a.cfg.DataDir),
			zap.Bool("llm_configured", a.answerer.Configured()),
		)

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "port to listen on (overrides server.port)")
	serverCmd.Flags().BoolVar(&serverAllowAll, "allow-all-origins", false, "allow every CORS origin")
	rootCmd.AddCommand(serverCmd)
}
