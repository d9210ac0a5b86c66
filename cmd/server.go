package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bacman/api"
	"bacman/api/router/handlers"
	"bacman/config"
	"bacman/logger"

	"github.com/spf13/cobra"
)

var standaloneServerPort string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts only the control API (probes arrive through POST /api/probes)",
	RunE: func(cmd *cobra.Command, args []string) error {
		portToUse := resolvePort(cmd, "port", standaloneServerPort, config.AppConfig.Server.Port, "8778")
		logger.Info("--- Server Command: Run ---")

		rt := newProbeRuntime(loadActivationState())
		server := &http.Server{
			Addr:              ":" + portToUse,
			Handler:           api.NewServerHandler(handlers.Deps{Gate: rt.Gate, Coordinator: rt.Coordinator, Live: rt.Live}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server Command: Graceful shutdown failed: %v", err)
			}
		}()

		logger.Info("Server Command: Listening on :%s (run %s)", portToUse, rt.Coordinator.RunID())
		err := server.ListenAndServe()
		rt.drain()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Could not start server: %v", err)
			return err
		}
		logger.Info("Server Command: Exited.")
		return nil
	},
}

func init() {
	serverCmd.Flags().StringVarP(&standaloneServerPort, "port", "p", "8778", "Port for the API server (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
