package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bacman/api"
	"bacman/api/router/handlers"
	"bacman/config"
	"bacman/core"
	"bacman/logger"

	"github.com/spf13/cobra"
)

var (
	startServerPort string
	startProxyPort  string
	startActive     bool
)

// resolvePort picks flag > config > fallback.
func resolvePort(cmd *cobra.Command, flagName, flagValue, configValue, fallback string) string {
	port := flagValue
	if !cmd.Flags().Changed(flagName) {
		port = configValue
	}
	if port == "" {
		logger.Error("Port for --%s is empty after checking flag and config, defaulting to %s", flagName, fallback)
		port = fallback
	}
	return port
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the probing proxy and the control API",
	Long: `Starts the MITM proxy that replays intercepted requests with the override headers,
and the API used to toggle probing, edit the override headers and review results.
Press Ctrl+C to gracefully shut down all services.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger.Info("--- Start Command: Run ---")
		actualServerPort := resolvePort(cmd, "server-port", startServerPort, config.AppConfig.Server.Port, "8778")
		actualProxyPort := resolvePort(cmd, "proxy-port", startProxyPort, config.AppConfig.Proxy.Port, "8777")
		logger.Info("Start Command: Final ports determined - Server: %s, Proxy: %s", actualServerPort, actualProxyPort)

		state := loadActivationState()
		if cmd.Flags().Changed("active") {
			state.Active = startActive
		}
		rt := newProbeRuntime(state)

		var wg sync.WaitGroup
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// --- API server ---
		wg.Add(1)
		go func(parentCtx context.Context) {
			defer wg.Done()
			server := &http.Server{
				Addr:              ":" + actualServerPort,
				Handler:           api.NewServerHandler(handlers.Deps{Gate: rt.Gate, Coordinator: rt.Coordinator, Live: rt.Live}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-parentCtx.Done()
				logger.Info("Start Command Goroutine(API): Shutdown signal received...")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("Start Command Goroutine(API): Graceful shutdown failed: %v", err)
				} else {
					logger.Info("Start Command Goroutine(API): Gracefully stopped.")
				}
			}()

			logger.Info("Start Command Goroutine(API): Listening on :%s", actualServerPort)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Start Command Goroutine(API): ListenAndServe error: %v", err)
				cancel()
			}
			logger.Info("Start Command Goroutine(API): Finished.")
		}(ctx)

		// --- MITM proxy ---
		wg.Add(1)
		go func(parentCtx context.Context) {
			defer wg.Done()
			opts := rt.proxyOptions(actualProxyPort)
			if opts.CACertPath == "" || opts.CAKeyPath == "" {
				logger.Error("Start Command Goroutine(Proxy): CA certificate or key path not configured. Check config or run 'proxy init-ca' first.")
				cancel()
				return
			}
			logger.ProxyInfo("Start Command Goroutine(Proxy): Using CA Cert: %s, CA Key: %s", opts.CACertPath, opts.CAKeyPath)
			if err := core.StartMitmProxy(parentCtx, opts, rt.Coordinator); err != nil {
				logger.Error("Start Command Goroutine(Proxy): core.StartMitmProxy returned error: %v", err)
				cancel()
			}
			logger.ProxyInfo("Start Command Goroutine(Proxy): Finished.")
		}(ctx)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		logger.Info("Start Command: All service goroutines launched (run %s). Press Ctrl+C to exit.", rt.Coordinator.RunID())

		select {
		case sig := <-sigs:
			logger.Info("Start Command: Received signal: %s. Initiating shutdown...", sig)
		case <-ctx.Done():
			logger.Info("Start Command: Context cancelled (likely due to a service error). Initiating shutdown...")
		}
		cancel()

		shutdownComplete := make(chan struct{})
		go func() {
			wg.Wait()
			rt.drain()
			close(shutdownComplete)
		}()

		select {
		case <-shutdownComplete:
			logger.Info("Start Command: All services shut down.")
		case <-time.After(config.AppConfig.Replay.Timeout + 10*time.Second):
			logger.Error("Start Command: Shutdown timed out with %d probes in flight. Forcing exit.", rt.Coordinator.InFlight())
		}
		logger.Info("Start Command: Exited.")
	},
}

func init() {
	startCmd.Flags().StringVar(&startServerPort, "server-port", "8778", "Port for the API server (overrides config)")
	startCmd.Flags().StringVar(&startProxyPort, "proxy-port", "8777", "Port for the MITM proxy server (overrides config)")
	startCmd.Flags().BoolVar(&startActive, "active", false, "Start with probing enabled or disabled (overrides the persisted state)")
	rootCmd.AddCommand(startCmd)
}
