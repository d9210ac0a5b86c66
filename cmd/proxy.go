package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bacman/config"
	"bacman/core"
	"bacman/logger"

	"github.com/spf13/cobra"
)

var (
	standaloneProxyPort string
	initCAForce         bool
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manages the MITM proxy server (can be run standalone or as part of 'start')",
}

var proxyStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the MITM proxy server without the control API",
	Long: `Starts the Man-in-the-Middle proxy. While probing is active every proxied request is
replayed with the override headers and the result is stored.
A CA certificate (bacman-ca.crt) must be generated (using 'proxy init-ca') and trusted by your client.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		portToUse := resolvePort(cmd, "port", standaloneProxyPort, config.AppConfig.Proxy.Port, "8777")

		rt := newProbeRuntime(loadActivationState())
		opts := rt.proxyOptions(portToUse)
		if opts.CACertPath == "" || opts.CAKeyPath == "" {
			return fmt.Errorf("proxy CA certificate or key path not configured; check config or run 'proxy init-ca' first")
		}
		if !rt.Gate.Active() {
			fmt.Println("Probing is currently OFF. Enable it with 'bacman gate on' before starting, or use 'bacman start' for live control.")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.ProxyInfo("Attempting to start MITM proxy on port %s...", portToUse)
		err := core.StartMitmProxy(ctx, opts, rt.Coordinator)
		rt.drain()
		if err != nil {
			logger.ProxyError("Error starting proxy: %v", err)
			return err
		}
		return nil
	},
}

var proxyInitCACmd = &cobra.Command{
	Use:   "init-ca",
	Short: "Initializes (generates) the root CA certificate and key for the MITM proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		certPath := config.AppConfig.Proxy.CACertPath
		keyPath := config.AppConfig.Proxy.CAKeyPath
		if certPath == "" || keyPath == "" {
			return fmt.Errorf("CA certificate or key path is not defined in configuration")
		}
		if _, err := os.Stat(certPath); err == nil && !initCAForce {
			return fmt.Errorf("CA certificate already exists at %s (use --force to overwrite)", certPath)
		}

		fmt.Println("Initializing Proxy CA...")
		if err := core.GenerateAndSaveCA(certPath, keyPath); err != nil {
			return fmt.Errorf("error generating CA: %w", err)
		}
		fmt.Printf("CA certificate written to %s\n", certPath)
		fmt.Println("Please import the CA certificate into your browser/system's trust store.")
		return nil
	},
}

func init() {
	proxyStartCmd.Flags().StringVarP(&standaloneProxyPort, "port", "p", "8777", "Port for the proxy server to listen on (overrides config)")
	proxyInitCACmd.Flags().BoolVar(&initCAForce, "force", false, "Overwrite an existing CA certificate and key")

	proxyCmd.AddCommand(proxyStartCmd)
	proxyCmd.AddCommand(proxyInitCACmd)
	rootCmd.AddCommand(proxyCmd)
}
