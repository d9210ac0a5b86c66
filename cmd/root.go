package cmd

import (
	"fmt"
	"os"

	"bacman/config"
	"bacman/database"
	"bacman/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile          string
	dbPath           string // Bound to --dbpath flag
	appLogPathFlag   string
	proxyLogPathFlag string
	logLevelFlag     string
)

var rootCmd = &cobra.Command{
	Use:   "bacman",
	Short: "Differential access-control tester",
	Long: `bacman replays the requests you make through its proxy with a second user's
session headers and flags responses that suggest broken access control (BAC) or
insecure direct object references (IDOR) for manual review.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(cfgFile, appLogPathFlag, proxyLogPathFlag, logLevelFlag); err != nil {
			return fmt.Errorf("failed to initialize config in PersistentPreRunE: %w", err)
		}

		finalDBPath := config.AppConfig.Database.Path
		if dbPath != "" {
			expandedPath, err := config.ExpandTilde(dbPath)
			if err != nil {
				logger.Error("Error expanding tilde in --dbpath flag '%s': %v. Using original.", dbPath, err)
				expandedPath = dbPath
			}
			finalDBPath = expandedPath
			logger.Info("PersistentPreRunE: Using database path from --dbpath flag: '%s'", finalDBPath)
		}
		if finalDBPath == "" {
			logger.Error("PersistentPreRunE: Database path is empty after checking flag and config! Falling back to 'bacman.db' in CWD.")
			finalDBPath = "bacman.db"
		}

		if err := database.InitDB(finalDBPath); err != nil {
			return fmt.Errorf("failed to initialize database at %s: %w", finalDBPath, err)
		}
		logger.Debug("Database initialized at: %s", finalDBPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := database.CloseDB(); err != nil {
			logger.Error("Error closing database: %v", err)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/bacman/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "dbpath", "", "path to SQLite database file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&appLogPathFlag, "app-log", "", "path for the application log file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&proxyLogPathFlag, "proxy-log", "", "path for the proxy log file (overrides config/default)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR (overrides config/default)")
}
