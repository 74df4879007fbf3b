package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/AtDexters-Lab/sim-protocol/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		envFile  string
		logLevel string
	)

	root := &cobra.Command{
		Use:   "sim-bridge",
		Short: "Robot simulator backend for the NDJSON sync protocol",
		Long: `sim-bridge runs the simulator backend side of the frontend sync protocol.

Frontends connect over an authenticated WebSocket (serve), a local TCP
socket (serve with tcpListenAddress) or the process's own stdin/stdout
(stdio). Every frame is one JSON object per line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			logging.ConfigureRuntime()
			if logLevel != "" && !logging.SetLevel(logLevel) {
				return fmt.Errorf("unknown log level %q", logLevel)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before configuration; missing files are ignored")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (trace, debug, info, warn, error, off)")

	root.AddCommand(
		serveCmd(),
		stdioCmd(),
		checkCmd(),
		versionCmd(),
	)
	return root
}

// loadEnvFile populates unset environment variables from path.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
