package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	var (
		flagConfigPath string
		flagEnvFile    string
	)

	root := &cobra.Command{
		Use:   "authbridge",
		Short: "Delegated login service bridging external identity providers to local accounts",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagEnvFile != "" && fileExists(flagEnvFile) {
				if err := godotenv.Load(flagEnvFile); err != nil {
					return fmt.Errorf("dotenv: %w", err)
				}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config.yaml (fallback: $CONFIG_PATH or configs/config.yaml)")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "path to .env (loaded when present)")

	root.AddCommand(serveCmd(&flagConfigPath))
	root.AddCommand(migrateCmd(&flagConfigPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func configPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	if fileExists("configs/config.yaml") {
		return "configs/config.yaml"
	}
	return "configs/config.example.yaml"
}
