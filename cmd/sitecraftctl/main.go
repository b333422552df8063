package main

import (
	"fmt"
	"os"
	"time"

	"github.com/smallbiznis/sitecraft/pkg/checkout"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

type globalFlags struct {
	apiURL  string
	timeout time.Duration
	output  string
	verbose bool
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:     "sitecraftctl",
		Short:   "Operate checkouts against a running sitecraft API",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVar(&flags.apiURL, "api", envOr("SITECRAFT_API", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 2*time.Minute, "Overall command timeout")
	rootCmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "text", "Output format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log poller activity")

	rootCmd.AddCommand(orderCmd(flags))
	rootCmd.AddCommand(statusCmd(flags))
	rootCmd.AddCommand(activeCmd(flags))
	rootCmd.AddCommand(historyCmd(flags))
	rootCmd.AddCommand(waitCmd(flags))
	rootCmd.AddCommand(cancelCmd(flags))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (f *globalFlags) client() *checkout.Client {
	return checkout.NewClient(f.apiURL)
}

func (f *globalFlags) logger() *zap.Logger {
	if !f.verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
