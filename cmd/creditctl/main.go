package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/and161185/imagify/internal/app"
	"github.com/and161185/imagify/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "creditctl",
		Short:         "Operate on imagify credit orders",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML config file (defaults to CONFIG_PATH)")

	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(plansCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var args []string
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		args = append(args, "-c", path)
	}
	return config.Load(args)
}

// openApp connects to the database and builds the order service. Logs go to
// stderr so command output stays clean.
func openApp(cmd *cobra.Command) (*app.App, *config.Config, *zap.SugaredLogger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stderr"}
	logger, err := logCfg.Build()
	if err != nil {
		return nil, nil, nil, err
	}

	a, err := app.New(cmd.Context(), cfg, logger.Sugar())
	if err != nil {
		return nil, nil, nil, err
	}
	return a, cfg, logger.Sugar(), nil
}
