package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/gfgkiit/trapped/pkg/api/client"
)

var buildVersion = "dev"

var (
	apiOverride string
	timeout     time.Duration
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "trapped",
		Short:         "Admin tool for the recruitment registration API",
		Version:       strings.TrimSpace(buildVersion),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&apiOverride, "api", "", "API base URL (default from config or TRAPPED_API_URL)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newLoginCommand(),
		newLogoutCommand(),
		newRegistrationsCommand(),
		newTeamsCommand(),
		newStatsCommand(),
		newExportCommand(),
		newCheckDeviceCommand(),
		newHashPasswordCommand(),
	)
	return root
}

// session resolves the stored config and an API client for it.
func session() (cliConfig, *apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cliConfig{}, nil, err
	}
	if strings.TrimSpace(apiOverride) != "" {
		cfg.APIBaseURL = apiOverride
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, client, nil
}

func requireToken(cfg cliConfig) (string, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return "", fmt.Errorf("not logged in: run `trapped login` first")
	}
	return token, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
