// Package cli implements the x402 command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Environment variables read by the CLI. A .env file in the working
// directory (or the one named by --env-file) is loaded first.
const (
	envPrivateKey       = "X402_PRIVATE_KEY"
	envMnemonic         = "X402_MNEMONIC"
	envKeystore         = "X402_KEYSTORE"
	envKeystorePassword = "X402_KEYSTORE_PASSWORD"
	envNetwork          = "X402_NETWORK"
	envRPCURL           = "X402_RPC_URL"
	envRegistryURL      = "X402_REGISTRY_URL"
)

const defaultNetwork = "eip155:8453"

// app carries state shared by all subcommands.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	logger     *slog.Logger
	verbose    bool
	envFile    string
	configPath string
	config     fileConfig
	network    string
}

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// NewRootCmd builds the command tree writing to the given streams.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "x402",
		Short: "Inspect and pay for x402 (HTTP 402) resources",
		Long: `x402 talks to HTTP services that charge per request with the x402 protocol.

It can price a resource without paying (probe), search the discovery
registry (discover), pay for a request automatically (fetch), and check or
wait for a wallet's USDC balance.

Keys are read from X402_PRIVATE_KEY, X402_MNEMONIC or X402_KEYSTORE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "environment file to load")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file (default $X402_CONFIG)")
	root.PersistentFlags().StringVarP(&a.network, "network", "n", "", "network id (default $X402_NETWORK or "+defaultNetwork+")")

	root.AddCommand(
		a.priceCmd(),
		a.probeCmd(),
		a.discoverCmd(),
		a.fetchCmd(),
		a.balanceCmd(),
		a.waitFundingCmd(),
	)
	return root
}

func (a *app) init() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

	if a.configPath == "" {
		a.configPath = os.Getenv(envConfig)
	}
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.config = cfg

	a.network = firstNonEmpty(a.network, os.Getenv(envNetwork), cfg.Network, defaultNetwork)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
