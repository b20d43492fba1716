package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/auteng/x402-go"
	"github.com/auteng/x402-go/evm"
	"github.com/auteng/x402-go/funding"
	x402http "github.com/auteng/x402-go/http"
	"github.com/auteng/x402-go/svm"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func (a *app) fetchCmd() *cobra.Command {
	var (
		method    string
		headers   []string
		data      string
		maxAmount string
	)

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Request a URL, paying automatically if it answers 402",
		Long: `Request a URL with an EVM wallet attached. If the server demands payment the
request is signed for and retried once; the final response body is written
to stdout and the settlement receipt, if any, is logged to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signerOpts, err := a.keyOption()
			if err != nil {
				return err
			}
			signerOpts = append(signerOpts, evm.WithNetwork(a.network), evm.WithUSDC())
			if maxAmount == "" {
				maxAmount = a.config.MaxAmount
			}
			if maxAmount != "" {
				limit, err := x402.ParseUnits(maxAmount, 6)
				if err != nil {
					return fmt.Errorf("invalid --max-amount: %w", err)
				}
				signerOpts = append(signerOpts, evm.WithMaxAmountPerCall(limit.String()))
			}
			signer, err := evm.NewSigner(signerOpts...)
			if err != nil {
				return err
			}

			client, err := x402http.NewClient(
				x402http.WithSigner(signer),
				x402http.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}

			var body io.Reader
			if data != "" {
				body = strings.NewReader(data)
			}
			req, err := http.NewRequestWithContext(cmd.Context(), method, args[0], body)
			if err != nil {
				return err
			}
			for _, h := range headers {
				key, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, want \"Key: value\"", h)
				}
				req.Header.Add(strings.TrimSpace(key), strings.TrimSpace(value))
			}

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if settlement := x402http.GetSettlement(resp); settlement != nil {
				a.logger.Info("payment settled",
					"success", settlement.Success,
					"transaction", settlement.Transaction,
					"network", settlement.Network,
				)
			}
			if _, err := io.Copy(a.stdout, resp.Body); err != nil {
				return err
			}
			if resp.StatusCode >= 400 {
				return fmt.Errorf("%s: %s", args[0], resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "request", "X", "GET", "HTTP method")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header \"Key: value\" (repeatable)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	cmd.Flags().StringVar(&maxAmount, "max-amount", "", "refuse payments above this many USDC per request")
	return cmd
}

func (a *app) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the USDC balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, ok := x402.LookupChain(a.network)
			if !ok {
				return fmt.Errorf("%w: %s", x402.ErrInvalidNetwork, a.network)
			}
			balance, err := a.balanceReader().BalanceOf(cmd.Context(), args[0], a.network)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, x402.FormatPrice(balance.String(), chain.USDCAddress, a.network))
			return nil
		},
	}
}

func (a *app) waitFundingCmd() *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait-funding <address> <usdc-amount>",
		Short: "Block until an address holds at least the given USDC amount",
		Example: `  x402 wait-funding 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266 1.50 --timeout 10m`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			minAmount, err := x402.ParseUnits(args[1], 6)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			waiter := funding.NewWaiter(a.balanceReader(), funding.WithLogger(a.logger))
			opts := []funding.WaitOption{funding.WithPollInterval(interval)}
			if timeout > 0 {
				opts = append(opts, funding.WithTimeout(timeout))
			}
			if err := waiter.WaitForFunding(cmd.Context(), args[0], a.network, minAmount, opts...); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s is funded\n", args[0])
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", funding.DefaultPollInterval, "time between balance checks")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default: wait indefinitely)")
	return cmd
}

// balanceReader routes lookups to the EVM or Solana reader, honoring RPC
// overrides from X402_RPC_URL and the config file.
func (a *app) balanceReader() funding.BalanceReader {
	var (
		evmOpts []evm.BalanceOption
		svmOpts []svm.BalanceOption
	)
	networks := map[string]bool{a.network: true}
	for network := range a.config.RPCURLs {
		networks[network] = true
	}
	for network := range networks {
		if url := a.rpcURL(network); url != "" {
			evmOpts = append(evmOpts, evm.WithRPCURL(network, url))
			svmOpts = append(svmOpts, svm.WithRPCURL(network, url))
		}
	}
	return funding.Readers{
		EVM: evm.NewBalanceReader(evmOpts...),
		SVM: svm.NewBalanceReader(svmOpts...),
	}
}

// keyOption returns the signer option for the configured key source.
func (a *app) keyOption() ([]evm.SignerOption, error) {
	switch {
	case os.Getenv(envPrivateKey) != "":
		return []evm.SignerOption{evm.WithPrivateKey(os.Getenv(envPrivateKey))}, nil
	case os.Getenv(envMnemonic) != "":
		return []evm.SignerOption{evm.WithMnemonic(os.Getenv(envMnemonic), 0)}, nil
	case os.Getenv(envKeystore) != "":
		password, ok := os.LookupEnv(envKeystorePassword)
		if !ok {
			var err error
			if password, err = promptPassword("Keystore password: ", a.stderr); err != nil {
				return nil, err
			}
		}
		return []evm.SignerOption{evm.WithKeystore(os.Getenv(envKeystore), password)}, nil
	}
	return nil, errors.New("no wallet configured: set " + envPrivateKey + ", " + envMnemonic + " or " + envKeystore)
}

func promptPassword(prompt string, w io.Writer) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("%s is not set and stdin is not a terminal", envKeystorePassword)
	}
	fmt.Fprint(w, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
