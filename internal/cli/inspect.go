package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/auteng/x402-go"
	x402http "github.com/auteng/x402-go/http"
	"github.com/spf13/cobra"
)

func (a *app) priceCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "price <amount> <asset> [network]",
		Short: "Format a minor-unit amount as a human-readable price",
		Example: `  x402 price 2000 0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913 eip155:8453
  # $0.002 USDC on Base`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			network := a.network
			if len(args) == 3 {
				network = args[2]
			}
			var opts []x402.FormatOption
			if short {
				opts = append(opts, x402.WithShort())
			}
			fmt.Fprintln(a.stdout, x402.FormatPrice(args[0], args[1], network, opts...))
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "omit the network suffix")
	return cmd
}

func (a *app) probeCmd() *cobra.Command {
	var (
		method  string
		headers []string
		data    string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Check whether a URL requires payment, without paying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []x402http.ProbeOption{x402http.WithProbeMethod(method)}
			for _, h := range headers {
				key, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, want \"Key: value\"", h)
				}
				opts = append(opts, x402http.WithProbeHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
			}
			if data != "" {
				opts = append(opts, x402http.WithProbeBody([]byte(data)))
			}

			result, err := x402http.Probe(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a.stdout, result)
			}

			if !result.Enabled {
				fmt.Fprintf(a.stdout, "%s: no payment required (status %d)\n", result.URL, result.Status)
				return nil
			}
			fmt.Fprintf(a.stdout, "%s: payment required, %s\n", result.URL, result.Price)
			for i, opt := range result.PaymentRequired.Accepts {
				fmt.Fprintf(a.stdout, "  [%d] %s %s -> %s\n", i, opt.Scheme, x402.FormatPrice(opt.Amount, opt.Asset, opt.Network), opt.PayTo)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "request", "X", "GET", "HTTP method")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header \"Key: value\" (repeatable)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func (a *app) discoverCmd() *cobra.Command {
	var (
		registry     string
		limit        int
		offset       int
		resourceType string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List paid services from the discovery registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []x402http.DiscoverOption
			if registry := a.registryURL(registry); registry != "" {
				opts = append(opts, x402http.WithRegistryURL(registry))
			}
			if limit > 0 {
				opts = append(opts, x402http.WithLimit(limit))
			}
			if offset > 0 {
				opts = append(opts, x402http.WithOffset(offset))
			}
			if resourceType != "" {
				opts = append(opts, x402http.WithType(resourceType))
			}

			result, err := x402http.Discover(cmd.Context(), opts...)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(a.stdout, result)
			}

			for _, svc := range result.Services {
				var desc string
				if svc.Description != nil {
					desc = *svc.Description
				}
				fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", svc.URL, svc.Price, desc)
			}
			fmt.Fprintf(a.stderr, "%d of %d services\n", len(result.Services), result.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&registry, "registry", "", "registry URL (default $X402_REGISTRY_URL or the public registry)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of services")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of services to skip")
	cmd.Flags().StringVar(&resourceType, "type", "", "resource type filter (e.g. http)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
