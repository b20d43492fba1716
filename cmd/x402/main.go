// Command x402 inspects and pays for x402-protected HTTP resources.
package main

import (
	"os"

	"github.com/auteng/x402-go/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
