// Command promptguard warns before sensitive data is sent to an AI chat.
package main

import (
	"os"

	"github.com/gzhole/promptguard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
