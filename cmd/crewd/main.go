package main

import (
	"os"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
