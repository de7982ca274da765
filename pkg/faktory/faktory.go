// Package faktory declares the Faktory DEX tools on Stacks. Every tool runs a
// script of the stacks-faktory subsystem; this package only describes them.
package faktory

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

// Subsystem is the scripts directory shared by the Faktory tools.
const Subsystem = "stacks-faktory"

// Tool names.
const (
	GetBuyQuote  = "faktory_get_buy_quote"
	ExecuteBuy   = "faktory_execute_buy"
	ExecuteSell  = "faktory_execute_sell"
	GetDAOTokens = "faktory_get_dao_tokens"
	GetSellQuote = "faktory_get_sell_quote"
)

//go:embed faktory.yaml
var manifest []byte

// Manifest returns the decoded Faktory tool manifest.
func Manifest() (tool.Manifest, error) {
	m, err := tool.LoadManifest(bytes.NewReader(manifest))
	if err != nil {
		return tool.Manifest{}, fmt.Errorf("faktory manifest: %w", err)
	}
	return m, nil
}

// Register adds every Faktory tool to reg.
func Register(reg *tool.Registry) error {
	m, err := Manifest()
	if err != nil {
		return err
	}
	return reg.RegisterManifest(m)
}
