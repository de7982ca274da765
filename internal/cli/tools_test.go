package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

const testWallet = "6f1c2a9e-3b7d-4c55-9a1e-0d2f8b7c4e11"

func TestToolsList(t *testing.T) {
	path := tempConfig(t, "")

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, "", "tools", "list", "--config", path)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 6)
		assert.True(t, strings.HasPrefix(lines[0], "NAME"))
		assert.Contains(t, out, "faktory_get_buy_quote")
		assert.Contains(t, out, "faktory_get_dao_tokens")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "", "tools", "list", "--json", "--config", path)
		require.NoError(t, err)

		var tools map[string]string
		require.NoError(t, json.Unmarshal([]byte(out), &tools))
		assert.Len(t, tools, 5)
	})
}

func TestToolsInvoke_DryRun(t *testing.T) {
	path := tempConfig(t, "")

	out, err := execute(t, "", "tools", "invoke", "faktory_get_buy_quote",
		"--arg", "stx_amount=1.5", "--arg", "dex_contract_id=SP000.dex", "--dry-run", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "stacks-faktory/get-buy-quote.ts 1.5 SP000.dex 15 mainnet\n", out)
}

func TestToolsInvoke_Errors(t *testing.T) {
	path := tempConfig(t, "")

	_, err := execute(t, "", "tools", "invoke", "faktory_get_buy_quote", "--arg", "stx_amount=1", "--dry-run", "--config", path)
	assert.ErrorIs(t, err, tool.ErrMissingArgument)

	_, err = execute(t, "", "tools", "invoke", "nope", "--dry-run", "--config", path)
	assert.ErrorIs(t, err, tool.ErrUnknownTool)

	_, err = execute(t, "", "tools", "invoke", "faktory_get_buy_quote", "--arg", "novalue", "--config", path)
	assert.Error(t, err)

	_, err = execute(t, "", "tools", "invoke", "faktory_get_buy_quote", "--arg", "stx_amount=1", "--arg", "dex_contract_id=d", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--wallet")
}

func TestToolsInvoke_RunsScript(t *testing.T) {
	dir := t.TempDir()
	// echo stands in for bun so the command line comes back as output.
	path := tempConfig(t, fmt.Sprintf(`{"scripts":{"command":"/bin/echo","dir":%q}}`, dir))

	out, err := execute(t, "", "tools", "invoke", "faktory_get_sell_quote",
		"--arg", "token_amount=100", "--arg", "dex_contract_id=SP000.dex",
		"--wallet", testWallet, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "run src/stacks-faktory/get-sell-quote.ts 100 SP000.dex 15 mainnet\n", out)
}

func TestParseToolArgs(t *testing.T) {
	args, err := parseToolArgs([]string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": "1", "b": "x=y", "c": ""}, args)

	_, err = parseToolArgs([]string{"=1"})
	assert.Error(t, err)
}
