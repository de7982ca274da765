package faktory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

type captureExecutor struct {
	mu    sync.Mutex
	calls []tool.Invocation
}

func (c *captureExecutor) Execute(ctx context.Context, inv tool.Invocation) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, inv)
	return `{"success":true}`, nil
}

func setup(t *testing.T) (*tool.Registry, *tool.Dispatcher, *captureExecutor) {
	t.Helper()
	reg := tool.NewRegistry()
	require.NoError(t, Register(reg))
	exec := &captureExecutor{}
	return reg, tool.NewDispatcher(reg, exec, tool.WithLogger(zerolog.Nop())), exec
}

func TestRegister_AllTools(t *testing.T) {
	reg, _, _ := setup(t)

	assert.Equal(t, []string{GetBuyQuote, ExecuteBuy, ExecuteSell, GetDAOTokens, GetSellQuote}, reg.Names())
	for _, d := range reg.Descriptors() {
		assert.Equal(t, Subsystem, d.Subsystem, d.Name)
		assert.NotEmpty(t, d.Description, d.Name)
		assert.NotEmpty(t, d.Script, d.Name)
	}
}

func TestRegister_Twice(t *testing.T) {
	reg, _, _ := setup(t)
	assert.ErrorIs(t, Register(reg), tool.ErrDuplicateTool)
}

func TestDispatch(t *testing.T) {
	wallet := uuid.MustParse("6f1c1d8e-5d0a-4f5e-9b53-3d6f0b8f2a11")

	tests := []struct {
		name   string
		req    tool.Request
		script string
		want   []string
	}{
		{
			name:   "buy quote defaults",
			req:    tool.Request{Tool: GetBuyQuote, Arguments: map[string]interface{}{"stx_amount": "1.5", "dex_contract_id": "SPX.dex"}},
			script: "get-buy-quote.ts",
			want:   []string{"1.5", "SPX.dex", "15", "mainnet"},
		},
		{
			name:   "buy quote on testnet",
			req:    tool.Request{Tool: GetBuyQuote, Arguments: map[string]interface{}{"stx_amount": "2", "dex_contract_id": "ST1.dex", "slippage": "5", "network": "testnet"}},
			script: "get-buy-quote.ts",
			want:   []string{"2", "ST1.dex", "5", "testnet"},
		},
		{
			name:   "execute buy defaults to fifty basis points",
			req:    tool.Request{Tool: ExecuteBuy, Arguments: map[string]interface{}{"stx_amount": "10", "dex_contract_id": "SPX.dex"}},
			script: "exec-buy.ts",
			want:   []string{"10", "SPX.dex", "50"},
		},
		{
			name:   "execute buy with slippage",
			req:    tool.Request{Tool: ExecuteBuy, Arguments: map[string]interface{}{"stx_amount": "10", "dex_contract_id": "SPX.dex", "slippage": "100"}},
			script: "exec-buy.ts",
			want:   []string{"10", "SPX.dex", "100"},
		},
		{
			name:   "execute sell",
			req:    tool.Request{Tool: ExecuteSell, Arguments: map[string]interface{}{"token_amount": "250", "dex_contract_id": "SPX.dex"}},
			script: "exec-sell.ts",
			want:   []string{"250", "SPX.dex", "15"},
		},
		{
			name:   "sell quote",
			req:    tool.Request{Tool: GetSellQuote, Arguments: map[string]interface{}{"token_amount": "3.25", "dex_contract_id": "SPX.dex"}},
			script: "get-sell-quote.ts",
			want:   []string{"3.25", "SPX.dex", "15", "mainnet"},
		},
		{
			name:   "dao tokens page and limit",
			req:    tool.Request{Tool: GetDAOTokens, Arguments: map[string]interface{}{"page": "2", "limit": "5"}},
			script: "get-dao-tokens.ts",
			want:   []string{"2", "5"},
		},
		{
			name:   "dao tokens with search and sort",
			req:    tool.Request{Tool: GetDAOTokens, Arguments: map[string]interface{}{"search": "btc", "sort_order": "desc"}},
			script: "get-dao-tokens.ts",
			want:   []string{"1", "10", "btc", "desc"},
		},
		{
			name:   "dao tokens sort without search",
			req:    tool.Request{Tool: GetDAOTokens, Arguments: map[string]interface{}{"sort_order": "desc"}},
			script: "get-dao-tokens.ts",
			want:   []string{"1", "10"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, d, exec := setup(t)

			res, err := d.Dispatch(context.Background(), wallet, tt.req)
			require.NoError(t, err)
			assert.Equal(t, `{"success":true}`, res.Output)

			require.Len(t, exec.calls, 1)
			call := exec.calls[0]
			assert.Equal(t, tt.want, call.Args)
			assert.Equal(t, tt.script, call.Script)
			assert.Equal(t, Subsystem, call.Subsystem)
			assert.Equal(t, wallet, call.Identity)
		})
	}
}

func TestDispatch_RejectsBeforeExecuting(t *testing.T) {
	tests := []struct {
		name string
		req  tool.Request
		kind error
	}{
		{"unknown tool", tool.Request{Tool: "faktory_get_price"}, tool.ErrUnknownTool},
		{"missing stx amount", tool.Request{Tool: GetBuyQuote, Arguments: map[string]interface{}{"dex_contract_id": "SPX.dex"}}, tool.ErrMissingArgument},
		{"missing dex", tool.Request{Tool: ExecuteSell, Arguments: map[string]interface{}{"token_amount": "1"}}, tool.ErrMissingArgument},
		{"bad amount", tool.Request{Tool: ExecuteBuy, Arguments: map[string]interface{}{"stx_amount": "one", "dex_contract_id": "SPX.dex"}}, tool.ErrInvalidArgument},
		{"bad network", tool.Request{Tool: GetSellQuote, Arguments: map[string]interface{}{"token_amount": "1", "dex_contract_id": "SPX.dex", "network": "regtest"}}, tool.ErrInvalidArgument},
		{"network on execute buy", tool.Request{Tool: ExecuteBuy, Arguments: map[string]interface{}{"stx_amount": "1", "dex_contract_id": "SPX.dex", "network": "mainnet"}}, tool.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, d, exec := setup(t)

			_, err := d.Dispatch(context.Background(), uuid.Nil, tt.req)
			assert.ErrorIs(t, err, tt.kind)
			assert.Empty(t, exec.calls)
		})
	}
}
