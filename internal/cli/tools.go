package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/daemon"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/pkg/tool"
)

var (
	toolsJSON  bool
	toolArgs   []string
	toolWallet string
	toolDryRun bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List and invoke registered tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsInvokeCmd = &cobra.Command{
	Use:   "invoke <name>",
	Short: "Invoke a tool",
	Long: `Invoke a tool with string arguments given as --arg name=value.
With --dry-run the validated positional argument list is printed and the
script is not run.`,
	Example: `  crewd tools invoke faktory_get_buy_quote --arg stx_amount=1.5 --arg dex_contract_id=SP...dex --wallet <uuid>`,
	Args:    cobra.ExactArgs(1),
	RunE:    runToolsInvoke,
}

func init() {
	toolsListCmd.Flags().BoolVar(&toolsJSON, "json", false, "print tools as a JSON object")

	toolsInvokeCmd.Flags().StringArrayVar(&toolArgs, "arg", nil, "tool argument as name=value (repeatable)")
	toolsInvokeCmd.Flags().StringVar(&toolWallet, "wallet", "", "wallet id the script runs as")
	toolsInvokeCmd.Flags().BoolVar(&toolDryRun, "dry-run", false, "print the prepared arguments without running the script")

	toolsCmd.AddCommand(toolsListCmd, toolsInvokeCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := daemon.NewRegistry(cfg.Tools)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if toolsJSON {
		tools := make(map[string]string, reg.Len())
		for name, desc := range reg.All() {
			tools[name] = desc
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tools)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for name, desc := range reg.All() {
		fmt.Fprintf(w, "%s\t%s\n", name, desc)
	}
	return w.Flush()
}

// parseToolArgs turns name=value pairs into request arguments.
func parseToolArgs(pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --arg %q (want name=value)", p)
		}
		out[name] = value
	}
	return out, nil
}

func runToolsInvoke(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	arguments, err := parseToolArgs(toolArgs)
	if err != nil {
		return err
	}
	req := tool.Request{Tool: args[0], Arguments: arguments}
	out := cmd.OutOrStdout()

	if toolDryRun {
		reg, err := daemon.NewRegistry(cfg.Tools)
		if err != nil {
			return err
		}
		inv, err := tool.NewDispatcher(reg, nil, tool.WithPolicy(cfg.Tools.Policy())).Prepare(req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s/%s %s\n", inv.Subsystem, inv.Script, strings.Join(inv.Args, " "))
		return nil
	}

	identity, err := uuid.Parse(toolWallet)
	if err != nil {
		return fmt.Errorf("--wallet must be a wallet UUID: %w", err)
	}

	ctx := cmd.Context()
	ts, err := daemon.NewToolset(ctx, cfg, nil, log.Logger)
	if err != nil {
		return err
	}
	defer ts.Close(ctx)

	res, err := ts.Dispatcher.Dispatch(ctx, identity, req)
	if err != nil {
		return err
	}
	fmt.Fprint(out, res.Output)
	return nil
}
