package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kbops-go/internal/assignment"
	"github.com/raphaelgruber/kbops-go/internal/kb"
)

var (
	resolveCampaign string
	resolveNumber   string
	resolveAgent    string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show which knowledge base applies for a call context",
	Long: `Resolve the effective knowledge base for a combination of campaign,
phone number and agent, and show every assignment the winner overrides.

Example:
  kbops resolve --campaign camp-1 --number "+390612345678" --agent agent-1`,
	Args: cobra.NoArgs,
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveCampaign, "campaign", "", "campaign id")
	resolveCmd.Flags().StringVar(&resolveNumber, "number", "", "phone number")
	resolveCmd.Flags().StringVar(&resolveAgent, "agent", "", "agent id")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	rctx := assignment.Context{
		CampaignID: resolveCampaign,
		NumberID:   resolveNumber,
		AgentID:    resolveAgent,
	}

	res, err := assignClient.ResolveRemote(cmd.Context(), rctx)
	if err != nil {
		if errors.Is(err, assignment.ErrNoAssignment) {
			return fmt.Errorf("no assignment matches, not even a workspace default; check the workspace configuration")
		}
		return fmt.Errorf("resolve: %w", err)
	}

	fmt.Printf("Effective knowledge base: %s (via %s%s)\n",
		res.EffectiveKBID, res.Effective.Scope, scopeSuffix(res.Effective))

	if len(res.Shadowed) == 0 {
		return nil
	}
	fmt.Println("\nOverridden assignments:")
	for _, a := range res.Shadowed {
		fmt.Printf("  %s  %s%s\n", a.KBID, a.Scope, scopeSuffix(a))
	}
	return nil
}

func scopeSuffix(a kb.Assignment) string {
	if a.ScopeID == "" {
		return ""
	}
	return " " + a.ScopeID
}
