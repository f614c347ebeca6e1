package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/kbops-go/internal/kb"
)

var (
	assignScope   string
	assignScopeID string
	assignKB      string
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Manage knowledge-base assignments",
	Long: `Assign knowledge bases to scopes and inspect the current assignments.

Examples:
  kbops assign list
  kbops assign set --scope workspace_default --kb kb-general
  kbops assign set --scope campaign --scope-id camp-1 --kb kb-sales
  kbops assign remove a1b2c3`,
}

var assignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all assignments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listAssignments(cmd.Context())
	},
}

var assignSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace an assignment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAssignment(cmd.Context())
	},
}

var assignRemoveCmd = &cobra.Command{
	Use:   "remove <assignment-id>",
	Short: "Remove an assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return removeAssignment(cmd.Context(), args[0])
	},
}

func init() {
	assignSetCmd.Flags().StringVar(&assignScope, "scope", "", "scope: workspace_default | campaign | number | agent")
	assignSetCmd.Flags().StringVar(&assignScopeID, "scope-id", "", "campaign/number/agent id (omit for workspace_default)")
	assignSetCmd.Flags().StringVar(&assignKB, "kb", "", "knowledge base id")

	assignCmd.AddCommand(assignListCmd)
	assignCmd.AddCommand(assignSetCmd)
	assignCmd.AddCommand(assignRemoveCmd)
	rootCmd.AddCommand(assignCmd)
}

func listAssignments(ctx context.Context) error {
	assignments, err := assignClient.List(ctx)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}

	if len(assignments) == 0 {
		fmt.Println("No assignments found")
		return nil
	}

	fmt.Printf("%-10s %-18s %-16s %s\n", "ID", "SCOPE", "SCOPE-ID", "KB")
	fmt.Println("------------------------------------------------------------")
	for _, a := range assignments {
		scopeID := a.ScopeID
		if a.Scope == kb.ScopeWorkspaceDefault {
			scopeID = "-"
		}
		fmt.Printf("%-10s %-18s %-16s %s\n", a.ID, a.Scope, scopeID, a.KBID)
	}
	return nil
}

func setAssignment(ctx context.Context) error {
	if assignScope == "" || assignKB == "" {
		return fmt.Errorf("--scope and --kb are required")
	}

	a, err := assignClient.Assign(ctx, kb.Scope(assignScope), assignScopeID, assignKB)
	if err != nil {
		return fmt.Errorf("assign: %w", err)
	}
	fmt.Printf("Assigned %s to %s", a.KBID, a.Scope)
	if a.ScopeID != "" {
		fmt.Printf(" %s", a.ScopeID)
	}
	fmt.Printf(" (id %s)\n", a.ID)
	return nil
}

// removeAssignment looks the assignment up first: Unassign wants the full
// record so the resolution cache is invalidated for the right scope.
func removeAssignment(ctx context.Context, id string) error {
	assignments, err := assignClient.List(ctx)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	for _, a := range assignments {
		if a.ID == id {
			if err := assignClient.Unassign(ctx, a); err != nil {
				return fmt.Errorf("remove assignment: %w", err)
			}
			fmt.Printf("Removed assignment %s\n", id)
			return nil
		}
	}
	return fmt.Errorf("assignment not found: %s", id)
}
