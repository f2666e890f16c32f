package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	conflictsCmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Inspect and resolve memory conflicts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List unresolved conflicts",
		Run:   runConflictsList,
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Mark a conflict as resolved",
		Args:  cobra.ExactArgs(1),
		Run:   runConflictsResolve,
	}
	resolveCmd.Flags().String("strategy", "", "Resolution strategy note (required)")
	resolveCmd.MarkFlagRequired("strategy")

	conflictsCmd.AddCommand(listCmd, resolveCmd)
	RootCmd.AddCommand(conflictsCmd)
}

func runConflictsList(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	conflicts, err := s.ListUnresolvedConflicts(cmd.Context(), getOwner())
	if err != nil {
		exitErr("list conflicts", err)
	}

	b, _ := json.MarshalIndent(conflicts, "", "  ")
	fmt.Println(string(b))
}

func runConflictsResolve(cmd *cobra.Command, args []string) {
	strategy, _ := cmd.Flags().GetString("strategy")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.ResolveConflict(cmd.Context(), args[0], strategy); err != nil {
		exitErr("resolve conflict", err)
	}
	fmt.Printf("resolved conflict %s\n", args[0])
}
