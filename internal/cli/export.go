package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSONL",
		Long:  "Export the owner's memories, one JSON object per line, for backup or inspection.",
		Run:   runExport,
	}

	cmd.Flags().StringP("scope", "s", "", "Only export one scope: global or thread")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	if scope != "" && !model.ValidScopes[model.Scope(scope)] {
		exitErr("export", fmt.Errorf("invalid scope %q (valid: global, thread)", scope))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	memories, err := s.ExportAll(cmd.Context(), getOwner(), model.Scope(scope))
	if err != nil {
		exitErr("export", err)
	}

	for _, m := range memories {
		b, _ := json.Marshal(m)
		fmt.Println(string(b))
	}
}
