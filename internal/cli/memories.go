package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/model"
	"github.com/rcliao/chat-memory/internal/store"
)

func init() {
	memoriesCmd := &cobra.Command{
		Use:   "memories",
		Short: "Manage stored memories",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List memories for the owner",
		Run:   runMemoriesList,
	}
	listCmd.Flags().StringP("scope", "s", "", "Filter by scope: global or thread")
	listCmd.Flags().StringP("thread", "t", "", "Filter by thread ID")

	editCmd := &cobra.Command{
		Use:   "edit <memory-id>",
		Short: "Edit a memory's summary",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoriesEdit,
	}
	editCmd.Flags().String("summary", "", "New short summary (required)")
	editCmd.MarkFlagRequired("summary")

	supersedeCmd := &cobra.Command{
		Use:   "supersede <old-id> <new-id>",
		Short: "Mark a memory as replaced by a later one",
		Long:  "Links the old memory to its replacement via superseded_by. Nothing is deleted.",
		Args:  cobra.ExactArgs(2),
		Run:   runMemoriesSupersede,
	}

	rmCmd := &cobra.Command{
		Use:   "rm <memory-id>",
		Short: "Delete a memory (hard delete)",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoriesRm,
	}

	memoriesCmd.AddCommand(listCmd, editCmd, supersedeCmd, rmCmd)
	RootCmd.AddCommand(memoriesCmd)
}

func runMemoriesList(cmd *cobra.Command, args []string) {
	scope, _ := cmd.Flags().GetString("scope")
	threadID, _ := cmd.Flags().GetString("thread")

	if scope != "" && !model.ValidScopes[model.Scope(scope)] {
		exitErr("list memories", fmt.Errorf("invalid scope %q (valid: global, thread)", scope))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	memories, err := s.ListMemories(cmd.Context(), store.ListMemoriesParams{
		Owner:    getOwner(),
		Scope:    model.Scope(scope),
		ThreadID: threadID,
	})
	if err != nil {
		exitErr("list memories", err)
	}

	b, _ := json.MarshalIndent(memories, "", "  ")
	fmt.Println(string(b))
}

func runMemoriesEdit(cmd *cobra.Command, args []string) {
	summary, _ := cmd.Flags().GetString("summary")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mem, err := s.UpdateMemory(cmd.Context(), getOwner(), args[0], store.MemoryPatch{
		ShortSummary: &summary,
	})
	if err != nil {
		exitErr("edit memory", err)
	}

	b, _ := json.Marshal(mem)
	fmt.Println(string(b))
}

func runMemoriesSupersede(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	mem, err := s.UpdateMemory(cmd.Context(), getOwner(), args[0], store.MemoryPatch{
		SupersededBy: &args[1],
	})
	if err != nil {
		exitErr("supersede memory", err)
	}

	b, _ := json.Marshal(mem)
	fmt.Println(string(b))
}

func runMemoriesRm(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.DeleteMemory(cmd.Context(), getOwner(), args[0]); err != nil {
		exitErr("delete memory", err)
	}
	fmt.Printf("deleted memory %s\n", args[0])
}
