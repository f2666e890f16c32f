package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	threadsCmd := &cobra.Command{
		Use:   "threads",
		Short: "Manage conversation threads",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List threads, most recently active first",
		Run:   runThreadsList,
	}

	rmCmd := &cobra.Command{
		Use:   "rm <thread-id>",
		Short: "Delete a thread, its messages, and its thread-scoped memories",
		Args:  cobra.ExactArgs(1),
		Run:   runThreadsRm,
	}

	threadsCmd.AddCommand(listCmd, rmCmd)
	RootCmd.AddCommand(threadsCmd)
}

func runThreadsList(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	threads, err := s.ListThreads(cmd.Context(), getOwner())
	if err != nil {
		exitErr("list threads", err)
	}

	b, _ := json.MarshalIndent(threads, "", "  ")
	fmt.Println(string(b))
}

func runThreadsRm(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.DeleteThread(cmd.Context(), getOwner(), args[0]); err != nil {
		exitErr("delete thread", err)
	}
	fmt.Printf("deleted thread %s\n", args[0])
}
