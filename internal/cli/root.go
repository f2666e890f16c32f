// Package cli implements the chat-memory CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/store"
)

var (
	dbPath    string
	ownerFlag string
	modelFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "chat-memory",
	Short: "Chat assistant with global memory",
	Long:  "A chat assistant that extracts durable facts from conversation, verifies them against what it already knows, and remembers them per-thread or globally. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $CHAT_MEMORY_DB or ~/.chat-memory/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&ownerFlag, "owner", "o", "", "Owner identity (default: $CHAT_MEMORY_OWNER or 'local')")
	RootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model for classifier/verifier/reply calls (default: $CHAT_MEMORY_MODEL)")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("CHAT_MEMORY_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chat-memory", "memory.db")
}

func getOwner() string {
	if ownerFlag != "" {
		return ownerFlag
	}
	if env := os.Getenv("CHAT_MEMORY_OWNER"); env != "" {
		return env
	}
	return "local"
}

func getModel() string {
	if modelFlag != "" {
		return modelFlag
	}
	return os.Getenv("CHAT_MEMORY_MODEL")
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
