package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/rcliao/chat-memory/internal/llm"
	"github.com/rcliao/chat-memory/internal/pipeline"
	"github.com/rcliao/chat-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat on a thread with memory extraction",
		Long:  "Interactive chat. Each utterance is classified, optionally verified against existing global memories, and persisted per-thread or globally. Replies never wait on memory bookkeeping.",
		Run:   runChat,
	}

	cmd.Flags().StringP("thread", "t", "", "Thread ID (default: most recently active, or a new thread)")
	cmd.Flags().Bool("new", false, "Start a new thread")
	cmd.Flags().Duration("verify-timeout", pipeline.DefaultVerifyTimeout, "Verifier call deadline")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	threadID, _ := cmd.Flags().GetString("thread")
	startNew, _ := cmd.Flags().GetBool("new")
	verifyTimeout, _ := cmd.Flags().GetDuration("verify-timeout")

	owner := getOwner()
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	switch {
	case threadID != "":
		if _, err := s.GetThread(ctx, owner, threadID); err != nil {
			exitErr("select thread", err)
		}
	case startNew:
		t, err := s.CreateThread(ctx, owner)
		if err != nil {
			exitErr("create thread", err)
		}
		threadID = t.ID
	default:
		t, err := s.GetLatestThread(ctx, owner)
		if errors.Is(err, store.ErrNotFound) {
			t, err = s.CreateThread(ctx, owner)
		}
		if err != nil {
			exitErr("select thread", err)
		}
		threadID = t.ID
	}

	client := llm.NewAnthropicClient(getModel())
	orch, err := pipeline.New(s, client, client,
		pipeline.WithReplier(client),
		pipeline.WithVerifyTimeout(verifyTimeout),
	)
	if err != nil {
		exitErr("init pipeline", err)
	}

	fmt.Printf("thread %s (owner %s), ctrl-d to quit\n", threadID, owner)

	scanner := bufio.NewScanner(os.Stdin)
	var pending sync.WaitGroup
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		res, err := orch.HandleTurn(ctx, pipeline.Turn{Owner: owner, ThreadID: threadID, Utterance: text})
		if err != nil {
			fmt.Fprintf(os.Stderr, "notice: %v\n", err)
			continue
		}

		if reply, ok := <-res.Reply; ok {
			if reply.Err != nil {
				fmt.Fprintf(os.Stderr, "notice: reply unavailable: %v\n", reply.Err)
			} else {
				fmt.Printf("assistant: %s\n", reply.Text)
			}
		}

		// Memory bookkeeping finishes on its own time; its notice prints
		// whenever it lands, without holding up the next prompt.
		pending.Add(1)
		go func(outcome <-chan pipeline.PipelineResult) {
			defer pending.Done()
			printOutcome(<-outcome)
		}(res.Outcome)
	}
	pending.Wait()
}

func printOutcome(pr pipeline.PipelineResult) {
	if pr.Err != nil {
		if errors.Is(pr.Err, pipeline.ErrPipelineBusy) {
			return
		}
		fmt.Fprintf(os.Stderr, "notice: memory skipped: %v\n", pr.Err)
		return
	}

	out := pr.Outcome
	for _, w := range out.Warnings {
		fmt.Fprintf(os.Stderr, "notice: %s\n", w)
	}

	switch out.State {
	case pipeline.StatePersistedGlobalVerified:
		fmt.Printf("remembered globally: [%s] %s\n", out.Memory.MemoryType, out.Memory.ShortSummary)
		for _, c := range out.Conflicts {
			fmt.Printf("conflict detected: %s\n", c.ConflictType)
		}
	case pipeline.StatePersistedGlobalUnverified:
		fmt.Printf("remembered globally (unverified): [%s] %s\n", out.Memory.MemoryType, out.Memory.ShortSummary)
	case pipeline.StatePersistedThread:
		fmt.Printf("remembered for this thread: [%s] %s\n", out.Memory.MemoryType, out.Memory.ShortSummary)
	case pipeline.StateDiscarded:
		if out.Classification != nil {
			fmt.Printf("not saved (%s): %s\n", out.Classification.MemoryType, out.Classification.Reason)
		}
	}
}
