package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"scenepilot/internal/types"
)

// runChat is the interactive loop: one command per line, slash commands
// for session introspection.
func runChat() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	a.watchConfig(context.Background())

	fmt.Printf("%s %s", a.cfg.Name, a.cfg.Version)
	if a.aiEnabled {
		fmt.Printf(" (agent pipeline: %s)", a.cfg.LLM.Provider)
	} else {
		fmt.Print(" (local pipeline)")
	}
	fmt.Println()
	fmt.Println(`Type a command ("show only architecture", "fly to pump 7"), /help, or /quit.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := chatCommand(a, line); quit {
				break
			}
			continue
		}

		printResult(execute(a, line))
	}
	return scanner.Err()
}

func execute(a *app, input string) *types.ExecuteResult {
	ctx := context.Background()
	if a.aiEnabled {
		return a.orchestrator.ExecuteWithAI(ctx, input)
	}
	return a.orchestrator.Execute(ctx, input)
}

// chatCommand handles slash commands; returns true on /quit.
func chatCommand(a *app, line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(`Slash commands:
  /status            scene and session summary
  /suggest           next-step suggestions
  /context           the dialog digest sent to agents
  /equipment <text>  search the equipment database
  /clear             reset the session
  /quit              exit`)
	case "/status":
		fmt.Print(a.sess.ContextForAI())
		fmt.Printf("Commands this session: %d (success rate %.0f%%)\n",
			a.sess.CommandCount(), a.sess.SuccessRate()*100)
	case "/suggest":
		for _, s := range a.sess.Suggestions() {
			fmt.Println("  -", s)
		}
	case "/context":
		fmt.Print(a.sess.ContextForAI())
	case "/equipment":
		if strings.TrimSpace(rest) == "" {
			fmt.Println("Usage: /equipment <query>")
			break
		}
		hits := a.equipment.Search(rest, 5)
		if len(hits) == 0 {
			fmt.Println("No matching equipment.")
			break
		}
		for _, rec := range hits {
			fmt.Print(rec.Describe())
			fmt.Println()
		}
	case "/clear":
		a.sess.Clear()
		fmt.Println("Session cleared.")
	default:
		fmt.Printf("Unknown command %s (try /help)\n", cmd)
	}
	return false
}

func printResult(result *types.ExecuteResult) {
	if result.Output != "" {
		fmt.Println(result.Output)
	}
	for _, q := range result.ClarificationQuestions {
		fmt.Println("?", q)
	}
	if len(result.Suggestions) > 0 {
		fmt.Println("Suggestions:")
		for _, s := range result.Suggestions {
			fmt.Println("  -", s)
		}
	}
}
