package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/provider"
	"github.com/MuslimSoftware/LifeOS-sub001/internal/runtime"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about your life data",
	Long: `Ask runs the agent once for the given question and prints the answer.
Without a question it reads questions from stdin, one per line, and keeps
the conversation going between them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		if len(args) > 0 {
			ans, err := r.Ask(cmd.Context(), nil, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printAnswer(out, ans)
		}

		var history []provider.Message
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			if !ciMode {
				fmt.Fprint(out, "> ")
			}
			if !scanner.Scan() {
				return scanner.Err()
			}
			q := strings.TrimSpace(scanner.Text())
			if q == "" {
				continue
			}
			if q == "exit" || q == "quit" {
				return nil
			}
			ans, err := r.Ask(cmd.Context(), history, q)
			if err != nil {
				return err
			}
			history = ans.Messages
			if err := printAnswer(out, ans); err != nil {
				return err
			}
		}
	},
}

func printAnswer(w io.Writer, ans *runtime.Answer) error {
	if ciMode {
		return json.NewEncoder(w).Encode(ans)
	}

	fmt.Fprintln(w, ans.Text)
	md := ans.Metadata
	tools := "none"
	if len(md.ToolsUsed) > 0 {
		tools = strings.Join(md.ToolsUsed, ", ")
	}
	fmt.Fprintf(w, "\n[%d iterations, %s, tools: %s, ~%d tokens]\n",
		md.Iterations, md.Elapsed.Round(time.Millisecond), tools, md.TokenEstimate)
	if md.HitMaxIterations {
		fmt.Fprintln(w, "[stopped at the iteration limit]")
	}
	return nil
}

func init() {
	RootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&providerName, "provider", "p", "", "Model provider (stub, openai, anthropic, gemini, ollama, cli)")
	askCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name")
	askCmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Maximum agent iterations")
}
