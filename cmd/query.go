package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mcphub/internal/app"
	"mcphub/internal/dispatcher"

	"github.com/spf13/cobra"
)

var noTrace bool

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Answer one natural-language query and exit",
	Long: `Connects to the configured services, dispatches the query through the
configured language model and prints the streamed execution trace followed
by the final answer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&noTrace, "no-trace", false, "Suppress trace output, print only the final answer")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	hub, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One-shot runs skip the config watcher.
	if err := hub.Start(ctx, ""); err != nil {
		return err
	}
	defer hub.Stop()

	if !noTrace {
		renderServiceTable(os.Stderr, hub.ListServices())
	}

	var sink dispatcher.TraceSink
	if !noTrace {
		sink = dispatcher.TraceSinkFunc(printTraceEvent)
	}

	answer, err := hub.SubmitQuery(ctx, strings.Join(args, " "), sink)
	if err != nil {
		return err
	}

	fmt.Println(answer)
	return nil
}

// printTraceEvent writes one trace event to stderr so the final answer on
// stdout stays clean for scripting.
func printTraceEvent(event dispatcher.TraceEvent) {
	switch event.Type {
	case dispatcher.TraceThinking:
		fmt.Fprintf(os.Stderr, "[thinking] %s\n", event.Text)
	case dispatcher.TraceToolCallStart:
		fmt.Fprintf(os.Stderr, "[tool %s] calling %s %s\n", shortID(event.CorrelationID), event.ToolName, event.Arguments)
	case dispatcher.TraceToolCallComplete:
		if event.Error != "" {
			fmt.Fprintf(os.Stderr, "[tool %s] %s failed: %s\n", shortID(event.CorrelationID), event.ToolName, event.Error)
			return
		}
		fmt.Fprintf(os.Stderr, "[tool %s] %s -> %s\n", shortID(event.CorrelationID), event.ToolName, event.Result)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
