package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect saved session result files",
	Long: `Session inspects result files written by the research command. Sessions
live inside a single research process; once that process exits, the result
file is the durable record, so these subcommands operate on files rather
than on a running engine.`,
}

var sessionSummaryCmd = &cobra.Command{
	Use:   "summary <result-file>",
	Short: "Print a session's headline statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := session.ReadResultFile(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "session:         %s\n", rf.Result.SessionID)
		fmt.Fprintf(out, "query:           %s\n", rf.Result.Query)
		fmt.Fprintf(out, "questions:       %d\n", rf.Summary.Questions)
		fmt.Fprintf(out, "citations:       %d\n", rf.Summary.Citations)
		fmt.Fprintf(out, "insights:        %d\n", rf.Summary.Insights)
		fmt.Fprintf(out, "inconsistencies: %d\n", rf.Summary.Inconsistency)
		fmt.Fprintf(out, "fallback used:   %v\n", rf.Summary.FallbackUsed)
		fmt.Fprintf(out, "duration:        %s\n", rf.Result.Duration)
		return nil
	},
}

var sessionReportCmd = &cobra.Command{
	Use:   "report <result-file>",
	Short: "Print a session's final report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := session.ReadResultFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rf.Result.Report)
		return nil
	},
}

var sessionQuestionsCmd = &cobra.Command{
	Use:   "questions <result-file>",
	Short: "List a session's research questions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := session.ReadResultFile(args[0])
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rf.Result.Questions)
		}
		for _, q := range rf.Result.Questions {
			mark := " "
			if q.Researched {
				mark = "x"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] (%s/%s) %s\n", mark, q.Category, q.Priority, q.Text)
		}
		return nil
	},
}

func init() {
	sessionQuestionsCmd.Flags().Bool("json", false, "output questions as JSON")

	sessionCmd.AddCommand(sessionSummaryCmd)
	sessionCmd.AddCommand(sessionReportCmd)
	sessionCmd.AddCommand(sessionQuestionsCmd)
	rootCmd.AddCommand(sessionCmd)
}
