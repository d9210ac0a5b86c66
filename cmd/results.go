package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"bacman/database"
	"bacman/models"

	"github.com/spf13/cobra"
)

var (
	resultsRisk  string
	resultsRunID string
	resultsLimit int
	resultsPage  int
	purgeForce   bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Reviews stored probe results",
}

// truncate shortens s to max runes for table output.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func writeResultsTable(out io.Writer, rows []models.ProbeResult, ids []int64) {
	writer := new(tabwriter.Writer)
	writer.Init(out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(writer, "ID\tSEQ\tMETHOD\tURL\tORIG\tTEST\tORIG_LEN\tTEST_LEN\tRISK")
	fmt.Fprintln(writer, "--\t---\t------\t---\t----\t----\t--------\t--------\t----")
	for i, r := range rows {
		id := "-"
		if i < len(ids) && ids[i] > 0 {
			id = strconv.FormatInt(ids[i], 10)
		}
		risk := r.RiskCategory.String()
		if label := r.RiskCategory.Label(); label != "" {
			risk += " (" + label + ")"
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			id,
			r.SequenceID,
			r.Method,
			truncate(r.URL, 80),
			r.OriginalSummary.StatusText(),
			r.TestSummary.StatusText(),
			r.OriginalSummary.ByteLength,
			r.TestSummary.ByteLength,
			risk,
		)
	}
	writer.Flush()
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists stored probe results, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := models.ProbeResultFilter{RunID: resultsRunID}
		if resultsRisk != "" {
			risk, err := models.ParseRiskCategory(resultsRisk)
			if err != nil {
				return err
			}
			filter.Risk = &risk
		}
		if resultsLimit < 1 {
			resultsLimit = 50
		}
		if resultsPage < 1 {
			resultsPage = 1
		}
		filter.Limit = resultsLimit
		filter.Offset = (resultsPage - 1) * resultsLimit

		stored, total, err := database.GetProbeResults(filter)
		if err != nil {
			return err
		}
		if total == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No probe results found.")
			return nil
		}
		rows := make([]models.ProbeResult, len(stored))
		ids := make([]int64, len(stored))
		for i, s := range stored {
			rows[i] = s.ProbeResult
			ids[i] = s.ID
		}
		writeResultsTable(cmd.OutOrStdout(), rows, ids)
		fmt.Fprintf(cmd.OutOrStdout(), "\nShowing %d of %d results (page %d).\n", len(stored), total, resultsPage)
		return nil
	},
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Shows one stored result with the replayed response preview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid result ID '%s': %w", args[0], err)
		}
		r, err := database.GetProbeResultByID(id)
		if err != nil {
			return fmt.Errorf("result %d: %w", id, err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ID:          %d\n", r.ID)
		fmt.Fprintf(out, "Run:         %s #%d\n", r.RunID, r.SequenceID)
		fmt.Fprintf(out, "Origin:      %s\n", r.Origin)
		fmt.Fprintf(out, "Request:     %s %s\n", r.Method, r.URL)
		fmt.Fprintf(out, "Original:    %s (%d bytes)\n", r.OriginalSummary.StatusText(), r.OriginalSummary.ByteLength)
		fmt.Fprintf(out, "Test:        %s (%d bytes)\n", r.TestSummary.StatusText(), r.TestSummary.ByteLength)
		fmt.Fprintf(out, "Risk:        %s %s\n", r.RiskCategory, r.RiskCategory.Label())
		fmt.Fprintf(out, "Started:     %s (%d ms)\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.DurationMs)
		if r.ReplayError != "" {
			fmt.Fprintf(out, "Replay error: %s\n", r.ReplayError)
		}
		if r.ResponsePreview != "" {
			fmt.Fprintf(out, "\n--- Replayed response ---\n%s\n", r.ResponsePreview)
		}
		return nil
	},
}

var resultsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Deletes every stored probe result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !purgeForce {
			fmt.Fprint(cmd.OutOrStdout(), "Delete ALL stored probe results? [y/N]: ")
			answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}
		n, err := database.DeleteAllProbeResults()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d probe results.\n", n)
		return nil
	},
}

func init() {
	resultsListCmd.Flags().StringVar(&resultsRisk, "risk", "", "only show this risk category (high, medium, none)")
	resultsListCmd.Flags().StringVar(&resultsRunID, "run", "", "only show results from this run id")
	resultsListCmd.Flags().IntVar(&resultsLimit, "limit", 50, "results per page")
	resultsListCmd.Flags().IntVar(&resultsPage, "page", 1, "page number")
	resultsPurgeCmd.Flags().BoolVarP(&purgeForce, "force", "f", false, "do not ask for confirmation")

	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	resultsCmd.AddCommand(resultsPurgeCmd)
	rootCmd.AddCommand(resultsCmd)
}
