package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/legalrag/backend/internal/evaluation"
)

var evalCmd = &cobra.Command{
	Use:   "eval [dataset.json]",
	Short: "Score answers against a labelled dataset",
	Long:  `Asks every dataset question and reports answer similarity to the expected answer and recall of expected citations.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runEval,
}

var evalJSON bool

func init() {
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "Print the full report as JSON")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	if asker == nil || embedder == nil {
		return errors.New("query engine not configured")
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	dataset, err := evaluation.LoadDataset(raw)
	if err != nil {
		return err
	}

	report, err := evaluation.NewEvaluator(asker, embedder).Run(cmd.Context(), dataset)
	if err != nil {
		return err
	}

	if evalJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	cmd.Print(evaluation.FormatReport(report))
	return nil
}
