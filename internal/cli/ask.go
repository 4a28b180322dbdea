package cli

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/query"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a research question",
	Long:  `Runs the single-step pipeline, or the multi-step pipeline with --multi, and prints the structured answer.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List searchable collections",
	Args:  cobra.NoArgs,
	RunE:  runCollections,
}

var (
	askMulti bool
	askK     int
	askScope int
	askJSON  bool
)

func init() {
	askCmd.Flags().BoolVar(&askMulti, "multi", false, "Research each source before answering")
	askCmd.Flags().IntVarP(&askK, "hits", "k", 0, "Hits per search phrase")
	askCmd.Flags().IntVar(&askScope, "scope", 0, "Sources passed to the answer")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the raw JSON result")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if asker == nil {
		return errors.New("query engine not configured")
	}

	mode := query.ModeSingle
	if askMulti {
		mode = query.ModeMulti
	}

	res, _, err := asker.Ask(cmd.Context(), query.Request{
		Mode:   mode,
		Prompt: strings.TrimSpace(args[0]),
		K:      askK,
		Scope:  askScope,
		OnStage: func(stage query.Stage, count int) {
			cmd.PrintErrf("… %s (%d)\n", stage, count)
		},
	})

	if askJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			return encErr
		}
		return err
	}

	printAnswer(cmd, res)
	return err
}

func printAnswer(cmd *cobra.Command, res query.Result) {
	for _, s := range res.Answer {
		switch s.Type {
		case domain.SectionHeader:
			cmd.Printf("\n%s\n\n", strings.ToUpper(s.Text))
		case domain.SectionParagraph:
			cmd.Printf("%s\n\n", s.Text)
		case domain.SectionList:
			for _, item := range s.Items {
				cmd.Printf("  - %s\n", item)
			}
			cmd.Println()
		case domain.SectionTable:
			titles := make([]string, len(s.Table.Columns))
			for i, col := range s.Table.Columns {
				titles[i] = col.Title
			}
			cmd.Println(strings.Join(titles, " | "))
			for _, row := range s.Table.Rows {
				cells := make([]string, len(s.Table.Columns))
				for i, col := range s.Table.Columns {
					if v, ok := row[col.DataIndex]; ok {
						b, _ := json.Marshal(v)
						cells[i] = strings.Trim(string(b), `"`)
					}
				}
				cmd.Println(strings.Join(cells, " | "))
			}
			cmd.Println()
		}
	}

	if len(res.Citations) > 0 {
		cmd.Println("Sources:")
		for _, c := range res.Citations {
			cmd.Printf("  %s [%s/%s]\n", c.Citation, c.Collection, c.SourceID)
		}
	}
}

func runCollections(cmd *cobra.Command, _ []string) error {
	if asker == nil {
		return errors.New("query engine not configured")
	}

	for _, name := range asker.Collections(cmd.Context()) {
		cmd.Println(name)
	}
	return nil
}
