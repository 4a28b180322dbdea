package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/ingestion"
	"github.com/legalrag/backend/internal/loader"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a ruling or legislation file",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var documentsCmd = &cobra.Command{
	Use:   "documents [collection]",
	Short: "List ingested documents in a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocuments,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [source-id]",
	Short: "Remove a source from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate [source-id]",
	Short: "Re-run ruling analysis for a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegenerate,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex [source-id] [document.json]",
	Short: "Replace a legislation source's sections",
	Long:  `Reads an edited {"citation","jurisdiction","sections"} document and re-embeds it in place of the source's vectors.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runReindex,
}

var (
	collection   string
	collectionID string
	kind         string
)

func init() {
	ingestCmd.Flags().StringVar(&collection, "collection", "", "Target collection")
	ingestCmd.Flags().StringVar(&collectionID, "collection-id", "", "Collection identifier")
	ingestCmd.Flags().StringVar(&kind, "kind", string(domain.KindRuling), "Document kind: ruling or legislation")
	_ = ingestCmd.MarkFlagRequired("collection")
	_ = ingestCmd.MarkFlagRequired("collection-id")

	for _, cmd := range []*cobra.Command{deleteCmd, regenerateCmd, reindexCmd} {
		cmd.Flags().StringVar(&collection, "collection", "", "Collection holding the source")
		_ = cmd.MarkFlagRequired("collection")
	}

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(reindexCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingester == nil || files == nil {
		return errors.New("ingestion not configured")
	}

	path := args[0]
	ref := domain.SourceReference{
		Collection:   collection,
		CollectionID: collectionID,
		SourceID:     uuid.NewString(),
		Filename:     filepath.Base(path),
	}
	if _, err := loader.ForFilename(ref.Filename); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if _, err := files.Save(ref, data); err != nil {
		return fmt.Errorf("failed to store %s: %w", path, err)
	}

	res, err := ingester.Ingest(cmd.Context(), ref, domain.DocumentKind(kind))
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", path, err)
	}

	printResult(cmd, ref, res)
	return nil
}

func runDocuments(cmd *cobra.Command, args []string) error {
	if documents == nil {
		return errors.New("document store not configured")
	}

	docs, err := documents.ListDocuments(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Printf("No documents found in collection: %s\n", args[0])
		return nil
	}

	for i := range docs {
		cmd.Printf("  %s\n", docs[i].SourceID)
		cmd.Printf("    Citation: %s\n", docs[i].Citation)
		cmd.Printf("    File:     %s\n", docs[i].Filename)
		cmd.Printf("    Kind:     %s\n", docs[i].Kind)
		cmd.Printf("    Chunks:   %d\n", docs[i].Chunks)
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if ingester == nil {
		return errors.New("ingestion not configured")
	}

	ref, err := lookup(cmd.Context(), collection, args[0])
	if err != nil {
		return err
	}
	if err := ingester.Delete(cmd.Context(), ref); err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref.SourceID, err)
	}

	cmd.Printf("Deleted %s (%s)\n", ref.SourceID, ref.Citation)
	return nil
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	if ingester == nil {
		return errors.New("ingestion not configured")
	}

	ref, err := lookup(cmd.Context(), collection, args[0])
	if err != nil {
		return err
	}
	res, err := ingester.Regenerate(cmd.Context(), ref)
	if err != nil {
		return fmt.Errorf("failed to regenerate %s: %w", ref.SourceID, err)
	}

	printResult(cmd, ref, res)
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	if ingester == nil {
		return errors.New("ingestion not configured")
	}

	raw, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[1], err)
	}
	var doc domain.LegislationDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid document %s: %w", args[1], err)
	}

	ref, err := lookup(cmd.Context(), collection, args[0])
	if err != nil {
		return err
	}
	res, err := ingester.Reindex(cmd.Context(), ref, doc)
	if err != nil {
		return fmt.Errorf("failed to reindex %s: %w", ref.SourceID, err)
	}

	printResult(cmd, ref, res)
	return nil
}

func printResult(cmd *cobra.Command, ref domain.SourceReference, res *ingestion.IngestResult) {
	cmd.Printf("Source %s\n", ref.SourceID)
	cmd.Printf("  Kind:     %s\n", res.Kind)
	cmd.Printf("  Citation: %s\n", res.Citation)
	if res.Sectioning != "" {
		cmd.Printf("  Sections: %d (%s)\n", len(res.Sections), res.Sectioning)
	}
	cmd.Printf("  Chunks:   %d\n", res.Chunks)
}
