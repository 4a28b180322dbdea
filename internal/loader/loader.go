// Package loader turns stored source files into ordered text fragments.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/pkg/logger"
)

// Parser extracts fragments from one file format.
type Parser interface {
	Format() string
	Parse(data []byte) ([]domain.Fragment, error)
}

// ForFilename picks the parser for a file by its extension.
func ForFilename(name string) (Parser, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return PDF{}, nil
	case ".docx":
		return DOCX{}, nil
	case ".html", ".htm":
		return HTML{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, name)
	}
}

// Store resolves source references to files under a root directory laid
// out as <root>/<collection>-<collectionID>/<sourceID>-<filename>.
type Store struct {
	root string
}

var _ domain.DocumentLoader = (*Store)(nil)

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Path(ref domain.SourceReference) string {
	return filepath.Join(s.root,
		ref.Collection+"-"+ref.CollectionID,
		ref.SourceID+"-"+filepath.Base(ref.Filename),
	)
}

func (s *Store) Load(ctx context.Context, ref domain.SourceReference) ([]domain.Fragment, error) {
	parser, err := ForFilename(ref.Filename)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path(ref)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	frags, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s as %s: %w", ref.Filename, parser.Format(), err)
	}

	logger.Debug("Document loaded",
		zap.String("path", path),
		zap.String("format", parser.Format()),
		zap.Int("fragments", len(frags)),
	)
	return frags, nil
}

// Save writes an uploaded file where Load will look for it.
func (s *Store) Save(ref domain.SourceReference, data []byte) (string, error) {
	if _, err := ForFilename(ref.Filename); err != nil {
		return "", err
	}
	path := s.Path(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (s *Store) Remove(ref domain.SourceReference) error {
	if err := os.Remove(s.Path(ref)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// JoinText concatenates fragment text with no separator, the way ruling
// analysis reads a judgment.
func JoinText(frags []domain.Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		b.WriteString(f.Text)
	}
	return b.String()
}

// JoinLines concatenates fragment text one fragment per line. Fragments
// that already end in a newline are not given a second one.
func JoinLines(frags []domain.Fragment) string {
	var b strings.Builder
	for i, f := range frags {
		b.WriteString(f.Text)
		if i < len(frags)-1 && !strings.HasSuffix(f.Text, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
