package faq

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"

	"quickcomm/internal/models"
)

// Importer reads FAQ entries from documents on disk. Entries start with a
// "Q:" line followed by an "A:" line; lines without a prefix continue the
// field above them and blank lines end it.
type Importer struct {
	loader *file.FileLoader
}

func NewImporter(ctx context.Context) (*Importer, error) {
	p, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return nil, fmt.Errorf("faq parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      p,
	})
	if err != nil {
		return nil, fmt.Errorf("faq loader: %w", err)
	}
	return &Importer{loader: loader}, nil
}

// Load returns the entries found in the document at path.
func (i *Importer) Load(ctx context.Context, path string) ([]models.FAQ, error) {
	docs, err := i.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	var entries []models.FAQ
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		entries = append(entries, ParseEntries(doc.Content)...)
	}
	return entries, nil
}

// ParseEntries extracts question and answer pairs from text. Pairs missing
// either half are skipped.
func ParseEntries(content string) []models.FAQ {
	var (
		entries []models.FAQ
		cur     models.FAQ
		field   *string
	)
	flush := func() {
		q, a := strings.TrimSpace(cur.Question), strings.TrimSpace(cur.Answer)
		if q != "" && a != "" {
			entries = append(entries, models.FAQ{Question: q, Answer: a})
		}
		cur = models.FAQ{}
		field = nil
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			field = nil
		case hasLabel(line, "Q:"):
			flush()
			cur.Question = line[2:]
			field = &cur.Question
		case hasLabel(line, "A:"):
			cur.Answer = line[2:]
			field = &cur.Answer
		case field != nil:
			*field += " " + line
		}
	}
	flush()
	return entries
}

func hasLabel(line, label string) bool {
	return len(line) >= len(label) && strings.EqualFold(line[:len(label)], label)
}

// Import adds entries that are not stored yet and returns how many were added.
func (s *Service) Import(ctx context.Context, entries []models.FAQ) (int, error) {
	added := 0
	for _, f := range entries {
		ok, err := s.Add(ctx, f.Question, f.Answer)
		if err != nil {
			return added, fmt.Errorf("import faqs: %w", err)
		}
		if ok {
			added++
		}
	}
	s.logger.WithField("added", added).WithField("read", len(entries)).Info("faqs imported")
	return added, nil
}
