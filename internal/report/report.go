// Package report renders the summary of a sync run for the console and as a
// markdown (or HTML) document with YAML front matter.
package report

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jgivc/datasync/internal/entity"
	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
	"gopkg.in/yaml.v2"
)

const (
	frontmatterDelimiter = "---"
	extHTML              = ".html"
)

// Meta is the front matter of a report document.
type Meta struct {
	RunID        string `yaml:"run_id"`
	Mode         string `yaml:"mode"`
	StartedAt    string `yaml:"started_at"`
	Duration     string `yaml:"duration"`
	Selected     int    `yaml:"selected"`
	Attempted    int    `yaml:"attempted"`
	Failed       int    `yaml:"failed"`
	StaleFound   int    `yaml:"stale_found"`
	StaleDeleted int    `yaml:"stale_deleted"`
	StaleFailed  int    `yaml:"stale_failed"`
}

func NewMeta(s *entity.SyncSummary) Meta {
	return Meta{
		RunID:        s.RunID,
		Mode:         s.Mode,
		StartedAt:    s.StartedAt.UTC().Format(time.RFC3339),
		Duration:     s.Duration.Round(time.Millisecond).String(),
		Selected:     s.Selected,
		Attempted:    s.Attempted,
		Failed:       s.Failed,
		StaleFound:   s.StaleFound,
		StaleDeleted: s.StaleDeleted,
		StaleFailed:  s.StaleFailed,
	}
}

// Print writes the console summary.
func Print(w io.Writer, s *entity.SyncSummary) error {
	_, err := fmt.Fprintf(w, "%d datasets attempted to download, %d failed.\n%d stale datasets deleted.\n",
		s.Attempted, s.Failed, s.StaleDeleted)

	return err
}

// Markdown renders the summary as a markdown document with YAML front matter.
func Markdown(s *entity.SyncSummary) ([]byte, error) {
	meta, err := yaml.Marshal(NewMeta(s))
	if err != nil {
		return nil, fmt.Errorf("cannot marshal report meta: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelimiter + "\n")
	buf.Write(meta)
	buf.WriteString(frontmatterDelimiter + "\n\n")

	fmt.Fprintf(&buf, "# Sync run %s\n\n", s.RunID)
	fmt.Fprintf(&buf, "Mode **%s**, started %s, took %s.\n\n", s.Mode, s.StartedAt.UTC().Format(time.RFC3339), s.Duration.Round(time.Millisecond))

	buf.WriteString("| Step | Count |\n|---|---:|\n")
	fmt.Fprintf(&buf, "| Selected | %d |\n", s.Selected)
	fmt.Fprintf(&buf, "| Attempted | %d |\n", s.Attempted)
	fmt.Fprintf(&buf, "| Failed | %d |\n", s.Failed)
	fmt.Fprintf(&buf, "| Stale found | %d |\n", s.StaleFound)
	fmt.Fprintf(&buf, "| Stale deleted | %d |\n", s.StaleDeleted)
	fmt.Fprintf(&buf, "| Stale failed | %d |\n", s.StaleFailed)

	if s.Failed > 0 {
		buf.WriteString("\nFailed datasets are flagged with `error` in the catalog and are retried with `--errors`.\n")
	}

	if s.Interrupted() {
		buf.WriteString("\nThe run was interrupted before every selected dataset was attempted.\n")
	}

	return buf.Bytes(), nil
}

// HTML converts a markdown report into HTML and returns its front matter.
func HTML(markdown []byte) ([]byte, *Meta, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			&frontmatter.Extender{},
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)

	var buf bytes.Buffer

	ctx := parser.NewContext()
	if err := md.Convert(markdown, &buf, parser.WithContext(ctx)); err != nil {
		return nil, nil, fmt.Errorf("cannot render report: %w", err)
	}

	meta := &Meta{}
	if fm := frontmatter.Get(ctx); fm != nil {
		if err := fm.Decode(meta); err != nil {
			return nil, nil, fmt.Errorf("cannot decode report meta: %w", err)
		}
	}

	return buf.Bytes(), meta, nil
}

// Write stores the report at path. A .html extension renders HTML, anything
// else is written as markdown.
func Write(fs afero.Fs, path string, s *entity.SyncSummary) error {
	content, err := Markdown(s)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), extHTML) {
		body, meta, err := HTML(content)
		if err != nil {
			return err
		}

		if content, err = Page(body, meta); err != nil {
			return err
		}
	}

	if err := afero.WriteFile(fs, path, content, 0o644); err != nil {
		return fmt.Errorf("cannot write report %s: %w", path, err)
	}

	return nil
}
