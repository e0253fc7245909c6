package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jgivc/datasync/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func testSummary() *entity.SyncSummary {
	return &entity.SyncSummary{
		RunID:        "2f1c6f0e-run",
		Mode:         "normal",
		StartedAt:    time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC),
		Duration:     95 * time.Second,
		Selected:     10,
		Attempted:    10,
		Failed:       1,
		StaleFound:   3,
		StaleDeleted: 2,
		StaleFailed:  1,
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, testSummary()))
	require.Equal(t, "10 datasets attempted to download, 1 failed.\n2 stale datasets deleted.\n", buf.String())
}

func TestMarkdown(t *testing.T) {
	content, err := Markdown(testSummary())
	require.NoError(t, err)

	text := string(content)
	require.True(t, strings.HasPrefix(text, "---\nrun_id: 2f1c6f0e-run\n"), text)
	require.Contains(t, text, "# Sync run 2f1c6f0e-run")
	require.Contains(t, text, "| Failed | 1 |")
	require.Contains(t, text, "retried with `--errors`")
	require.NotContains(t, text, "interrupted")
}

func TestHTMLRoundTripsMeta(t *testing.T) {
	content, err := Markdown(testSummary())
	require.NoError(t, err)

	out, meta, err := HTML(content)
	require.NoError(t, err)

	require.Equal(t, NewMeta(testSummary()), *meta)
	require.Equal(t, "2026-10-19T08:30:00Z", meta.StartedAt)
	require.Equal(t, "1m35s", meta.Duration)

	html := string(out)
	require.Contains(t, html, "<h1>Sync run 2f1c6f0e-run</h1>")
	require.Contains(t, html, "<table>")
	require.NotContains(t, html, "run_id:")
}

func TestWrite(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, Write(fs, "/reports/run.md", testSummary()))
	md, err := afero.ReadFile(fs, "/reports/run.md")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(md), "---\n"))

	require.NoError(t, Write(fs, "/reports/run.HTML", testSummary()))
	html, err := afero.ReadFile(fs, "/reports/run.HTML")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(html), "<!DOCTYPE html>"))
	require.Contains(t, string(html), "<title>Sync run 2f1c6f0e-run</title>")
	require.Contains(t, string(html), "<h1>Sync run 2f1c6f0e-run</h1>")
}
