package ingestion_engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/codexrag/ingesta/internal/core"
)

// maxDetailedFiles caps the per-file lists in the report so a pathological
// run doesn't produce a megabyte of markdown. The counts are always exact.
const maxDetailedFiles = 20

// Report is the final run artifact: everything the monitor accumulated,
// frozen, with the file-level detail an operator needs to act on anomalies
// without re-scanning logs.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Elapsed    string    `json:"elapsed"`

	RPMBudget int `json:"rpm_budget"`
	TPMBudget int `json:"tpm_budget"`

	Stats MonitorStats `json:"stats"`
}

// NewReport freezes a monitor snapshot into a report.
func NewReport(stats MonitorStats, rpmBudget, tpmBudget int) *Report {
	now := time.Now()
	return &Report{
		RunID:      uuid.NewString(),
		StartedAt:  stats.StartTime,
		FinishedAt: now,
		Elapsed:    now.Sub(stats.StartTime).Round(time.Second).String(),
		RPMBudget:  rpmBudget,
		TPMBudget:  tpmBudget,
		Stats:      stats,
	}
}

// WriteFile renders the markdown report at path, creating parent directories
// as needed. An empty path defaults to ingestion_report_<timestamp>.md in the
// working directory.
func (r *Report) WriteFile(path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("ingestion_report_%s.md", r.FinishedAt.Format("20060102_150405"))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create report dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	if err := r.RenderMarkdown(f); err != nil {
		return "", err
	}
	return path, nil
}

// RenderMarkdown writes the structured report document.
func (r *Report) RenderMarkdown(w io.Writer) error {
	s := &r.Stats

	fmt.Fprintf(w, "# Ingestion Report\n\n")
	fmt.Fprintf(w, "Run `%s`, generated %s\n\n", r.RunID, r.FinishedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(w, "## Execution\n\n")
	fmt.Fprintf(w, "- Started: %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "- Finished: %s\n", r.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "- Elapsed: %s\n\n", r.Elapsed)

	minChunks := s.MinChunksPerFile
	if minChunks < 0 {
		minChunks = 0
	}

	fmt.Fprintf(w, "## Summary\n\n")
	fmt.Fprintf(w, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(w, "| Total files | %d |\n", s.TotalFiles)
	fmt.Fprintf(w, "| Processed | %d |\n", s.FilesProcessed)
	fmt.Fprintf(w, "| Failed | %d |\n", s.FilesFailed)
	fmt.Fprintf(w, "| Duplicates skipped | %d |\n", s.FilesDuplicated)
	fmt.Fprintf(w, "| Reindexed | %d |\n", s.FilesReindexed)
	fmt.Fprintf(w, "| Suspicious (few chunks) | %d |\n", s.FilesSuspicious)
	fmt.Fprintf(w, "| Total chunks | %d |\n", s.TotalChunks)
	fmt.Fprintf(w, "| Chunks per file (min/avg/max) | %d / %.1f / %d |\n\n",
		minChunks, s.AvgChunksPerFile, s.MaxChunksPerFile)

	fmt.Fprintf(w, "## Duplicated files\n\n")
	if len(s.DuplicatedFiles) == 0 {
		fmt.Fprintf(w, "None.\n\n")
	} else {
		for i, d := range s.DuplicatedFiles {
			if i == maxDetailedFiles {
				fmt.Fprintf(w, "\n...and %d more\n", len(s.DuplicatedFiles)-maxDetailedFiles)
				break
			}
			fmt.Fprintf(w, "- `%s` (doc_id %.16s...)\n", d.FileName, d.DocID)
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "## Reindexed files\n\n")
	if len(s.ReindexedFiles) == 0 {
		fmt.Fprintf(w, "None.\n\n")
	} else {
		for i, rx := range s.ReindexedFiles {
			if i == maxDetailedFiles {
				fmt.Fprintf(w, "\n...and %d more\n", len(s.ReindexedFiles)-maxDetailedFiles)
				break
			}
			fmt.Fprintf(w, "- `%s` (doc_id %.16s..., %d stale chunks removed)\n",
				rx.FileName, rx.DocID, rx.DeletedChunks)
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "## Suspicious files\n\n")
	if len(s.SuspiciousFiles) == 0 {
		fmt.Fprintf(w, "None.\n\n")
	} else {
		for i, name := range s.SuspiciousFiles {
			if i == maxDetailedFiles {
				fmt.Fprintf(w, "\n...and %d more\n", len(s.SuspiciousFiles)-maxDetailedFiles)
				break
			}
			chunks := 0
			if rec := s.FileStats[name]; rec != nil {
				chunks = rec.Chunks
			}
			fmt.Fprintf(w, "- `%s` (%d chunks)\n", name, chunks)
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "## Failed files\n\n")
	if len(s.FailedFiles) == 0 {
		fmt.Fprintf(w, "None.\n\n")
	} else {
		for i, fl := range s.FailedFiles {
			if i == maxDetailedFiles {
				fmt.Fprintf(w, "\n...and %d more\n", len(s.FailedFiles)-maxDetailedFiles)
				break
			}
			fmt.Fprintf(w, "- `%s`\n  - class: %s\n  - error: %s\n", fl.FileName, fl.Class, fl.Error)
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "## Performance\n\n")
	fmt.Fprintf(w, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(w, "| Files/min | %.2f |\n", s.FilesPerMinute)
	fmt.Fprintf(w, "| Chunks/min | %.0f |\n", s.ChunksPerMinute)
	fmt.Fprintf(w, "| Tokens sent (estimated) | %d |\n", s.TotalTokens)
	fmt.Fprintf(w, "| Estimated RPM | %.0f / %d (%s) |\n",
		s.EstimatedRPM, r.RPMBudget, pct(s.EstimatedRPM, r.RPMBudget))
	fmt.Fprintf(w, "| Estimated TPM | %.0f / %d (%s) |\n\n",
		s.EstimatedTPM, r.TPMBudget, pct(s.EstimatedTPM, r.TPMBudget))

	fmt.Fprintf(w, "## Retries and errors\n\n")
	fmt.Fprintf(w, "- Rate-limit retries: %d\n", s.RetriesByClass["rate_limit"])
	fmt.Fprintf(w, "- Network retries: %d\n", s.RetriesByClass["network"])
	fmt.Fprintf(w, "- Failures by class:")
	if len(s.ErrorsByClass) == 0 {
		fmt.Fprintf(w, " none\n")
	} else {
		fmt.Fprintf(w, "\n")
		classes := []core.ErrorClass{
			core.ClassRateLimit, core.ClassNetwork, core.ClassExtraction,
			core.ClassAuth, core.ClassOther,
		}
		for _, class := range classes {
			if n := s.ErrorsByClass[class]; n > 0 {
				fmt.Fprintf(w, "  - %s: %d\n", class, n)
			}
		}
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "## Chunk distribution\n\n")
	fmt.Fprintf(w, "| Chunks per file | Files |\n|---|---|\n")
	dist := r.chunkDistribution()
	for _, row := range dist {
		fmt.Fprintf(w, "| %s | %d |\n", row.label, row.count)
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "## Conclusion\n\n")
	fmt.Fprintf(w, "%s\n", r.conclusion())
	return nil
}

type distRow struct {
	label string
	count int
}

func (r *Report) chunkDistribution() []distRow {
	ranges := []struct {
		lo, hi int
		label  string
	}{
		{0, 5, "0-5 (suspicious)"},
		{5, 20, "5-20"},
		{20, 50, "20-50"},
		{50, 100, "50-100"},
		{100, 200, "100-200"},
		{200, 1 << 30, "200+"},
	}
	out := make([]distRow, len(ranges))
	for i, rg := range ranges {
		out[i].label = rg.label
		for _, rec := range r.Stats.FileStats {
			if rec.Status == "completed" && rec.Chunks >= rg.lo && rec.Chunks < rg.hi {
				out[i].count++
			}
		}
	}
	return out
}

func (r *Report) conclusion() string {
	s := &r.Stats
	switch {
	case s.FilesFailed == 0 && s.FilesSuspicious == 0:
		return "Ingestion completed with no failures."
	case s.FilesFailed == 0:
		return fmt.Sprintf("Ingestion completed; %d suspicious file(s) need manual review.", s.FilesSuspicious)
	default:
		return fmt.Sprintf("Ingestion completed with %d failure(s); see the failed-files list above.", s.FilesFailed)
	}
}

// PrintSummary writes the short colored wrap-up to the console.
func (r *Report) PrintSummary(w io.Writer) {
	s := &r.Stats

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	bold.Fprintf(w, "\nIngestion finished in %s\n", r.Elapsed)
	green.Fprintf(w, "  processed:  %d/%d\n", s.FilesProcessed, s.TotalFiles)
	if s.FilesDuplicated > 0 {
		yellow.Fprintf(w, "  duplicates: %d\n", s.FilesDuplicated)
	}
	if s.FilesReindexed > 0 {
		yellow.Fprintf(w, "  reindexed:  %d\n", s.FilesReindexed)
	}
	if s.FilesSuspicious > 0 {
		yellow.Fprintf(w, "  suspicious: %d\n", s.FilesSuspicious)
	}
	if s.FilesFailed > 0 {
		red.Fprintf(w, "  failed:     %d\n", s.FilesFailed)
	}
	fmt.Fprintf(w, "  chunks:     %d\n", s.TotalChunks)
}

func pct(v float64, budget int) string {
	if budget <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", v/float64(budget)*100)
}
