package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/actionsum/nudge/internal/database"
	"github.com/actionsum/nudge/internal/models"
	"github.com/actionsum/nudge/pkg/utils"
)

// Reporter handles report generation and export
type Reporter struct {
	repo *database.Repository
	now  func() time.Time
}

// New creates a new reporter
func New(repo *database.Repository) *Reporter {
	return &Reporter{
		repo: repo,
		now:  time.Now,
	}
}

// GenerateReport generates a report for the specified period
func (r *Reporter) GenerateReport(periodType string) (*models.Report, error) {
	period, err := r.getPeriod(periodType)
	if err != nil {
		return nil, err
	}

	// Grouping and counting happen in SQL
	summaries, err := r.repo.GetDetectionSummarySince(period.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to get detection summary: %w", err)
	}

	report := &models.Report{
		Period:      *period,
		Themes:      summaries,
		GeneratedAt: r.now(),
	}
	for _, s := range summaries {
		report.Total += s.Count
		switch models.ResultSource(s.Source) {
		case models.SourceBurst:
			report.BurstCount += s.Count
		case models.SourceFocus:
			report.FocusCount += s.Count
		}
	}

	return report, nil
}

// getPeriod calculates the time range for the report
func (r *Reporter) getPeriod(periodType string) (*models.ReportPeriod, error) {
	now := r.now()
	var start, end time.Time

	switch periodType {
	case "day", "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 0, 1)

	case "week":
		// Start of week (Monday)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	default:
		return nil, fmt.Errorf("invalid period type: %s (valid: day, week, month)", periodType)
	}

	return &models.ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// FormatReportText formats the report as human-readable text
func (r *Reporter) FormatReportText(report *models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Detection Report - %s\n", report.Period.Type)
	fmt.Fprintf(&b, "Period: %s to %s\n",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Total: %d (%d burst, %d focus)\n\n", report.Total, report.BurstCount, report.FocusCount)

	if len(report.Themes) == 0 {
		b.WriteString("No detections recorded for this period.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-8s %-36s %6s %6s %10s\n", "Source", "Theme", "Count", "High", "Last seen")
	b.WriteString(strings.Repeat("-", 70) + "\n")

	for _, s := range report.Themes {
		theme := s.Theme
		if theme == "" {
			theme = "(none)"
		}
		fmt.Fprintf(&b, "%-8s %-36s %6d %6d %10s\n",
			s.Source,
			utils.Truncate(theme, 36),
			s.Count,
			s.HighCount,
			r.lastSeen(s.LastSeenAt))
	}

	return b.String()
}

// FormatReportJSON formats the report as JSON
func (r *Reporter) FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// lastSeen renders a stored timestamp as a rounded age, e.g. "12m ago".
func (r *Reporter) lastSeen(stored string) string {
	for _, layout := range []string{"2006-01-02 15:04:05.999999999-07:00", time.RFC3339Nano} {
		if t, err := time.Parse(layout, stored); err == nil {
			return utils.FormatRoundedUnit(r.now().Sub(t)) + " ago"
		}
	}
	return "-"
}

// Export writes every detection since the given time as JSON lines to w,
// zstd-compressed when compress is set. It returns the number written.
func (r *Reporter) Export(w io.Writer, since time.Time, compress bool) (int, error) {
	detections, err := r.repo.GetDetectionsSince(since)
	if err != nil {
		return 0, fmt.Errorf("failed to load detections: %w", err)
	}

	dest := w
	var encoder *zstd.Encoder
	if compress {
		encoder, err = zstd.NewWriter(w)
		if err != nil {
			return 0, fmt.Errorf("create zstd encoder: %w", err)
		}
		dest = encoder
	}

	enc := json.NewEncoder(dest)
	for _, d := range detections {
		if err := enc.Encode(d); err != nil {
			if encoder != nil {
				encoder.Close()
			}
			return 0, fmt.Errorf("encode detection %s: %w", d.ResultID, err)
		}
	}

	if encoder != nil {
		if err := encoder.Close(); err != nil {
			return 0, fmt.Errorf("finalize compression: %w", err)
		}
	}
	return len(detections), nil
}

// ExportFile writes an export to path. A ".zst" suffix forces compression.
func (r *Reporter) ExportFile(path string, since time.Time, compress bool) (int, error) {
	compress = compress || strings.HasSuffix(path, ".zst")

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export: %w", err)
	}
	defer f.Close()

	n, err := r.Export(f, since, compress)
	if err != nil {
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close export: %w", err)
	}
	return n, nil
}
