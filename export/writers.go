package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/swdee/go-planktrack/counter"
	"io"
	"strconv"
	"strings"
)

var (
	countsHeader = []string{"class", "count", "percentage"}
	tracksHeader = []string{"track_id", "class", "first_frame", "last_frame",
		"hits", "mean_confidence", "active"}
)

// WriteCounts writes one row per class sorted by count descending
func WriteCounts(w io.Writer, stats counter.RunStatistics) error {

	cw := csv.NewWriter(w)

	if err := cw.Write(countsHeader); err != nil {
		return err
	}

	for _, c := range stats.Classes() {
		err := cw.Write([]string{
			c.Label,
			strconv.Itoa(c.Count),
			strconv.FormatFloat(c.Percent, 'f', 1, 64),
		})

		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteTracks writes one row per track record in first seen order
func WriteTracks(w io.Writer, records []counter.TrackRecord) error {

	cw := csv.NewWriter(w)

	if err := cw.Write(tracksHeader); err != nil {
		return err
	}

	for _, r := range records {
		err := cw.Write([]string{
			strconv.FormatInt(r.ID, 10),
			r.Label,
			strconv.Itoa(r.FirstSeen),
			strconv.Itoa(r.LastSeen),
			strconv.Itoa(r.Hits),
			strconv.FormatFloat(float64(r.MeanConfidence), 'f', 3, 32),
			strconv.FormatBool(r.Active),
		})

		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteReport writes the report as indented JSON
func WriteReport(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// WriteSummary writes a human readable summary of the session
func WriteSummary(w io.Writer, rep Report) error {

	m := rep.Metadata

	var b strings.Builder

	fmt.Fprintf(&b, "PLANKTON FLOW COUNT\n")
	fmt.Fprintf(&b, "Session:   %s\n", m.SessionID)
	fmt.Fprintf(&b, "Source:    %s\n", m.Source)

	if m.Location != "" {
		fmt.Fprintf(&b, "Location:  %s\n", m.Location)
	}

	if !m.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started:   %s\n", m.StartedAt.Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(&b, "Frames:    %d\n", m.Frames)
	fmt.Fprintf(&b, "Duration:  %.1fs\n", m.DurationSeconds)
	fmt.Fprintf(&b, "Avg FPS:   %.1f\n", m.AverageFPS)

	if m.FlowRateMLMin > 0 {
		fmt.Fprintf(&b, "Flow rate: %.2f mL/min\n", m.FlowRateMLMin)
		fmt.Fprintf(&b, "Volume:    %.3f mL\n", m.VolumeML)
		fmt.Fprintf(&b, "Concentration: %.2f organisms/mL\n", m.Concentration)
	}

	fmt.Fprintf(&b, "\nUNIQUE ORGANISMS DETECTED: %d\n\n", rep.Total)

	b.WriteString(SpeciesTable(rep))

	fmt.Fprintf(&b, "\n\nShannon diversity: %.3f\n", m.Diversity.Shannon)
	fmt.Fprintf(&b, "Simpson diversity: %.3f\n", m.Diversity.Simpson)
	fmt.Fprintf(&b, "Species richness:  %d\n", m.Diversity.Richness)

	if m.Bloom != nil {
		fmt.Fprintf(&b, "\nBLOOM ALERT: %s at %.1f%%\n", m.Bloom.Class, m.Bloom.Share*100)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// SpeciesTable renders the per class counts of a report as a text table
func SpeciesTable(rep Report) string {

	stats := counter.RunStatistics{
		TotalUnique:   rep.Total,
		UniqueByClass: rep.Counts,
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Species", "Count", "%"})

	t.AppendRows(lo.Map(stats.Classes(), func(c counter.ClassCount, _ int) table.Row {
		return table.Row{c.Label, c.Count, fmt.Sprintf("%.1f", c.Percent)}
	}))

	t.AppendFooter(table.Row{"Total", rep.Total, ""})

	return t.Render()
}
