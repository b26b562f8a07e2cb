package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nelcapetown/audible-scraper/internal/pipeline"
)

func printSummary(w io.Writer, s *pipeline.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Run", s.RunID.String()})

	t.AppendRow(table.Row{"Records", len(s.Records)})
	t.AppendRow(table.Row{"Pages", s.Pages})
	t.AppendRow(table.Row{"Skipped rows", s.Skipped})
	t.AppendRow(table.Row{"Final state", s.FinalState.String()})
	t.AppendRow(table.Row{"Stop reason", string(s.StopReason)})
	if s.TraversalErr != nil {
		t.AppendRow(table.Row{"Traversal error", s.TraversalErr.Error()})
	}
	if s.RecordFile != "" {
		t.AppendRow(table.Row{"Library file", s.RecordFile})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Images downloaded", s.Assets.Downloaded})
	t.AppendRow(table.Row{"Images already present", s.Assets.Skipped})
	t.AppendRow(table.Row{"Images failed", s.Assets.Failed})
	t.AppendRow(table.Row{"Records without cover", s.Assets.NoURL})
	t.AppendRow(table.Row{"Duration", s.Finished.Sub(s.Started).Round(time.Millisecond).String()})
	t.Render()

	if s.Assets.Failed > 0 {
		fmt.Fprintf(w, "%d images failed to download\n", s.Assets.Failed)
	} else if len(s.Records) > 0 {
		fmt.Fprintln(w, "all images downloaded")
	}
}
