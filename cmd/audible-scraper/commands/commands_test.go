package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelcapetown/audible-scraper/internal/assets"
	"github.com/nelcapetown/audible-scraper/internal/config"
	"github.com/nelcapetown/audible-scraper/internal/models"
	"github.com/nelcapetown/audible-scraper/internal/pipeline"
	"github.com/nelcapetown/audible-scraper/internal/scraper"
)

func TestPrintSummary(t *testing.T) {
	started := time.Now()
	s := &pipeline.Summary{
		RunID:      uuid.New(),
		Records:    []models.Record{{Title: "a"}, {Title: "b"}},
		Pages:      2,
		FinalState: scraper.StateDone,
		StopReason: scraper.StopNoNextLink,
		RecordFile: "/tmp/library.json",
		Assets:     assets.Stats{Downloaded: 1, Failed: 1},
		Started:    started,
		Finished:   started.Add(1500 * time.Millisecond),
	}

	var buf bytes.Buffer
	printSummary(&buf, s)

	out := buf.String()
	assert.Contains(t, out, s.RunID.String())
	assert.Contains(t, out, "no_next_link")
	assert.Contains(t, out, "/tmp/library.json")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "1 images failed to download")
}

func TestPrintSummaryAllImages(t *testing.T) {
	s := &pipeline.Summary{
		RunID:   uuid.New(),
		Records: []models.Record{{Title: "a"}},
		Assets:  assets.Stats{Downloaded: 1},
	}

	var buf bytes.Buffer
	printSummary(&buf, s)

	assert.Contains(t, buf.String(), "all images downloaded")
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Bool("headless", false, "")
	cmd.Flags().Int("max-pages", 0, "")
	cmd.Flags().String("log-level", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--headless", "--max-pages", "3"}))

	cfg := config.Default()
	require.NoError(t, applyFlags(cmd, cfg))

	assert.True(t, cfg.Headless)
	assert.Equal(t, 3, cfg.MaxPages)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestApplyFlagsLeavesUnsetOptions(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Bool("headless", false, "")

	cfg := config.Default()
	cfg.Headless = true
	require.NoError(t, applyFlags(cmd, cfg))

	assert.True(t, cfg.Headless)
}
