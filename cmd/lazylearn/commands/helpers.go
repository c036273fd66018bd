package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
	"github.com/YunYun501/Lazy-Learn-V2/internal/app"
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/pipeline"
)

const pollInterval = 300 * time.Millisecond

// commandContext is cancelled on interrupt.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline: %w", err)
	}
	ui.Debug("Extraction engine: %s", a.Engine)
	return a, nil
}

// closeApp drains queued phases before releasing the store.
func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		ui.Warning("Shutdown: %v", err)
	}
}

// phaseError turns a failed phase result into an error for the command.
func phaseError(res pipeline.PhaseResult) error {
	if res.OK() {
		return nil
	}
	return fmt.Errorf("%s phase failed (%s): %s", res.Phase, res.ErrorType, res.Error)
}

// waitTOC waits for a TOC job behind a spinner.
func waitTOC(ctx context.Context, job *pipeline.Job) (pipeline.PhaseResult, error) {
	spinner := ui.NewSpinner("Discovering chapters...")
	spinner.Start()
	defer spinner.Stop()
	return job.Wait(ctx)
}

// waitExtraction waits for an extraction job, drawing batch progress from
// the job-status cache.
func waitExtraction(ctx context.Context, a *app.App, job *pipeline.Job) (pipeline.PhaseResult, error) {
	bar := ui.NewProgressBar(1, "Extracting")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-job.Done():
			res, err := job.Wait(ctx)
			if res.OK() {
				bar.Finish()
			}
			return res, err
		case <-ctx.Done():
			return pipeline.PhaseResult{}, ctx.Err()
		case <-ticker.C:
			status, err := a.Runner.Status(ctx, job.DocumentID)
			if err != nil || status.Step != pipeline.StepBatch || status.Total == 0 {
				continue
			}
			bar.SetTotal(int64(status.Total))
			bar.Set(int64(status.Done))
			bar.Describe("Extracting " + status.Message)
		}
	}
}

func printChapters(chapters []*domain.Chapter, relevance []domain.RelevanceResult) {
	scores := make(map[string]domain.RelevanceResult, len(relevance))
	for _, r := range relevance {
		scores[r.ChapterID] = r
	}

	headers := []string{"#", "Title", "Pages", "Status", "ID"}
	if len(scores) > 0 {
		headers = append(headers, "Relevance", "Topics")
	}
	rows := make([][]string, 0, len(chapters))
	for _, ch := range chapters {
		row := []string{
			ch.ChapterNumber,
			ch.Title,
			fmt.Sprintf("%d-%d", ch.PageStart, ch.PageEnd),
			string(ch.ExtractionStatus),
			ch.ID,
		}
		if len(scores) > 0 {
			if r, ok := scores[ch.ID]; ok {
				row = append(row, ui.FormatScore(r.RelevanceScore), strings.Join(r.MatchedTopics, ", "))
			} else {
				row = append(row, "-", "")
			}
		}
		rows = append(rows, row)
	}
	ui.Table(headers, rows)
}

func printOutcome(res pipeline.PhaseResult) {
	ui.KeyValue("Document", res.DocumentID)
	ui.KeyValue("Status", res.Status)
	if len(res.Extracted) > 0 {
		ui.KeyValue("Extracted", len(res.Extracted))
	}
	if len(res.Failed) > 0 {
		ui.Warning("%d chapter(s) failed: %s", len(res.Failed), strings.Join(res.Failed, ", "))
	}
	if res.Warning != "" {
		ui.Warning("%s", res.Warning)
	}
}
