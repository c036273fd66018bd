package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
	"github.com/YunYun501/Lazy-Learn-V2/internal/app"
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/pipeline"
)

var (
	runCourse string
	runAll    bool
)

var runCmd = &cobra.Command{
	Use:   "run <pdf>...",
	Short: "Import, verify and extract several documents unattended",
	Long: `Runs every phase for each document without a review step. The chapters
preselected at import are extracted and the rest are deferred; with --all, or
when nothing was preselected, every chapter is extracted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runCourse, "course", "", "course ID to score chapters against")
	runCmd.Flags().BoolVar(&runAll, "all", false, "extract every chapter")
	rootCmd.AddCommand(runCmd)
}

type runOutcome struct {
	path   string
	result pipeline.PhaseResult
	err    error
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ui.Section(fmt.Sprintf("Processing %d document(s)", len(args)))
	progress := ui.NewMultiProgress()

	outcomes := make([]runOutcome, len(args))
	var g errgroup.Group
	g.SetLimit(max(cfg.Pipeline.Workers, 1))
	for i, path := range args {
		bar := progress.AddBar(filepath.Base(path), 3)
		g.Go(func() error {
			res, err := processDocument(ctx, a, path, bar)
			outcomes[i] = runOutcome{path: path, result: res, err: err}
			if err != nil {
				bar.Abort()
				return fmt.Errorf("%s: %w", path, err)
			}
			bar.Complete()
			return nil
		})
	}
	runErr := g.Wait()
	progress.Wait()

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		status, note := string(o.result.Status), ""
		switch {
		case o.err != nil:
			status, note = "failed", o.err.Error()
		case len(o.result.Failed) > 0:
			note = fmt.Sprintf("%d chapter(s) failed", len(o.result.Failed))
		case o.result.Warning != "":
			note = o.result.Warning
		}
		rows = append(rows, []string{filepath.Base(o.path), o.result.DocumentID, status, note})
	}
	ui.Newline()
	ui.Table([]string{"File", "Document", "Status", "Note"}, rows)
	return runErr
}

// processDocument drives one document through import, verification and
// extraction, advancing bar once per phase.
func processDocument(ctx context.Context, a *app.App, path string, bar *ui.DocumentBar) (pipeline.PhaseResult, error) {
	imp, job, err := a.Runner.Import(ctx, pipeline.ImportRequest{CourseID: runCourse, FilePath: path})
	if err != nil {
		return imp, err
	}
	if err := phaseError(imp); err != nil {
		return imp, err
	}
	res, err := job.Wait(ctx)
	if err != nil {
		return res, err
	}
	if err := phaseError(res); err != nil {
		return res, err
	}
	bar.Increment()

	selected := selection(res.Chapters, runAll)
	verified, job, err := a.Runner.Verify(ctx, imp.DocumentID, selected)
	if err != nil {
		return verified, err
	}
	if err := phaseError(verified); err != nil {
		return verified, err
	}
	bar.Increment()

	res, err = job.Wait(ctx)
	if err != nil {
		return res, err
	}
	if err := phaseError(res); err != nil {
		return res, err
	}
	bar.Increment()
	return res, nil
}

func selection(chapters []*domain.Chapter, all bool) []string {
	var ids []string
	if !all {
		for _, ch := range chapters {
			if ch.ExtractionStatus == domain.ExtractionStatusSelected {
				ids = append(ids, ch.ID)
			}
		}
	}
	if len(ids) == 0 {
		for _, ch := range chapters {
			ids = append(ids, ch.ID)
		}
	}
	return ids
}
