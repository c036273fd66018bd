package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

var (
	deferredChapters []string
	deferredAll      bool
)

var extractDeferredCmd = &cobra.Command{
	Use:   "extract-deferred <document-id>",
	Short: "Extract chapters that were deferred at verification",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtractDeferred,
}

func init() {
	extractDeferredCmd.Flags().StringSliceVar(&deferredChapters, "chapters", nil, "chapter IDs to extract")
	extractDeferredCmd.Flags().BoolVar(&deferredAll, "all", false, "extract every deferred or failed chapter")
	rootCmd.AddCommand(extractDeferredCmd)
}

func runExtractDeferred(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	documentID := args[0]

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ids := deferredChapters
	if deferredAll {
		ids = nil
		for _, status := range []domain.ExtractionStatus{domain.ExtractionStatusDeferred, domain.ExtractionStatusError} {
			chapters, err := a.Repos.Chapters.ListByStatus(ctx, documentID, status)
			if err != nil {
				return err
			}
			for _, ch := range chapters {
				ids = append(ids, ch.ID)
			}
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no chapters to extract: pass --chapters or --all")
	}

	ui.Section("Deferred extraction")
	started, job, err := a.Runner.ExtractDeferred(ctx, documentID, ids)
	if err != nil {
		return err
	}
	if err := phaseError(started); err != nil {
		return err
	}
	ui.Step("Extracting %d chapter(s)", len(ids))

	res, err := waitExtraction(ctx, a, job)
	if err != nil {
		return err
	}
	if err := phaseError(res); err != nil {
		return err
	}
	printOutcome(res)
	ui.Newline()
	printChapters(res.Chapters, nil)
	return nil
}
