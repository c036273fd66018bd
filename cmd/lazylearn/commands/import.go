package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
	"github.com/YunYun501/Lazy-Learn-V2/internal/pipeline"
)

var (
	importCourse string
	importID     string
)

var importCmd = &cobra.Command{
	Use:   "import <pdf>",
	Short: "Import a document and discover its chapters",
	Long: `Records the document, extracts its table of contents and, when the document
belongs to a course, scores every chapter against the course material.
Chapters are then ready for review with "lazylearn verify".`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importCourse, "course", "", "course ID to score chapters against")
	importCmd.Flags().StringVar(&importID, "id", "", "document ID (default: generated)")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("document %s: %w", path, err)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ui.Section("Import")
	imp, job, err := a.Runner.Import(ctx, pipeline.ImportRequest{DocumentID: importID, CourseID: importCourse, FilePath: path})
	if err != nil {
		return err
	}
	if err := phaseError(imp); err != nil {
		return err
	}
	ui.Step("Document %s uploaded", imp.DocumentID)

	res, err := waitTOC(ctx, job)
	if err != nil {
		return err
	}
	if err := phaseError(res); err != nil {
		return err
	}

	ui.Success("Found %d chapter(s)", len(res.Chapters))
	if res.Warning != "" {
		ui.Warning("%s", res.Warning)
	}
	ui.Newline()
	printChapters(res.Chapters, res.Relevance)
	ui.Newline()
	ui.Info("Next: lazylearn verify %s --chapters <id>,<id>", imp.DocumentID)
	return nil
}
