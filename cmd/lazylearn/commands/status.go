package commands

import (
	"github.com/spf13/cobra"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status <document-id>",
	Short: "Show a document's pipeline status and chapters",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	doc, err := a.Repos.Documents.GetByID(ctx, args[0])
	if err != nil {
		return err
	}
	status, err := a.Runner.Status(ctx, doc.ID)
	if err != nil {
		return err
	}

	ui.Section(doc.Title)
	ui.KeyValue("ID", doc.ID)
	ui.KeyValue("File", doc.FilePath)
	ui.KeyValue("Status", status.PipelineStatus)
	if doc.TotalPages > 0 {
		ui.KeyValue("Pages", doc.TotalPages)
	}
	if status.Cached && status.Phase != "" {
		ui.KeyValue("Job", status.Phase+" "+status.Step)
	}
	if status.Message != "" {
		ui.KeyValue("Message", status.Message)
	}

	chapters, err := a.Repos.Chapters.ListByDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	if len(chapters) > 0 {
		ui.Newline()
		printChapters(chapters, nil)
	}
	return nil
}
