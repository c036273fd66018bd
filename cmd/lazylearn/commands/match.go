package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
)

var matchCourse string

var matchCmd = &cobra.Command{
	Use:   "match <document-id>",
	Short: "Score a document's chapters against a course",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatch,
}

func init() {
	matchCmd.Flags().StringVar(&matchCourse, "course", "", "course ID (default: the document's course)")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if a.Relevance == nil {
		return errors.New("relevance scoring needs an LLM API key (LLM_API_KEY)")
	}
	doc, err := a.Repos.Documents.GetByID(ctx, args[0])
	if err != nil {
		return err
	}
	courseID := matchCourse
	if courseID == "" && doc.CourseID != nil {
		courseID = *doc.CourseID
	}
	if courseID == "" {
		return errors.New("document has no course: pass --course")
	}

	spinner := ui.NewSpinner("Scoring chapters...")
	spinner.Start()
	results, err := a.Relevance.MatchChapters(ctx, doc.ID, courseID)
	spinner.Stop()
	if err != nil {
		return err
	}
	if len(results) == 0 {
		ui.Info("Nothing to score: the course has no summarized material or the document has no chapters")
		return nil
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{ui.FormatScore(r.RelevanceScore), r.ChapterTitle, r.Reasoning})
	}
	ui.Section("Relevance")
	ui.Table([]string{"Score", "Chapter", "Reasoning"}, rows)
	return nil
}
