package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

var (
	materialCourse  string
	materialTitle   string
	materialFile    string
	materialSummary string
)

var materialCmd = &cobra.Command{
	Use:   "material",
	Short: "Manage course materials",
}

var materialAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add summarized course material and re-score the course's documents",
	Long: `Adds a piece of course material with its topic summary, a JSON file of the form
{"topics":[{"title":"...","description":"..."}]}. Every document of the course
that already has chapters is scored again against the updated topics.`,
	RunE: runMaterialAdd,
}

func init() {
	materialAddCmd.Flags().StringVar(&materialCourse, "course", "", "course ID (required)")
	materialAddCmd.Flags().StringVar(&materialTitle, "title", "", "material title (default: summary file name)")
	materialAddCmd.Flags().StringVar(&materialFile, "file", "", "path of the original material")
	materialAddCmd.Flags().StringVarP(&materialSummary, "summary", "s", "", "summary JSON file (required)")
	_ = materialAddCmd.MarkFlagRequired("course")
	_ = materialAddCmd.MarkFlagRequired("summary")
	materialCmd.AddCommand(materialAddCmd)
	rootCmd.AddCommand(materialCmd)
}

func runMaterialAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	data, err := os.ReadFile(materialSummary)
	if err != nil {
		return fmt.Errorf("read summary: %w", err)
	}
	summary := &domain.MaterialSummary{CourseID: materialCourse, SummaryJSON: json.RawMessage(data)}
	topics, err := summary.Topics()
	if err != nil {
		return err
	}
	if len(topics) == 0 {
		return fmt.Errorf("summary %s lists no topics", materialSummary)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if _, err := a.Repos.Courses.GetByID(ctx, materialCourse); err != nil {
		return err
	}

	title := materialTitle
	if title == "" {
		title = filepath.Base(materialSummary)
	}
	material := &domain.Material{CourseID: materialCourse, Title: title, FilePath: materialFile}
	if err := a.Repos.Courses.CreateMaterial(ctx, material); err != nil {
		return err
	}
	summary.MaterialID = material.ID
	if err := a.Repos.Courses.CreateSummary(ctx, summary); err != nil {
		return err
	}
	ui.Success("Added material %q with %d topic(s)", title, len(topics))

	if a.Retroactive == nil {
		ui.Warning("No LLM API key configured, documents were not re-scored")
		return nil
	}

	spinner := ui.NewSpinner("Re-scoring course documents...")
	spinner.Start()
	results, matchErr := a.Retroactive.OnMaterialSummarized(ctx, materialCourse)
	spinner.Stop()

	docIDs := make([]string, 0, len(results))
	for id := range results {
		docIDs = append(docIDs, id)
	}
	sort.Strings(docIDs)

	rows := make([][]string, 0, len(docIDs))
	for _, id := range docIDs {
		top := "-"
		if matches := results[id]; len(matches) > 0 {
			top = fmt.Sprintf("%s (%s)", matches[0].ChapterTitle, ui.FormatScore(matches[0].RelevanceScore))
		}
		rows = append(rows, []string{id, fmt.Sprint(len(results[id])), top})
	}
	if len(rows) > 0 {
		ui.Section("Relevance")
		ui.Table([]string{"Document", "Chapters", "Best match"}, rows)
	} else {
		ui.Info("No documents of the course have chapters yet")
	}
	if matchErr != nil {
		ui.Warning("Some documents could not be scored: %v", matchErr)
	}
	return nil
}
