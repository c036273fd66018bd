package commands

import (
	"github.com/spf13/cobra"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

var courseName string

var courseCmd = &cobra.Command{
	Use:   "course",
	Short: "Manage courses",
}

var courseCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a course",
	RunE:  runCourseCreate,
}

func init() {
	courseCreateCmd.Flags().StringVarP(&courseName, "name", "n", "", "course name (required)")
	_ = courseCreateCmd.MarkFlagRequired("name")
	courseCmd.AddCommand(courseCreateCmd)
	rootCmd.AddCommand(courseCmd)
}

func runCourseCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	course := &domain.Course{Name: courseName}
	if err := a.Repos.Courses.Create(ctx, course); err != nil {
		return err
	}
	ui.Success("Created course %q", course.Name)
	ui.KeyValue("ID", course.ID)
	return nil
}
