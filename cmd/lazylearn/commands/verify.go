package commands

import (
	"github.com/spf13/cobra"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
)

var verifyChapters []string

var verifyCmd = &cobra.Command{
	Use:   "verify <document-id>",
	Short: "Confirm the chapter selection and extract the selected chapters",
	Long: `Every chapter named with --chapters is extracted now; all other chapters are
deferred and can be extracted later with "lazylearn extract-deferred".`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringSliceVar(&verifyChapters, "chapters", nil, "chapter IDs to extract now")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ui.Section("Verification")
	verified, job, err := a.Runner.Verify(ctx, args[0], verifyChapters)
	if err != nil {
		return err
	}
	if err := phaseError(verified); err != nil {
		return err
	}
	ui.Step("%d chapter(s) selected, %d deferred", len(verifyChapters), len(verified.Chapters)-len(verifyChapters))

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
