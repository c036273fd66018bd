package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YunYun501/Lazy-Learn-V2/cmd/lazylearn/ui"
	"github.com/YunYun501/Lazy-Learn-V2/internal/storage"
)

var migrateCheck bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateCheck, "check", false, "only report pending migrations")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	m := storage.NewMigrationManager(db, cfg.Database.Driver)
	status, err := m.CheckMigrations(ctx)
	if err != nil {
		return err
	}

	ui.Section("Migrations")
	ui.KeyValue("Driver", cfg.Database.Driver)
	ui.KeyValue("Applied", fmt.Sprintf("%d/%d", len(status.Applied), status.Total))
	if status.UpToDate {
		ui.Success("Database is up to date")
		return nil
	}
	for _, name := range status.Pending {
		ui.Step("pending %s", name)
	}
	if migrateCheck {
		return nil
	}

	if err := m.RunMigrations(ctx, status); err != nil {
		return err
	}
	ui.Success("Applied %d migration(s)", len(status.Pending))
	return nil
}
