package app

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/spf13/cobra"

	"github.com/NovaUNL/Supernova-sub000/database"
)

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply every pending migration, connecting as database.migrationUser when it is set.

Examples:
  supernova-sync migrate up --config config.yaml
  supernova-sync migrate up --config config.yaml --yes   # CI and init containers`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd, func(target schemaTarget) (string, func(string) error) {
				return fmt.Sprintf("Apply pending migrations to %s?", target),
					database.MigrateUp
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Revert database migrations",
		Long: `Revert --num-steps migrations, or all of them when it is 0.
Reverting drops tables and the data synced into them.

Examples:
  supernova-sync migrate down --config config.yaml --num-steps 1
  supernova-sync migrate down --config config.yaml --yes   # drops the whole schema`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, err := cmd.Flags().GetUint("num-steps")
			if err != nil {
				return fmt.Errorf("failed to get num-steps flag: %w", err)
			}
			if steps > math.MaxInt32 {
				return fmt.Errorf("num-steps must not exceed %d", math.MaxInt32)
			}
			return migrate(cmd, func(target schemaTarget) (string, func(string) error) {
				what := fmt.Sprintf("%d migration(s)", steps)
				if steps == 0 {
					what = "ALL migrations, dropping every synced entity,"
				}
				return fmt.Sprintf("Revert %s on %s?", what, target),
					func(conn string) error { return database.MigrateDown(conn, int(steps)) } // #nosec G115 -- bounded above
			})
		},
	}
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := loadDatabaseConfig(cmd)
			if err != nil {
				return err
			}
			conn, err := db.GetMigrationConnectionString()
			if err != nil {
				return fmt.Errorf("failed to get migration connection string: %w", err)
			}
			version, dirty, err := database.GetVersion(conn)
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return err
		},
	}
}

// schemaTarget names the database a migration touches in prompts and logs
type schemaTarget struct {
	user, host, database string
	port                 int
}

func (t schemaTarget) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", t.user, t.host, t.port, t.database)
}

// migrate confirms and runs one migration against the configured database. plan
// returns the confirmation prompt and the step to run on the connection string.
func migrate(cmd *cobra.Command, plan func(schemaTarget) (string, func(string) error)) error {
	db, err := loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}
	conn, err := db.GetMigrationConnectionString()
	if err != nil {
		return fmt.Errorf("failed to get migration connection string: %w", err)
	}

	target := schemaTarget{user: db.GetMigrationUser(), host: db.Host, port: db.Port, database: db.Database}
	prompt, step := plan(target)
	ok, err := confirm(cmd, prompt)
	if err != nil || !ok {
		return err
	}

	slog.Info("Running database migration", "command", cmd.Name(), "target", target.String())
	if err := step(conn); err != nil {
		return fmt.Errorf("migrate %s failed: %w", cmd.Name(), err)
	}

	version, dirty, err := database.GetVersion(conn)
	logVersion(version, dirty, err)
	return nil
}
