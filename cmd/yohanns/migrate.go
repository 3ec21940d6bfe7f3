package main

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/yohanns/storefront/internal/migrate"
)

var errNeedConfirm = errors.New("refusing to apply migrations without confirmation; pass --yes when not on a terminal")

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "data",
	Short:   "Apply the Postgres schema migrations",
	Long: `Apply the embedded schema migrations to the Postgres database at
database.url (DATABASE_URL).

Applied versions are recorded in schema_migrations and skipped on later
runs. Each migration runs in its own transaction; a failure stops the run
and leaves earlier migrations applied.

Example usage:
  yohanns migrate              # list pending migrations and ask to apply
  yohanns migrate --yes        # apply without asking (CI, deploy hooks)
  yohanns migrate --status     # only list pending migrations`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		statusOnly, _ := cmd.Flags().GetBool("status")
		ctx := cmd.Context()

		m, err := migrate.Connect(ctx, cfg.Database.URL, logger.Named("migrate"))
		if err != nil {
			return err
		}
		defer m.Close(ctx)

		pending, err := m.Pending(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Printf("%s Schema is up to date\n", accent("✓"))
			return nil
		}

		fmt.Printf("%d pending migration(s):\n", len(pending))
		for _, mig := range pending {
			fmt.Printf("  %04d  %s\n", mig.Version, mig.Name)
		}
		if statusOnly {
			return nil
		}

		if !yes {
			if !isTerminal() {
				return errNeedConfirm
			}
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Apply %d migration(s)?", len(pending))).
				Description("Changes are applied to " + redactDSN(cfg.Database.URL)).
				Affirmative("Apply").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println(muted("Cancelled"))
				return nil
			}
		}

		res, err := m.Apply(ctx)
		if res != nil {
			for _, mig := range res.Applied {
				fmt.Printf("%s %04d %s\n", accent("✓"), mig.Version, mig.Name)
			}
		}
		if err != nil {
			fmt.Println(failed("✗ migration failed"))
			return err
		}
		fmt.Printf("Applied %d, skipped %d\n", len(res.Applied), res.Skipped)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolP("yes", "y", false, "apply without asking for confirmation")
	migrateCmd.Flags().Bool("status", false, "list pending migrations and exit")
	rootCmd.AddCommand(migrateCmd)
}

// redactDSN hides the password of a postgres:// URL.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "the configured database"
	}
	return u.Redacted()
}
