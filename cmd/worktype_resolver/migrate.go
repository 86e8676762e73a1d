package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the catalog schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	d := &deps{cfg: cfg}
	defer d.Close()
	if err := d.requireStore(ctx); err != nil {
		return err
	}
	if err := d.store.Migrate(ctx); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(os.Stdout, "Catalog schema is up to date")
	return nil
}
