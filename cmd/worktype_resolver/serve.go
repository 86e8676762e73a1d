package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/worktype-resolver/internal/resolution"
	"github.com/jonathan/worktype-resolver/internal/server"
)

var (
	servePort        int
	serveCatalogFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes resolution, drafting and catalog read endpoints.
Catalog endpoints need the database; with --catalog they answer 503.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveCatalogFile, "catalog", "", "Path to a JSON catalog used instead of the database")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	d := &deps{cfg: cfg}
	defer d.Close()
	if err := d.openCatalog(ctx, serveCatalogFile); err != nil {
		return err
	}
	if err := d.openEmbedder(ctx); err != nil {
		return err
	}
	if err := d.openMetrics(ctx); err != nil {
		return err
	}
	if err := d.openCache(ctx); err != nil {
		return err
	}
	if err := d.openClient(ctx); err != nil {
		return err
	}

	index, err := d.index()
	if err != nil {
		return fmt.Errorf("failed to build similarity index: %w", err)
	}
	gen, err := d.generator()
	if err != nil {
		return fmt.Errorf("failed to create draft generator: %w", err)
	}

	var drafter resolution.Drafter
	if gen != nil {
		drafter = gen
	}
	var catalog server.Catalog
	if d.store != nil {
		catalog = d.store
	}

	srv := server.New(server.Config{
		Port:    servePort,
		Options: cfg.ResolutionOptions(),
	}, resolution.NewOrchestrator(index, drafter, d.metrics), drafter, catalog)

	return srv.Start(ctx)
}
