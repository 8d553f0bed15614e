package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/bpsim/experiment"
	"github.com/sarchlab/bpsim/results"
	"github.com/sarchlab/bpsim/server"
)

type serveOptions struct {
	root *rootOptions

	addr   string
	dbPath string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{root: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":8080", "Listen address")
	f.StringVar(&opts.dbPath, "db", "", "Store evaluations in this SQLite database")

	return cmd
}

func (o *serveOptions) run(cmd *cobra.Command) error {
	logger := o.root.logger(cmd.ErrOrStderr())

	opts := server.Options{
		Harness:   experiment.DefaultConfig(),
		Collector: experiment.NewCollector(),
		Logger:    logger,
	}
	if o.dbPath != "" {
		store, err := results.NewStore(o.dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		opts.Store = store
	}

	srv := &http.Server{
		Addr:              o.addr,
		Handler:           server.New(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", o.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shut down: %w", err)
	}

	return nil
}
