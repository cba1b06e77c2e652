package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sessionreminders/internal/auth"
	"sessionreminders/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reminders",
		Short:         "Session reminder scheduling and delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newTokenCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the job worker unless --worker=false)",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.seedConfigs(context.Background(), a.cfg.ReminderConfigFile, false); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           a.router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// the deferred close runs only after the worker and server have returned
			g, gctx := errgroup.WithContext(ctx)
			if withWorker {
				g.Go(func() error {
					a.worker().Run(gctx)
					return nil
				})
			}
			g.Go(func() error {
				log.Printf("Server starting on %s...", a.cfg.HTTPAddr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Printf("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withWorker, "worker", true, "run the reminder job worker in-process")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the reminder job worker",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.worker().Run(ctx)
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(_ *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			a.close()
			log.Printf("Database migrated")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var (
		file      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "seed-configs",
		Short: "Insert reminder configurations from a YAML file or the built-in defaults",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			if file == "" {
				file = a.cfg.ReminderConfigFile
			}
			return a.seedConfigs(cmd.Context(), file, overwrite)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML file with a top-level reminders list")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing configurations")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <email>",
		Short: "Print a signed API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if role != auth.RoleAdmin && role != auth.RoleService {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := auth.GenerateToken(cfg.JWTSecret, args[0], role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "token role (admin or service)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
