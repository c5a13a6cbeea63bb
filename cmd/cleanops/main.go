package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/auth"
	"github.com/dharsanguruparan/CleanOps/internal/backend"
	"github.com/dharsanguruparan/CleanOps/internal/cache"
	"github.com/dharsanguruparan/CleanOps/internal/config"
	"github.com/dharsanguruparan/CleanOps/internal/logging"
	"github.com/dharsanguruparan/CleanOps/internal/session"
)

var (
	cachePath string
	plain     bool
	verbose   bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cleanops: %v\n", err)
		for _, reason := range apperr.Reasons(err) {
			fmt.Fprintf(os.Stderr, "  - %s\n", reason)
		}
		os.Exit(1)
	}
}

// app is the state shared by every subcommand: configuration, the local cache
// and the session stored in it.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	kv     *cache.SQLiteKV
	sess   *session.Session
}

var current *app

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanops",
		Short: "CleanOps field reporting CLI",
		Long: `CleanOps lets cleaning staff check in, pick the tasks they completed in their
assigned area, attach before/after photos and submit reports. Work in progress
is cached locally so an interrupted session can be resumed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			current = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if current != nil {
				current.close()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&cachePath, "cache", "", "Cache database path (default from CLEANOPS_CACHE_PATH)")
	cmd.PersistentFlags().BoolVar(&plain, "plain", false, "Print Markdown without terminal styling")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log requests to stderr")
	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newCheckInCmd(),
		newWorkspaceCmd(),
		newToggleCmd(),
		newUploadCmd(),
		newSubmitCmd(),
		newReportsCmd(),
		newPreviewCmd(),
		newExportCmd(),
		newIndexCmd(),
		newAssignCmd(),
	)
	return cmd
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := "error"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console", "")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	path := cfg.CachePath
	if cachePath != "" {
		path = cachePath
	}
	kv, err := cache.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	store := cache.New(kv, logger)
	return &app{cfg: cfg, logger: logger, kv: kv, sess: session.Open(ctx, store, cfg.CacheTTL)}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
	if err := a.kv.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "cleanops: close cache: %v\n", err)
	}
}

// client returns a backend client authenticated with the cached token and the
// identity it carries.
func (a *app) client(ctx context.Context) (*backend.Client, auth.Identity, error) {
	creds, ok := a.sess.Credentials(ctx)
	if !ok || creds.Token == "" {
		return nil, auth.Identity{}, fmt.Errorf("%w: run `cleanops login` first", apperr.ErrAuth)
	}
	id, err := auth.Inspect(creds.Token, time.Now())
	if err != nil {
		if errors.Is(err, apperr.ErrAuth) {
			a.sess.ClearAuth(ctx)
		}
		return nil, auth.Identity{}, err
	}
	return backend.New(a.cfg.APIBaseURL, a.cfg.APITimeout, a.logger).WithToken(creds.Token), id, nil
}

// printMarkdown writes md to out, styled for the terminal unless --plain.
func printMarkdown(cmd *cobra.Command, md string) error {
	out := cmd.OutOrStdout()
	if plain {
		_, err := fmt.Fprint(out, md)
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	styled, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = fmt.Fprint(out, styled)
	return err
}
