package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/DeafMist/news-digest/internal/config"
	"github.com/DeafMist/news-digest/internal/gateway"
	"github.com/DeafMist/news-digest/internal/ingest"
	"github.com/DeafMist/news-digest/internal/logger"
	"github.com/DeafMist/news-digest/internal/resolver"
	"github.com/DeafMist/news-digest/internal/store"
)

type backend interface {
	ingest.Saver
	gateway.LatestReader
}

type refresher interface {
	Sweep(ctx context.Context, targets []ingest.Target) ([]ingest.Result, error)
}

// app carries what the commands need; tests swap the constructors.
type app struct {
	out  io.Writer
	log  *slog.Logger
	load func() (*config.CLI, error)
	// openStore returns the backend and a release func.
	openStore    func(ctx context.Context, cfg config.Store, log *slog.Logger) (backend, func(), error)
	newRefresher func(ctx context.Context, cfg config.Ingest, s ingest.Saver, log *slog.Logger) (refresher, func(), error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a := &app{
		out:          os.Stdout,
		log:          logger.New("newsctl"),
		load:         config.LoadCLI,
		openStore:    openStore,
		newRefresher: newRefresher,
	}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "newsctl",
		Short:        "Operate the news digest pipeline from a terminal",
		SilenceUsage: true,
	}
	root.AddCommand(a.refreshCmd(), a.latestCmd())
	return root
}

func (a *app) refreshCmd() *cobra.Command {
	var region, category string
	var show bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch, resolve and store fresh digests",
		Long: "Without flags refreshes us/general and kr/general. --region alone covers every\n" +
			"category of that region, --category alone covers both regions.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, err := ingest.Targets(region, category)
			if err != nil {
				return err
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, release, err := a.openStore(ctx, cfg.Store, a.log)
			if err != nil {
				return err
			}
			defer release()

			r, closeRefresher, err := a.newRefresher(ctx, cfg.Ingest, db, a.log)
			if err != nil {
				return err
			}
			defer closeRefresher()

			results, sweepErr := r.Sweep(ctx, targets)
			for _, res := range results {
				fmt.Fprintf(a.out, "%s\tid=%d items=%d sources=%d strategy=%s urls=%s\n",
					res.Target, res.RecordID, res.Items, res.Sources, res.Strategy, actionSummary(res.Report))
				for _, f := range res.Findings {
					fmt.Fprintf(a.out, "  warning: %s\n", f)
				}
			}
			if show {
				gw := gateway.New(db, a.log)
				for _, res := range results {
					if err := a.printLatest(ctx, gw, string(res.Target.Region), string(res.Target.Category), true); err != nil {
						return err
					}
				}
			}
			return sweepErr
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "region to refresh (us, kr)")
	cmd.Flags().StringVar(&category, "category", "", "category to refresh (general, tech, economy, entertainment)")
	cmd.Flags().BoolVar(&show, "show", false, "print each stored digest after the sweep")
	return cmd
}

func (a *app) latestCmd() *cobra.Command {
	var region, category string

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the newest stored digest as served by the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			db, release, err := a.openStore(cmd.Context(), cfg.Store, a.log)
			if err != nil {
				return err
			}
			defer release()

			return a.printLatest(cmd.Context(), gateway.New(db, a.log), region, category, cmd.Flags().Changed("category"))
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "region to read (us, kr)")
	cmd.Flags().StringVar(&category, "category", "general", "category to read")
	return cmd
}

func (a *app) printLatest(ctx context.Context, gw *gateway.Gateway, region, category string, categorySet bool) error {
	resp, err := gw.Latest(ctx, gateway.Query{Region: region, Category: category, CategoryPresent: categorySet})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// actionSummary renders resolver outcomes as "resolved:3,failed:1".
func actionSummary(r resolver.Report) string {
	if len(r.Outcomes) == 0 {
		return "-"
	}
	counts := lo.CountValuesBy(r.Outcomes, func(o resolver.Outcome) resolver.Action { return o.Action })
	parts := lo.MapToSlice(counts, func(action resolver.Action, n int) string {
		return fmt.Sprintf("%s:%d", action, n)
	})
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func openStore(ctx context.Context, cfg config.Store, log *slog.Logger) (backend, func(), error) {
	dsn := cfg.DSN()
	if dsn == "" {
		log.Warn("no DATABASE_URL set, records are kept in memory for this command only")
		return store.NewMemory(), func() {}, nil
	}
	db, err := store.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}

func newRefresher(ctx context.Context, cfg config.Ingest, s ingest.Saver, log *slog.Logger) (refresher, func(), error) {
	o, pub, err := ingest.FromConfig(ctx, cfg, s, log)
	if err != nil {
		return nil, nil, err
	}
	return o, func() { _ = pub.Close() }, nil
}
