package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deusflow/newsdesk/internal/app"
	"github.com/deusflow/newsdesk/internal/collector"
	"github.com/deusflow/newsdesk/internal/config"
	"github.com/deusflow/newsdesk/internal/logger"
	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/readstate"
	"github.com/deusflow/newsdesk/internal/scraper"
	"github.com/deusflow/newsdesk/internal/timeline"
)

// globals shared by subcommands
var (
	configPath string
	modeFlag   string
)

func main() {
	root := &cobra.Command{
		Use:           "newsdesk",
		Short:         "newsdesk: keyword news monitor",
		Long:          "Collects headlines per keyword, drops duplicate links, clusters related stories and lists them by recency.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $NEWSDESK_CONFIG)")
	root.PersistentFlags().StringVarP(&modeFlag, "mode", "m", "", "stream to work on: monitor or report")

	root.AddCommand(
		collectCmd(),
		listCmd(),
		readCmd(),
		clearCmd(),
		showCmd(),
		serveCmd(),
		checkCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and applies the --mode flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if modeFlag != "" {
		cfg.Mode = news.Kind(modeFlag)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadKeywords tolerates a missing keywords file so free mode works without one.
func loadKeywords(cfg *config.Config) ([]news.KeywordDefinition, error) {
	defs, err := config.LoadKeywords(cfg.KeywordsPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("keywords file not found", "path", cfg.KeywordsPath)
		return nil, nil
	}
	return defs, err
}

func openRuntime(ctx context.Context, cfg *config.Config) (*app.Runtime, error) {
	defs, err := loadKeywords(cfg)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, defs, logger.Logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func collectCmd() *cobra.Command {
	var force, strict, free bool

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection batch over the configured keywords",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Collect.Force = cfg.Collect.Force || force
			cfg.Collect.Strict = cfg.Collect.Strict || strict
			cfg.Collect.FreeMode = cfg.Collect.FreeMode || free

			ctx, cancel := signalContext()
			defer cancel()

			rt, err := openRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			// First interrupt stops the batch gracefully.
			go func() {
				<-ctx.Done()
				rt.Engine.Stop()
			}()

			res, err := rt.Engine.Collect(context.Background(), func(done, total int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rprogress %d/%d", done, total)
			})
			if res.Total > 0 {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			printResult(cmd.OutOrStdout(), res)
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "admit items even when their link is already stored")
	cmd.Flags().BoolVar(&strict, "strict", false, "query and tag with the literal keyword only")
	cmd.Flags().BoolVar(&free, "free", false, "tag everything with the catch-all term")
	return cmd
}

func printResult(w io.Writer, res collector.Result) {
	fmt.Fprintf(w, "state: %s\nkeywords: %d/%d (failed %d)\nnew articles: %d\nimportant: %d\n",
		res.State, res.Completed, res.Total, res.Failed, len(res.Admitted), res.Important)
	if res.Err != nil {
		fmt.Fprintf(w, "error: %v\n", res.Err)
	}
}

// viewFlags are shared by list and read --visible.
type viewFlags struct {
	bucket string
	filter string
	page   int
	size   int
	urgent bool
}

func (f *viewFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bucket, "bucket", "recent", "recent, archive or all")
	cmd.Flags().StringVar(&f.filter, "filter", "all", "all, read or unread")
	cmd.Flags().IntVar(&f.page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.size, "size", 0, "clusters per page (default from config)")
	cmd.Flags().BoolVar(&f.urgent, "urgent", false, "today only, unread first")
}

func (f *viewFlags) query() (app.Query, error) {
	q := app.Query{
		ReadMode: readstate.ParseMode(f.filter),
		Page:     f.page,
		Size:     f.size,
		Urgent:   f.urgent,
	}
	switch f.bucket {
	case "recent":
		q.Bucket = timeline.BucketRecent
	case "archive":
		q.Bucket = timeline.BucketArchive
	case "all", "":
	default:
		return q, fmt.Errorf("unknown bucket %q", f.bucket)
	}
	return q, nil
}

func listCmd() *cobra.Command {
	var vf viewFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clustered stories grouped by date and hour",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := vf.query()
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			page := rt.Engine.Clusters(q)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(page)
			}
			printPage(cmd.OutOrStdout(), rt.Engine, page, cfg.Location())
			return nil
		},
	}
	vf.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the page as JSON")
	return cmd
}

func printPage(w io.Writer, e *app.Engine, page timeline.Page, loc *time.Location) {
	if page.Total == 0 {
		fmt.Fprintln(w, "no stories")
		return
	}
	for _, g := range page.Groups {
		fmt.Fprintf(w, "== %s\n", g.Label)
		for _, h := range g.Hours {
			if h.Hour >= 0 {
				fmt.Fprintf(w, "  %02d:00\n", h.Hour)
			}
			for _, c := range h.Clusters {
				printCluster(w, e, c, loc)
			}
		}
	}
	fmt.Fprintf(w, "\npage %d/%d, %d stories\n", page.Number, page.Pages, page.Total)
}

func printCluster(w io.Writer, e *app.Engine, c news.Cluster, loc *time.Location) {
	rep := c.Representative()
	mark := "*"
	if e.ClusterRead(c) {
		mark = " "
	}
	when := "--:--"
	if rep.HasTimestamp() {
		when = time.UnixMilli(rep.Timestamp).In(loc).Format("15:04")
	}
	fmt.Fprintf(w, "  %s %s [%s] %s (%s) %s\n", mark, when, rep.Keyword, rep.Title, rep.Source, rep.Sentiment())
	fmt.Fprintf(w, "      %s  id=%s\n", rep.Link, rep.ID)
	if len(c) > 1 {
		fmt.Fprintf(w, "      +%d related\n", len(c)-1)
	}
}

func readCmd() *cobra.Command {
	var vf viewFlags
	var visible bool

	cmd := &cobra.Command{
		Use:   "read [link...]",
		Short: "Mark links, or every story on a page, as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !visible && len(args) == 0 {
				return errors.New("give links or --visible")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			var n int
			if visible {
				q, qerr := vf.query()
				if qerr != nil {
					return qerr
				}
				n, err = rt.Engine.MarkAllVisible(cmd.Context(), q)
			} else {
				n, err = rt.Engine.MarkRead(cmd.Context(), args...)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d link(s) read\n", n)
			return nil
		},
	}
	vf.register(cmd)
	cmd.Flags().BoolVar(&visible, "visible", false, "mark every story on the selected page")
	return cmd
}

func clearCmd() *cobra.Command {
	var olderThan time.Duration
	var undated bool
	var keyword string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove stored articles (everything when no filter is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			pred := clearPredicate(olderThan, undated, keyword, time.Now())
			n, err := rt.Engine.ClearAll(cmd.Context(), pred)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d article(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only articles published before now minus this")
	cmd.Flags().BoolVar(&undated, "undated", false, "only articles without a publish date")
	cmd.Flags().StringVar(&keyword, "keyword", "", "only articles tagged with this keyword")
	return cmd
}

// clearPredicate combines the clear filters; nil means clear everything.
func clearPredicate(olderThan time.Duration, undated bool, keyword string, now time.Time) func(news.Article) bool {
	if olderThan <= 0 && !undated && keyword == "" {
		return nil
	}
	cutoff := now.Add(-olderThan).UnixMilli()
	return func(a news.Article) bool {
		if keyword != "" && !strings.EqualFold(a.Keyword, keyword) {
			return false
		}
		if undated && a.HasTimestamp() {
			return false
		}
		if olderThan > 0 && (!a.HasTimestamp() || a.Timestamp >= cutoff) {
			return false
		}
		return true
	}
}

func showCmd() *cobra.Command {
	var fetch bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one article, optionally with the publisher's page text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			a, ok := rt.Engine.Article(args[0])
			if !ok {
				return fmt.Errorf("article %s not found", args[0])
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s\n%s\nsource: %s  keyword: %s  sentiment: %s\n", a.Title, a.Link, a.Source, a.Keyword, a.Sentiment())
			if a.Description != "" {
				fmt.Fprintf(w, "\n%s\n", a.Description)
			}
			if !fetch {
				return nil
			}

			content, err := scraper.NewExtractor(cfg.Source.RequestTimeout).Extract(cmd.Context(), a.Link)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\n--- %s\n\n%s\n", content.Title, content.Content)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fetch, "fetch", false, "download and print the article text")
	return cmd
}
