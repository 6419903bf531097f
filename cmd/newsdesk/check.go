package main

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/spf13/cobra"

	"github.com/deusflow/newsdesk/internal/news"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Open the configured store and print what it holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "storage: %s %s\n", cfg.Storage.Driver, maskPassword(cfg.Storage.DSN))

			rt, err := openRuntime(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer rt.Close()
			fmt.Fprintln(w, "connected")

			if st, ok := rt.Store.(statser); ok {
				stats, err := st.GetStats(cmd.Context())
				if err != nil {
					fmt.Fprintf(w, "stats unavailable: %v\n", err)
				} else {
					keys := make([]string, 0, len(stats))
					for k := range stats {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					for _, k := range keys {
						fmt.Fprintf(w, "  %s: %d\n", k, stats[k])
					}
				}
			}

			snap := rt.Engine.Snapshot()
			fmt.Fprintf(w, "%s: %d articles, %d read\n", cfg.Mode, len(snap.Articles), len(snap.Read))

			sort.SliceStable(snap.Articles, func(i, j int) bool { return news.NewerThan(snap.Articles[i], snap.Articles[j]) })
			for i, a := range snap.Articles {
				if i == 5 {
					break
				}
				fmt.Fprintf(w, "  %d. %s [%s]\n", i+1, a.Title, a.Keyword)
			}
			return nil
		},
	}
}

// maskPassword hides the password of a URL-style DSN.
func maskPassword(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
