package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matthewjhunter/wayfinder"
	"github.com/matthewjhunter/wayfinder/internal/output"
)

var (
	configPath   string
	cfg          *wayfinder.Config
	outputFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wayfinder",
		Short: "Cluster your browsing history into themes and a knowledge graph",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := output.ParseFormat(outputFormat); err != nil {
				return err
			}
			return loadConfig()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path, .yaml or .toml (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "output format: json, text, human")

	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(themesCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("wayfinder: .env: %v", err)
	}
	if configPath == "" {
		configPath = "./config/config.yaml"
	}
	c, err := wayfinder.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

func newFormatter() *output.Formatter {
	return output.NewFormatter(output.Format(outputFormat))
}

func openEngine() (*wayfinder.Engine, error) {
	engine, err := wayfinder.NewEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return engine, nil
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <navlogs.json|navlogs.jsonl|->",
		Short: "Summarize and track a file of captured navlogs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			navlogs, err := readNavlogFile(args[0])
			if err != nil {
				return err
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.ProcessNavlogs(cmd.Context(), navlogs)
			if err != nil {
				return err
			}
			return newFormatter().OutputBatchResult("navlogs", result)
		},
	}
}

func themesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "themes",
		Short: "Build and list themes",
	}
	cmd.AddCommand(themesBuildCmd())
	cmd.AddCommand(themesListCmd())
	cmd.AddCommand(themesShowCmd())
	return cmd
}

func themesBuildCmd() *cobra.Command {
	var since time.Duration
	var limit int
	var source, title string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Cluster recently summarized articles into themes",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.BuildThemes(cmd.Context(), wayfinder.ThemeBuildRequest{
				Since:  time.Now().Add(-since),
				Limit:  limit,
				Source: source,
				Title:  title,
			})
			if result != nil {
				if oerr := newFormatter().OutputThemeBuildResult(result); oerr != nil {
					return oerr
				}
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "cluster articles updated within this window")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "articles clustered per pass (default: themes.batch_limit)")
	cmd.Flags().StringVar(&source, "source", "top_ranked", "theme source recorded on built themes")
	cmd.Flags().StringVar(&title, "title", "", "fixed theme title instead of the model's")
	return cmd
}

func themesListCmd() *cobra.Command {
	var opts wayfinder.ThemeListOptions
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List themes",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			if since > 0 {
				opts.Since = time.Now().Add(-since)
			}
			themes, err := engine.ListThemes(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return newFormatter().OutputThemeList(themes)
		},
	}
	cmd.Flags().StringVar(&opts.Source, "source", "", "only themes from this source")
	cmd.Flags().StringVar(&opts.Sort, "sort", "updated_at", "sort key: created_at, updated_at, title, average_distance, article_count")
	cmd.Flags().BoolVar(&opts.Desc, "desc", true, "sort descending")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "max themes")
	cmd.Flags().DurationVar(&since, "since", 0, "only themes updated within this window")
	return cmd
}

func themesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <theme-id>",
		Short: "Show one theme and its articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			theme, err := engine.GetTheme(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return newFormatter().OutputTheme(theme)
		},
	}
}

func searchCmd() *cobra.Command {
	var threshold float64
	var limit int
	var themes bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find articles (or themes) similar to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			formatter := newFormatter()
			if themes {
				found, err := engine.SearchThemes(cmd.Context(), args[0], threshold, limit)
				if err != nil {
					return err
				}
				return formatter.OutputThemeList(found)
			}
			found, err := engine.SearchArticles(cmd.Context(), args[0], threshold, limit)
			if err != nil {
				return err
			}
			return formatter.OutputArticleList(found)
		},
	}
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "minimum similarity (default: thresholds.search)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max results")
	cmd.Flags().BoolVar(&themes, "themes", false, "search themes instead of articles")
	return cmd
}

func graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Project into and maintain the knowledge graph",
	}

	var since time.Duration
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Upsert recent articles, themes and extracted entities into the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.SyncGraph(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			return newFormatter().OutputBatchResult("graph sync", result)
		},
	}
	syncCmd.Flags().DurationVar(&since, "since", 24*time.Hour, "sync records updated within this window")

	mergeCmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge graph nodes that share a label and name",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.MergeDuplicateNodes(cmd.Context())
			if result != nil {
				if oerr := newFormatter().OutputMergeResult(result); oerr != nil {
					return oerr
				}
			}
			return err
		},
	}

	cmd.AddCommand(syncCmd, mergeCmd)
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}
			if err := wayfinder.DefaultConfig().Save(configPath); err != nil {
				return err
			}
			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}

// runCycle is one daemon pass: ingest queued navlogs, rebuild themes from
// what changed, then refresh the graph when one is configured.
func runCycle(ctx context.Context, engine *wayfinder.Engine, inbox string, since time.Time, merge bool) error {
	formatter := newFormatter()

	if inbox != "" {
		navlogs, files, err := drainInbox(inbox)
		if err != nil {
			return err
		}
		if len(navlogs) > 0 {
			result, err := engine.ProcessNavlogs(ctx, navlogs)
			if err != nil {
				return err
			}
			formatter.OutputBatchResult("navlogs", result)
			markDone(files)
		}
	}

	// A failed build still lets the graph sync run, but the cycle reports
	// the error so since is not advanced past unclustered articles.
	built, buildErr := engine.BuildThemes(ctx, wayfinder.ThemeBuildRequest{Since: since})
	if built != nil && len(built.Themes) > 0 {
		formatter.OutputThemeBuildResult(built)
	}
	if buildErr != nil {
		buildErr = fmt.Errorf("theme build: %w", buildErr)
	}

	synced, err := engine.SyncGraph(ctx, since)
	if errors.Is(err, wayfinder.ErrGraphDisabled) {
		return buildErr
	}
	if err != nil {
		return err
	}
	formatter.OutputBatchResult("graph sync", synced)

	if merge {
		merged, err := engine.MergeDuplicateNodes(ctx)
		if err != nil {
			return err
		}
		formatter.OutputMergeResult(merged)
	}
	return buildErr
}
