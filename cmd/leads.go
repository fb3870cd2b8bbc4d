package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-extractor/internal/collect"
	"github.com/sells-group/lead-extractor/internal/pipeline"
)

var (
	leadsCategory       string
	leadsLocalities     string
	leadsLocalitiesFile string
	leadsTarget         int
	leadsVerify         bool
	leadsJSON           bool
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Run one collection session and print the numbers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("leads"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if leadsCategory == "" {
			return eris.New("--category is required")
		}

		localities, err := resolveLocalities()
		if err != nil {
			return err
		}
		if len(localities) == 0 {
			return eris.New("no localities given (use --localities or --localities-file)")
		}

		params := pipeline.Params{
			Category:   leadsCategory,
			Localities: localities,
			Target:     leadsTarget,
			Verify:     leadsVerify,
		}

		orch, cleanup, err := newSession(params.Category, params.Localities)
		if err != nil {
			return err
		}
		defer cleanup()

		sink := pipeline.DiscardSink
		if !leadsJSON {
			// Print numbers as they arrive; totals go to the logger.
			sink = pipeline.SinkFunc(func(ev pipeline.Event) {
				if item, ok := ev.(pipeline.ItemEvent); ok {
					fmt.Println(item.Phone)
				}
			})
		}

		summary, err := orch.Run(ctx, params, sink)
		if err != nil {
			return eris.Wrap(err, "session interrupted")
		}

		if leadsJSON {
			if summary.Items == nil {
				summary.Items = []pipeline.Item{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		zap.L().Info("collection finished",
			zap.Int("count", summary.Count),
			zap.Int("confirmed", summary.ConfirmedCount),
			zap.Int("rejected", summary.RejectedCount),
			zap.Bool("exhausted", summary.Exhausted),
		)
		return nil
	},
}

// resolveLocalities merges the --localities flag with an optional YAML
// preset file (a plain list of locality names).
func resolveLocalities() ([]string, error) {
	localities := collect.ParseLocalities(leadsLocalities)

	if leadsLocalitiesFile != "" {
		data, err := os.ReadFile(leadsLocalitiesFile)
		if err != nil {
			return nil, eris.Wrap(err, "read localities file")
		}
		var fromFile []string
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, eris.Wrap(err, "parse localities file")
		}
		seen := make(map[string]struct{}, len(localities))
		for _, loc := range localities {
			seen[loc] = struct{}{}
		}
		for _, raw := range fromFile {
			for _, loc := range collect.ParseLocalities(raw) {
				if _, dup := seen[loc]; dup {
					continue
				}
				seen[loc] = struct{}{}
				localities = append(localities, loc)
			}
		}
	}

	return localities, nil
}

func init() {
	leadsCmd.Flags().StringVar(&leadsCategory, "category", "", "business category to search (required)")
	leadsCmd.Flags().StringVar(&leadsLocalities, "localities", "", "comma-separated localities")
	leadsCmd.Flags().StringVar(&leadsLocalitiesFile, "localities-file", "", "YAML file with a list of localities")
	leadsCmd.Flags().IntVarP(&leadsTarget, "target", "n", 50, "how many numbers to collect (1-500)")
	leadsCmd.Flags().BoolVar(&leadsVerify, "verify", false, "confirm reachability through the check API")
	leadsCmd.Flags().BoolVar(&leadsJSON, "json", false, "print the full summary as JSON")
	rootCmd.AddCommand(leadsCmd)
}
