package main

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/wafgate/wafgate/internal/config"
	"github.com/wafgate/wafgate/internal/engine/corazawaf"
	"github.com/wafgate/wafgate/internal/logging"
	"github.com/wafgate/wafgate/internal/rulestore"
)

func newRulesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Load the configured rules and report per-source counts without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("config path is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return dryRunRules(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

func dryRunRules(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()

	log := logging.Setup(logging.Config{Level: "error", Format: cfg.Logging.Format})
	eng := corazawaf.New(nil)
	store := rulestore.New(eng, log)

	for _, pattern := range cfg.Rules.Files {
		resolved := cfg.ResolvePath(pattern)
		matches, err := doublestar.FilepathGlob(resolved)
		if err != nil {
			fmt.Fprintf(out, "%-50s  bad pattern: %v\n", pattern, err)
			continue
		}
		if len(matches) == 0 {
			fmt.Fprintf(out, "%-50s  no matches\n", pattern)
			continue
		}
		for _, path := range matches {
			failures := store.Failures()
			added := store.LoadFromFiles([]string{path})
			if store.Failures() > failures {
				fmt.Fprintf(out, "%-50s  FAILED\n", path)
			} else {
				fmt.Fprintf(out, "%-50s  %d rules\n", path, added)
			}
		}
	}

	if inline := cfg.Rules.InlineText(); inline != "" {
		failures := store.Failures()
		added := store.LoadFromText(inline)
		if store.Failures() > failures {
			fmt.Fprintf(out, "%-50s  FAILED\n", "<inline>")
		} else {
			fmt.Fprintf(out, "%-50s  %d rules\n", "<inline>", added)
		}
	}

	fmt.Fprintf(out, "\ntotal: %d rules, %d failed sources\n", store.TotalRules(), store.Failures())
	if store.Failures() > 0 {
		return fmt.Errorf("%d rule sources failed to load", store.Failures())
	}
	return nil
}
