package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/autotrader/internal/alert"
	"github.com/sawpanic/autotrader/internal/config"
)

func rulesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate alert rules",
	}
	cmd.AddCommand(rulesValidateCmd(configPath))
	return cmd
}

func rulesValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Compile every alert rule in the configuration document and report errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Parse leniently rather than through config.Load, which rejects
			// the whole document on the first bad rule; validate reports
			// every rule's outcome.
			data, err := os.ReadFile(*configPath)
			if err != nil {
				return &cliError{code: ExitInput, err: err}
			}
			var doc config.Document
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return &cliError{code: ExitConfig, err: err}
			}

			failed := 0
			seen := make(map[string]bool, len(doc.AlertRules))
			for _, rd := range doc.AlertRules {
				if seen[rd.ID] {
					failed++
					fmt.Fprintf(os.Stderr, "FAIL %s: duplicate rule id\n", rd.ID)
					continue
				}
				seen[rd.ID] = true
				rule, err := alert.CompileRule(rd)
				if err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", rd.ID, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK   %s (%s, severity=%s, channels=%v)\n",
					rule.ID, rule.Version, rule.Severity, rule.Channels)
			}

			if failed > 0 {
				return &cliError{code: ExitValidation, err: fmt.Errorf("%d alert rule(s) failed validation", failed)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d alert rule(s) valid\n", len(doc.AlertRules))
			return nil
		},
	}
}
