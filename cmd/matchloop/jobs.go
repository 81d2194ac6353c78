package main

import (
	"github.com/spf13/cobra"

	service "github.com/okian/matchloop/internal/app"
)

func newLearnCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Run one weight learning cycle and print its report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd.Context(), func(svc *service.Service) error {
				report, err := svc.RunLearningCycle(cmd.Context(), force)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "learn even below the minimum sample size")
	return cmd
}

func newScorePerformanceCmd(c *cli) *cobra.Command {
	var provider string
	var window int
	cmd := &cobra.Command{
		Use:   "score-performance",
		Short: "Score provider performance, one provider or every active one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd.Context(), func(svc *service.Service) error {
				if provider != "" {
					snap, err := svc.ScorePerformance(cmd.Context(), provider, window)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), snap)
				}
				report, err := svc.ScoreAllPerformance(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "score only this provider")
	cmd.Flags().IntVar(&window, "window-days", 0, "scoring window (0 uses performance_window_days)")
	return cmd
}

func newOptimizeCmd(c *cli) *cobra.Command {
	var match string
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Find engagement interventions, for one match or every candidate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withService(cmd.Context(), func(svc *service.Service) error {
				if match != "" {
					res, err := svc.Optimize(cmd.Context(), match)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), res)
				}
				report, err := svc.OptimizeAll(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "optimize only this match")
	return cmd
}
