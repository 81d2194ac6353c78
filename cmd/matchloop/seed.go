package main

import (
	"context"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/matchloop/internal/app"
	"github.com/okian/matchloop/internal/domain/learning"
	"github.com/okian/matchloop/internal/simulate"
)

const defaultRequestTimeout = 30 * time.Second

type seedResult struct {
	Load     simulate.Stats   `json:"load"`
	Learning *learning.Report `json:"learning,omitempty"`
}

func newSeedCmd(c *cli) *cobra.Command {
	gen := simulate.DefaultConfig()
	var (
		url     string
		workers int
		timeout time.Duration
		learn   bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate synthetic engagement history and load it",
		Long: `Seed generates providers, clients, outcomes, interactions and milestones
from a fixed seed and writes them either to a running server (--url) or
directly into the configured store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			g, err := simulate.NewGenerator(gen)
			if err != nil {
				return err
			}
			ds, err := g.Generate(ctx)
			if err != nil {
				return err
			}
			if url != "" {
				stats, err := simulate.Load(ctx, simulate.NewHTTPSink(url, timeout), ds, workers)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), seedResult{Load: stats})
			}
			return c.withService(ctx, func(svc *service.Service) error {
				res, err := seedInProcess(ctx, svc, ds, workers, learn)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&url, "url", "", "base URL of a running server; empty writes to the configured store")
	f.IntVar(&workers, "workers", runtime.NumCPU()*2, "concurrent writers")
	f.DurationVar(&timeout, "timeout", defaultRequestTimeout, "HTTP request timeout")
	f.BoolVar(&learn, "learn", false, "run a learning cycle after an in-process load")
	f.IntVar(&gen.Providers, "providers", gen.Providers, "providers to generate")
	f.IntVar(&gen.Clients, "clients", gen.Clients, "clients to generate")
	f.IntVar(&gen.MatchesPerClient, "matches-per-client", gen.MatchesPerClient, "matches per client")
	f.IntVar(&gen.InteractionsPerMatch, "interactions-per-match", gen.InteractionsPerMatch, "interactions per match")
	f.Float64Var(&gen.DecidedShare, "decided-share", gen.DecidedShare, "share of matches with a known partnership result")
	f.DurationVar(&gen.Span, "span", gen.Span, "how far back match creation dates reach")
	f.Uint64Var(&gen.Seed, "seed", gen.Seed, "random seed")
	return cmd
}

func seedInProcess(ctx context.Context, svc *service.Service, ds simulate.Dataset, workers int, learn bool) (seedResult, error) {
	stats, err := simulate.Load(ctx, svc, ds, workers)
	if err != nil {
		return seedResult{}, err
	}
	res := seedResult{Load: stats}
	if learn {
		report, err := svc.RunLearningCycle(ctx, false)
		if err != nil {
			return seedResult{}, err
		}
		res.Learning = &report
	}
	return res, nil
}
