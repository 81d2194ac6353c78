package simulate

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/scoring"
	"github.com/okian/matchloop/pkg/logger"
)

var (
	industries = []string{"technology", "retail", "dental clinic", "construction", "restaurant", "consulting", "manufacturing", "nonprofit"}
	provinces  = map[string][]string{
		"ON": {"Toronto", "Ottawa", "Hamilton"},
		"BC": {"Vancouver", "Victoria"},
		"QC": {"Montreal", "Quebec City"},
		"AB": {"Calgary", "Edmonton"},
	}
	provinceCodes = []string{"ON", "BC", "QC", "AB"}
	services      = []string{"bookkeeping", "tax_preparation", "payroll", "audit", "advisory", "corporate_tax"}
	styles        = []string{"email", "phone", "video", "meeting"}
	complexities  = []model.Complexity{model.ComplexitySimple, model.ComplexityModerate, model.ComplexityComplex}
	channels      = []model.Channel{model.ChannelEmail, model.ChannelPhone, model.ChannelVideo, model.ChannelMeeting, model.ChannelPlatform}
)

// Dataset is one generated population with its engagement history.
type Dataset struct {
	Providers    []model.ProviderProfile
	Clients      []model.ClientProfile
	Outcomes     []model.MatchOutcome
	Interactions []model.Interaction
	Milestones   []model.Milestone
}

// rngReader feeds uuid generation from the seeded source so ids are
// reproducible.
type rngReader struct{ r *rand.Rand }

func (rr rngReader) Read(p []byte) (int, error) {
	var buf [8]byte
	for i := 0; i < len(p); i += 8 {
		binary.LittleEndian.PutUint64(buf[:], rr.r.Uint64())
		copy(p[i:], buf[:])
	}
	return len(p), nil
}

// Generator builds datasets. The same Config always yields the same dataset.
type Generator struct {
	cfg Config
	rng *rand.Rand
	ids rngReader
}

// NewGenerator validates cfg and returns a generator.
func NewGenerator(cfg Config) (*Generator, error) {
	const op = "simulate_config"
	switch {
	case cfg.Providers < 1 || cfg.Clients < 1:
		return nil, fault.Validation(op, "providers and clients must be positive")
	case cfg.MatchesPerClient < 1 || cfg.MatchesPerClient > cfg.Providers:
		return nil, fault.Validation(op, "matches per client must be within [1,%d]", cfg.Providers)
	case cfg.InteractionsPerMatch < 0:
		return nil, fault.Validation(op, "interactions per match must not be negative")
	case cfg.DecidedShare < 0 || cfg.DecidedShare > 1:
		return nil, fault.Validation(op, "decided share must be within [0,1]")
	case cfg.Span <= 0:
		return nil, fault.Validation(op, "span must be positive")
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now().UTC()
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // reproducible fixtures
	return &Generator{cfg: cfg, rng: rng, ids: rngReader{r: rng}}, nil
}

func (g *Generator) id(prefix string) string {
	u, err := uuid.NewRandomFromReader(g.ids)
	if err != nil {
		return prefix + "-" + uuid.NewString()
	}
	return prefix + "-" + u.String()
}

func pick[T any](r *rand.Rand, xs []T) T {
	return xs[r.IntN(len(xs))]
}

func (g *Generator) sample(xs []string, lo, hi int) []string {
	n := lo + g.rng.IntN(hi-lo+1)
	perm := g.rng.Perm(len(xs))
	out := make([]string, 0, n)
	for _, i := range perm[:min(n, len(xs))] {
		out = append(out, xs[i])
	}
	return out
}

func (g *Generator) location() (string, string) {
	p := pick(g.rng, provinceCodes)
	return p, pick(g.rng, provinces[p])
}

func (g *Generator) provider() model.ProviderProfile {
	province, city := g.location()
	sizes := []model.BusinessSize{pick(g.rng, model.Sizes)}
	if g.rng.Float64() < 0.5 {
		sizes = append(sizes, pick(g.rng, model.Sizes))
	}
	return model.ProviderProfile{
		ID:                     g.id("p"),
		Specializations:        g.sample(industries, 1, 2),
		Province:               province,
		City:                   city,
		YearsExperience:        model.Int(1 + g.rng.IntN(20)),
		AcceptingClients:       model.Bool(g.rng.Float64() < 0.85),
		CurrentCapacity:        model.Int(g.rng.IntN(7)),
		PreferredBusinessSizes: sizes,
		Services:               g.sample(services, 2, 4),
		CommunicationStyles:    g.sample(styles, 1, 2),
		Rating:                 model.Float(math.Round((3+2*g.rng.Float64())*10) / 10),
		CompletedEngagements:   model.Int(g.rng.IntN(40)),
	}
}

func (g *Generator) client() model.ClientProfile {
	province, city := g.location()
	return model.ClientProfile{
		ID:                     g.id("c"),
		Industry:               pick(g.rng, industries),
		Province:               province,
		City:                   city,
		BusinessSize:           pick(g.rng, model.Sizes),
		AnnualRevenue:          model.Float(float64(50_000 + g.rng.IntN(5_000_000))),
		ServicesNeeded:         g.sample(services, 1, 3),
		Complexity:             pick(g.rng, complexities),
		PreferredCommunication: pick(g.rng, styles),
	}
}

// Generate builds a dataset. Partnership success is drawn with a
// probability that rises with the pair's baseline score, so learning has
// a real signal to find.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	var ds Dataset
	for range g.cfg.Providers {
		ds.Providers = append(ds.Providers, g.provider())
	}
	for range g.cfg.Clients {
		ds.Clients = append(ds.Clients, g.client())
	}

	for _, c := range ds.Clients {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		for _, pi := range g.rng.Perm(len(ds.Providers))[:g.cfg.MatchesPerClient] {
			g.match(&ds, c, ds.Providers[pi])
		}
	}

	logger.Get().Info(ctx, "generated dataset",
		logger.Int("providers", len(ds.Providers)),
		logger.Int("clients", len(ds.Clients)),
		logger.Int("outcomes", len(ds.Outcomes)),
		logger.Int("interactions", len(ds.Interactions)),
		logger.Int("milestones", len(ds.Milestones)))
	return ds, nil
}

func (g *Generator) match(ds *Dataset, c model.ClientProfile, p model.ProviderProfile) {
	res := scoring.Compute(c, p, nil)
	created := g.cfg.Now.Add(-time.Duration(g.rng.Int64N(int64(g.cfg.Span))))
	o := model.MatchOutcome{
		MatchID:        g.id("m"),
		ProviderID:     p.ID,
		ClientID:       c.ID,
		FactorSnapshot: res.Values(),
		ContactMade:    true,
		CreatedAt:      created,
	}

	formed := g.rng.Float64() < math.Max(0.05, math.Min(0.95, (res.TotalScore-35)/50))
	stages := 1 + g.rng.IntN(4)
	if g.rng.Float64() < g.cfg.DecidedShare {
		o.PartnershipFormed = model.Bool(formed)
		if formed {
			stages = 5 + g.rng.IntN(3)
			o.ProposalSubmitted = true
			o.ContractSigned = true
			o.RevenueGenerated = math.Round(1000 + 11000*g.rng.Float64())
			o.ProjectValue = math.Round(o.RevenueGenerated * (1 + g.rng.Float64()))
			o.ClientSatisfaction = model.Float(math.Round((3.5+1.5*g.rng.Float64())*10) / 10)
			o.ProviderSatisfaction = model.Float(math.Round((3.5+1.5*g.rng.Float64())*10) / 10)
		} else {
			o.ProposalSubmitted = stages >= 3
			o.ClientSatisfaction = model.Float(math.Round((1+2.5*g.rng.Float64())*10) / 10)
		}
	}
	ds.Outcomes = append(ds.Outcomes, o)

	// Engaged pairs answer faster and talk more.
	quality, responseMinutes := 0.4+0.3*g.rng.Float64(), 240+g.rng.Float64()*1200
	if formed {
		quality, responseMinutes = 0.65+0.3*g.rng.Float64(), 20+g.rng.Float64()*220
	}
	at := created
	for i := range g.cfg.InteractionsPerMatch {
		at = at.Add(time.Duration(6+g.rng.IntN(90)) * time.Hour)
		if at.After(g.cfg.Now) {
			break
		}
		initiator := model.InitiatorClient
		if i%2 == 1 {
			initiator = model.InitiatorProvider
		}
		in := model.Interaction{
			ID:            g.id("i"),
			MatchID:       o.MatchID,
			Channel:       pick(g.rng, channels),
			Initiator:     initiator,
			QualityScore:  math.Max(0, math.Min(1, quality+0.05*g.rng.NormFloat64())),
			ContentLength: 200 + g.rng.IntN(1800),
			OccurredAt:    at,
		}
		if initiator == model.InitiatorProvider {
			in.ResponseTimeMinutes = model.Float(math.Round(responseMinutes * (0.5 + g.rng.Float64())))
		}
		ds.Interactions = append(ds.Interactions, in)
	}

	reached := created
	for _, t := range model.MilestoneStages[:stages] {
		hours := float64(12 + g.rng.IntN(24*7))
		reached = reached.Add(time.Duration(hours) * time.Hour)
		if reached.After(g.cfg.Now) {
			break
		}
		ds.Milestones = append(ds.Milestones, model.Milestone{
			ID:               g.id("ms"),
			MatchID:          o.MatchID,
			Type:             t,
			Stage:            t.Stage(),
			QualityScore:     math.Round((0.5+0.5*g.rng.Float64())*100) / 100,
			TimeToReachHours: hours,
			ReachedAt:        reached,
		})
	}
}
