package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/pkg/logger"
	"github.com/okian/matchloop/pkg/metrics"
)

// Schema creates every table the Postgres store reads or writes.
const Schema = `
CREATE TABLE IF NOT EXISTS match_outcomes (
	match_id              TEXT PRIMARY KEY,
	provider_id           TEXT NOT NULL,
	client_id             TEXT NOT NULL,
	partnership_formed    BOOLEAN,
	provider_satisfaction DOUBLE PRECISION,
	client_satisfaction   DOUBLE PRECISION,
	revenue_generated     DOUBLE PRECISION NOT NULL DEFAULT 0,
	project_value         DOUBLE PRECISION NOT NULL DEFAULT 0,
	contact_made          BOOLEAN NOT NULL DEFAULT FALSE,
	proposal_submitted    BOOLEAN NOT NULL DEFAULT FALSE,
	contract_signed       BOOLEAN NOT NULL DEFAULT FALSE,
	factor_snapshot       JSONB,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS match_outcomes_provider_idx ON match_outcomes (provider_id, updated_at);
CREATE INDEX IF NOT EXISTS match_outcomes_updated_idx ON match_outcomes (updated_at);

CREATE TABLE IF NOT EXISTS match_interactions (
	id                    TEXT PRIMARY KEY,
	match_id              TEXT NOT NULL,
	channel               TEXT NOT NULL,
	interaction_type      TEXT NOT NULL DEFAULT '',
	initiator             TEXT NOT NULL,
	quality_score         DOUBLE PRECISION NOT NULL,
	response_time_minutes DOUBLE PRECISION,
	content_length        INTEGER NOT NULL DEFAULT 0,
	occurred_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS match_interactions_match_idx ON match_interactions (match_id, occurred_at);

CREATE TABLE IF NOT EXISTS match_milestones (
	id                 TEXT PRIMARY KEY,
	match_id           TEXT NOT NULL,
	milestone_type     TEXT NOT NULL,
	stage              INTEGER NOT NULL,
	quality_score      DOUBLE PRECISION NOT NULL,
	time_to_reach_hours DOUBLE PRECISION NOT NULL,
	reached_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS match_milestones_match_idx ON match_milestones (match_id, reached_at);

CREATE TABLE IF NOT EXISTS factor_weights (
	factor              TEXT PRIMARY KEY,
	current_weight      DOUBLE PRECISION NOT NULL,
	baseline_weight     DOUBLE PRECISION NOT NULL,
	success_correlation DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	sample_size         INTEGER NOT NULL DEFAULT 0,
	learning_iterations INTEGER NOT NULL DEFAULT 0,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS provider_profiles (
	id                       TEXT PRIMARY KEY,
	name                     TEXT NOT NULL DEFAULT '',
	specializations          TEXT[],
	province                 TEXT NOT NULL DEFAULT '',
	city                     TEXT NOT NULL DEFAULT '',
	years_experience         INTEGER,
	accepting_clients        BOOLEAN,
	current_capacity         INTEGER,
	preferred_business_sizes TEXT[],
	services                 TEXT[],
	communication_styles     TEXT[],
	rating                   DOUBLE PRECISION,
	completed_engagements    INTEGER
);

CREATE TABLE IF NOT EXISTS client_profiles (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL DEFAULT '',
	industry                TEXT NOT NULL DEFAULT '',
	province                TEXT NOT NULL DEFAULT '',
	city                    TEXT NOT NULL DEFAULT '',
	business_size           TEXT NOT NULL DEFAULT '',
	annual_revenue          DOUBLE PRECISION,
	services_needed         TEXT[],
	complexity              TEXT NOT NULL DEFAULT '',
	preferred_communication TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS engagement_predictions (
	match_id                TEXT PRIMARY KEY,
	provider_id             TEXT NOT NULL,
	client_id               TEXT NOT NULL,
	engagement_score        DOUBLE PRECISION NOT NULL,
	partnership_probability DOUBLE PRECISION NOT NULL,
	dropout_risk            DOUBLE PRECISION NOT NULL,
	estimated_revenue       DOUBLE PRECISION NOT NULL,
	avg_response_hours      DOUBLE PRECISION NOT NULL,
	momentum                TEXT NOT NULL DEFAULT '',
	updated_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS performance_snapshots (
	provider_id   TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	dimensions    JSONB,
	overall_score DOUBLE PRECISION NOT NULL,
	tier          TEXT NOT NULL,
	rank          INTEGER NOT NULL,
	percentile    DOUBLE PRECISION NOT NULL,
	peer_count    INTEGER NOT NULL,
	outcome_count INTEGER NOT NULL,
	computed_at   TIMESTAMPTZ NOT NULL
);
`

const outcomeColumns = `match_id, provider_id, client_id, partnership_formed, provider_satisfaction,
	client_satisfaction, revenue_generated, project_value, contact_made, proposal_submitted,
	contract_signed, factor_snapshot, created_at, updated_at`

const providerColumns = `id, name, specializations, province, city, years_experience, accepting_clients,
	current_capacity, preferred_business_sizes, services, communication_styles, rating, completed_engagements`

// PostgresStore is the durable Store backed by database/sql and lib/pq.
type PostgresStore struct {
	db   *sql.DB
	opts storeOptions
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB, opts ...Option) *PostgresStore {
	o := defaultStoreOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &PostgresStore{db: db, opts: o}
}

// OpenPostgres opens a lib/pq connection and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fault.Store("open_postgres", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fault.Store("open_postgres", fmt.Errorf("ping: %w", err))
	}
	return NewPostgresStore(db, opts...), nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) (err error) {
	defer s.observe("migrate", time.Now(), &err)
	if _, err = s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// observe records latency and classifies err as a store failure.
func (s *PostgresStore) observe(op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(op, time.Since(start))
	if *err == nil {
		return
	}
	if k := fault.KindOf(*err); k == fault.KindNotFound || k == fault.KindValidation {
		return
	}
	metrics.RecordStoreError(op)
	s.opts.logger.Warn(context.Background(), "store operation failed",
		logger.String("op", op), logger.Error(*err))
	*err = fault.Store(op, *err)
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, o model.MatchOutcome) (_ model.MatchOutcome, err error) {
	defer s.observe("record_outcome", time.Now(), &err)

	snapshot, err := marshalJSON(o.FactorSnapshot)
	if err != nil {
		return model.MatchOutcome{}, err
	}
	now := s.opts.now().UTC()
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	query := `
		INSERT INTO match_outcomes (` + outcomeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (match_id) DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			client_id = EXCLUDED.client_id,
			partnership_formed = EXCLUDED.partnership_formed,
			provider_satisfaction = EXCLUDED.provider_satisfaction,
			client_satisfaction = EXCLUDED.client_satisfaction,
			revenue_generated = EXCLUDED.revenue_generated,
			project_value = EXCLUDED.project_value,
			contact_made = EXCLUDED.contact_made,
			proposal_submitted = EXCLUDED.proposal_submitted,
			contract_signed = EXCLUDED.contract_signed,
			factor_snapshot = EXCLUDED.factor_snapshot,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		o.MatchID, o.ProviderID, o.ClientID, o.PartnershipFormed, o.ProviderSatisfaction,
		o.ClientSatisfaction, o.RevenueGenerated, o.ProjectValue, o.ContactMade,
		o.ProposalSubmitted, o.ContractSigned, snapshot, createdAt, now,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.MatchOutcome{}, fmt.Errorf("upsert outcome: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) GetOutcome(ctx context.Context, matchID string) (_ model.MatchOutcome, err error) {
	defer s.observe("get_outcome", time.Now(), &err)

	row := s.db.QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM match_outcomes WHERE match_id = $1`, matchID)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MatchOutcome{}, fault.NotFound("get_outcome", "outcome", matchID)
	}
	if err != nil {
		return model.MatchOutcome{}, fmt.Errorf("select outcome: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) GetOutcomes(ctx context.Context, f model.OutcomeFilter) (_ []model.MatchOutcome, err error) {
	defer s.observe("get_outcomes", time.Now(), &err)

	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.ProviderID != "" {
		add("provider_id = $%d", f.ProviderID)
	}
	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if !f.Since.IsZero() {
		add("updated_at >= $%d", f.Since)
	}
	if f.OnlyDetermined {
		where = append(where, "partnership_formed IS NOT NULL")
	}

	query := `SELECT ` + outcomeColumns + ` FROM match_outcomes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at, match_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []model.MatchOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountOutcomes(ctx context.Context) (n int, err error) {
	defer s.observe("count_outcomes", time.Now(), &err)
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_outcomes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outcomes: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) AppendInteraction(ctx context.Context, i model.Interaction) (_ bool, err error) {
	defer s.observe("append_interaction", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO match_interactions (
			id, match_id, channel, interaction_type, initiator, quality_score,
			response_time_minutes, content_length, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, i.ID, i.MatchID, string(i.Channel), i.Type, string(i.Initiator), i.QualityScore,
		i.ResponseTimeMinutes, i.ContentLength, i.OccurredAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert interaction: %w", err)
	}
	return inserted(res)
}

func (s *PostgresStore) AppendMilestone(ctx context.Context, m model.Milestone) (_ bool, err error) {
	defer s.observe("append_milestone", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO match_milestones (
			id, match_id, milestone_type, stage, quality_score, time_to_reach_hours, reached_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.MatchID, string(m.Type), m.Stage, m.QualityScore, m.TimeToReachHours, m.ReachedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert milestone: %w", err)
	}
	return inserted(res)
}

func (s *PostgresStore) GetInteractions(ctx context.Context, matchID string, since time.Time) (_ []model.Interaction, err error) {
	defer s.observe("get_interactions", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, match_id, channel, interaction_type, initiator, quality_score,
			response_time_minutes, content_length, occurred_at
		FROM match_interactions
		WHERE match_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at, id
	`, matchID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []model.Interaction
	for rows.Next() {
		var (
			i        model.Interaction
			channel  string
			who      string
			response sql.NullFloat64
		)
		if err := rows.Scan(&i.ID, &i.MatchID, &channel, &i.Type, &who, &i.QualityScore,
			&response, &i.ContentLength, &i.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		i.Channel = model.Channel(channel)
		i.Initiator = model.Initiator(who)
		i.ResponseTimeMinutes = nullFloat(response)
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetMilestones(ctx context.Context, matchID string, since time.Time) (_ []model.Milestone, err error) {
	defer s.observe("get_milestones", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, match_id, milestone_type, stage, quality_score, time_to_reach_hours, reached_at
		FROM match_milestones
		WHERE match_id = $1 AND reached_at >= $2
		ORDER BY reached_at, id
	`, matchID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query milestones: %w", err)
	}
	defer rows.Close()

	var out []model.Milestone
	for rows.Next() {
		var (
			m    model.Milestone
			kind string
		)
		if err := rows.Scan(&m.ID, &m.MatchID, &kind, &m.Stage, &m.QualityScore,
			&m.TimeToReachHours, &m.ReachedAt); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		m.Type = model.MilestoneType(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetWeights(ctx context.Context) (_ []model.FactorWeight, err error) {
	defer s.observe("get_weights", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT factor, current_weight, baseline_weight, success_correlation, confidence_score,
			sample_size, learning_iterations, updated_at
		FROM factor_weights
		ORDER BY factor
	`)
	if err != nil {
		return nil, fmt.Errorf("query weights: %w", err)
	}
	defer rows.Close()

	var out []model.FactorWeight
	for rows.Next() {
		var w model.FactorWeight
		if err := rows.Scan(&w.Factor, &w.CurrentWeight, &w.BaselineWeight, &w.SuccessCorrelation,
			&w.ConfidenceScore, &w.SampleSize, &w.LearningIterations, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan weight: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertWeight(ctx context.Context, w model.FactorWeight) error {
	return s.UpsertWeights(ctx, []model.FactorWeight{w})
}

const upsertWeightQuery = `
	INSERT INTO factor_weights (
		factor, current_weight, baseline_weight, success_correlation, confidence_score,
		sample_size, learning_iterations, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (factor) DO UPDATE SET
		current_weight = EXCLUDED.current_weight,
		baseline_weight = EXCLUDED.baseline_weight,
		success_correlation = EXCLUDED.success_correlation,
		confidence_score = EXCLUDED.confidence_score,
		sample_size = EXCLUDED.sample_size,
		learning_iterations = EXCLUDED.learning_iterations,
		updated_at = EXCLUDED.updated_at
`

// UpsertWeights writes all rows in one transaction.
func (s *PostgresStore) UpsertWeights(ctx context.Context, ws []model.FactorWeight) (err error) {
	for _, w := range ws {
		if w.Factor == "" {
			return fault.Validation("upsert_weights", "factor name is required")
		}
	}
	defer s.observe("upsert_weights", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.opts.now().UTC()
	for _, w := range ws {
		updated := w.UpdatedAt
		if updated.IsZero() {
			updated = now
		}
		if _, err := tx.ExecContext(ctx, upsertWeightQuery,
			w.Factor, w.CurrentWeight, w.BaselineWeight, w.SuccessCorrelation, w.ConfidenceScore,
			w.SampleSize, w.LearningIterations, updated); err != nil {
			return fmt.Errorf("upsert weight %s: %w", w.Factor, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit weights: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProviderProfile(ctx context.Context, id string) (_ model.ProviderProfile, err error) {
	defer s.observe("get_provider", time.Now(), &err)

	p, err := scanProvider(s.db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM provider_profiles WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProviderProfile{}, fault.NotFound("get_provider", "provider", id)
	}
	if err != nil {
		return model.ProviderProfile{}, fmt.Errorf("select provider: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpsertProviderProfile(ctx context.Context, p model.ProviderProfile) (err error) {
	defer s.observe("upsert_provider", time.Now(), &err)

	sizes := make([]string, len(p.PreferredBusinessSizes))
	for i, sz := range p.PreferredBusinessSizes {
		sizes[i] = string(sz)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_profiles (`+providerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			specializations = EXCLUDED.specializations,
			province = EXCLUDED.province,
			city = EXCLUDED.city,
			years_experience = EXCLUDED.years_experience,
			accepting_clients = EXCLUDED.accepting_clients,
			current_capacity = EXCLUDED.current_capacity,
			preferred_business_sizes = EXCLUDED.preferred_business_sizes,
			services = EXCLUDED.services,
			communication_styles = EXCLUDED.communication_styles,
			rating = EXCLUDED.rating,
			completed_engagements = EXCLUDED.completed_engagements
	`, p.ID, p.Name, pq.Array(p.Specializations), p.Province, p.City, p.YearsExperience,
		p.AcceptingClients, p.CurrentCapacity, pq.Array(sizes), pq.Array(p.Services),
		pq.Array(p.CommunicationStyles), p.Rating, p.CompletedEngagements)
	if err != nil {
		return fmt.Errorf("upsert provider: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProviders(ctx context.Context) (_ []model.ProviderProfile, err error) {
	defer s.observe("list_providers", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `SELECT `+providerColumns+` FROM provider_profiles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query providers: %w", err)
	}
	defer rows.Close()

	var out []model.ProviderProfile
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ActiveProviders(ctx context.Context, since time.Time) (_ []string, err error) {
	defer s.observe("active_providers", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT provider_id FROM match_outcomes
		WHERE updated_at >= $1
		ORDER BY provider_id
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query active providers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan provider id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetClientProfile(ctx context.Context, id string) (_ model.ClientProfile, err error) {
	defer s.observe("get_client", time.Now(), &err)

	var (
		c       model.ClientProfile
		size    string
		cx      string
		revenue sql.NullFloat64
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, name, industry, province, city, business_size, annual_revenue,
			services_needed, complexity, preferred_communication
		FROM client_profiles WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Industry, &c.Province, &c.City, &size, &revenue,
		pq.Array(&c.ServicesNeeded), &cx, &c.PreferredCommunication)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ClientProfile{}, fault.NotFound("get_client", "client", id)
	}
	if err != nil {
		return model.ClientProfile{}, fmt.Errorf("select client: %w", err)
	}
	c.BusinessSize = model.BusinessSize(size)
	c.Complexity = model.Complexity(cx)
	c.AnnualRevenue = nullFloat(revenue)
	return c, nil
}

func (s *PostgresStore) UpsertClientProfile(ctx context.Context, c model.ClientProfile) (err error) {
	defer s.observe("upsert_client", time.Now(), &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO client_profiles (
			id, name, industry, province, city, business_size, annual_revenue,
			services_needed, complexity, preferred_communication
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			industry = EXCLUDED.industry,
			province = EXCLUDED.province,
			city = EXCLUDED.city,
			business_size = EXCLUDED.business_size,
			annual_revenue = EXCLUDED.annual_revenue,
			services_needed = EXCLUDED.services_needed,
			complexity = EXCLUDED.complexity,
			preferred_communication = EXCLUDED.preferred_communication
	`, c.ID, c.Name, c.Industry, c.Province, c.City, string(c.BusinessSize), c.AnnualRevenue,
		pq.Array(c.ServicesNeeded), string(c.Complexity), c.PreferredCommunication)
	if err != nil {
		return fmt.Errorf("upsert client: %w", err)
	}
	return nil
}

const predictionColumns = `match_id, provider_id, client_id, engagement_score, partnership_probability,
	dropout_risk, estimated_revenue, avg_response_hours, momentum, updated_at`

func (s *PostgresStore) SavePrediction(ctx context.Context, p model.EngagementPrediction) (err error) {
	defer s.observe("save_prediction", time.Now(), &err)

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.opts.now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engagement_predictions (`+predictionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (match_id) DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			client_id = EXCLUDED.client_id,
			engagement_score = EXCLUDED.engagement_score,
			partnership_probability = EXCLUDED.partnership_probability,
			dropout_risk = EXCLUDED.dropout_risk,
			estimated_revenue = EXCLUDED.estimated_revenue,
			avg_response_hours = EXCLUDED.avg_response_hours,
			momentum = EXCLUDED.momentum,
			updated_at = EXCLUDED.updated_at
	`, p.MatchID, p.ProviderID, p.ClientID, p.EngagementScore, p.PartnershipProbability,
		p.DropoutRisk, p.EstimatedRevenue, p.AvgResponseHours, p.Momentum, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert prediction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPrediction(ctx context.Context, matchID string) (_ model.EngagementPrediction, err error) {
	defer s.observe("get_prediction", time.Now(), &err)

	p, err := scanPrediction(s.db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM engagement_predictions WHERE match_id = $1`, matchID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.EngagementPrediction{}, fault.NotFound("get_prediction", "prediction", matchID)
	}
	if err != nil {
		return model.EngagementPrediction{}, fmt.Errorf("select prediction: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPredictions(ctx context.Context, f model.PredictionFilter) (_ []model.EngagementPrediction, err error) {
	defer s.observe("list_predictions", time.Now(), &err)

	query := `SELECT ` + predictionColumns + ` FROM engagement_predictions WHERE partnership_probability >= $1`
	args := []any{f.MinProbability}
	if f.MaxProbability > 0 {
		args = append(args, f.MaxProbability)
		query += fmt.Sprintf(" AND partnership_probability <= $%d", len(args))
	}
	if !f.UpdatedSince.IsZero() {
		args = append(args, f.UpdatedSince.UTC())
		query += fmt.Sprintf(" AND updated_at >= $%d", len(args))
	}
	query += " ORDER BY match_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []model.EngagementPrediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SavePerformanceSnapshot(ctx context.Context, snap model.PerformanceSnapshot) (err error) {
	defer s.observe("save_performance_snapshot", time.Now(), &err)

	dims, err := marshalJSON(snap.Dimensions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO performance_snapshots (
			provider_id, status, dimensions, overall_score, tier, rank, percentile,
			peer_count, outcome_count, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (provider_id) DO UPDATE SET
			status = EXCLUDED.status,
			dimensions = EXCLUDED.dimensions,
			overall_score = EXCLUDED.overall_score,
			tier = EXCLUDED.tier,
			rank = EXCLUDED.rank,
			percentile = EXCLUDED.percentile,
			peer_count = EXCLUDED.peer_count,
			outcome_count = EXCLUDED.outcome_count,
			computed_at = EXCLUDED.computed_at
	`, snap.ProviderID, snap.Status, dims, snap.OverallScore, string(snap.Tier), snap.Rank,
		snap.Percentile, snap.PeerCount, snap.OutcomeCount, snap.ComputedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert performance snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPerformanceSnapshot(ctx context.Context, providerID string) (_ model.PerformanceSnapshot, err error) {
	defer s.observe("get_performance_snapshot", time.Now(), &err)

	var (
		snap model.PerformanceSnapshot
		dims []byte
		tier string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT provider_id, status, dimensions, overall_score, tier, rank, percentile,
			peer_count, outcome_count, computed_at
		FROM performance_snapshots WHERE provider_id = $1
	`, providerID).Scan(&snap.ProviderID, &snap.Status, &dims, &snap.OverallScore, &tier,
		&snap.Rank, &snap.Percentile, &snap.PeerCount, &snap.OutcomeCount, &snap.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PerformanceSnapshot{}, fault.NotFound("get_performance_snapshot", "snapshot", providerID)
	}
	if err != nil {
		return model.PerformanceSnapshot{}, fmt.Errorf("select performance snapshot: %w", err)
	}
	snap.Tier = model.Tier(tier)
	if len(dims) > 0 {
		if err := json.Unmarshal(dims, &snap.Dimensions); err != nil {
			return model.PerformanceSnapshot{}, fmt.Errorf("decode dimensions: %w", err)
		}
	}
	return snap, nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(r rowScanner) (model.MatchOutcome, error) {
	var (
		o        model.MatchOutcome
		formed   sql.NullBool
		provSat  sql.NullFloat64
		clSat    sql.NullFloat64
		snapshot []byte
	)
	if err := r.Scan(&o.MatchID, &o.ProviderID, &o.ClientID, &formed, &provSat, &clSat,
		&o.RevenueGenerated, &o.ProjectValue, &o.ContactMade, &o.ProposalSubmitted,
		&o.ContractSigned, &snapshot, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return model.MatchOutcome{}, err
	}
	if formed.Valid {
		o.PartnershipFormed = model.Bool(formed.Bool)
	}
	o.ProviderSatisfaction = nullFloat(provSat)
	o.ClientSatisfaction = nullFloat(clSat)
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &o.FactorSnapshot); err != nil {
			return model.MatchOutcome{}, fmt.Errorf("decode factor snapshot: %w", err)
		}
	}
	return o, nil
}

func scanProvider(r rowScanner) (model.ProviderProfile, error) {
	var (
		p          model.ProviderProfile
		sizes      []string
		years      sql.NullInt64
		accepting  sql.NullBool
		capacity   sql.NullInt64
		rating     sql.NullFloat64
		engagement sql.NullInt64
	)
	if err := r.Scan(&p.ID, &p.Name, pq.Array(&p.Specializations), &p.Province, &p.City,
		&years, &accepting, &capacity, pq.Array(&sizes), pq.Array(&p.Services),
		pq.Array(&p.CommunicationStyles), &rating, &engagement); err != nil {
		return model.ProviderProfile{}, err
	}
	for _, sz := range sizes {
		p.PreferredBusinessSizes = append(p.PreferredBusinessSizes, model.BusinessSize(sz))
	}
	p.YearsExperience = nullInt(years)
	if accepting.Valid {
		p.AcceptingClients = model.Bool(accepting.Bool)
	}
	p.CurrentCapacity = nullInt(capacity)
	p.Rating = nullFloat(rating)
	p.CompletedEngagements = nullInt(engagement)
	return p, nil
}

func scanPrediction(r rowScanner) (model.EngagementPrediction, error) {
	var p model.EngagementPrediction
	err := r.Scan(&p.MatchID, &p.ProviderID, &p.ClientID, &p.EngagementScore, &p.PartnershipProbability,
		&p.DropoutRisk, &p.EstimatedRevenue, &p.AvgResponseHours, &p.Momentum, &p.UpdatedAt)
	return p, err
}

func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// marshalJSON encodes v for a JSONB column; empty maps become NULL.
func marshalJSON[M ~map[string]V, V any](v M) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fault.Validation("encode_json", "%v", err)
	}
	return b, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return model.Int(int(v.Int64))
}
