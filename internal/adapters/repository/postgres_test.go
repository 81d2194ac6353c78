package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/model"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	store := NewPostgresStore(db, WithNow(func() time.Time { return fixedNow }))
	return store, mock, func() { db.Close() }
}

var outcomeCols = []string{
	"match_id", "provider_id", "client_id", "partnership_formed", "provider_satisfaction",
	"client_satisfaction", "revenue_generated", "project_value", "contact_made", "proposal_submitted",
	"contract_signed", "factor_snapshot", "created_at", "updated_at",
}

func TestPostgresStore_RecordOutcome(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	created := fixedNow.Add(-72 * time.Hour)
	mock.ExpectQuery("INSERT INTO match_outcomes").
		WithArgs("m-1", "p-1", "c-1", true, sqlmock.AnyArg(), sqlmock.AnyArg(), 12000.0, 0.0,
			true, true, true, sqlmock.AnyArg(), fixedNow, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, fixedNow))

	got, err := store.RecordOutcome(context.Background(), model.MatchOutcome{
		MatchID:           "m-1",
		ProviderID:        "p-1",
		ClientID:          "c-1",
		PartnershipFormed: model.Bool(true),
		RevenueGenerated:  12000,
		ContactMade:       true,
		ProposalSubmitted: true,
		ContractSigned:    true,
		FactorSnapshot:    map[string]float64{"industry_fit": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt, "created_at of an existing row is preserved")
	assert.Equal(t, fixedNow, got.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOutcome(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	t.Run("decodes nullable columns", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM match_outcomes WHERE match_id").
			WithArgs("m-1").
			WillReturnRows(sqlmock.NewRows(outcomeCols).AddRow(
				"m-1", "p-1", "c-1", nil, 4.5, nil, 0.0, 0.0, true, false, false,
				`{"experience":0.9}`, fixedNow, fixedNow))

		o, err := store.GetOutcome(context.Background(), "m-1")
		require.NoError(t, err)
		assert.False(t, o.Determined())
		require.NotNil(t, o.ProviderSatisfaction)
		assert.Equal(t, 4.5, *o.ProviderSatisfaction)
		assert.Nil(t, o.ClientSatisfaction)
		assert.Equal(t, 0.9, o.FactorSnapshot["experience"])
	})

	t.Run("missing row is not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM match_outcomes WHERE match_id").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(outcomeCols))

		_, err := store.GetOutcome(context.Background(), "nope")
		assert.True(t, errors.Is(err, fault.ErrNotFound))
		assert.False(t, fault.IsRetryable(err))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetOutcomesFilter(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	since := fixedNow.AddDate(0, 0, -180)
	mock.ExpectQuery(`FROM match_outcomes WHERE provider_id = \$1 AND updated_at >= \$2 AND partnership_formed IS NOT NULL ORDER BY updated_at, match_id`).
		WithArgs("p-1", since).
		WillReturnRows(sqlmock.NewRows(outcomeCols).
			AddRow("m-1", "p-1", "c-1", true, nil, nil, 100.0, 0.0, true, true, true, nil, fixedNow, fixedNow).
			AddRow("m-2", "p-1", "c-2", false, nil, 2.0, 0.0, 0.0, true, false, false, nil, fixedNow, fixedNow))

	out, err := store.GetOutcomes(context.Background(), model.OutcomeFilter{
		ProviderID:     "p-1",
		Since:          since,
		OnlyDetermined: true,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Succeeded())
	assert.False(t, out[1].Succeeded())
	assert.True(t, out[1].Determined())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendInteraction(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	in := model.Interaction{
		ID:           "i-1",
		MatchID:      "m-1",
		Channel:      model.ChannelEmail,
		Initiator:    model.InitiatorProvider,
		QualityScore: 0.8,
		OccurredAt:   fixedNow,
	}

	mock.ExpectExec("INSERT INTO match_interactions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO match_interactions").WillReturnResult(sqlmock.NewResult(0, 0))

	added, err := store.AppendInteraction(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.AppendInteraction(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, added, "duplicate ids are ignored")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertWeights(t *testing.T) {
	weights := []model.FactorWeight{
		{Factor: "industry_fit", CurrentWeight: 1.35, BaselineWeight: 1.3},
		{Factor: "experience", CurrentWeight: 0.82, BaselineWeight: 0.8},
	}

	t.Run("commits every row in one transaction", func(t *testing.T) {
		store, mock, cleanup := setupTestDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO factor_weights").
			WithArgs("industry_fit", 1.35, 1.3, 0.0, 0.0, 0, 0, fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO factor_weights").
			WithArgs("experience", 0.82, 0.8, 0.0, 0.0, 0, 0, fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		require.NoError(t, store.UpsertWeights(context.Background(), weights))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when a row fails", func(t *testing.T) {
		store, mock, cleanup := setupTestDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO factor_weights").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO factor_weights").WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := store.UpsertWeights(context.Background(), weights)
		require.Error(t, err)
		assert.True(t, errors.Is(err, fault.ErrStore))
		assert.True(t, fault.IsRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects unnamed factors before touching the database", func(t *testing.T) {
		store, mock, cleanup := setupTestDB(t)
		defer cleanup()

		err := store.UpsertWeights(context.Background(), []model.FactorWeight{{CurrentWeight: 1}})
		assert.True(t, errors.Is(err, fault.ErrValidation))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_ProviderProfile(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	cols := []string{
		"id", "name", "specializations", "province", "city", "years_experience", "accepting_clients",
		"current_capacity", "preferred_business_sizes", "services", "communication_styles", "rating",
		"completed_engagements",
	}
	mock.ExpectQuery("SELECT .+ FROM provider_profiles WHERE id").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"p-1", "Ada CPA", "{tech,retail}", "ON", "Toronto", 8, true, nil,
			"{small,medium}", "{bookkeeping,audit}", "{email}", 4.6, 31))

	p, err := store.GetProviderProfile(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tech", "retail"}, p.Specializations)
	assert.Equal(t, []model.BusinessSize{model.SizeSmall, model.SizeMedium}, p.PreferredBusinessSizes)
	require.NotNil(t, p.YearsExperience)
	assert.Equal(t, 8, *p.YearsExperience)
	assert.Nil(t, p.CurrentCapacity)
	require.NotNil(t, p.AcceptingClients)
	assert.True(t, *p.AcceptingClients)

	mock.ExpectExec("INSERT INTO provider_profiles").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.UpsertProviderProfile(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPredictions(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	since := fixedNow.AddDate(0, 0, -7)
	cols := []string{
		"match_id", "provider_id", "client_id", "engagement_score", "partnership_probability",
		"dropout_risk", "estimated_revenue", "avg_response_hours", "momentum", "updated_at",
	}
	mock.ExpectQuery(`FROM engagement_predictions WHERE partnership_probability >= \$1 AND partnership_probability <= \$2 AND updated_at >= \$3`).
		WithArgs(0.4, 0.9, since).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("m-1", "p-1", "c-1", 0.6, 0.55, 0.2, 4000.0, 3.5, "stable", fixedNow))

	out, err := store.ListPredictions(context.Background(), model.PredictionFilter{
		MinProbability: 0.4,
		MaxProbability: 0.9,
		UpdatedSince:   since,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "stable", out[0].Momentum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PerformanceSnapshot(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	snap := model.PerformanceSnapshot{
		ProviderID:   "p-1",
		Status:       "success",
		Dimensions:   map[string]model.DimensionScore{"client_satisfaction": {Value: 4.6, Score: 92, Weight: 0.2, Samples: 4}},
		OverallScore: 81,
		Tier:         model.TierExcellent,
		Rank:         2,
		Percentile:   75,
		PeerCount:    5,
		OutcomeCount: 9,
		ComputedAt:   fixedNow,
	}
	mock.ExpectExec("INSERT INTO performance_snapshots").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.SavePerformanceSnapshot(context.Background(), snap))

	cols := []string{
		"provider_id", "status", "dimensions", "overall_score", "tier", "rank", "percentile",
		"peer_count", "outcome_count", "computed_at",
	}
	mock.ExpectQuery("FROM performance_snapshots WHERE provider_id").
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"p-1", "success", `{"client_satisfaction":{"value":4.6,"score":92,"weight":0.2,"samples":4}}`,
			81.0, "excellent", 2, 75.0, 5, 9, fixedNow))

	got, err := store.GetPerformanceSnapshot(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StoreErrorsAreRetryable(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT").WillReturnError(sql.ErrConnDone)

	_, err := store.CountOutcomes(context.Background())
	require.Error(t, err)
	assert.Equal(t, fault.KindStore, fault.KindOf(err))
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	store, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS match_outcomes").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
