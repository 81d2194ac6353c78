package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/matchloop/internal/adapters/http/api"
	"github.com/okian/matchloop/internal/domain/fault"
	"github.com/okian/matchloop/internal/domain/forecast"
	"github.com/okian/matchloop/internal/domain/learning"
	"github.com/okian/matchloop/internal/domain/model"
	"github.com/okian/matchloop/internal/domain/optimizer"
	"github.com/okian/matchloop/internal/domain/patterns"
	"github.com/okian/matchloop/internal/domain/recommend"
	"github.com/okian/matchloop/internal/domain/scoring"
	"github.com/okian/matchloop/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies records the arguments it receives and returns canned results.
type mockDependencies struct {
	err error

	scored      scoring.Pair
	recommended recommend.Options
	inline      *model.ClientProfile
	force       bool
	learnStatus string
	months      int
	window      int
	limit       int
	inserted    bool
	provider    model.ProviderProfile
	client      model.ClientProfile
}

func (m *mockDependencies) Score(_ context.Context, pair scoring.Pair) (scoring.Result, error) {
	m.scored = pair
	return scoring.Result{ClientID: pair.ClientID, ProviderID: pair.ProviderID, TotalScore: 82.5}, m.err
}

func (m *mockDependencies) Recommend(_ context.Context, clientID string, opts recommend.Options) (recommend.RankedList, error) {
	m.recommended = opts
	return recommend.RankedList{ClientID: clientID}, m.err
}

func (m *mockDependencies) RecommendFor(_ context.Context, client model.ClientProfile, opts recommend.Options) (recommend.RankedList, error) {
	m.recommended = opts
	m.inline = &client
	return recommend.RankedList{ClientID: client.ID}, m.err
}

func (m *mockDependencies) RunLearningCycle(_ context.Context, force bool) (learning.Report, error) {
	m.force = force
	status := m.learnStatus
	if status == "" {
		status = learning.StatusSuccess
	}
	return learning.Report{Status: status}, m.err
}

func (m *mockDependencies) Weights(context.Context) ([]model.FactorWeight, error) {
	return scoring.DefaultWeights(time.Unix(0, 0)), m.err
}

func (m *mockDependencies) Forecast(_ context.Context, matchID string, months int) (forecast.Forecast, error) {
	m.months = months
	return forecast.Forecast{MatchID: matchID}, m.err
}

func (m *mockDependencies) Patterns(_ context.Context, matchID string, windowDays int) (patterns.Report, error) {
	m.window = windowDays
	return patterns.Report{MatchID: matchID}, m.err
}

func (m *mockDependencies) Optimize(_ context.Context, matchID string) (optimizer.Result, error) {
	return optimizer.Result{MatchID: matchID}, m.err
}

func (m *mockDependencies) ScorePerformance(_ context.Context, providerID string, windowDays int) (model.PerformanceSnapshot, error) {
	m.window = windowDays
	return model.PerformanceSnapshot{ProviderID: providerID}, m.err
}

func (m *mockDependencies) ProviderRank(_ context.Context, providerID string) (api.Standing, error) {
	return api.Standing{Entry: types.Entry{Rank: 2, ProviderID: providerID, Score: 71}, PeerCount: 5, Percentile: 75}, m.err
}

func (m *mockDependencies) Leaderboard(_ context.Context, limit int) ([]types.Entry, error) {
	m.limit = limit
	return []types.Entry{{Rank: 1, ProviderID: "p-1", Score: 90}}, m.err
}

func (m *mockDependencies) RecordOutcome(_ context.Context, o model.MatchOutcome) (model.MatchOutcome, error) {
	return o, m.err
}

func (m *mockDependencies) AppendInteraction(context.Context, model.Interaction) (bool, error) {
	return m.inserted, m.err
}

func (m *mockDependencies) AppendMilestone(context.Context, model.Milestone) (bool, error) {
	return m.inserted, m.err
}

func (m *mockDependencies) RecentEvents(n int) []model.Event {
	m.limit = n
	return []model.Event{{ID: "e-1", Type: model.EventOutcomeRecorded, MatchID: "m-1"}}
}

func (m *mockDependencies) UpsertProvider(_ context.Context, p model.ProviderProfile) error {
	m.provider = p
	return m.err
}

func (m *mockDependencies) UpsertClient(_ context.Context, c model.ClientProfile) error {
	m.client = c
	return m.err
}

func (m *mockDependencies) Stats(context.Context) (types.Stats, error) {
	return types.Stats{Outcomes: 3, Weights: map[string]float64{}}, m.err
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorBody(w *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
	return body
}

func TestServer_Routes(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDependencies{inserted: true}
		h := api.NewServer(deps).Handler(context.Background())

		Convey("Then health serves Prometheus metrics", func() {
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are returned as JSON", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(w.Body.String(), ShouldContainSubstring, `"outcomes":3`)
		})

		Convey("When scoring a pair", func() {
			w := do(h, http.MethodPost, "/v1/score", `{"client_id":"c-1","provider_id":"p-1"}`)

			Convey("Then the ids reach the service and the result is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.scored.ClientID, ShouldEqual, "c-1")
				So(deps.scored.ProviderID, ShouldEqual, "p-1")
				So(deps.scored.Client, ShouldBeNil)
				So(w.Body.String(), ShouldContainSubstring, `"total_score":82.5`)
			})
		})

		Convey("When scoring an inline client against a stored provider", func() {
			w := do(h, http.MethodPost, "/v1/score", `{"client":{"id":"prospect","industry":"retail","province":"BC"},"provider_id":"p-1"}`)

			Convey("Then the inline profile reaches the service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.scored.Client, ShouldNotBeNil)
				So(deps.scored.Client.ID, ShouldEqual, "prospect")
				So(deps.scored.Client.Province, ShouldEqual, "BC")
				So(deps.scored.ProviderID, ShouldEqual, "p-1")
				So(deps.scored.Provider, ShouldBeNil)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(h, http.MethodPost, "/v1/score", `{nope`)

			Convey("Then a bad request is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorBody(w)["code"], ShouldEqual, "bad_request")
			})
		})

		Convey("When requesting recommendations", func() {
			w := do(h, http.MethodPost, "/v1/recommendations", `{"client_id":"c-1","limit":5,"min_score":40,"provider_ids":["p-1"],"bypass_cache":true}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.recommended.Limit, ShouldEqual, 5)
			So(deps.recommended.MinScore, ShouldEqual, 40)
			So(deps.recommended.ProviderIDs, ShouldResemble, []string{"p-1"})
			So(deps.recommended.BypassCache, ShouldBeTrue)
			So(deps.inline, ShouldBeNil)
		})

		Convey("When requesting recommendations for an inline client", func() {
			w := do(h, http.MethodPost, "/v1/recommendations", `{"client_id":"prospect","client":{"industry":"retail","province":"BC"},"limit":3}`)

			Convey("Then the profile is ranked without a stored lookup", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.inline, ShouldNotBeNil)
				So(deps.inline.ID, ShouldEqual, "prospect")
				So(deps.inline.Industry, ShouldEqual, "retail")
				So(deps.recommended.Limit, ShouldEqual, 3)
				So(w.Body.String(), ShouldContainSubstring, `"client_id":"prospect"`)
			})
		})

		Convey("When the inline client id disagrees with client_id", func() {
			w := do(h, http.MethodPost, "/v1/recommendations", `{"client_id":"c-1","client":{"id":"c-2"}}`)

			Convey("Then a bad request is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.inline, ShouldBeNil)
			})
		})

		Convey("When running a forced learning cycle", func() {
			w := do(h, http.MethodPost, "/v1/learning/run?force=true", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.force, ShouldBeTrue)
		})

		Convey("When force is not a boolean", func() {
			w := do(h, http.MethodPost, "/v1/learning/run?force=maybe", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a learning cycle is already running", func() {
			deps.learnStatus = learning.StatusSkipped
			w := do(h, http.MethodPost, "/v1/learning/run", "")
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(deps.force, ShouldBeFalse)
		})

		Convey("Then the weights are listed", func() {
			w := do(h, http.MethodGet, "/v1/weights", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var ws []model.FactorWeight
			So(json.Unmarshal(w.Body.Bytes(), &ws), ShouldBeNil)
			So(ws, ShouldHaveLength, len(scoring.Factors))
		})

		Convey("Then match analyses pass their query parameters", func() {
			So(do(h, http.MethodGet, "/v1/matches/m-1/forecast?months=6", "").Code, ShouldEqual, http.StatusOK)
			So(deps.months, ShouldEqual, 6)
			So(do(h, http.MethodGet, "/v1/matches/m-1/patterns?window_days=14", "").Code, ShouldEqual, http.StatusOK)
			So(deps.window, ShouldEqual, 14)
			w := do(h, http.MethodGet, "/v1/matches/m-1/optimization", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"match_id":"m-1"`)
		})

		Convey("When months is not an integer", func() {
			w := do(h, http.MethodGet, "/v1/matches/m-1/forecast?months=six", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then provider performance and rank are served", func() {
			So(do(h, http.MethodGet, "/v1/providers/p-1/performance?window_days=30", "").Code, ShouldEqual, http.StatusOK)
			So(deps.window, ShouldEqual, 30)
			w := do(h, http.MethodGet, "/v1/providers/p-1/rank", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"peer_count":5`)
		})

		Convey("Then the leaderboard defaults its limit", func() {
			So(do(h, http.MethodGet, "/v1/leaderboard", "").Code, ShouldEqual, http.StatusOK)
			So(deps.limit, ShouldEqual, 10)
			So(do(h, http.MethodGet, "/v1/leaderboard?limit=25", "").Code, ShouldEqual, http.StatusOK)
			So(deps.limit, ShouldEqual, 25)
			So(do(h, http.MethodGet, "/v1/leaderboard?limit=x", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then recent events are listed", func() {
			w := do(h, http.MethodGet, "/v1/events", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.limit, ShouldEqual, 20)
			So(w.Body.String(), ShouldContainSubstring, `"outcome_recorded"`)
			So(do(h, http.MethodGet, "/v1/events?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a profile is put without a body id", func() {
			w := do(h, http.MethodPut, "/v1/providers/p-9", `{"province":"ON"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.provider.ID, ShouldEqual, "p-9")

			w = do(h, http.MethodPut, "/v1/clients/c-9", `{"industry":"retail"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.client.ID, ShouldEqual, "c-9")
		})

		Convey("When the body id disagrees with the path", func() {
			w := do(h, http.MethodPut, "/v1/providers/p-9", `{"id":"p-1"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When an outcome is posted", func() {
			w := do(h, http.MethodPost, "/v1/outcomes", `{"match_id":"m-1","provider_id":"p-1","client_id":"c-1","partnership_formed":true}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"partnership_formed":true`)
		})

		Convey("When an interaction is new", func() {
			w := do(h, http.MethodPost, "/v1/interactions", `{"id":"i-1","match_id":"m-1"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)
			So(w.Body.String(), ShouldContainSubstring, `"duplicate":false`)
		})

		Convey("When a milestone was already applied", func() {
			deps.inserted = false
			w := do(h, http.MethodPost, "/v1/milestones", `{"id":"ms-1","match_id":"m-1"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
		})

		Convey("When the route does not exist", func() {
			So(do(h, http.MethodGet, "/v1/nope", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServer_Errors(t *testing.T) {
	Convey("Given dependencies that fail", t, func() {
		deps := &mockDependencies{}
		h := api.NewServer(deps).Handler(context.Background())

		cases := []struct {
			name      string
			err       error
			status    int
			code      string
			retryable bool
		}{
			{"validation", fault.Validation("score", "client id is required"), http.StatusBadRequest, "validation", false},
			{"not found", fault.NotFound("get_client", "client", "c-1"), http.StatusNotFound, "not_found", false},
			{"store", fault.Store("get_weights", errors.New("connection refused")), http.StatusServiceUnavailable, "store", true},
			{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal_error", false},
			{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout", false},
		}
		for _, tc := range cases {
			Convey("When the service returns a "+tc.name+" error", func() {
				deps.err = tc.err
				w := do(h, http.MethodPost, "/v1/score", `{"client_id":"c-1","provider_id":"p-1"}`)

				Convey("Then it maps to the matching status and body", func() {
					So(w.Code, ShouldEqual, tc.status)
					body := errorBody(w)
					So(body["code"], ShouldEqual, tc.code)
					So(body["retryable"], ShouldEqual, tc.retryable)
					So(body["message"], ShouldNotBeBlank)
				})
			})
		}

		Convey("Then internal error details are not leaked", func() {
			deps.err = errors.New("secret dsn in message")
			w := do(h, http.MethodGet, "/v1/weights", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldNotContainSubstring, "secret")
		})
	})
}
