package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthside/leadscore/internal/bucket"
	"github.com/hearthside/leadscore/internal/scoring"
)

type handlerFixture struct {
	router chi.Router
	mock   sqlmock.Sqlmock
	source *fakeSource
	sink   *fakeSink
	orch   *Orchestrator
}

func newHandlerFixture(t *testing.T, weightsErr error) *handlerFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	source := &fakeSource{contacts: []scoring.Contact{testContact(scoring.StageLead, 10, 2)}}
	sink := &fakeSink{}
	orch := New(source, sink, nil, nil, zerolog.Nop(), Config{Workers: 2})

	h := NewHandlers(NewStore(db), orch, nil,
		func() (*scoring.ScoringWeights, error) {
			if weightsErr != nil {
				return nil, weightsErr
			}
			return scoring.DefaultWeights(), nil
		},
		func() ([]bucket.Definition, error) {
			return bucket.DefaultDefinitions(), nil
		})

	r := chi.NewRouter()
	h.Routes(r)
	return &handlerFixture{router: r, mock: mock, source: source, sink: sink, orch: orch}
}

func TestHandleTriggerRunAccepted(t *testing.T) {
	fx := newHandlerFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "started", body["status"])

	// The run proceeds after the response is written.
	require.Eventually(t, func() bool { return fx.sink.commits() == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestHandleTriggerRunInvalidConfig(t *testing.T) {
	fx := newHandlerFixture(t, errors.New("weights \"broken\": weight is negative"))

	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 0, fx.source.calls())
}

func TestHandleTriggerRunConflict(t *testing.T) {
	fx := newHandlerFixture(t, nil)
	gate := make(chan struct{})
	fx.source.gate = gate

	done := make(chan struct{})
	go func() {
		defer close(done)
		fx.orch.Execute(context.Background(), scoring.DefaultWeights(), bucket.DefaultDefinitions())
	}()
	require.Eventually(t, func() bool { return fx.orch.Status() == scoring.RunRunning },
		2*time.Second, 5*time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	close(gate)
	<-done
}

func TestHandleGetRunBadID(t *testing.T) {
	fx := newHandlerFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetRunNotFound(t *testing.T) {
	fx := newHandlerFixture(t, nil)
	runID := uuid.New()

	fx.mock.ExpectQuery(regexp.QuoteMeta("FROM scoring_runs WHERE id = $1")).
		WithArgs(runID).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+runID.String(), nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListRuns(t *testing.T) {
	fx := newHandlerFixture(t, nil)
	started := time.Now().UTC()

	fx.mock.ExpectQuery(regexp.QuoteMeta("FROM scoring_runs ORDER BY started_at DESC")).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "status", "started_at", "completed_at", "weights_version",
				"contact_count", "bucket_counts", "failures"}).
			AddRow(uuid.New(), "completed", started, started.Add(time.Minute),
				"default-v1", 50, []byte(`{"attempted":50}`), []byte(`[]`)))

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int                  `json:"count"`
		Runs  []scoring.ScoringRun `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Runs, 1)
	assert.Equal(t, 50, body.Runs[0].BucketCounts["attempted"])
}

func TestHandleContactScores(t *testing.T) {
	fx := newHandlerFixture(t, nil)
	contactID := uuid.New()
	now := time.Now().UTC()

	fx.mock.ExpectQuery(regexp.QuoteMeta("FROM contact_scores_latest WHERE contact_id = $1")).
		WithArgs(contactID).
		WillReturnRows(sqlmock.NewRows(
			[]string{"contact_id", "run_id", "heat", "value", "relationship", "priority",
				"bucket_id", "weights_version", "computed_at"}).
			AddRow(contactID, uuid.New(), 72.0, 30.0, 18.0, 66.0,
				"hot-now", "default-v1", now))
	fx.mock.ExpectQuery(regexp.QuoteMeta("FROM score_snapshots WHERE contact_id = $1")).
		WillReturnRows(sqlmock.NewRows(
			[]string{"contact_id", "run_id", "heat", "value", "relationship", "priority",
				"components", "bucket_id", "weights_version", "computed_at"}).
			AddRow(contactID, uuid.New(), 72.0, 30.0, 18.0, 66.0,
				[]byte(`{}`), "hot-now", "default-v1", now))

	req := httptest.NewRequest(http.MethodGet, "/api/contacts/"+contactID.String()+"/scores", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Latest  scoring.ScoreSnapshot   `json:"latest"`
		History []scoring.ScoreSnapshot `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hot-now", body.Latest.BucketID)
	assert.Len(t, body.History, 1)
}

func TestHandleContactScoresNeverScored(t *testing.T) {
	fx := newHandlerFixture(t, nil)
	contactID := uuid.New()

	fx.mock.ExpectQuery(regexp.QuoteMeta("FROM contact_scores_latest WHERE contact_id = $1")).
		WithArgs(contactID).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/api/contacts/"+contactID.String()+"/scores", nil)
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
