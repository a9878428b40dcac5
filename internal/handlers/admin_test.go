package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgu-oj/backend/internal/judge"
)

type fakeFleet struct {
	workers []judge.Worker
	err     error
}

func (f *fakeFleet) Snapshot(ctx context.Context) ([]judge.Worker, error) {
	return f.workers, f.err
}

func TestListJudgeServers(t *testing.T) {
	now := time.Now()
	fleet := &fakeFleet{workers: []judge.Worker{
		{ID: 1, ServiceURL: "http://w1", CPUCore: 2, TaskNumber: 1, LastHeartbeat: now},
		{ID: 2, ServiceURL: "http://w2", CPUCore: 4, TaskNumber: 0, LastHeartbeat: now.Add(-time.Minute)},
	}}

	rec := httptest.NewRecorder()
	ListJudgeServers(fleet)(rec, httptest.NewRequest(http.MethodGet, "/api/admin/judge_server", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Servers []struct {
			ID     int    `json:"id"`
			Status string `json:"status"`
		} `json:"servers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Servers, 2)
	assert.Equal(t, judge.StatusNormal, body.Servers[0].Status)
	assert.Equal(t, judge.StatusAbnormal, body.Servers[1].Status)
}

func TestListJudgeServers_Empty(t *testing.T) {
	rec := httptest.NewRecorder()
	ListJudgeServers(&fakeFleet{})(rec, httptest.NewRequest(http.MethodGet, "/api/admin/judge_server", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"servers":[]}`, rec.Body.String())
}

func TestListJudgeServers_QueryFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	ListJudgeServers(&fakeFleet{err: errors.New("db down")})(rec,
		httptest.NewRequest(http.MethodGet, "/api/admin/judge_server", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
