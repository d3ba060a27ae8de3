package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudspool/cloudspool/pkg/blob/memory"
	"github.com/cloudspool/cloudspool/pkg/settings"
	"github.com/cloudspool/cloudspool/pkg/sources"
	"github.com/cloudspool/cloudspool/pkg/store"
	"github.com/cloudspool/cloudspool/pkg/store/models"
)

type apiTestEnv struct {
	server *httptest.Server
	store  *store.Store
}

func newAPITestEnv(t *testing.T) *apiTestEnv {
	t.Helper()

	st, err := store.New(&store.Config{
		Type: store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{
			Path: ":memory:",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	settingsSvc := settings.New(st)
	t.Cleanup(settingsSvc.Close)
	require.NoError(t, settingsSvc.Seed(context.Background(), settings.Defaults()))

	router := NewRouter(st, sources.New(st), settingsSvc, memory.New())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiTestEnv{server: server, store: st}
}

func (e *apiTestEnv) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeData(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "ok", envelope.Status)
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newAPITestEnv(t)

	t.Run("liveness", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("readiness", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/health/ready", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var envelope struct {
			Status string            `json:"status"`
			Data   map[string]string `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
		assert.Equal(t, "healthy", envelope.Status)
		assert.Equal(t, "ok", envelope.Data["database"])
		assert.Equal(t, "ok", envelope.Data["blob"])
	})

	t.Run("metrics exposed", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/metrics", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestSourcesAPI(t *testing.T) {
	env := newAPITestEnv(t)

	payload := map[string]any{
		"name":         "inbox",
		"folder_path":  "/var/spool/inbox",
		"file_pattern": "*.csv",
	}

	t.Run("create", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/api/v1/sources", payload)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var src models.Source
		decodeData(t, resp, &src)
		assert.Equal(t, "inbox", src.Name)
		assert.True(t, src.Enabled)
	})

	t.Run("duplicate conflicts", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/api/v1/sources", payload)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("invalid payload rejected", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/api/v1/sources", map[string]any{
			"name":        "rel",
			"folder_path": "not/absolute",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("get", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/api/v1/sources/inbox", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var src models.Source
		decodeData(t, resp, &src)
		assert.Equal(t, "/var/spool/inbox", src.FolderPath)
	})

	t.Run("get unknown is 404", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/api/v1/sources/ghost", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("update flags refresh", func(t *testing.T) {
		resp := env.request(t, http.MethodPut, "/api/v1/sources/inbox", map[string]any{
			"file_pattern": "*.json",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var src models.Source
		decodeData(t, resp, &src)
		assert.Equal(t, "*.json", src.FilePattern)
		assert.True(t, src.NeedsRefresh)
	})

	t.Run("refresh action", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/api/v1/sources/inbox/refresh", nil)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("disable via update", func(t *testing.T) {
		resp := env.request(t, http.MethodPut, "/api/v1/sources/inbox", map[string]any{
			"enabled": false,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var src models.Source
		decodeData(t, resp, &src)
		assert.False(t, src.Enabled)
	})

	t.Run("list", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/api/v1/sources", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list []models.Source
		decodeData(t, resp, &list)
		assert.Len(t, list, 1)
	})

	t.Run("delete", func(t *testing.T) {
		resp := env.request(t, http.MethodDelete, "/api/v1/sources/inbox", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = env.request(t, http.MethodDelete, "/api/v1/sources/inbox", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestSettingsAPI(t *testing.T) {
	env := newAPITestEnv(t)

	t.Run("list includes seeded defaults", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/api/v1/settings", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var list []models.Setting
		decodeData(t, resp, &list)
		assert.GreaterOrEqual(t, len(list), len(settings.Defaults()))
	})

	t.Run("put then get", func(t *testing.T) {
		resp := env.request(t, http.MethodPut, "/api/v1/settings/Upload.MaxRetries", map[string]any{
			"value": "8",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.request(t, http.MethodGet, "/api/v1/settings/Upload.MaxRetries", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var value string
		decodeData(t, resp, &value)
		assert.Equal(t, "8", value)
	})

	t.Run("unknown key is 404", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/api/v1/settings/No.Such.Key", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestQueueAPI(t *testing.T) {
	env := newAPITestEnv(t)
	ctx := context.Background()

	// Seed one failed and one pending job directly.
	failed := &models.Job{SourceName: "inbox", LocalPath: "/spool/f.bin", TargetObject: "f.bin"}
	require.NoError(t, env.store.EnqueueJob(ctx, failed))
	claimed, err := env.store.ClaimJobs(ctx, time.Now().Add(time.Second), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, env.store.MarkJobFailed(ctx, failed.ID, "backend down", time.Now()))

	pending := &models.Job{SourceName: "inbox", LocalPath: "/spool/p.bin", TargetObject: "p.bin"}
	require.NoError(t, env.store.EnqueueJob(ctx, pending))

	t.Run("list all", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/api/v1/queue", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var jobs []models.Job
		decodeData(t, resp, &jobs)
		assert.Len(t, jobs, 2)
	})

	t.Run("filter by state", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/api/v1/queue?state=failed", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var jobs []models.Job
		decodeData(t, resp, &jobs)
		require.Len(t, jobs, 1)
		assert.Equal(t, failed.ID, jobs[0].ID)
	})

	t.Run("unknown state rejected", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/api/v1/queue?state=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("stats", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/api/v1/queue/stats", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var counts map[string]int64
		decodeData(t, resp, &counts)
		assert.Equal(t, int64(1), counts["failed"])
		assert.Equal(t, int64(1), counts["pending"])
	})

	t.Run("get by id", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, fmt.Sprintf("/api/v1/queue/%d", failed.ID), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var job models.Job
		decodeData(t, resp, &job)
		assert.Equal(t, string(models.JobFailed), string(job.State))
	})

	t.Run("bad id rejected", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/api/v1/queue/notanumber", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("retry failed job", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, fmt.Sprintf("/api/v1/queue/%d/retry", failed.ID), nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		job, err := env.store.GetJob(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobPending, job.State)
		assert.Equal(t, 0, job.Attempts)
	})

	t.Run("retry non-failed job is 404", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, fmt.Sprintf("/api/v1/queue/%d/retry", pending.ID), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
