package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJob() Job {
	return Job{
		ReportID:    "report-1",
		TaskID:      "task-1",
		AlgorithmID: "fairness_metrics",
		TestArguments: map[string]any{
			"threshold": 0.8,
		},
	}
}

func TestDispatchPostsJob(t *testing.T) {
	var got Job
	var contentType, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, time.Second)
	require.NoError(t, d.Dispatch(context.Background(), sampleJob()))

	assert.Equal(t, "/jobs", path)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "report-1", got.ReportID)
	assert.Equal(t, "task-1", got.TaskID)
	assert.Equal(t, "fairness_metrics", got.AlgorithmID)
	assert.Equal(t, 0.8, got.TestArguments["threshold"])
}

func TestDispatchRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, time.Second)
	err := d.Dispatch(context.Background(), sampleJob())
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, "task-1", dispatchErr.TaskID)
	assert.Equal(t, http.StatusServiceUnavailable, dispatchErr.StatusCode)
	assert.Contains(t, dispatchErr.Message, "queue full")
}

func TestDispatchUnreachableWorker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // worker is down

	d := NewHTTPDispatcher(srv.URL, time.Second)
	err := d.Dispatch(context.Background(), sampleJob())
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Zero(t, dispatchErr.StatusCode)
}

func TestDispatchHonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := NewHTTPDispatcher(srv.URL, 10*time.Second)
	err := d.Dispatch(ctx, sampleJob())
	require.Error(t, err)
}

func TestTaskUpdateOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(TaskUpdate{Status: "Running"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Running"}`, string(data))
}
