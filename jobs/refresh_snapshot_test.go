package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spmonitor/dashboard/internal/downloads"
	jobmetrics "github.com/spmonitor/dashboard/internal/jobs"
)

type stubRefresher struct {
	calls []downloads.Connection
	snap  downloads.Snapshot
	err   error
}

func (s *stubRefresher) Refresh(_ context.Context, conn downloads.Connection) (downloads.Snapshot, error) {
	s.calls = append(s.calls, conn)
	return s.snap, s.err
}

var defaultConn = downloads.Connection{StorageAccount: "spexports", Container: "data", FileName: "latest.json"}

func newTestJob(refresher Refresher) *RefreshSnapshotJob {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRefreshSnapshotJob(refresher, defaultConn, logger, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestRefreshUsesDefaultConnection(t *testing.T) {
	refresher := &stubRefresher{snap: downloads.Snapshot{Digest: "abc", Dataset: downloads.Dataset{Downloads: make([]downloads.Record, 3)}}}
	job := newTestJob(refresher)

	task, err := NewRefreshTask(nil)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, refresher.calls, 1)
	assert.Equal(t, defaultConn, refresher.calls[0])
}

func TestRefreshUsesPayloadConnection(t *testing.T) {
	refresher := &stubRefresher{}
	job := newTestJob(refresher)

	conn := downloads.Connection{StorageAccount: "other", Container: "exports", FileName: " /daily.json "}
	task, err := NewRefreshTask(&conn)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, refresher.calls, 1)
	assert.Equal(t, "daily.json", refresher.calls[0].FileName)
	assert.Equal(t, "other", refresher.calls[0].StorageAccount)
}

func TestRefreshInvalidConnectionSkipsRetry(t *testing.T) {
	refresher := &stubRefresher{}
	job := newTestJob(refresher)

	task, err := NewRefreshTask(&downloads.Connection{StorageAccount: "", Container: "data", FileName: "x.json"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	var cfgErr *downloads.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, refresher.calls)
}

func TestRefreshBucketCheckAllowsMissingAccount(t *testing.T) {
	refresher := &stubRefresher{}
	job := newTestJob(refresher)
	job.Check = downloads.Connection.ValidateBucketObject

	task, err := NewRefreshTask(&downloads.Connection{Container: "exports", FileName: "x.json"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, refresher.calls, 1)
	assert.Equal(t, "exports", refresher.calls[0].Container)
}

func TestRefreshMalformedPayloadSkipsRetry(t *testing.T) {
	job := newTestJob(&stubRefresher{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskDownloadsRefresh, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRefreshFailureIsRetried(t *testing.T) {
	loadErr := &downloads.DataLoadError{URL: "https://spexports.blob.core.windows.net/data/latest.json", Status: 503, Message: "unexpected status"}
	job := newTestJob(&stubRefresher{err: loadErr})

	task, err := NewRefreshTask(nil)
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	var dataErr *downloads.DataLoadError
	assert.ErrorAs(t, err, &dataErr)
}

func TestRefreshTaskPayload(t *testing.T) {
	task, err := NewRefreshTask(&defaultConn)
	require.NoError(t, err)
	assert.Equal(t, TaskDownloadsRefresh, task.Type())

	var payload map[string]map[string]string
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "spexports", payload["connection"]["storageAccountName"])

	empty, err := NewRefreshTask(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(empty.Payload()))
}

func TestNilJob(t *testing.T) {
	var job *RefreshSnapshotJob
	assert.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskDownloadsRefresh, nil)))
}
