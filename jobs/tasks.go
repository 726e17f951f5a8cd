package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/spmonitor/dashboard/internal/downloads"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDownloadsRefresh re-fetches a download snapshot into the shared cache.
	TaskDownloadsRefresh = "downloads:refresh"
)

// RefreshPayload names the connection to refresh. An empty payload refreshes the
// worker's default connection.
type RefreshPayload struct {
	Connection *downloads.Connection `json:"connection,omitempty"`
}

// NewRefreshTask constructs a refresh task for conn. A nil conn targets the default.
func NewRefreshTask(conn *downloads.Connection) (*asynq.Task, error) {
	data, err := json.Marshal(RefreshPayload{Connection: conn})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDownloadsRefresh, data), nil
}
