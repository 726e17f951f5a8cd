package downloads

import (
	"errors"
	"fmt"
)

// ErrNoSnapshot indicates that no snapshot has been loaded for an endpoint yet.
var ErrNoSnapshot = errors.New("downloads: no snapshot loaded")

// DataLoadError reports a failed snapshot retrieval: transport failure, non-success
// status or an undecodable document.
type DataLoadError struct {
	URL     string
	Status  int
	Message string
	Err     error
}

func (e *DataLoadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("load %s: %s (status %d)", e.URL, e.Message, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.URL, e.Message)
}

func (e *DataLoadError) Unwrap() error {
	return e.Err
}

// UserMessage is the notification text shown on the dashboard.
func (e *DataLoadError) UserMessage() string {
	return "Failed to load data. Please check your configuration and network connection."
}

// ConfigurationError reports a connection setting that cannot form a valid endpoint.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsLoadFailure reports whether err came from fetching or configuring a snapshot.
func IsLoadFailure(err error) bool {
	var loadErr *DataLoadError
	var cfgErr *ConfigurationError
	return errors.As(err, &loadErr) || errors.As(err, &cfgErr)
}
