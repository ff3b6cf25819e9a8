package system

import (
	"github.com/google/uuid"
)

// NewRunID returns a unique identifier for one training run, used to
// correlate log lines and progression records.
func NewRunID() string {
	return uuid.NewString()
}
