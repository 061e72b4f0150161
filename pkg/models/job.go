package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobTypeSync = "sync"
)

type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID          int         `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Type        string      `bun:",nullzero" json:"type"`
	Status      string      `bun:",nullzero" json:"status"`
	Data        string      `bun:",nullzero" json:"-"`
	DataParsed  interface{} `bun:"-" json:"data"`
	Progress    int         `json:"progress"`
	ProcessID   *string     `json:"process_id,omitempty"`
	ServerUUID  *string     `json:"server_uuid,omitempty"`
	LibraryName *string     `json:"library_name,omitempty"`
	Error       *string     `json:"error,omitempty"`
}

func (job *Job) UnmarshalData() error {
	switch job.Type {
	case JobTypeSync:
		job.DataParsed = &JobSyncData{}
	default:
		return errors.Errorf("unknown job type %q", job.Type)
	}

	err := json.Unmarshal([]byte(job.Data), job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

type JobSyncData struct {
	Incremental bool `json:"incremental"`
}
