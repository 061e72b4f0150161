package jobs

type CreateJobPayload struct {
	Type        string              `json:"type" validate:"required,oneof=sync"`
	Data        *JobSyncDataPayload `json:"data" validate:"required"`
	ServerUUID  string              `json:"server_uuid" validate:"required"`
	LibraryName string              `json:"library_name" validate:"required"`
}

type JobSyncDataPayload struct {
	Incremental bool `json:"incremental"`
}

type ListJobsQuery struct {
	Limit       int      `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=100"`
	Offset      int      `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Status      []string `query:"status" json:"status,omitempty" validate:"dive,oneof=pending in_progress completed failed"`
	Type        *string  `query:"type" json:"type,omitempty" validate:"omitempty,oneof=sync"`
	ServerUUID  *string  `query:"server_uuid" json:"server_uuid,omitempty"`
	LibraryName *string  `query:"library_name" json:"library_name,omitempty" validate:"required_with=ServerUUID"`
}
