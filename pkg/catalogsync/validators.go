package catalogsync

type SyncLibraryPayload struct {
	Incremental bool `json:"incremental"`
}
