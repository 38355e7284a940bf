package models

// ProgressUpdate is pushed to websocket clients whenever an import job
// changes state or checkpoints its progress.
type ProgressUpdate struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
	ItemID  int64  `json:"item_id"`
	Status  string `json:"status"`
	Row     int    `json:"row,omitempty"`
	Done    bool   `json:"done"`
}
