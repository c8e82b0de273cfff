package models

// Watermark records how far row rewriting got for one table in one run.
// Chunks below NextChunk are complete and durable.
type Watermark struct {
	RunFingerprint string `json:"run_fingerprint"`
	Table          string `json:"table"`
	NextChunk      int    `json:"next_chunk"`
	RowsWritten    int64  `json:"rows_written"`
}
