package models

// BatchFailure describes one post that could not be embedded during a batch run
type BatchFailure struct {
	PostID int64  `json:"postId"`
	Reason string `json:"error"`
	Kind   string `json:"kind"`
}

// BatchResult summarises a best-effort batch embedding run.
// Successful follows the order of the input ids.
type BatchResult struct {
	Successful     []*PostEmbedding `json:"successful"`
	Failed         []BatchFailure   `json:"failed"`
	TotalProcessed int              `json:"totalProcessed"`
	SuccessCount   int              `json:"successCount"`
	FailureCount   int              `json:"failureCount"`
}
