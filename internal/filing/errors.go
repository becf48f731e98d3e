package filing

import "errors"

var (
	// ErrNoFiling is returned when a ticker is unknown to the filings index
	// or has no qualifying disclosure document. Terminal for the run.
	ErrNoFiling = errors.New("no qualifying filing found")

	// ErrDownload is returned on network failure, non-success status, or an
	// oversized payload. Retryable.
	ErrDownload = errors.New("filing download failed")

	// ErrClean is returned when raw content cannot be reduced to any text at
	// all. Terminal for the run.
	ErrClean = errors.New("filing markup not parseable")
)
