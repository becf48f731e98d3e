package repository

import "errors"

// ErrStorage indicates a connection or constraint failure in the relational
// store. A failed write aborts the ingestion run for that ticker; committed
// data is never touched.
var ErrStorage = errors.New("storage operation failed")
