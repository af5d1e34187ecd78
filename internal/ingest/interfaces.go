package ingest

import "context"

// Reconnector re-establishes the persistence connection after a loss. The
// pipeline invokes it at most once per failed upsert before giving up.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}
