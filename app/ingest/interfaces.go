package ingest

import (
	"context"

	"github.com/psp-tools/group-archive/app/source"
)

// SourceClient is the slice of the upstream client the sync drivers need.
type SourceClient interface {
	FetchPage(ctx context.Context, direction source.Direction, pageToken *int64, limit int) (*source.Page, error)
}
