package export

import (
	"context"
	"io"

	"github.com/voxlab/callflow/internal/lifecycle"
	"github.com/voxlab/callflow/internal/types"
)

// Import reads a document and saves it through the lifecycle manager,
// either into a draft (changeSetID set) or straight into the published
// scope. The flow is validated before any row is written; a document that
// fails validation leaves the database untouched and the returned result
// explains why.
func Import(ctx context.Context, m *lifecycle.Manager, r io.Reader, format Format, changeSetID string, prune bool, actor string) (*types.ValidationResult, error) {
	doc, err := Decode(r, format)
	if err != nil {
		return nil, err
	}
	snap, err := doc.Snapshot()
	if err != nil {
		return nil, err
	}
	return m.Save(ctx, doc.RoutingID, changeSetID, snap, prune, actor)
}
