// Package annotate records destination rewrites in item descriptions.
package annotate

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"evalgo.org/dataflowmigrator/internal/client"
	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/helpers"
)

type itemProperties struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
}

// Annotator appends migration markers to dataflow descriptions.
type Annotator struct {
	api client.Requester
	log *logrus.Entry
}

// NewAnnotator creates an annotator.
func NewAnnotator(api client.Requester, log *logrus.Entry) *Annotator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Annotator{api: api, log: log}
}

// Annotate reads the current description of an item, replaces any earlier
// marker with marker and writes the result back. It returns the new
// description.
func (a *Annotator) Annotate(ctx context.Context, environmentID, itemID string, marker domain.Marker) (string, error) {
	itemPath := helpers.JoinPath(helpers.PathWorkspaces, environmentID, helpers.PathDataflows, itemID)

	resp, err := a.api.Get(ctx, itemPath)
	if err != nil {
		return "", domain.NewOperationError("get-description", itemID, err)
	}
	if !resp.OK() {
		return "", domain.NewStatusError("get-description", resp.StatusCode, resp.Body)
	}
	var props itemProperties
	if err := resp.DecodeJSON(&props); err != nil {
		return "", domain.NewOperationError("get-description", itemID, err)
	}

	description := ApplyMarker(props.Description, marker)

	resp, err = a.api.Patch(ctx, itemPath, map[string]string{"description": description})
	if err != nil {
		return "", domain.NewOperationError("update-description", itemID, err)
	}
	if !resp.OK() {
		return "", domain.NewStatusError("update-description", resp.StatusCode, resp.Body)
	}

	a.log.WithFields(logrus.Fields{"item_id": itemID, "marker": marker.Text}).Debug("Description annotated")
	return description, nil
}

// ApplyMarker returns description with marker appended. When the marker's
// stable prefix already occurs, everything from that point on (and the
// separator before it) is dropped first, so the marker never repeats.
func ApplyMarker(description string, marker domain.Marker) string {
	base := description
	if prefix := marker.StablePrefix(); prefix != "" {
		if pos := strings.Index(base, prefix); pos >= 0 {
			base = strings.TrimSuffix(base[:pos], helpers.DescriptionSeparator)
		}
	}
	if base == "" {
		return marker.Text
	}
	return base + helpers.DescriptionSeparator + marker.Text
}
