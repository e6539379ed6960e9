package replay

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/r3e-network/ai4all-coordinator/internal/domain"
)

// PayloadField extracts one field out of an event's payload by dotted path,
// without unmarshalling the payload into a concrete struct. Grounded on the
// teacher's gjson-based ad-hoc JSON field extraction (services/datafeeds,
// services/requests dispatcher); useful here for replay diagnostics that need
// to peek at one field of an arbitrary DAY_FINALIZED/SUBMISSION_PROCESSED
// payload without reconstructing its full Go type.
func PayloadField(event domain.DomainEvent, path string) (gjson.Result, error) {
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(raw, path), nil
}
