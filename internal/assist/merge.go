package assist

import (
	"github.com/JDelott/auctionfans-sub000/internal/form"
	"github.com/JDelott/auctionfans-sub000/internal/session"
)

// applyUpdates diffs validated updates against the submitted form snapshot
// and produces the field changes worth recording. A value identical to
// what the form already holds is not a change. Itemized updates supply the
// reason for their field; flat updates get a generic one.
func (e *Engine) applyUpdates(snapshot form.Snapshot, updates map[string]string, itemized []FieldUpdate) map[string]session.FieldChange {
	reasons := make(map[string]string, len(itemized))
	for _, fu := range itemized {
		reasons[fu.Field] = fu.Reason
	}

	changes := make(map[string]session.FieldChange)
	for field, value := range updates {
		from := snapshot[field]
		if from == value {
			continue
		}
		reason := reasons[field]
		if reason == "" {
			reason = "inferred from description"
		}
		changes[field] = session.FieldChange{From: from, To: value, Reason: reason}
	}
	return changes
}
