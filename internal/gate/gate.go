package gate

import "github.com/linuxfirst/docscan/internal/models"

// Decision is the change-detection verdict for one unit of work.
type Decision string

const (
	// DecisionNew marks a unit never processed before.
	DecisionNew Decision = "new"
	// DecisionChanged marks a unit whose content differs from the last run.
	DecisionChanged Decision = "changed"
	// DecisionUnchanged marks a unit identical to the last run; extraction
	// and scoring are skipped and prior results stand.
	DecisionUnchanged Decision = "unchanged"
)

// ShouldProcess reports whether the unit needs extraction and scoring.
func (d Decision) ShouldProcess() bool {
	return d != DecisionUnchanged
}

// Evaluate compares a fetched unit against its processing history.
//
// The revision marker (ETag, blob SHA) is checked before the content
// fingerprint so sources that expose one can short-circuit without hashing.
// Force bypasses both checks but still reports New for first-seen units so
// callers count them correctly.
func Evaluate(history *models.FileProcessingHistory, fingerprint, revisionMarker string, force bool) Decision {
	if history == nil {
		return DecisionNew
	}
	if force {
		return DecisionChanged
	}

	if revisionMarker != "" && history.RevisionMarker != "" && revisionMarker == history.RevisionMarker {
		return DecisionUnchanged
	}
	if fingerprint != "" && fingerprint == history.ContentHash {
		return DecisionUnchanged
	}
	return DecisionChanged
}
