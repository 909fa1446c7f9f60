package judge

// Verdict is the three-way bucket every judge outcome is mapped into.
type Verdict string

const (
	VerdictAccepted      Verdict = "ACCEPTED"
	VerdictRejected      Verdict = "REJECTED"
	VerdictIndeterminate Verdict = "INDETERMINATE"
)

// Judge0 status ids
const (
	StatusInQueue      = 1
	StatusProcessing   = 2
	StatusAccepted     = 3
	StatusWrongAnswer  = 4
	StatusTimeLimit    = 5
	StatusCompileError = 6
)

// DefaultRejectedStatusIDs are the deterministic "wrong output" codes.
var DefaultRejectedStatusIDs = []int{StatusWrongAnswer}

// Classifier maps raw status ids into verdicts.
type Classifier struct {
	rejected map[int]struct{}
}

// NewClassifier builds a classifier. An empty rejected set falls back to DefaultRejectedStatusIDs.
func NewClassifier(rejected []int) Classifier {
	if len(rejected) == 0 {
		rejected = DefaultRejectedStatusIDs
	}
	set := make(map[int]struct{}, len(rejected))
	for _, id := range rejected {
		if id == StatusAccepted {
			continue
		}
		set[id] = struct{}{}
	}
	return Classifier{rejected: set}
}

// Classify returns ACCEPTED only for the accepted code and REJECTED only for the configured set.
// Everything else, including unknown and absent codes, is INDETERMINATE.
func (c Classifier) Classify(statusID int) Verdict {
	if statusID == StatusAccepted {
		return VerdictAccepted
	}
	if _, ok := c.rejected[statusID]; ok {
		return VerdictRejected
	}
	return VerdictIndeterminate
}
