package routing

// Decision is the output of the router for one utterance.
type Decision struct {
	Flow  string `json:"flow"`
	Stage Stage  `json:"stage"`

	// Reason is for logs and metrics only.
	Reason string `json:"reason,omitempty"`
}

type Stage string

const (
	StageKeyword    Stage = "keyword"
	StageClassifier Stage = "classifier"
	StageDefault    Stage = "default"
)
