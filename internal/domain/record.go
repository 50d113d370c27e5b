package domain

// Record kinds written by the tools.
const (
	RecordKindLead     = "lead"
	RecordKindQuestion = "question"
)

// Record is a persisted tool side effect: a visitor's contact details or a
// question the assistant could not answer.
type Record struct {
	PK        string
	SK        string
	Kind      string
	Email     string
	Name      string
	Notes     string
	Question  string
	CreatedAt string
	TTL       int64
}
