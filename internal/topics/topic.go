package topics

// Status tracks a topic through its lifecycle. Transitions are
// pending -> active -> done|failed; done and failed are terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Outcome is the terminal state a worker reports for a topic.
type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeFailed Outcome = "failed"
)

// Topic is one unit of research work. Text, ParentID and Depth are immutable
// after creation; only Status changes, and only through the Queue.
type Topic struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	ParentID string `json:"parent_id,omitempty"`
	Depth    int    `json:"depth"`
	Status   Status `json:"status"`
}

// IsRoot reports whether the topic was created during Planning.
func (t Topic) IsRoot() bool { return t.ParentID == "" }

// Child derives a sub-topic from t with the depth invariant applied.
func (t Topic) Child(id, text string) Topic {
	return Topic{
		ID:       id,
		Text:     text,
		ParentID: t.ID,
		Depth:    t.Depth + 1,
		Status:   StatusPending,
	}
}
