package pipeline

import "github.com/nurbolat/kassa/internal/clarify"

// Status classifies what a submission or reply produced.
type Status int

const (
	// StatusCommitted means a transaction was written.
	StatusCommitted Status = iota
	// StatusNeedsReply means a clarification question is pending.
	StatusNeedsReply
	// StatusAbandoned means the session ended without a commit.
	StatusAbandoned
	// StatusFailed means an infrastructure fault stopped the run.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCommitted:
		return "committed"
	case StatusNeedsReply:
		return "needs_reply"
	case StatusAbandoned:
		return "abandoned"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result handed back to the caller after each submission
// or reply.
type Outcome struct {
	Status        Status
	TransactionID string         // set when Status is StatusCommitted
	Prompt        clarify.Prompt // set when Status is StatusNeedsReply
	Reason        string         // set when Status is StatusAbandoned or StatusFailed
}

// Committed builds the terminal success outcome.
func Committed(transactionID string) Outcome {
	return Outcome{Status: StatusCommitted, TransactionID: transactionID}
}

// NeedsReply pauses the run on a clarification question.
func NeedsReply(prompt clarify.Prompt) Outcome {
	return Outcome{Status: StatusNeedsReply, Prompt: prompt}
}

// Abandoned builds the terminal no-commit outcome.
func Abandoned(reason string) Outcome {
	return Outcome{Status: StatusAbandoned, Reason: reason}
}

// Failed reports an infrastructure fault. Any open session survives so
// the user can retry.
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}
