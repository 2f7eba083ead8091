package clarify

import (
	"time"

	"github.com/shopspring/decimal"
)

// Question identifies what the user is being asked.
type Question string

const (
	QuestionAmount    Question = "need_amount"
	QuestionCurrency  Question = "need_currency"
	QuestionCategory  Question = "need_category"
	QuestionDuplicate Question = "duplicate_decision"
)

// Prompt is a question to relay to the user, with optional suggested
// answers (category candidates, the raw detected amount, the id of a
// suspected duplicate).
type Prompt struct {
	Question    Question
	Suggestions []string
}

// Needs flags the clarifications a draft still requires.
type Needs struct {
	Amount    bool
	Currency  bool
	Category  bool
	Duplicate bool
}

// Next returns the highest-priority outstanding question. Amount comes
// first since every downstream stage depends on it, then currency,
// category, and finally the duplicate decision.
func (n Needs) Next() (Question, bool) {
	switch {
	case n.Amount:
		return QuestionAmount, true
	case n.Currency:
		return QuestionCurrency, true
	case n.Category:
		return QuestionCategory, true
	case n.Duplicate:
		return QuestionDuplicate, true
	}
	return "", false
}

// Draft is the in-flight expense record a session refines. The
// orchestrator fills it from extraction and updates it after each
// re-run of the downstream stages.
type Draft struct {
	UserID        string
	Amount        decimal.Decimal
	Currency      string
	AmountPrimary decimal.Decimal
	Rate          decimal.Decimal
	RateTime      time.Time
	RateStale     bool
	Category      string
	Merchant      string
	Description   string
	Date          time.Time
	DuplicateOf   string
}

// State of a clarification session.
type State int

const (
	StateOpen State = iota
	StateConfirmed
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateConfirmed:
		return "confirmed"
	case StateAbandoned:
		return "abandoned"
	}
	return "unknown"
}

// Session tracks one clarification exchange for one user. A user has at
// most one open session; a new artifact submitted while it is open is
// treated as a reply by the orchestrator.
type Session struct {
	ID        string
	UserID    string
	Draft     *Draft
	State     State
	Pending   Question
	Turns     int
	StartedAt time.Time
}

// Open reports whether the session still accepts replies.
func (s *Session) Open() bool {
	return s.State == StateOpen
}
