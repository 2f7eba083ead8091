package clarify

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurbolat/kassa/internal/classify"
	"github.com/nurbolat/kassa/internal/currency"
)

// ErrSessionClosed is returned when a reply arrives for a session that
// is already confirmed or abandoned.
var ErrSessionClosed = errors.New("clarification session closed")

// DefaultTurnLimit caps how many questions a session may ask before it
// is abandoned.
const DefaultTurnLimit = 5

// Rerun names the pipeline stages to repeat after a reply changed the
// draft.
type Rerun struct {
	Currency bool
	Dedup    bool
}

// Resolution tells the orchestrator what to do with a reply. Exactly
// one of the outcome fields is meaningful: Invalid asks for the same
// answer again, Rerun repeats stages, Commit and Discard settle a
// duplicate decision, Abandoned means the user cancelled.
type Resolution struct {
	Invalid   bool
	Rerun     Rerun
	Commit    bool
	Discard   bool
	Abandoned bool
}

// Machine runs clarification sessions: it asks one question at a time,
// applies replies to the draft, and enforces the turn limit.
type Machine struct {
	turnLimit int
	newID     func() string
	now       func() time.Time
}

// NewMachine creates a Machine. A non-positive limit selects the
// default of 5 turns.
func NewMachine(turnLimit int) *Machine {
	if turnLimit <= 0 {
		turnLimit = DefaultTurnLimit
	}
	return &Machine{
		turnLimit: turnLimit,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Open starts a session over the draft.
func (m *Machine) Open(userID string, draft *Draft) *Session {
	return &Session{
		ID:        m.newID(),
		UserID:    userID,
		Draft:     draft,
		State:     StateOpen,
		StartedAt: m.now(),
	}
}

// Ask records q as the pending question and returns the prompt to relay
// to the user. Every question consumes a turn; when the limit is
// exhausted the session is abandoned instead and ok is false.
func (m *Machine) Ask(s *Session, q Question, suggestions []string) (Prompt, bool) {
	if !s.Open() {
		return Prompt{}, false
	}
	if s.Turns >= m.turnLimit {
		s.State = StateAbandoned
		return Prompt{}, false
	}
	s.Turns++
	s.Pending = q
	return Prompt{Question: q, Suggestions: suggestions}, true
}

// Reply applies the user's answer to the pending question and reports
// what the orchestrator must do next. Cancellation words abandon the
// session regardless of the pending question.
func (m *Machine) Reply(s *Session, text string) (Resolution, error) {
	if !s.Open() {
		return Resolution{}, ErrSessionClosed
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	if cancelWords[normalized] {
		s.State = StateAbandoned
		return Resolution{Abandoned: true}, nil
	}

	switch s.Pending {
	case QuestionAmount:
		amount, code, ok := parseAmountReply(text)
		if !ok {
			return Resolution{Invalid: true}, nil
		}
		s.Draft.Amount = amount
		if code != "" {
			s.Draft.Currency = code
		}
		return Resolution{Rerun: Rerun{Currency: true, Dedup: true}}, nil

	case QuestionCurrency:
		code := parseCurrencyReply(text)
		if code == "" {
			return Resolution{Invalid: true}, nil
		}
		s.Draft.Currency = code
		return Resolution{Rerun: Rerun{Currency: true, Dedup: true}}, nil

	case QuestionCategory:
		if !classify.Valid(normalized) {
			return Resolution{Invalid: true}, nil
		}
		s.Draft.Category = normalized
		return Resolution{Rerun: Rerun{Dedup: true}}, nil

	case QuestionDuplicate:
		switch {
		case affirmWords[normalized]:
			return Resolution{Commit: true}, nil
		case declineWords[normalized]:
			s.State = StateAbandoned
			return Resolution{Discard: true}, nil
		}
		return Resolution{Invalid: true}, nil
	}

	return Resolution{Invalid: true}, nil
}

// Confirm closes the session as successfully committed.
func (m *Machine) Confirm(s *Session) {
	s.State = StateConfirmed
}

// Abandon closes the session without committing.
func (m *Machine) Abandon(s *Session) {
	s.State = StateAbandoned
}

var cancelWords = map[string]bool{
	"отмена":    true,
	"стоп":      true,
	"болдырмау": true,
	"тоқтату":   true,
	"cancel":    true,
	"stop":      true,
	"/cancel":   true,
}

var affirmWords = map[string]bool{
	"да":        true,
	"сохранить": true,
	"иә":        true,
	"ия":        true,
	"сақтау":    true,
	"yes":       true,
	"y":         true,
	"save":      true,
	"keep":      true,
}

var declineWords = map[string]bool{
	"нет":     true,
	"удалить": true,
	"жоқ":     true,
	"жок":     true,
	"no":      true,
	"n":       true,
	"discard": true,
	"skip":    true,
}

// parseAmountReply reads an amount and an optional currency token from
// a free-text answer like "4500", "4 500,50" or "12.99 usd".
func parseAmountReply(text string) (decimal.Decimal, string, bool) {
	code := currency.Detect(text)
	cleaned := currency.StripTokens(text)
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	amount, err := decimal.NewFromString(cleaned)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, "", false
	}
	return amount.Round(2), code, true
}

func parseCurrencyReply(text string) string {
	if code := currency.Detect(text); code != "" {
		return code
	}
	code := strings.ToUpper(strings.TrimSpace(text))
	if currency.IsSupported(code) {
		return code
	}
	return ""
}
