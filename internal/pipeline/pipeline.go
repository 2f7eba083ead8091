package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nurbolat/kassa/internal/artifact"
	"github.com/nurbolat/kassa/internal/clarify"
	"github.com/nurbolat/kassa/internal/classify"
	"github.com/nurbolat/kassa/internal/currency"
	"github.com/nurbolat/kassa/internal/dedup"
	"github.com/nurbolat/kassa/internal/extraction"
	"github.com/nurbolat/kassa/internal/store"
)

// ErrNoSession is returned for a reply when the user has no open
// clarification session.
var ErrNoSession = errors.New("no open clarification session")

// DefaultConfidenceThreshold gates clarification: extracted fields at or
// above it are trusted as-is.
const DefaultConfidenceThreshold = 0.5

// Defaults for users without a stored profile.
const (
	DefaultPrimaryCurrency = "KZT"
	DefaultLanguage        = "ru"
)

// Normalizer turns an artifact into extraction candidates.
type Normalizer interface {
	Normalize(a artifact.Artifact) ([]artifact.Candidate, error)
}

// Engine extracts structured fields from the candidates.
type Engine interface {
	ExtractArtifact(ctx context.Context, candidates []artifact.Candidate) (*extraction.Fields, error)
}

// Classifier assigns an expense category.
type Classifier interface {
	Classify(merchant, description string) classify.Result
}

// Resolver converts amounts into the user's primary currency.
type Resolver interface {
	Resolve(ctx context.Context, amount decimal.Decimal, detected, primary string) (*currency.Conversion, error)
}

// Detector flags likely duplicate transactions.
type Detector interface {
	Check(candidate *store.Transaction) dedup.Verdict
}

// session pairs the clarification state with what the orchestrator
// needs to resume: the outstanding questions, the last prompt for
// re-asks, and the user's primary currency.
type session struct {
	clar    *clarify.Session
	needs   clarify.Needs
	prompt  clarify.Prompt
	primary string
}

// Pipeline orchestrates the full run: normalize, extract, classify and
// resolve in parallel, duplicate-check, clarify, commit. Submissions of
// the same user are serialized; different users proceed concurrently.
type Pipeline struct {
	normalizer Normalizer
	engine     Engine
	classifier Classifier
	resolver   Resolver
	detector   Detector
	machine    *clarify.Machine
	db         store.DB
	threshold  float64
	newID      func() string
	now        func() time.Time

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	sessions map[string]*session
}

// New wires a Pipeline. A non-positive threshold selects the default.
func New(normalizer Normalizer, engine Engine, classifier Classifier, resolver Resolver, detector Detector, machine *clarify.Machine, db store.DB, threshold float64) *Pipeline {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Pipeline{
		normalizer: normalizer,
		engine:     engine,
		classifier: classifier,
		resolver:   resolver,
		detector:   detector,
		machine:    machine,
		db:         db,
		threshold:  threshold,
		newID:      uuid.NewString,
		now:        time.Now,
		locks:      map[string]*sync.Mutex{},
		sessions:   map[string]*session{},
	}
}

// userLock returns the per-user mutex, creating it on first use.
func (p *Pipeline) userLock(userID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[userID] = lock
	}
	return lock
}

// Submit runs the pipeline for one artifact. If the user already has an
// open clarification session, the submission is treated as a reply to
// it: text content answers the pending question, anything else re-asks
// it. Format and extraction problems surface as wrapped sentinel errors
// (artifact.ErrUnsupportedFormat, artifact.ErrOversizeArtifact,
// artifact.ErrNoContent, extraction.ErrExtractionFailed).
func (p *Pipeline) Submit(ctx context.Context, userID string, a artifact.Artifact) (Outcome, error) {
	lock := p.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if sess, ok := p.sessions[userID]; ok {
		text := ""
		if a.Kind == artifact.KindText {
			text = a.Text
		}
		return p.applyReply(ctx, userID, sess, text)
	}

	candidates, err := p.normalizer.Normalize(a)
	if err != nil {
		return Outcome{}, fmt.Errorf("normalizing artifact: %w", err)
	}

	fields, err := p.engine.ExtractArtifact(ctx, candidates)
	if err != nil {
		return Outcome{}, fmt.Errorf("extracting fields: %w", err)
	}

	profile := p.profileFor(userID)

	draft := &clarify.Draft{
		UserID:      userID,
		Amount:      fields.Amount,
		Currency:    fields.Currency,
		Merchant:    fields.Merchant,
		Description: fields.Description,
		Date:        fields.Date,
	}
	if draft.Date.IsZero() {
		draft.Date = p.now()
	}

	var (
		class   classify.Result
		conv    *currency.Conversion
		convErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		class = p.classifier.Classify(fields.Merchant, fields.Description)
		return nil
	})
	g.Go(func() error {
		// conversion failures feed clarification, they do not abort the group
		conv, convErr = p.resolver.Resolve(gctx, fields.Amount, fields.Currency, profile.PrimaryCurrency)
		return nil
	})
	_ = g.Wait()

	draft.Category = class.Category

	sess := &session{primary: profile.PrimaryCurrency}
	sess.needs.Amount = fields.Confidence.Amount < p.threshold
	sess.needs.Currency = fields.Currency != "" && fields.Confidence.Currency < p.threshold
	sess.needs.Category = class.Confidence < p.threshold

	p.applyConversion(sess, draft, conv, convErr)
	if conv != nil {
		p.runDedup(sess, draft)
	}

	return p.settle(ctx, userID, sess, draft)
}

// Reply feeds a user's answer into their open session.
func (p *Pipeline) Reply(ctx context.Context, userID, text string) (Outcome, error) {
	lock := p.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := p.sessions[userID]
	if !ok {
		return Outcome{}, ErrNoSession
	}
	return p.applyReply(ctx, userID, sess, text)
}

// profileFor loads the user's profile, falling back to defaults for
// unknown users.
func (p *Pipeline) profileFor(userID string) *store.Profile {
	profile, err := p.db.GetProfile(userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("Failed to load profile, using defaults", "user", userID, "error", err)
		}
		return &store.Profile{
			UserID:          userID,
			PrimaryCurrency: DefaultPrimaryCurrency,
			Language:        DefaultLanguage,
		}
	}
	return profile
}

// applyConversion folds a resolver result into the draft and the
// outstanding needs. An unknown currency asks for the currency; an
// unavailable rate falls back to asking for the amount directly in the
// primary currency.
func (p *Pipeline) applyConversion(sess *session, draft *clarify.Draft, conv *currency.Conversion, convErr error) {
	if convErr != nil {
		switch {
		case errors.Is(convErr, currency.ErrUnknownCurrency):
			sess.needs.Currency = true
		default:
			slog.Warn("Currency resolution failed, asking for a manual amount",
				"user", draft.UserID,
				"error", convErr,
			)
			draft.Currency = sess.primary
			sess.needs.Amount = true
		}
		return
	}
	draft.AmountPrimary = conv.AmountPrimary
	draft.Rate = conv.Rate
	draft.RateTime = conv.RateTime
	draft.RateStale = conv.Stale
	if draft.Currency == "" {
		draft.Currency = sess.primary
	}
}

// runDedup checks the draft against recent history and records the
// verdict in the needs.
func (p *Pipeline) runDedup(sess *session, draft *clarify.Draft) {
	verdict := p.detector.Check(p.draftTransaction(draft))
	sess.needs.Duplicate = verdict.Duplicate
	draft.DuplicateOf = verdict.ExistingID
}

// settle either asks the next outstanding question or commits.
func (p *Pipeline) settle(ctx context.Context, userID string, sess *session, draft *clarify.Draft) (Outcome, error) {
	question, pending := sess.needs.Next()
	if !pending {
		return p.commit(userID, sess, draft)
	}

	if sess.clar == nil {
		sess.clar = p.machine.Open(userID, draft)
		p.sessions[userID] = sess
	}

	prompt, ok := p.machine.Ask(sess.clar, question, p.suggestionsFor(question, draft))
	if !ok {
		delete(p.sessions, userID)
		return Abandoned("clarification limit reached"), nil
	}
	sess.prompt = prompt
	return NeedsReply(prompt), nil
}

// applyReply runs one clarification turn and the stage re-runs it
// triggers.
func (p *Pipeline) applyReply(ctx context.Context, userID string, sess *session, text string) (Outcome, error) {
	resolution, err := p.machine.Reply(sess.clar, text)
	if err != nil {
		delete(p.sessions, userID)
		return Outcome{}, err
	}
	draft := sess.clar.Draft

	switch {
	case resolution.Abandoned:
		delete(p.sessions, userID)
		return Abandoned("cancelled"), nil

	case resolution.Discard:
		delete(p.sessions, userID)
		return Abandoned(fmt.Sprintf("duplicate of %s discarded", draft.DuplicateOf)), nil

	case resolution.Commit:
		sess.needs.Duplicate = false
		return p.commit(userID, sess, draft)

	case resolution.Invalid:
		prompt, ok := p.machine.Ask(sess.clar, sess.clar.Pending, sess.prompt.Suggestions)
		if !ok {
			delete(p.sessions, userID)
			return Abandoned("clarification limit reached"), nil
		}
		sess.prompt = prompt
		return NeedsReply(prompt), nil
	}

	p.clearAnswered(sess)

	if resolution.Rerun.Currency {
		conv, convErr := p.resolver.Resolve(ctx, draft.Amount, draft.Currency, sess.primary)
		p.applyConversion(sess, draft, conv, convErr)
		if convErr != nil {
			return p.settle(ctx, userID, sess, draft)
		}
	}
	if resolution.Rerun.Dedup {
		p.runDedup(sess, draft)
	}
	return p.settle(ctx, userID, sess, draft)
}

// clearAnswered drops the need the user just satisfied.
func (p *Pipeline) clearAnswered(sess *session) {
	switch sess.clar.Pending {
	case clarify.QuestionAmount:
		sess.needs.Amount = false
	case clarify.QuestionCurrency:
		sess.needs.Currency = false
	case clarify.QuestionCategory:
		sess.needs.Category = false
	case clarify.QuestionDuplicate:
		sess.needs.Duplicate = false
	}
}

// suggestionsFor builds the suggested answers attached to a prompt.
func (p *Pipeline) suggestionsFor(question clarify.Question, draft *clarify.Draft) []string {
	switch question {
	case clarify.QuestionAmount:
		if draft.Amount.IsPositive() {
			return []string{draft.Amount.StringFixed(2) + " " + draft.Currency}
		}
		return nil
	case clarify.QuestionCurrency:
		return append([]string{}, currency.Supported...)
	case clarify.QuestionCategory:
		return classify.Categories()
	case clarify.QuestionDuplicate:
		return []string{draft.DuplicateOf}
	}
	return nil
}

// commit writes the transaction. On a storage fault the session, if
// any, survives so the user can retry.
func (p *Pipeline) commit(userID string, sess *session, draft *clarify.Draft) (Outcome, error) {
	txn := p.draftTransaction(draft)
	txn.ID = p.newID()
	txn.CreatedAt = p.now()

	if err := p.db.SaveTransaction(txn); err != nil {
		slog.Error("Failed to commit transaction", "user", userID, "error", err)
		return Failed(fmt.Sprintf("saving transaction: %v", err)), nil
	}

	if sess.clar != nil {
		p.machine.Confirm(sess.clar)
	}
	delete(p.sessions, userID)

	slog.Info("Transaction committed",
		"user", userID,
		"transaction", txn.ID,
		"amount", txn.Amount,
		"currency", txn.Currency,
		"amount_primary", txn.AmountPrimary,
		"category", txn.Category,
	)
	return Committed(txn.ID), nil
}

// draftTransaction maps the draft onto the persistent record. The id
// and creation time are assigned at commit time.
func (p *Pipeline) draftTransaction(draft *clarify.Draft) *store.Transaction {
	return &store.Transaction{
		UserID:        draft.UserID,
		Amount:        draft.Amount,
		Currency:      draft.Currency,
		AmountPrimary: draft.AmountPrimary,
		Rate:          draft.Rate,
		RateTime:      draft.RateTime,
		RateStale:     draft.RateStale,
		Category:      draft.Category,
		Merchant:      draft.Merchant,
		Description:   draft.Description,
		Date:          draft.Date,
	}
}
