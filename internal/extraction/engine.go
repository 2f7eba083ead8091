package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nurbolat/kassa/internal/artifact"
)

// Engine runs the extraction strategy chain over every candidate of an
// artifact and picks the single best amount-bearing result. For image
// candidates the remote vision extractor goes first; on failure it is
// retried once with backoff, then the local engine takes over. Text
// candidates only ever see the deterministic parser.
type Engine struct {
	vision     Extractor // nil when the remote extractor is disabled
	local      Extractor
	retryDelay time.Duration
	now        func() time.Time
	sleep      func(time.Duration)
}

// NewEngine creates an Engine. vision may be nil to disable the remote
// strategy entirely.
func NewEngine(vision, local Extractor) *Engine {
	return &Engine{
		vision:     vision,
		local:      local,
		retryDelay: 500 * time.Millisecond,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// ExtractArtifact extracts fields from each candidate independently and
// returns the highest-confidence amount-bearing result, breaking ties by
// the earliest candidate index. It fails with ErrExtractionFailed when
// no candidate yields a usable amount.
func (e *Engine) ExtractArtifact(ctx context.Context, candidates []artifact.Candidate) (*Fields, error) {
	var best *Fields

	for _, cand := range candidates {
		fields, err := e.extractCandidate(ctx, cand)
		if err != nil {
			// fatal for this candidate only; the rest are still tried
			slog.Warn("Candidate extraction failed",
				"artifact", cand.ArtifactID,
				"index", cand.Index,
				"error", err,
			)
			continue
		}
		if !fields.HasAmount() {
			continue
		}
		// strict comparison keeps the earliest index on ties
		if best == nil || fields.Confidence.Overall > best.Confidence.Overall {
			best = fields
		}
	}

	if best == nil {
		return nil, ErrExtractionFailed
	}
	return best, nil
}

func (e *Engine) extractCandidate(ctx context.Context, cand artifact.Candidate) (*Fields, error) {
	if cand.IsText() {
		return Parse(cand.Text, e.now()), nil
	}

	if e.vision != nil {
		fields, err := e.withRetry(ctx, cand.Image)
		if err == nil {
			return fields, nil
		}
		slog.Warn("Vision extraction failed, falling back to local engine",
			"artifact", cand.ArtifactID,
			"index", cand.Index,
			"error", err,
		)
	}

	if e.local == nil {
		return nil, fmt.Errorf("no extraction strategy available")
	}
	fields, err := e.local.Extract(ctx, cand.Image)
	if err != nil {
		return nil, fmt.Errorf("local extraction: %w", err)
	}
	return fields, nil
}

// withRetry attempts the vision extractor, retrying once after a short
// backoff on any error.
func (e *Engine) withRetry(ctx context.Context, image []byte) (*Fields, error) {
	fields, err := e.vision.Extract(ctx, image)
	if err == nil {
		return fields, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	e.sleep(e.retryDelay)

	fields, retryErr := e.vision.Extract(ctx, image)
	if retryErr != nil {
		return nil, fmt.Errorf("vision extraction after retry: %w", retryErr)
	}
	return fields, nil
}
