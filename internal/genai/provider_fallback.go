package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Chain tries classifiers in order. Each one is retried on transient
// errors; any other failure moves on to the next classifier.
type Chain struct {
	classifiers []IntentClassifier
	retry       RetryConfig
}

// NewChain builds a chain. Nil classifiers are skipped.
func NewChain(cfg RetryConfig, classifiers ...IntentClassifier) *Chain {
	c := &Chain{retry: cfg}
	for _, cl := range classifiers {
		if cl != nil {
			c.classifiers = append(c.classifiers, cl)
		}
	}
	return c
}

// Len returns the number of classifiers in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.classifiers)
}

// Classify returns the first successful classification.
func (c *Chain) Classify(ctx context.Context, text string, intents []string) (*Classification, error) {
	if c.Len() == 0 {
		return nil, errors.New("no intent classifier configured")
	}

	start := time.Now()
	var errs []error
	for i, cl := range c.classifiers {
		var result *Classification
		err := WithRetry(ctx, c.retry, func(attempt int, err error) {
			slog.DebugContext(ctx, "retrying intent classification",
				"provider", cl.Provider(),
				"attempt", attempt,
				"error", err)
		}, func() error {
			var err error
			result, err = cl.Classify(ctx, text, intents)
			return err
		})
		if err == nil {
			if i > 0 {
				slog.InfoContext(ctx, "intent classified by fallback",
					"provider", cl.Provider(),
					"position", i,
					"duration", time.Since(start))
			}
			return result, nil
		}

		errs = append(errs, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("intent classification aborted: %w", ctxErr)
		}
		slog.WarnContext(ctx, "intent classifier failed",
			"provider", cl.Provider(),
			"position", i,
			"action", ClassifyError(err),
			"error", err)
	}
	return nil, fmt.Errorf("all intent classifiers failed: %w", errors.Join(errs...))
}

// Provider returns the first classifier's provider.
func (c *Chain) Provider() Provider {
	if c.Len() == 0 {
		return ""
	}
	return c.classifiers[0].Provider()
}

// Close closes every classifier.
func (c *Chain) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, cl := range c.classifiers {
		if err := cl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ IntentClassifier = (*Chain)(nil)
