package admin

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/convobot-go/internal/storage"
)

// Result is one page of a search.
type Result[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// LogStats summarizes the parse logs matching a search.
type LogStats struct {
	Total        int            `json:"total"`
	Intents      map[string]int `json:"intents"`
	AverageScore float64        `json:"averageScore"`
}

// LogResult is a page of parse logs with statistics over the whole match.
type LogResult struct {
	Items []storage.ParseLog `json:"items"`
	Stats LogStats           `json:"stats"`
}

// SearchUsers searches the users of the caller's namespace.
func (s *Service) SearchUsers(ctx context.Context, namespace string, q storage.UserQuery) (*Result[storage.User], error) {
	q.Namespace = namespace
	users, total, err := s.dialogs.SearchUsers(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Result[storage.User]{Items: nonNil(users), Total: total}, nil
}

// SearchDialogs searches the dialogs of the caller's namespace.
func (s *Service) SearchDialogs(ctx context.Context, namespace string, q storage.DialogQuery) (*Result[storage.Dialog], error) {
	q.Namespace = namespace
	dialogs, total, err := s.dialogs.SearchDialogs(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Result[storage.Dialog]{Items: nonNil(dialogs), Total: total}, nil
}

// SearchParseLogs returns a page of parse logs with the total count, the
// count per intent and the average score of every matching log. The four
// queries run in parallel.
func (s *Service) SearchParseLogs(ctx context.Context, namespace string, q storage.ParseLogQuery) (*LogResult, error) {
	q.Namespace = namespace

	var (
		out   LogResult
		g, gc = errgroup.WithContext(ctx)
	)
	g.Go(func() error {
		logs, err := s.parseLogs.SearchParseLogs(gc, q)
		out.Items = nonNil(logs)
		return err
	})
	g.Go(func() error {
		n, err := s.parseLogs.CountParseLogs(gc, q)
		out.Stats.Total = n
		return err
	})
	g.Go(func() error {
		counts, err := s.parseLogs.ParseLogIntentCounts(gc, q)
		out.Stats.Intents = counts
		return err
	})
	g.Go(func() error {
		avg, err := s.parseLogs.ParseLogAverageScore(gc, q)
		out.Stats.AverageScore = avg
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if out.Stats.Intents == nil {
		out.Stats.Intents = map[string]int{}
	}
	return &out, nil
}

// SearchSentences searches validated sentences of the caller's namespace.
func (s *Service) SearchSentences(ctx context.Context, namespace string, q storage.SentenceQuery) (*Result[storage.Sentence], error) {
	if s.nlp == nil {
		return &Result[storage.Sentence]{Items: []storage.Sentence{}}, nil
	}
	q.Namespace = namespace
	list, total, err := s.nlp.SearchSentences(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Result[storage.Sentence]{Items: nonNil(list), Total: total}, nil
}

// SentenceRequest saves a validated sentence.
type SentenceRequest struct {
	Application string `json:"application" validate:"required"`
	Text        string `json:"text" validate:"required,max=5000"`
	Intent      string `json:"intent" validate:"required"`
	Locale      string `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

// SaveSentence stores a validated sentence in the caller's namespace.
func (s *Service) SaveSentence(ctx context.Context, namespace string, req SentenceRequest) (*storage.Sentence, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	sentence := &storage.Sentence{
		Namespace:   namespace,
		Application: req.Application,
		Text:        req.Text,
		Intent:      req.Intent,
		Locale:      req.Locale,
	}
	if s.nlp == nil {
		return nil, errNLPUnavailable
	}
	if err := s.nlp.SaveSentence(ctx, sentence); err != nil {
		return nil, err
	}
	return sentence, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
