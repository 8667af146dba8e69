package archive

import (
	"context"
	"time"

	"github.com/DoyleJ11/live-poll/pkg/types"
)

// Result is the final tally of one closed poll run.
type Result struct {
	ID       uint                `json:"id"`
	TopicID  string              `json:"topicId"`
	Title    string              `json:"title"`
	Question string              `json:"question"`
	ClosedAt time.Time           `json:"closedAt"`
	Totals   map[string]int      `json:"totals"`
	Voters   int                 `json:"voters"`
	Names    map[string][]string `json:"names,omitempty"` // only for public polls
}

// FromView captures a closed topic's projection.
func FromView(v types.TopicView, closedAt time.Time) Result {
	r := Result{
		TopicID:  v.ID,
		Title:    v.Title,
		Question: v.Question,
		ClosedAt: closedAt.UTC(),
		Totals:   make(map[string]int, len(v.Totals)),
	}
	for id, n := range v.Totals {
		r.Totals[id] = n
		r.Voters += n
	}
	if v.Names != nil {
		r.Names = make(map[string][]string, len(v.Names))
		for id, names := range v.Names {
			r.Names[id] = append([]string(nil), names...)
		}
	}
	return r
}

type Store interface {
	Save(ctx context.Context, r Result) error
	// List returns up to limit results, newest first.
	List(ctx context.Context, limit int) ([]Result, error)
	Close() error
}

// NopStore is used when no archive is configured.
type NopStore struct{}

func (NopStore) Save(context.Context, Result) error { return nil }
func (NopStore) List(context.Context, int) ([]Result, error) { return []Result{}, nil }
func (NopStore) Close() error { return nil }
