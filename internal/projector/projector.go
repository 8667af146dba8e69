package projector

import (
	"github.com/DoyleJ11/live-poll/internal/engine"
	"github.com/DoyleJ11/live-poll/pkg/types"
)

// Project derives the client-visible snapshot from s. Totals and names are
// recounted from the ledgers on every call.
func Project(s *engine.State) types.StateSnapshot {
	snap := types.StateSnapshot{
		Topics: make([]types.TopicView, 0, s.Catalog.Len()),
	}
	if s.ActiveTopicID != "" {
		id := s.ActiveTopicID
		snap.ActiveTopicID = &id
	}

	for _, topic := range s.Catalog.Topics() {
		view := types.TopicView{
			ID:          topic.ID,
			Title:       topic.Title,
			Question:    topic.Question,
			ChartType:   string(topic.ChartType),
			Implemented: topic.Implemented,
			Options:     make([]types.Option, 0, len(topic.Options)),
			Status:      string(engine.StatusDisabled),
			Visibility:  string(engine.VisibilityPrivate),
			Totals:      map[string]int{},
		}
		for _, o := range topic.Options {
			view.Options = append(view.Options, types.Option{ID: o.ID, Label: o.Label})
		}

		if rec, ok := s.Records[topic.ID]; ok {
			view.Status = string(rec.Status)
			view.Visibility = string(rec.Visibility)
			if rec.ClosingEndsAt != nil {
				ms := rec.ClosingEndsAt.UnixMilli()
				view.ClosingEndsAt = &ms
			}
			if topic.Implemented {
				view.Totals = rec.Votes.Totals(topic.Options)
				if rec.Visibility == engine.VisibilityPublic {
					view.Names = rec.Votes.NamesByOption(topic.Options)
				}
			}
		}

		snap.Topics = append(snap.Topics, view)
	}
	return snap
}
