package types

// StateSnapshot is the full projection served by GET /api/state and pushed on /ws.
//
//	activeTopicId: string | null
//	topics: TopicView[] (catalog order)
type StateSnapshot struct {
	ActiveTopicID *string     `json:"activeTopicId"`
	Topics        []TopicView `json:"topics"`
}

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// TopicView is one topic as seen by clients.
//
//	status: "disabled" | "idle" | "open" | "closing" | "closed"
//	visibility: "private" | "public"
//	closingEndsAt: unix ms, only while closing
//	names: per option voter names, null unless public
type TopicView struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Question      string              `json:"question"`
	ChartType     string              `json:"chartType"`
	Implemented   bool                `json:"implemented"`
	Options       []Option            `json:"options"`
	Status        string              `json:"status"`
	Visibility    string              `json:"visibility"`
	ClosingEndsAt *int64              `json:"closingEndsAt"`
	Totals        map[string]int      `json:"totals"`
	Names         map[string][]string `json:"names"`
}

// Topic returns the view for id, if present.
func (s StateSnapshot) Topic(id string) (TopicView, bool) {
	for _, t := range s.Topics {
		if t.ID == id {
			return t, true
		}
	}
	return TopicView{}, false
}

// Active returns the active topic's view, if any.
func (s StateSnapshot) Active() (TopicView, bool) {
	if s.ActiveTopicID == nil {
		return TopicView{}, false
	}
	return s.Topic(*s.ActiveTopicID)
}
