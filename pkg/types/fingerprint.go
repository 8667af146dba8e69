package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

type fpOption struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Total int      `json:"total"`
	Names []string `json:"names"`
}

type fpTopic struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Visibility    string     `json:"visibility"`
	ClosingEndsAt *int64     `json:"closingEndsAt"`
	ChartType     string     `json:"chartType"`
	Question      string     `json:"question"`
	Options       []fpOption `json:"options"`
}

type fpState struct {
	ActiveTopicID *string   `json:"activeTopicId"`
	Topics        []fpTopic `json:"topics"`
}

// Fingerprint digests the fields a viewer renders. Two snapshots with equal
// fingerprints render identically, so a client can skip the second one.
// A nil snapshot has the empty fingerprint.
func Fingerprint(s *StateSnapshot) string {
	if s == nil {
		return ""
	}

	fp := fpState{ActiveTopicID: s.ActiveTopicID, Topics: make([]fpTopic, 0, len(s.Topics))}
	for _, t := range s.Topics {
		ft := fpTopic{
			ID:            t.ID,
			Status:        t.Status,
			Visibility:    t.Visibility,
			ClosingEndsAt: t.ClosingEndsAt,
			ChartType:     t.ChartType,
			Question:      t.Question,
			Options:       make([]fpOption, 0, len(t.Options)),
		}
		for _, o := range t.Options {
			names := t.Names[o.ID]
			if names == nil {
				names = []string{}
			}
			ft.Options = append(ft.Options, fpOption{
				ID:    o.ID,
				Label: o.Label,
				Total: t.Totals[o.ID],
				Names: names,
			})
		}
		fp.Topics = append(fp.Topics, ft)
	}

	// only plain structs, slices and strings: Marshal cannot fail
	data, _ := json.Marshal(fp)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
