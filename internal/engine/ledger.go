package engine

import "github.com/DoyleJ11/live-poll/internal/catalog"

type Vote struct {
	OptionID    string
	DisplayName string
}

// Ledger holds at most one vote per identity key. Iteration follows the order
// in which identities first voted; overwriting keeps the original position.
type Ledger struct {
	keys  []string
	votes map[string]Vote
}

func NewLedger() *Ledger {
	return &Ledger{votes: make(map[string]Vote)}
}

// Upsert stores v under key, replacing any earlier vote for the same key.
func (l *Ledger) Upsert(key string, v Vote) (replaced bool) {
	if _, replaced = l.votes[key]; !replaced {
		l.keys = append(l.keys, key)
	}
	l.votes[key] = v
	return replaced
}

func (l *Ledger) Get(key string) (Vote, bool) {
	v, ok := l.votes[key]
	return v, ok
}

func (l *Ledger) Len() int { return len(l.keys) }

func (l *Ledger) Votes() []Vote {
	out := make([]Vote, 0, len(l.keys))
	for _, k := range l.keys {
		out = append(out, l.votes[k])
	}
	return out
}

// Totals counts votes per option, zero-filled for every option given.
func (l *Ledger) Totals(options []catalog.Option) map[string]int {
	totals := make(map[string]int, len(options))
	for _, o := range options {
		totals[o.ID] = 0
	}
	for _, k := range l.keys {
		v := l.votes[k]
		if _, ok := totals[v.OptionID]; ok {
			totals[v.OptionID]++
		}
	}
	return totals
}

// NamesByOption lists display names per option in ledger order.
func (l *Ledger) NamesByOption(options []catalog.Option) map[string][]string {
	names := make(map[string][]string, len(options))
	for _, o := range options {
		names[o.ID] = []string{}
	}
	for _, k := range l.keys {
		v := l.votes[k]
		if list, ok := names[v.OptionID]; ok {
			names[v.OptionID] = append(list, v.DisplayName)
		}
	}
	return names
}
