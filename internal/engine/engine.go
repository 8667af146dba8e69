package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/live-poll/internal/catalog"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrConflict           = errors.New("conflict")
	ErrUnsupportedCommand = errors.New("unsupported command")
)

// DefaultGraceWindow is how long a stopped topic stays in StatusClosing.
const DefaultGraceWindow = 5 * time.Second

type Status string

const (
	StatusDisabled Status = "disabled"
	StatusIdle     Status = "idle"
	StatusOpen     Status = "open"
	StatusClosing  Status = "closing"
	StatusClosed   Status = "closed"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

type Rules struct {
	GraceWindow time.Duration
}

// Record is the mutable state of one catalog topic.
// ClosingEndsAt is non-nil iff Status == StatusClosing.
type Record struct {
	Status        Status
	Visibility    Visibility
	ClosingEndsAt *time.Time
	Votes         *Ledger
}

type State struct {
	Catalog       *catalog.Catalog
	ActiveTopicID string // "" when no topic is active
	Records       map[string]*Record
	Rules         Rules
}

func NewState(cat *catalog.Catalog, rules Rules) *State {
	if rules.GraceWindow <= 0 {
		rules.GraceWindow = DefaultGraceWindow
	}
	s := &State{
		Catalog: cat,
		Records: make(map[string]*Record, cat.Len()),
		Rules:   rules,
	}
	for _, t := range cat.Topics() {
		status := StatusIdle
		if !t.Implemented {
			status = StatusDisabled
		}
		s.Records[t.ID] = &Record{
			Status:     status,
			Visibility: VisibilityPrivate,
			Votes:      NewLedger(),
		}
	}
	return s
}

// Active returns the active topic and its record.
func (s *State) Active() (catalog.Topic, *Record, bool) {
	if s.ActiveTopicID == "" {
		return catalog.Topic{}, nil, false
	}
	t, ok := s.Catalog.Lookup(s.ActiveTopicID)
	if !ok {
		return catalog.Topic{}, nil, false
	}
	return t, s.Records[t.ID], true
}

type CommandType string

const (
	CmdSelectTopic   CommandType = "SelectTopic"
	CmdStart         CommandType = "Start"
	CmdStop          CommandType = "Stop"
	CmdReset         CommandType = "Reset"
	CmdSetVisibility CommandType = "SetVisibility"
	CmdSubmitVote    CommandType = "SubmitVote"
	CmdCloseTopic    CommandType = "CloseTopic" // issued by the closing timer only
)

type Command struct {
	Type       CommandType
	TopicID    string
	OptionID   string
	VoterName  string
	Visibility Visibility
}

type EventType string

const (
	EvtTopicSelected     EventType = "TopicSelected"
	EvtTopicCleared      EventType = "TopicCleared"
	EvtPollStarted       EventType = "PollStarted"
	EvtClosingScheduled  EventType = "ClosingScheduled"
	EvtClosingCancelled  EventType = "ClosingCancelled"
	EvtTopicClosed       EventType = "TopicClosed"
	EvtPollReset         EventType = "PollReset"
	EvtVisibilityChanged EventType = "VisibilityChanged"
	EvtVoteRecorded      EventType = "VoteRecorded"
)

/*
	SelectTopic   -> TopicSelected | TopicCleared
	Start         -> ClosingCancelled -> PollStarted   (no events when already open)
	Stop          -> ClosingScheduled
	Reset         -> ClosingCancelled -> PollReset
	SetVisibility -> VisibilityChanged
	SubmitVote    -> VoteRecorded
	CloseTopic    -> TopicClosed

The caller owns the timers: ClosingScheduled arms one, ClosingCancelled disarms it.
*/

type Event struct {
	Type    EventType
	TopicID string
	EndsAt  time.Time // ClosingScheduled only
}

// Apply validates cmd against s and, on success, mutates s in place.
// A rejected command leaves s untouched.
func Apply(s *State, cmd Command, now time.Time) ([]Event, error) {
	switch cmd.Type {
	case CmdSelectTopic:
		return selectTopic(s, cmd.TopicID)
	case CmdStart:
		return start(s)
	case CmdStop:
		return stop(s, now)
	case CmdReset:
		return reset(s)
	case CmdSetVisibility:
		return setVisibility(s, cmd.Visibility)
	case CmdSubmitVote:
		return submitVote(s, cmd.TopicID, cmd.OptionID, cmd.VoterName)
	case CmdCloseTopic:
		return closeTopic(s, cmd.TopicID)
	default:
		return nil, ErrUnsupportedCommand
	}
}

func running(r *Record) bool {
	return r != nil && (r.Status == StatusOpen || r.Status == StatusClosing)
}

func selectTopic(s *State, topicID string) ([]Event, error) {
	if _, current, ok := s.Active(); ok && running(current) && topicID != s.ActiveTopicID {
		return nil, fmt.Errorf("%w: a poll is running, stop it first", ErrConflict)
	}

	if topicID == "" {
		s.ActiveTopicID = ""
		return []Event{{Type: EvtTopicCleared}}, nil
	}

	topic, ok := s.Catalog.Lookup(topicID)
	if !ok {
		return nil, fmt.Errorf("%w: topic %q", ErrNotFound, topicID)
	}
	if !topic.Implemented {
		return nil, fmt.Errorf("%w: topic %q is not available yet", ErrInvalidState, topicID)
	}

	s.ActiveTopicID = topicID
	return []Event{{Type: EvtTopicSelected, TopicID: topicID}}, nil
}

func requireActive(s *State) (catalog.Topic, *Record, error) {
	topic, rec, ok := s.Active()
	if !ok || rec == nil {
		return catalog.Topic{}, nil, fmt.Errorf("%w: no topic selected", ErrInvalidState)
	}
	return topic, rec, nil
}

func start(s *State) ([]Event, error) {
	topic, rec, err := requireActive(s)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case StatusDisabled:
		return nil, fmt.Errorf("%w: topic %q is not available", ErrInvalidState, topic.ID)
	case StatusClosed:
		return nil, fmt.Errorf("%w: topic %q is closed, reset it first", ErrInvalidState, topic.ID)
	case StatusOpen:
		return nil, nil
	}

	// idle, or closing inside the grace window: the pending close is dropped

	rec.ClosingEndsAt = nil
	rec.Status = StatusOpen
	return []Event{
		{Type: EvtClosingCancelled, TopicID: topic.ID},
		{Type: EvtPollStarted, TopicID: topic.ID},
	}, nil
}

func stop(s *State, now time.Time) ([]Event, error) {
	topic, rec, err := requireActive(s)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusOpen {
		return nil, fmt.Errorf("%w: topic %q is not open", ErrInvalidState, topic.ID)
	}

	endsAt := now.Add(s.Rules.GraceWindow)
	rec.Status = StatusClosing
	rec.ClosingEndsAt = &endsAt
	return []Event{{Type: EvtClosingScheduled, TopicID: topic.ID, EndsAt: endsAt}}, nil
}

func reset(s *State) ([]Event, error) {
	topic, rec, err := requireActive(s)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusDisabled {
		return nil, fmt.Errorf("%w: topic %q is not available", ErrInvalidState, topic.ID)
	}

	rec.Votes = NewLedger()
	rec.Status = StatusIdle
	rec.Visibility = VisibilityPrivate
	rec.ClosingEndsAt = nil
	s.ActiveTopicID = ""
	return []Event{
		{Type: EvtClosingCancelled, TopicID: topic.ID},
		{Type: EvtPollReset, TopicID: topic.ID},
	}, nil
}

func setVisibility(s *State, mode Visibility) ([]Event, error) {
	topic, rec, err := requireActive(s)
	if err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: visibility %q", ErrValidation, mode)
	}
	if rec.Status == StatusDisabled {
		return nil, fmt.Errorf("%w: topic %q is not available", ErrInvalidState, topic.ID)
	}

	rec.Visibility = mode
	return []Event{{Type: EvtVisibilityChanged, TopicID: topic.ID}}, nil
}

func submitVote(s *State, topicID, optionID, rawName string) ([]Event, error) {
	if s.ActiveTopicID == "" || topicID != s.ActiveTopicID {
		return nil, fmt.Errorf("%w: topic %q is not the active poll", ErrValidation, topicID)
	}
	if optionID == "" {
		return nil, fmt.Errorf("%w: option is required", ErrValidation)
	}

	topic, rec, ok := s.Active()
	if !ok || !topic.Implemented || rec == nil || rec.Status != StatusOpen {
		return nil, fmt.Errorf("%w: voting on %q is not open", ErrInvalidState, topicID)
	}

	name := SanitizeName(rawName)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !topic.HasOption(optionID) {
		return nil, fmt.Errorf("%w: option %q", ErrValidation, optionID)
	}

	rec.Votes.Upsert(IdentityKey(name), Vote{OptionID: optionID, DisplayName: name})
	return []Event{{Type: EvtVoteRecorded, TopicID: topicID}}, nil
}

func closeTopic(s *State, topicID string) ([]Event, error) {
	rec, ok := s.Records[topicID]
	if !ok {
		return nil, fmt.Errorf("%w: topic %q", ErrNotFound, topicID)
	}
	if rec.Status != StatusClosing {
		return nil, fmt.Errorf("%w: topic %q is %s, not closing", ErrInvalidState, topicID, rec.Status)
	}

	rec.Status = StatusClosed
	rec.ClosingEndsAt = nil
	return []Event{{Type: EvtTopicClosed, TopicID: topicID}}, nil
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
