package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/live-poll/internal/engine"
	"github.com/DoyleJ11/live-poll/internal/projector"
	"github.com/DoyleJ11/live-poll/pkg/types"
)

var ErrClosed = errors.New("poll loop stopped")

type Msg interface{ isPollMsg() }

// Exec runs one command. The loop never blocks on Reply: with an unbuffered
// channel and no waiting receiver the result is discarded.
type Exec struct {
	Cmd   engine.Command
	Reply chan Result
}

func (Exec) isPollMsg() {}

type Join struct {
	ClientID string
	Outbox   chan []byte // buffered; receives encoded ServerMessage frames
}

func (Join) isPollMsg() {}

type Leave struct{ ClientID string }

func (Leave) isPollMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isPollMsg() {}

type Shutdown struct{}

func (Shutdown) isPollMsg() {}

// closingElapsed is sent by a closing timer. Gen identifies the arming so a
// timer that was cancelled after it fired cannot close the topic.
type closingElapsed struct {
	TopicID string
	Gen     uint64
}

func (closingElapsed) isPollMsg() {}

type Result struct {
	Events []engine.Event
	Err    error
}

type View struct {
	Version    int
	NumClients int
	NumTimers  int
	Snapshot   types.StateSnapshot
}

// ClosedFunc is called from the loop when a topic closes. It must not block.
type ClosedFunc func(topic types.TopicView, closedAt time.Time)

type Option func(*Poll)

func WithLogger(l *zap.Logger) Option {
	return func(p *Poll) { p.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poll) { p.now = now }
}

func OnClosed(fn ClosedFunc) Option {
	return func(p *Poll) { p.onClosed = fn }
}

type closingTimer struct {
	timer *time.Timer
	gen   uint64
}

// Poll owns the engine state. Every read and write happens on the loop
// goroutine, one message at a time.
type Poll struct {
	inbox    chan Msg
	state    *engine.State
	version  int
	clients  map[string]chan []byte
	timers   map[string]closingTimer
	gen      uint64
	now      func() time.Time
	onClosed ClosedFunc
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(parent context.Context, state *engine.State, opts ...Option) *Poll {
	ctx, cancel := context.WithCancel(parent)

	p := &Poll{
		inbox:   make(chan Msg, 64),
		state:   state,
		clients: make(map[string]chan []byte),
		timers:  make(map[string]closingTimer),
		now:     time.Now,
		log:     zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	go p.loop()
	return p
}

func (p *Poll) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			p.shutdown()
			return

		case m := <-p.inbox:
			switch msg := m.(type) {
			case Exec:
				if !tryReply(msg.Reply, p.exec(msg.Cmd)) {
					p.log.Warn("command result discarded", zap.String("cmd", string(msg.Cmd.Type)))
				}

			case Join:
				p.clients[msg.ClientID] = msg.Outbox
				p.log.Debug("listener joined", zap.String("client", msg.ClientID), zap.Int("listeners", len(p.clients)))
				payload, err := p.encode(projector.Project(p.state))
				if err != nil {
					break
				}
				p.send(msg.ClientID, msg.Outbox, payload)

			case Leave:
				if ch, ok := p.clients[msg.ClientID]; ok {
					close(ch)
					delete(p.clients, msg.ClientID)
					p.log.Debug("listener left", zap.String("client", msg.ClientID), zap.Int("listeners", len(p.clients)))
				}

			case GetState:
				tryReply(msg.Reply, View{
					Version:    p.version,
					NumClients: len(p.clients),
					NumTimers:  len(p.timers),
					Snapshot:   projector.Project(p.state),
				})

			case closingElapsed:
				p.closeTopic(msg)

			case Shutdown:
				p.shutdown()
				return
			}
		}
	}
}

func tryReply[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}

func (p *Poll) exec(cmd engine.Command) Result {
	if cmd.Type == engine.CmdCloseTopic {
		return Result{Err: fmt.Errorf("%w: %s", engine.ErrUnsupportedCommand, cmd.Type)}
	}

	events, err := engine.Apply(p.state, cmd, p.now())
	if err != nil {
		p.log.Debug("command rejected", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		return Result{Err: err}
	}

	p.schedule(events)
	if len(events) > 0 {
		p.version++
		p.broadcast(projector.Project(p.state))
	}
	return Result{Events: events}
}

func (p *Poll) schedule(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtClosingScheduled:
			p.armClosing(ev.TopicID, ev.EndsAt)
		case engine.EvtClosingCancelled:
			p.cancelClosing(ev.TopicID)
		case engine.EvtVoteRecorded:
			continue
		}
		p.log.Info("transition", zap.String("event", string(ev.Type)), zap.String("topic", ev.TopicID))
	}
}

// armClosing replaces any timer for topicID, so at most one is live per topic.
func (p *Poll) armClosing(topicID string, endsAt time.Time) {
	p.cancelClosing(topicID)

	p.gen++
	gen := p.gen
	d := endsAt.Sub(p.now())
	if d < 0 {
		d = 0
	}
	t := time.AfterFunc(d, func() {
		select {
		case p.inbox <- closingElapsed{TopicID: topicID, Gen: gen}:
		case <-p.ctx.Done():
		}
	})
	p.timers[topicID] = closingTimer{timer: t, gen: gen}
}

func (p *Poll) cancelClosing(topicID string) {
	if ct, ok := p.timers[topicID]; ok {
		ct.timer.Stop()
		delete(p.timers, topicID)
	}
}

func (p *Poll) closeTopic(msg closingElapsed) {
	ct, ok := p.timers[msg.TopicID]
	if !ok || ct.gen != msg.Gen {
		p.log.Debug("stale closing timer dropped", zap.String("topic", msg.TopicID), zap.Uint64("gen", msg.Gen))
		return
	}
	delete(p.timers, msg.TopicID)

	events, err := engine.Apply(p.state, engine.Command{Type: engine.CmdCloseTopic, TopicID: msg.TopicID}, p.now())
	if err != nil {
		p.log.Warn("closing timer rejected", zap.String("topic", msg.TopicID), zap.Error(err))
		return
	}
	p.schedule(events)
	p.version++

	snap := projector.Project(p.state)
	p.broadcast(snap)
	if p.onClosed != nil {
		if view, ok := snap.Topic(msg.TopicID); ok {
			p.onClosed(view, p.now())
		}
	}
}

func (p *Poll) encode(snap types.StateSnapshot) ([]byte, error) {
	payload, err := json.Marshal(types.ServerMessage{Type: types.MessageTypeState, Payload: &snap})
	if err != nil {
		p.log.Error("encode snapshot", zap.Error(err))
		return nil, err
	}
	return payload, nil
}

// broadcast encodes once and fans the same bytes out to every listener.
func (p *Poll) broadcast(snap types.StateSnapshot) {
	payload, err := p.encode(snap)
	if err != nil {
		return
	}
	for id, ch := range p.clients {
		p.send(id, ch, payload)
	}
}

func (p *Poll) send(id string, ch chan []byte, payload []byte) {
	select {
	case ch <- payload:
	default:
		// Listener is slow/full - drop it.
		close(ch)
		delete(p.clients, id)
		p.log.Info("listener dropped", zap.String("client", id))
	}
}

func (p *Poll) shutdown() {
	for id := range p.timers {
		p.cancelClosing(id)
	}
	for id, ch := range p.clients {
		close(ch) // Tell listener no more snapshots
		delete(p.clients, id)
	}
	p.cancel()
}

// Inbox exposes the loop so tests or the transport layer can send messages directly.
func (p *Poll) Inbox() chan<- Msg { return p.inbox }

// Done is closed once the loop has exited.
func (p *Poll) Done() <-chan struct{} { return p.done }

func (p *Poll) post(ctx context.Context, m Msg) error {
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
}

func wait[T any](ctx context.Context, p *Poll, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.done:
		return zero, ErrClosed
	}
}

// Execute applies cmd on the loop and waits for the outcome.
func (p *Poll) Execute(ctx context.Context, cmd engine.Command) ([]engine.Event, error) {
	reply := make(chan Result, 1)
	if err := p.post(ctx, Exec{Cmd: cmd, Reply: reply}); err != nil {
		return nil, err
	}
	res, err := wait(ctx, p, reply)
	if err != nil {
		return nil, err
	}
	return res.Events, res.Err
}

func (p *Poll) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := p.post(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	return wait(ctx, p, reply)
}

// Snapshot is the pull side of synchronization. It never mutates state.
func (p *Poll) Snapshot(ctx context.Context) (types.StateSnapshot, error) {
	v, err := p.View(ctx)
	return v.Snapshot, err
}

// Join registers outbox as a push listener; the current snapshot is queued on
// it immediately. The loop closes outbox on Leave, on drop and at shutdown.
func (p *Poll) Join(ctx context.Context, clientID string, outbox chan []byte) error {
	return p.post(ctx, Join{ClientID: clientID, Outbox: outbox})
}

func (p *Poll) Leave(clientID string) {
	_ = p.post(context.Background(), Leave{ClientID: clientID})
}

// Close stops the loop, cancels pending timers and waits for exit.
func (p *Poll) Close() {
	p.cancel()
	<-p.done
}
