package archive

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/live-poll/pkg/types"
)

const saveTimeout = 5 * time.Second

// Recorder moves archive writes off the poll loop: Record never blocks, Run
// does the I/O.
type Recorder struct {
	store Store
	queue chan Result
	log   *zap.Logger
}

func NewRecorder(store Store, buffer int, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, queue: make(chan Result, buffer), log: log}
}

// Record queues the closed topic. When the queue is full the result is dropped.
func (r *Recorder) Record(v types.TopicView, closedAt time.Time) {
	res := FromView(v, closedAt)
	select {
	case r.queue <- res:
	default:
		r.log.Warn("archive queue full, result dropped", zap.String("topic", res.TopicID))
	}
}

// Run saves queued results until ctx is done, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case res := <-r.queue:
			r.save(res)
		case <-ctx.Done():
			for {
				select {
				case res := <-r.queue:
					r.save(res)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) save(res Result) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.store.Save(ctx, res); err != nil {
		r.log.Error("archive save failed", zap.String("topic", res.TopicID), zap.Error(err))
		return
	}
	r.log.Info("poll result archived", zap.String("topic", res.TopicID), zap.Int("voters", res.Voters))
}
