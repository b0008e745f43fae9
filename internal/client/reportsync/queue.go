package reportsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/elecmate/certsync/internal/client/client"
	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/client/repositories/queue"
	"github.com/elecmate/certsync/internal/logging"
)

type QueueState int

const (
	QueueEmpty QueueState = iota
	QueuePending
	QueueDraining
)

func (s QueueState) String() string {
	switch s {
	case QueueEmpty:
		return "empty"
	case QueuePending:
		return "pending"
	}
	return "draining"
}

// Pusher is what the queue replays changes through.
type Pusher interface {
	Preflight() error
	Push(ctx context.Context, snap models.DraftSnapshot) (client.SaveResult, error)
}

// AckFunc is called after the store acknowledged a replayed change and
// before the change leaves the queue.
type AckFunc func(ctx context.Context, c models.QueuedChange, sent models.DraftSnapshot, res client.SaveResult)

// RejectFunc is called when the store refused a replayed change as invalid
// and no newer change of the same draft was queued behind it.
type RejectFunc func(ctx context.Context, c models.QueuedChange, err error)

// FlushResult describes one replay pass.
type FlushResult struct {
	Sent int
	// Dropped counts rejected changes a newer queued change replaced.
	Dropped int
	// Rejected counts rejected changes that were the newest of their draft.
	Rejected  int
	Remaining int
	// Err is the failure that stopped the pass, if any.
	Err error
}

// OfflineQueue holds cloud writes that could not be sent and replays them
// oldest first. A change is removed only after the store acknowledged it.
type OfflineQueue struct {
	repo   queue.Repository
	pusher Pusher
	logger logging.Logger
	now    func() time.Time

	drain sync.Mutex

	mu     sync.Mutex
	state  QueueState
	ack    AckFunc
	reject RejectFunc
}

func NewOfflineQueue(repo queue.Repository, pusher Pusher, logger logging.Logger) *OfflineQueue {
	return &OfflineQueue{
		repo:   repo,
		pusher: pusher,
		logger: logger.With("module", "queue"),
		now:    time.Now,
	}
}

func (q *OfflineQueue) SetAckHandler(fn AckFunc) {
	q.mu.Lock()
	q.ack = fn
	q.mu.Unlock()
}

func (q *OfflineQueue) SetRejectHandler(fn RejectFunc) {
	q.mu.Lock()
	q.reject = fn
	q.mu.Unlock()
}

func (q *OfflineQueue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *OfflineQueue) setState(s QueueState) {
	q.mu.Lock()
	q.state = s
	q.mu.Unlock()
}

// Enqueue appends snap. cause is the reason it was not sent. A change that
// was never attempted (offline, signed out) starts with zero attempts.
func (q *OfflineQueue) Enqueue(ctx context.Context, snap models.DraftSnapshot, cause error) error {
	c := models.QueuedChange{
		LocalID:    snap.LocalID,
		ReportID:   snap.ReportID,
		ReportType: snap.ReportType,
		Snapshot:   snap,
		EnqueuedAt: q.now(),
	}
	if cause != nil {
		c.LastError = cause.Error()
		if Classify(cause) != KindDeferred {
			c.AttemptCount = 1
		}
	}

	id, err := q.repo.Append(ctx, c)
	if err != nil {
		q.logger.Error(ctx, "failed to enqueue change", "local_id", snap.LocalID, "error", err)
		return &LocalStorageError{Op: "enqueue", Err: err}
	}

	q.mu.Lock()
	if q.state == QueueEmpty {
		q.state = QueuePending
	}
	q.mu.Unlock()

	q.logger.Info(ctx, "change queued", "id", id, "local_id", snap.LocalID, "report_id", snap.ReportID,
		"cause", Classify(cause).String())
	return nil
}

// PeekDepth returns the number of queued changes. It reports 0 when the
// queue cannot be read.
func (q *OfflineQueue) PeekDepth(ctx context.Context) int {
	n, err := q.repo.Count(ctx)
	if err != nil {
		q.logger.Warn(ctx, "failed to count queued changes", "error", err)
		return 0
	}
	return n
}

// Latest returns the newest queued change of localID, or nil when there is
// none or the queue cannot be read.
func (q *OfflineQueue) Latest(ctx context.Context, localID string) *models.QueuedChange {
	c, err := q.repo.Latest(ctx, localID)
	if err != nil {
		q.logger.Warn(ctx, "failed to read queued changes", "local_id", localID, "error", err)
		return nil
	}
	return c
}

// Flush replays queued changes in order and stops at the first failure that
// may go away on retry. Only one flush runs at a time; a concurrent call
// waits for it.
//
// A change the store rejects as invalid leaves the queue. Its draft row still
// holds the unsynced content, so the next edit of that draft is pushed again.
func (q *OfflineQueue) Flush(ctx context.Context) FlushResult {
	q.drain.Lock()
	defer q.drain.Unlock()

	var res FlushResult
	if err := q.pusher.Preflight(); err != nil {
		res.Remaining = q.PeekDepth(ctx)
		res.Err = err
		return res
	}

	q.mu.Lock()
	ack, reject := q.ack, q.reject
	q.mu.Unlock()

	q.setState(QueueDraining)
	assigned := make(map[string]string)

	for {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}

		c, err := q.repo.Head(ctx)
		if err != nil {
			res.Err = &LocalStorageError{Op: "read queue", Err: err}
			break
		}
		if c == nil {
			q.setState(QueueEmpty)
			return res
		}

		snap := c.Snapshot
		if snap.ReportID == "" {
			if id, ok := assigned[c.LocalID]; ok {
				snap.ReportID = id
			}
		}

		pushed, err := q.pusher.Push(ctx, snap)
		if err != nil {
			if errors.Is(err, client.ErrValidation) {
				newer, rerr := q.discard(ctx, c, err)
				if rerr != nil {
					res.Err = rerr
					break
				}
				if newer {
					res.Dropped++
					continue
				}
				res.Rejected++
				if reject != nil {
					reject(ctx, *c, err)
				}
				continue
			}
			if rerr := q.repo.RecordFailure(ctx, c.ID, err.Error()); rerr != nil {
				q.logger.Warn(ctx, "failed to record queue failure", "id", c.ID, "error", rerr)
			}
			res.Err = err
			break
		}

		if ack != nil {
			ack(ctx, *c, snap, pushed)
		}
		if err := q.repo.Remove(ctx, c.ID); err != nil {
			// Replaying it is safe: the store de-duplicates by client ref.
			res.Err = &LocalStorageError{Op: "dequeue", Err: err}
			break
		}
		if snap.ReportID == "" && pushed.ReportID != "" {
			assigned[c.LocalID] = pushed.ReportID
			if err := q.repo.AssignReportID(ctx, c.LocalID, pushed.ReportID); err != nil {
				q.logger.Warn(ctx, "failed to assign report id to queued changes", "local_id", c.LocalID, "error", err)
			}
		}
		res.Sent++
	}

	res.Remaining = q.PeekDepth(ctx)
	if res.Remaining == 0 {
		q.setState(QueueEmpty)
	} else {
		q.setState(QueuePending)
	}
	return res
}

// discard removes a rejected change and reports whether a newer change of
// the same draft is still queued.
func (q *OfflineQueue) discard(ctx context.Context, c *models.QueuedChange, err error) (bool, error) {
	if rerr := q.repo.Remove(ctx, c.ID); rerr != nil {
		return false, &LocalStorageError{Op: "dequeue", Err: rerr}
	}
	latest := q.Latest(ctx, c.LocalID)
	newer := latest != nil && latest.ID > c.ID
	if newer {
		q.logger.Warn(ctx, "dropped rejected change superseded by a newer one", "id", c.ID,
			"local_id", c.LocalID, "error", err)
	} else {
		q.logger.Warn(ctx, "dropped change the store rejected", "id", c.ID,
			"local_id", c.LocalID, "error", err)
	}
	return newer, nil
}
