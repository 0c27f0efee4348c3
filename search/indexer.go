package search

import (
	"context"
	"encoding/json"

	"github.com/vinayprograms/groupkit/bus"
	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/logging"
	"github.com/vinayprograms/groupkit/task"
)

// Indexer keeps the search index in sync with task lifecycle events.
// Every event carries a task id; the indexer re-reads the task so the
// document always reflects the stored state, and a task that no longer
// exists falls out of the index.
type Indexer struct {
	index *Index
	tasks task.Repository
	log   *logging.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) IndexerOption {
	return func(i *Indexer) {
		i.log = log.WithComponent("search")
	}
}

// NewIndexer creates an indexer feeding the given index.
func NewIndexer(index *Index, tasks task.Repository, opts ...IndexerOption) *Indexer {
	i := &Indexer{
		index: index,
		tasks: tasks,
		log:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// taskRef is the common shape of every task event payload.
type taskRef struct {
	TaskID string `json:"task_id"`
}

// Run consumes all task events until the context is cancelled.
func (i *Indexer) Run(ctx context.Context, b bus.Bus) error {
	sub, err := b.Subscribe("task.*")
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "subscribe task events")
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			var ref taskRef
			if err := json.Unmarshal(msg.Data, &ref); err != nil || ref.TaskID == "" {
				i.log.Warn("unreadable task event", map[string]interface{}{"subject": msg.Subject})
				continue
			}
			i.Sync(ctx, ref.TaskID)
		}
	}
}

// Sync re-reads one task and updates its document. A missing task is
// removed from the index.
func (i *Indexer) Sync(ctx context.Context, taskID string) {
	t, _, err := i.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			if err := i.index.Remove(taskID); err != nil {
				i.log.Warn("remove from index", map[string]interface{}{
					"task":  taskID,
					"error": err.Error(),
				})
			}
			return
		}
		i.log.Warn("read task for indexing", map[string]interface{}{
			"task":  taskID,
			"error": err.Error(),
		})
		return
	}

	if err := i.index.IndexTask(t); err != nil {
		i.log.Warn("index task", map[string]interface{}{
			"task":  taskID,
			"error": err.Error(),
		})
	}
}
