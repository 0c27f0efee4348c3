package quorum

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/groupkit/bus"
	"github.com/vinayprograms/groupkit/clock"
	"github.com/vinayprograms/groupkit/errors"
	"github.com/vinayprograms/groupkit/logging"
	"github.com/vinayprograms/groupkit/notify"
	"github.com/vinayprograms/groupkit/roster"
	"github.com/vinayprograms/groupkit/task"
)

// DefaultTTL is how long a pending request stays approvable.
const DefaultTTL = 72 * time.Hour

// approvalRetries bounds the internal re-read loop when two approvals
// race on the same request version.
const approvalRetries = 3

// Coordinator manages bulk-deletion requests: one pending request per
// group, idempotent approvals, and at-most-once execution when the
// quorum is reached.
type Coordinator struct {
	requests RequestRepository
	tasks    task.Repository
	roster   roster.Roster
	clock    clock.Clock
	sink     notify.Sink
	bus      bus.Bus
	log      *logging.Logger
	ttl      time.Duration
	idGen    func() string
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTTL sets the pending-request lifetime. Zero disables expiry.
func WithTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.ttl = ttl
	}
}

// WithNotifier sets the notification sink.
func WithNotifier(sink notify.Sink) CoordinatorOption {
	return func(c *Coordinator) {
		c.sink = sink
	}
}

// WithBus sets the event bus. Executed requests publish a deletion
// event per removed task so downstream consumers, the search index in
// particular, can drop their copies.
func WithBus(b bus.Bus) CoordinatorOption {
	return func(c *Coordinator) {
		c.bus = b
	}
}

// WithLogger sets the logger.
func WithLogger(log *logging.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = log.WithComponent("quorum")
	}
}

// WithIDGenerator sets a custom request ID generator.
func WithIDGenerator(gen func() string) CoordinatorOption {
	return func(c *Coordinator) {
		c.idGen = gen
	}
}

// NewCoordinator creates a deletion quorum coordinator.
func NewCoordinator(requests RequestRepository, tasks task.Repository, r roster.Roster, clk clock.Clock, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		requests: requests,
		tasks:    tasks,
		roster:   r,
		clock:    clk,
		sink:     notify.Nop{},
		log:      logging.Nop(),
		ttl:      DefaultTTL,
		idGen:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRequest opens a bulk-deletion request for the given tasks.
// Only one request may be pending per group; the quorum is derived
// from the group size at creation time and never recomputed.
func (c *Coordinator) CreateRequest(ctx context.Context, groupID string, taskIDs []string, requestedBy string) (*Request, error) {
	if groupID == "" || requestedBy == "" {
		return nil, errors.New(errors.CodeInvalidInput, "group and requester are required")
	}
	if len(taskIDs) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "no tasks to delete")
	}

	if pending, version, err := c.requests.PendingForGroup(ctx, groupID); err == nil {
		if !c.expired(pending) {
			return nil, errors.AlreadyPending(groupID)
		}
		// Lazy expiry: retire the stale request before opening a new one.
		if err := c.expire(ctx, pending, version); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	members, err := c.roster.CountMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	req := &Request{
		ID:                     c.idGen(),
		GroupID:                groupID,
		RequestedBy:            requestedBy,
		TaskIDs:                append([]string(nil), taskIDs...),
		TotalMembersAtCreation: members,
		RequiredApprovals:      RequiredApprovals(members),
		Status:                 StatusPending,
		CreatedAt:              c.clock.Now(),
	}
	if _, err := c.requests.Save(ctx, req, 0); err != nil {
		return nil, err
	}

	c.notify(ctx, groupID, fmt.Sprintf(
		"%s requested deletion of %d tasks; %d approvals needed",
		requestedBy, len(req.TaskIDs), req.RequiredApprovals))
	return req, nil
}

// RecordApproval registers a member's vote. Repeated votes from the
// same member are no-ops. When the vote reaches the quorum the request
// transitions to executed exactly once and the tasks are deleted.
// Returns the approval count and how many more are needed.
func (c *Coordinator) RecordApproval(ctx context.Context, requestID, memberID string) (approvals, remaining int, err error) {
	if memberID == "" {
		return 0, 0, errors.New(errors.CodeInvalidInput, "member id is empty")
	}

	for attempt := 0; attempt < approvalRetries; attempt++ {
		req, version, err := c.requests.Get(ctx, requestID)
		if err != nil {
			return 0, 0, err
		}

		if req.Status != StatusPending {
			return len(req.Approvals), req.Remaining(),
				errors.RequestExpired(requestID, errors.WithGroupID(req.GroupID))
		}
		if c.expired(req) {
			if err := c.expire(ctx, req, version); err != nil && !errors.Is(err, errors.CodeConflict) {
				return 0, 0, err
			}
			return len(req.Approvals), req.Remaining(),
				errors.RequestExpired(requestID, errors.WithGroupID(req.GroupID))
		}

		if req.HasApproved(memberID) {
			return len(req.Approvals), req.Remaining(), nil
		}

		req.Approvals = append(req.Approvals, memberID)
		reached := len(req.Approvals) >= req.RequiredApprovals
		if reached {
			now := c.clock.Now()
			req.Status = StatusExecuted
			req.ResolvedAt = &now
			req.ResolvedBy = memberID
		}

		// The CAS here is the commit point: two approvals racing to the
		// threshold serialize on the request version, so at most one
		// write flips the status to executed.
		if _, err := c.requests.Save(ctx, req, version); err != nil {
			if errors.Is(err, errors.CodeConflict) {
				continue
			}
			return 0, 0, err
		}

		if reached {
			c.execute(ctx, req)
		}
		return len(req.Approvals), req.Remaining(), nil
	}
	return 0, 0, errors.Conflict("approval contention on request " + requestID)
}

// CancelRequest withdraws a pending request.
func (c *Coordinator) CancelRequest(ctx context.Context, requestID, actorID string) error {
	req, version, err := c.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return errors.Newf(errors.CodeInvalidInput, "request is %s, not pending", req.Status)
	}

	now := c.clock.Now()
	req.Status = StatusCancelled
	req.ResolvedAt = &now
	req.ResolvedBy = actorID
	if _, err := c.requests.Save(ctx, req, version); err != nil {
		return err
	}

	c.notify(ctx, req.GroupID, fmt.Sprintf("%s cancelled the bulk-deletion request", actorID))
	return nil
}

// PendingForGroup surfaces the group's pending request, applying lazy
// expiry: a request past its TTL reads as absent.
func (c *Coordinator) PendingForGroup(ctx context.Context, groupID string) (*Request, error) {
	req, version, err := c.requests.PendingForGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if c.expired(req) {
		if err := c.expire(ctx, req, version); err != nil && !errors.Is(err, errors.CodeConflict) {
			return nil, err
		}
		return nil, errors.NotFound("no pending deletion request for group " + groupID)
	}
	return req, nil
}

// execute deletes exactly the tasks fixed at request creation. The
// status flip already committed, so per-task failures are logged and
// do not resurrect the request; a missing task was deleted by other
// means and is skipped.
func (c *Coordinator) execute(ctx context.Context, req *Request) {
	deleted := 0
	for _, id := range req.TaskIDs {
		if err := c.tasks.Delete(ctx, id); err != nil {
			c.log.Error("delete task", map[string]interface{}{
				"request": req.ID,
				"task":    id,
				"error":   err.Error(),
			})
			continue
		}
		deleted++
		c.publishDeleted(req.GroupID, id)
	}

	c.log.Info("deletion request executed", map[string]interface{}{
		"request": req.ID,
		"deleted": deleted,
	})
	c.notify(ctx, req.GroupID, fmt.Sprintf(
		"bulk deletion approved by %d members; %d tasks deleted", len(req.Approvals), deleted))
}

// publishDeleted announces one removed task. Delivery is best-effort:
// the deletion already committed, so a bus failure is only logged.
func (c *Coordinator) publishDeleted(groupID, taskID string) {
	if c.bus == nil {
		return
	}
	data, err := task.MarshalEvent(task.DeletedEvent{
		TaskID:    taskID,
		GroupID:   groupID,
		DeletedAt: c.clock.Now(),
	})
	if err != nil {
		c.log.Error("marshal deleted event", map[string]interface{}{"task": taskID, "error": err.Error()})
		return
	}
	if err := c.bus.Publish(task.SubjectDeleted, data); err != nil {
		c.log.Warn("publish deleted event", map[string]interface{}{"task": taskID, "error": err.Error()})
	}
}

// expired reports whether a pending request outlived the TTL.
func (c *Coordinator) expired(req *Request) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.clock.Now().Sub(req.CreatedAt) > c.ttl
}

// expire lazily cancels a request past its TTL.
func (c *Coordinator) expire(ctx context.Context, req *Request, version uint64) error {
	now := c.clock.Now()
	req.Status = StatusCancelled
	req.ResolvedAt = &now
	_, err := c.requests.Save(ctx, req, version)
	return err
}

// notify sends a best-effort group message.
func (c *Coordinator) notify(ctx context.Context, groupID, message string) {
	if err := c.sink.Notify(ctx, groupID, message); err != nil {
		c.log.Warn("notify failed", map[string]interface{}{
			"group": groupID,
			"error": err.Error(),
		})
	}
}
