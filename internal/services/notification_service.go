package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"taskbot/internal/events"
	"taskbot/internal/metrics"
	"taskbot/internal/models"
	"taskbot/internal/repositories"
)

// Notifier delivers one text to one chat.
type Notifier interface {
	Notify(ctx context.Context, externalID int64, text string) error
}

// Dispatcher composes task notifications and fans them out to recipients.
// Methods return as soon as deliveries are started; failures are logged and
// counted, never returned. Drain waits for deliveries still in flight.
type Dispatcher interface {
	TaskCreated(ctx context.Context, task *models.Task) DispatchReport
	StatusChanged(ctx context.Context, task *models.Task, actorID string) DispatchReport
	CommentAdded(ctx context.Context, task *models.Task, comment *models.Comment) DispatchReport
	DeadlineApproaching(ctx context.Context, task *models.Task, now time.Time) DispatchReport
	Overdue(ctx context.Context, task *models.Task) DispatchReport
	Drain(ctx context.Context) error
}

// DispatchReport describes one fan-out. The zero value has no recipients.
type DispatchReport struct {
	Recipients []string
	outcome    *outcome
}

type outcome struct {
	wg        sync.WaitGroup
	delivered atomic.Int32
	failed    atomic.Int32
}

// Wait blocks until every delivery of this fan-out has finished.
func (r DispatchReport) Wait() (delivered, failed int) {
	if r.outcome == nil {
		return 0, 0
	}
	r.outcome.wg.Wait()
	return int(r.outcome.delivered.Load()), int(r.outcome.failed.Load())
}

type NotificationOptions struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	Location      *time.Location
}

type notificationService struct {
	users     repositories.UserRepository
	companies repositories.CompanyRepository
	notifier  Notifier
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      NotificationOptions
	now       func() time.Time

	inflight inflight
}

// inflight counts running deliveries. idle is closed whenever the count
// drops to zero, so Drain can wait while new deliveries keep starting.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

func (f *inflight) wait() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return f.idle
}

func NewNotificationService(
	gw *repositories.Gateway,
	notifier Notifier,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts NotificationOptions,
) Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &notificationService{
		users:     gw.Users,
		companies: gw.Companies,
		notifier:  notifier,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// StatusChangeRecipients is {assignee, creator} without the actor.
func StatusChangeRecipients(task *models.Task, actorID string) []string {
	var out []string
	for _, id := range []string{task.AssigneeID, task.CreatorID} {
		if id == "" || id == actorID || (len(out) > 0 && out[0] == id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// CreationRecipients is the assignee unless they created the task themselves.
func CreationRecipients(task *models.Task) []string {
	if task.AssigneeID == task.CreatorID {
		return nil
	}
	return []string{task.AssigneeID}
}

func (s *notificationService) TaskCreated(ctx context.Context, task *models.Task) DispatchReport {
	s.publish(ctx, events.TaskCreated, task, task.CreatorID)
	recipients := CreationRecipients(task)
	if len(recipients) == 0 {
		return DispatchReport{}
	}
	text := taskCreatedText(task, s.companyName(ctx, task.CompanyID), s.opts.Location)
	return s.fanOut(ctx, task, recipients, text)
}

func (s *notificationService) StatusChanged(ctx context.Context, task *models.Task, actorID string) DispatchReport {
	s.publish(ctx, events.TaskStatusChanged, task, actorID)
	recipients := StatusChangeRecipients(task, actorID)
	if len(recipients) == 0 {
		return DispatchReport{}
	}
	text := statusChangedText(task, s.companyName(ctx, task.CompanyID), s.actorName(ctx, actorID))
	return s.fanOut(ctx, task, recipients, text)
}

func (s *notificationService) CommentAdded(ctx context.Context, task *models.Task, comment *models.Comment) DispatchReport {
	s.publish(ctx, events.TaskCommented, task, comment.AuthorID)
	recipients := StatusChangeRecipients(task, comment.AuthorID)
	if len(recipients) == 0 {
		return DispatchReport{}
	}
	text := commentText(task, s.actorName(ctx, comment.AuthorID), comment)
	return s.fanOut(ctx, task, recipients, text)
}

// DeadlineApproaching reports the time left relative to now, the instant the
// caller's scan ran at.
func (s *notificationService) DeadlineApproaching(ctx context.Context, task *models.Task, now time.Time) DispatchReport {
	s.publish(ctx, events.DeadlineApproaching, task, "")
	left := task.Deadline.Sub(now)
	text := approachingText(task, s.companyName(ctx, task.CompanyID), left, s.opts.Location)
	return s.fanOut(ctx, task, []string{task.AssigneeID}, text)
}

func (s *notificationService) Overdue(ctx context.Context, task *models.Task) DispatchReport {
	s.publish(ctx, events.TaskOverdue, task, "")
	text := overdueText(task, s.companyName(ctx, task.CompanyID), s.opts.Location)
	return s.fanOut(ctx, task, []string{task.AssigneeID}, text)
}

// fanOut starts one delivery per recipient and returns without waiting.
func (s *notificationService) fanOut(ctx context.Context, task *models.Task, recipients []string, text string) DispatchReport {
	report := DispatchReport{Recipients: recipients, outcome: &outcome{}}
	// задача копируется: вызывающий может переиспользовать структуру
	snapshot := *task
	for _, userID := range recipients {
		report.outcome.wg.Add(1)
		s.inflight.add()
		go func(userID string) {
			defer s.inflight.done()
			defer report.outcome.wg.Done()
			ok := s.deliver(ctx, &snapshot, userID, text)
			s.metrics.Delivery(ok)
			if ok {
				report.outcome.delivered.Add(1)
			} else {
				report.outcome.failed.Add(1)
			}
		}(userID)
	}
	return report
}

// Drain waits until no delivery is running, or until ctx is done.
func (s *notificationService) Drain(ctx context.Context) error {
	select {
	case <-s.inflight.wait():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain notifications: %w", ctx.Err())
	}
}

// deliver sends text to one user, retrying with exponential backoff inside
// the per-recipient timeout. The caller's cancellation does not cut a
// delivery short.
func (s *notificationService) deliver(ctx context.Context, task *models.Task, userID, text string) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
	defer cancel()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("Notification recipient lookup failed", "task_id", task.ID, "user_id", userID, "error", err)
		return false
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.opts.RetryInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.opts.MaxRetries)), ctx)

	attempts := 0
	err = backoff.Retry(func() error {
		attempts++
		return s.notifier.Notify(ctx, user.ExternalID, text)
	}, policy)
	if err != nil {
		s.logger.Error("Notification delivery failed",
			"task_id", task.ID, "user_id", userID, "attempts", attempts, "error", err)
		return false
	}
	s.logger.Debug("Notification delivered", "task_id", task.ID, "user_id", userID, "attempts", attempts)
	return true
}

func (s *notificationService) publish(ctx context.Context, typ events.Type, task *models.Task, actorID string) {
	ev := events.TaskEvent{
		Type: typ, TaskID: task.ID, Status: string(task.Status), ActorID: actorID, OccurredAt: s.now(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("Task event not published", "type", typ, "task_id", task.ID, "error", err)
	}
}

func (s *notificationService) companyName(ctx context.Context, id string) string {
	c, err := s.companies.FindByID(ctx, id)
	if err != nil {
		s.logger.Warn("Company lookup for notification failed", "company_id", id, "error", err)
		return "не указана"
	}
	return c.Name
}

func (s *notificationService) actorName(ctx context.Context, id string) string {
	if id == "" {
		return PersonName(nil)
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return PersonName(nil)
	}
	return PersonName(u)
}

// LogNotifier writes notifications to the log. It stands in for the chat
// channel when no bot token is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, externalID int64, text string) error {
	n.Logger.Info("Notification", "external_id", externalID, "text", text)
	return nil
}
