package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskbot/internal/events"
	"taskbot/internal/metrics"
	"taskbot/internal/models"
)

type sentMessage struct {
	chatID int64
	text   string
}

// fakeNotifier records deliveries and fails for chats listed in failFor.
type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	calls   map[int64]int
	failFor map[int64]bool
	delay   time.Duration
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{calls: make(map[int64]int), failFor: make(map[int64]bool)}
}

func (n *fakeNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	if n.delay > 0 {
		select {
		case <-time.After(n.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[chatID]++
	if n.failFor[chatID] {
		return errors.New("chat unavailable")
	}
	n.sent = append(n.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (n *fakeNotifier) chats() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []int64
	for _, m := range n.sent {
		out = append(out, m.chatID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TaskEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.TaskEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func newDispatcher(w *world, n Notifier, pub events.Publisher, opts NotificationOptions) *notificationService {
	if opts.RetryInterval == 0 {
		opts.RetryInterval = time.Millisecond
	}
	d := NewNotificationService(w.gw, n, pub, metrics.New(prometheus.NewRegistry()), testLogger(), opts).(*notificationService)
	d.now = func() time.Time { return testNow }
	return d
}

func TestStatusChangeRecipients(t *testing.T) {
	task := &models.Task{AssigneeID: "a", CreatorID: "c"}

	assert.Equal(t, []string{"c"}, StatusChangeRecipients(task, "a"))
	assert.Equal(t, []string{"a"}, StatusChangeRecipients(task, "c"))
	assert.Equal(t, []string{"a", "c"}, StatusChangeRecipients(task, "m"))

	self := &models.Task{AssigneeID: "a", CreatorID: "a"}
	assert.Empty(t, StatusChangeRecipients(self, "a"))
	assert.Equal(t, []string{"a"}, StatusChangeRecipients(self, "m"))
}

func TestCreationRecipients(t *testing.T) {
	assert.Equal(t, []string{"a"}, CreationRecipients(&models.Task{AssigneeID: "a", CreatorID: "c"}))
	assert.Empty(t, CreationRecipients(&models.Task{AssigneeID: "c", CreatorID: "c"}))
}

func TestStatusChangedNeverNotifiesActor(t *testing.T) {
	w := newWorld(t)
	task := w.seedTask(t, models.StatusInProgress)

	for _, actor := range []*models.User{w.assignee, w.director, w.manager} {
		n := newFakeNotifier()
		d := newDispatcher(w, n, nil, NotificationOptions{Timeout: time.Second})

		report := d.StatusChanged(context.Background(), task, actor.ID)
		delivered, _ := report.Wait()
		assert.NotContains(t, n.chats(), actor.ExternalID, "actor %s", actor.Role)
		assert.NotContains(t, report.Recipients, actor.ID)
		assert.Equal(t, len(report.Recipients), delivered)
	}
}

func TestStatusChangedMessage(t *testing.T) {
	w := newWorld(t)
	task := w.seedTask(t, models.StatusCompleted)
	n := newFakeNotifier()
	pub := &recordingPublisher{}
	d := newDispatcher(w, n, pub, NotificationOptions{Timeout: time.Second})

	d.StatusChanged(context.Background(), task, w.assignee.ID).Wait()

	require.Len(t, n.sent, 1)
	assert.Equal(t, w.director.ExternalID, n.sent[0].chatID)
	assert.Contains(t, n.sent[0].text, "Выполнена")
	assert.Contains(t, n.sent[0].text, "Изменил: Arman")

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TaskStatusChanged, pub.events[0].Type)
	assert.Equal(t, w.assignee.ID, pub.events[0].ActorID)
}

func TestFailedRecipientDoesNotBlockOthers(t *testing.T) {
	w := newWorld(t)
	task := w.seedTask(t, models.StatusInProgress)
	n := newFakeNotifier()
	n.failFor[w.assignee.ExternalID] = true
	d := newDispatcher(w, n, nil, NotificationOptions{Timeout: time.Second, MaxRetries: 2})

	delivered, failed := d.StatusChanged(context.Background(), task, w.manager.ID).Wait()

	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []int64{w.director.ExternalID}, n.chats())
	assert.Equal(t, 3, n.calls[w.assignee.ExternalID], "one attempt plus two retries")
}

func TestDeliveriesRunConcurrently(t *testing.T) {
	w := newWorld(t)
	task := w.seedTask(t, models.StatusInProgress)
	n := newFakeNotifier()
	n.delay = 200 * time.Millisecond
	d := newDispatcher(w, n, nil, NotificationOptions{Timeout: time.Second})

	start := time.Now()
	delivered, _ := d.StatusChanged(context.Background(), task, w.manager.ID).Wait()

	assert.Equal(t, 2, delivered)
	assert.Less(t, time.Since(start), 390*time.Millisecond)
}

func TestDeliveryIsBoundedByTimeout(t *testing.T) {
	w := newWorld(t)
	task := w.seedTask(t, models.StatusNew)
	n := newFakeNotifier()
	n.delay = time.Second
	d := newDispatcher(w, n, nil, NotificationOptions{Timeout: 50 * time.Millisecond, MaxRetries: 5})

	start := time.Now()
	_, failed := d.Overdue(context.Background(), task).Wait()

	assert.Equal(t, 1, failed)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTaskCreatedNotifiesAssigneeOnly(t *testing.T) {
	w := newWorld(t)
	task := w.seedTask(t, models.StatusNew)
	task.Urgent = true
	n := newFakeNotifier()
	d := newDispatcher(w, n, nil, NotificationOptions{Timeout: time.Second, Location: time.UTC})

	d.TaskCreated(context.Background(), task).Wait()

	require.Len(t, n.sent, 1)
	assert.Equal(t, w.assignee.ExternalID, n.sent[0].chatID)
	assert.True(t, strings.HasPrefix(n.sent[0].text, "📋 Вам назначена новая задача!"))
	assert.Contains(t, n.sent[0].text, "СРОЧНО")
	assert.Contains(t, n.sent[0].text, "Дедлайн: 12.03.2025 09:00")
}

func TestDeadlineApproachingText(t *testing.T) {
	w := newWorld(t)
	task := w.seedTask(t, models.StatusNew)
	scanAt := testNow.Add(time.Hour)
	task.Deadline = scanAt.Add(90 * time.Minute)
	n := newFakeNotifier()
	d := newDispatcher(w, n, nil, NotificationOptions{Timeout: time.Second})

	d.DeadlineApproaching(context.Background(), task, scanAt).Wait()

	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0].text, "⏰ Напоминание о дедлайне!")
	assert.Contains(t, n.sent[0].text, "Осталось: 1 ч. 30 мин.")
}

// hangingNotifier blocks deliveries to one chat until their context ends and
// records when every other chat got its message.
type hangingNotifier struct {
	hung    int64
	started time.Time

	mu        sync.Mutex
	delivered map[int64]time.Duration
}

func (n *hangingNotifier) Notify(ctx context.Context, chatID int64, _ string) error {
	if chatID == n.hung {
		<-ctx.Done()
		return ctx.Err()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered[chatID] = time.Since(n.started)
	return nil
}

func (n *hangingNotifier) after(chatID int64) (time.Duration, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	d, ok := n.delivered[chatID]
	return d, ok
}

func TestHungRecipientDoesNotDelayOtherTasks(t *testing.T) {
	w := newWorld(t)
	stuck := w.seedTask(t, models.StatusOverdue)
	other := w.seedTask(t, models.StatusOverdue)
	other.AssigneeID = w.manager.ID

	n := &hangingNotifier{hung: w.assignee.ExternalID, started: time.Now(), delivered: map[int64]time.Duration{}}
	d := newDispatcher(w, n, nil, NotificationOptions{Timeout: 300 * time.Millisecond})

	first := d.Overdue(context.Background(), stuck)
	second := d.Overdue(context.Background(), other)
	assert.Less(t, time.Since(n.started), 100*time.Millisecond, "dispatch returns before delivery ends")

	delivered, _ := second.Wait()
	assert.Equal(t, 1, delivered)
	took, ok := n.after(w.manager.ExternalID)
	require.True(t, ok)
	assert.Less(t, took, 150*time.Millisecond)

	_, failed := first.Wait()
	assert.Equal(t, 1, failed)
}

func TestDrainWaitsForInFlightDeliveries(t *testing.T) {
	w := newWorld(t)
	task := w.seedTask(t, models.StatusInProgress)
	n := newFakeNotifier()
	n.delay = 100 * time.Millisecond
	d := newDispatcher(w, n, nil, NotificationOptions{Timeout: time.Second})

	d.StatusChanged(context.Background(), task, w.manager.ID)
	require.NoError(t, d.Drain(context.Background()))
	assert.Len(t, n.chats(), 2)

	n.delay = time.Second
	d.Overdue(context.Background(), task)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Drain(ctx), context.DeadlineExceeded)
	require.NoError(t, d.Drain(context.Background()))
}
