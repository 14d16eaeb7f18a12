package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"

	"realtime-notifier/internal/domain"
	"realtime-notifier/internal/queue"
)

type fakeStore struct {
	mu     sync.Mutex
	notifs map[string]*domain.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{notifs: make(map[string]*domain.Notification)}
}

func (s *fakeStore) Create(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	s.notifs[n.ID] = &cp
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *fakeStore) MarkDelivered(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifs[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Delivered = true
	return nil
}

func (s *fakeStore) MarkRead(_ context.Context, id, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifs[id]
	if !ok || n.RecipientID != recipientID || n.Read {
		return domain.ErrNotFound
	}
	n.Read = true
	return nil
}

func (s *fakeStore) MarkAllRead(_ context.Context, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifs {
		if n.RecipientID == recipientID {
			n.Read = true
		}
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifs[id]
	if !ok || n.RecipientID != recipientID {
		return domain.ErrNotFound
	}
	delete(s.notifs, id)
	return nil
}

func (s *fakeStore) DeleteAll(_ context.Context, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.notifs {
		if n.RecipientID == recipientID {
			delete(s.notifs, id)
		}
	}
	return nil
}

func (s *fakeStore) ListByRecipient(_ context.Context, recipientID string, limit int) ([]*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Notification
	for _, n := range s.notifs {
		if n.RecipientID == recipientID {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CountUnread(_ context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.notifs {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

type fakeDeliveries struct {
	mu        sync.Mutex
	records   map[string]*domain.DeliveryRecord
	store     *fakeStore
	createErr error
	expired   []*domain.DeliveryRecord
	stale     []*domain.DeliveryRecord
}

func newFakeDeliveries(store *fakeStore) *fakeDeliveries {
	return &fakeDeliveries{records: make(map[string]*domain.DeliveryRecord), store: store}
}

func (d *fakeDeliveries) CreateDelivery(_ context.Context, rec *domain.DeliveryRecord) error {
	if d.createErr != nil {
		return d.createErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *rec
	d.records[rec.NotificationID] = &cp
	return nil
}

func (d *fakeDeliveries) GetDelivery(_ context.Context, id string) (*domain.DeliveryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (d *fakeDeliveries) MarkPublished(_ context.Context, id string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[id]
	if !ok || (rec.Status != domain.StatusQueued && rec.Status != domain.StatusPendingAck) {
		return 0, domain.ErrNotFound
	}
	rec.AttemptCount++
	rec.Status = domain.StatusPendingAck
	return rec.AttemptCount, nil
}

func (d *fakeDeliveries) Acknowledge(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, id)
	return nil
}

func (d *fakeDeliveries) MarkDeadLettered(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = domain.StatusDeadLettered
	return nil
}

func (d *fakeDeliveries) Requeue(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[id]
	if !ok || rec.Status != domain.StatusDeadLettered {
		return domain.ErrNotFound
	}
	rec.Status = domain.StatusQueued
	rec.AttemptCount = 0
	return nil
}

func (d *fakeDeliveries) ListDeadLettered(_ context.Context, limit int) ([]*domain.DeliveryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*domain.DeliveryRecord
	for _, rec := range d.records {
		if rec.Status == domain.StatusDeadLettered && len(out) < limit {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (d *fakeDeliveries) DeleteDelivery(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, id)
	return nil
}

func (d *fakeDeliveries) DeleteAllDeliveriesForRecipient(_ context.Context, recipientID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, rec := range d.records {
		if rec.RecipientID == recipientID {
			delete(d.records, id)
		}
	}
	return nil
}

func (d *fakeDeliveries) ExpirePendingAcks(_ context.Context, _ time.Duration) ([]*domain.DeliveryRecord, error) {
	return d.expired, nil
}

func (d *fakeDeliveries) StaleQueued(_ context.Context, _ time.Duration) ([]*domain.DeliveryRecord, error) {
	return d.stale, nil
}

func (d *fakeDeliveries) Backlog(_ context.Context, recipientID string) ([]*domain.Notification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*domain.Notification
	for id, rec := range d.records {
		if rec.RecipientID != recipientID {
			continue
		}
		if rec.Status != domain.StatusQueued && rec.Status != domain.StatusPendingAck {
			continue
		}
		if n, ok := d.store.notifs[id]; ok {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type fakePrefs struct {
	prefs map[string]*domain.UserPreferences
}

func (p *fakePrefs) GetPreferences(_ context.Context, recipientID string) (*domain.UserPreferences, error) {
	if prefs, ok := p.prefs[recipientID]; ok {
		return prefs, nil
	}
	return domain.DefaultPreferences(recipientID), nil
}

func (p *fakePrefs) UpsertPreferences(_ context.Context, prefs *domain.UserPreferences) error {
	p.prefs[prefs.RecipientID] = prefs
	return nil
}

type enqueueCall struct {
	msg   queue.Message
	delay time.Duration
}

type fakeQueue struct {
	mu         sync.Mutex
	enqueued   []queue.Message
	delayed    []enqueueCall
	enqueueErr error
}

func (q *fakeQueue) Enqueue(_ context.Context, msg queue.Message) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, msg)
	return nil
}

func (q *fakeQueue) EnqueueDelayed(_ context.Context, msg queue.Message, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, enqueueCall{msg: msg, delay: delay})
	return nil
}

type fakeRegistry struct {
	entries map[string][]domain.RegistryEntry
}

func (r *fakeRegistry) Lookup(_ context.Context, recipientID string) ([]domain.RegistryEntry, error) {
	return r.entries[recipientID], nil
}

type publishCall struct {
	instance string
	env      *domain.Envelope
}

type fakeFanout struct {
	mu      sync.Mutex
	publish []publishCall
}

func (f *fakeFanout) Publish(_ context.Context, serverInstanceID string, env *domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publish = append(f.publish, publishCall{instance: serverInstanceID, env: env})
	return nil
}

func (f *fakeFanout) notifications() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishCall
	for _, c := range f.publish {
		if c.env.Notification != nil {
			out = append(out, c)
		}
	}
	return out
}

type sentChannel struct {
	channel domain.Channel
	id      string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentChannel
}

func (s *fakeSender) Send(_ context.Context, channel domain.Channel, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentChannel{channel: channel, id: n.ID})
	return nil
}

type env struct {
	store      *fakeStore
	deliveries *fakeDeliveries
	prefs      *fakePrefs
	queue      *fakeQueue
	registry   *fakeRegistry
	fanout     *fakeFanout
	sender     *fakeSender
	uc         *NotificationUsecase
}

func newEnv() *env {
	store := newFakeStore()
	deliveries := newFakeDeliveries(store)
	prefs := &fakePrefs{prefs: make(map[string]*domain.UserPreferences)}
	q := &fakeQueue{}
	reg := &fakeRegistry{entries: make(map[string][]domain.RegistryEntry)}
	fan := &fakeFanout{}
	sender := &fakeSender{}
	uc := New(store, deliveries, prefs, q, reg, fan, sender, retry.Strategy{Attempts: 1}, Options{
		MaxAttempts:   5,
		AckDeadline:   30 * time.Second,
		SweepInterval: time.Minute,
	})
	return &env{store: store, deliveries: deliveries, prefs: prefs, queue: q, registry: reg, fanout: fan, sender: sender, uc: uc}
}

func (e *env) online(recipientID string, instances ...string) {
	var entries []domain.RegistryEntry
	for i, inst := range instances {
		entries = append(entries, domain.RegistryEntry{
			RecipientID:      recipientID,
			DeviceID:         string(rune('a' + i)),
			ServerInstanceID: inst,
			LastHeartbeat:    time.Now(),
		})
	}
	e.registry.entries[recipientID] = entries
}

func sendReq(recipient string) *domain.CreateNotification {
	return &domain.CreateNotification{
		RecipientID: recipient,
		Type:        "comment",
		Title:       "New comment",
		Body:        "Someone replied",
		Priority:    domain.PriorityMedium,
	}
}

func TestSendPersistsAndQueues(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)
	require.NotEmpty(t, notif.ID)

	stored, err := e.store.Get(ctx, notif.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.RecipientID)

	rec, err := e.deliveries.GetDelivery(ctx, notif.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, rec.Status)
	assert.Contains(t, rec.Channels, domain.ChannelInApp)

	require.Len(t, e.queue.enqueued, 1)
	assert.Equal(t, notif.ID, e.queue.enqueued[0].NotificationID)
	assert.Equal(t, "user-1", e.queue.enqueued[0].RecipientID)
}

func TestSendValidation(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, err := e.uc.Send(ctx, &domain.CreateNotification{Type: "x", Title: "y", Priority: domain.PriorityLow})
	assert.ErrorIs(t, err, domain.ErrMissingRecipient)

	_, err = e.uc.Send(ctx, &domain.CreateNotification{RecipientID: "u", Priority: domain.PriorityLow})
	assert.ErrorIs(t, err, domain.ErrMalformed)

	_, err = e.uc.Send(ctx, &domain.CreateNotification{RecipientID: "u", Type: "x", Title: "y", Priority: "urgent"})
	assert.ErrorIs(t, err, domain.ErrInvalidPriority)
}

func TestSendDroppedByPreferencesNeverQueued(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.prefs.prefs["user-1"] = &domain.UserPreferences{
		RecipientID:  "user-1",
		DoNotDisturb: true,
		Channels:     domain.ChannelToggles{InApp: true},
	}

	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)

	_, err = e.store.Get(ctx, notif.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.deliveries.GetDelivery(ctx, notif.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, e.queue.enqueued)
}

func TestSendRecordFailureIsEnqueueFailed(t *testing.T) {
	e := newEnv()
	e.deliveries.createErr = assert.AnError

	_, err := e.uc.Send(context.Background(), sendReq("user-1"))
	assert.ErrorIs(t, err, domain.ErrEnqueueFailed)
	assert.Empty(t, e.queue.enqueued)
}

func TestProcessDeliveryOfflineDefers(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)

	msg := queue.Message{NotificationID: notif.ID, RecipientID: "user-1"}
	require.NoError(t, e.uc.ProcessDelivery(ctx, msg))

	rec, err := e.deliveries.GetDelivery(ctx, notif.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, rec.Status)
	assert.Zero(t, rec.AttemptCount)
	require.Len(t, e.queue.delayed, 1)
	assert.Equal(t, time.Minute, e.queue.delayed[0].delay)
	assert.Empty(t, e.fanout.publish)
}

func TestProcessDeliveryFansOutOncePerInstance(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)

	// two devices on server-a, one on server-b
	e.registry.entries["user-1"] = []domain.RegistryEntry{
		{RecipientID: "user-1", DeviceID: "phone", ServerInstanceID: "server-a"},
		{RecipientID: "user-1", DeviceID: "laptop", ServerInstanceID: "server-a"},
		{RecipientID: "user-1", DeviceID: "tablet", ServerInstanceID: "server-b"},
	}

	msg := queue.Message{NotificationID: notif.ID, RecipientID: "user-1"}
	require.NoError(t, e.uc.ProcessDelivery(ctx, msg))

	rec, err := e.deliveries.GetDelivery(ctx, notif.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingAck, rec.Status)
	assert.Equal(t, 1, rec.AttemptCount)

	notifCalls := e.fanout.notifications()
	require.Len(t, notifCalls, 2)
	instances := []string{notifCalls[0].instance, notifCalls[1].instance}
	assert.ElementsMatch(t, []string{"server-a", "server-b"}, instances)
}

func TestProcessDeliveryIdempotentOnRedelivery(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)
	e.online("user-1", "server-a")

	msg := queue.Message{NotificationID: notif.ID, RecipientID: "user-1"}
	require.NoError(t, e.uc.ProcessDelivery(ctx, msg))
	require.NoError(t, e.uc.ProcessDelivery(ctx, msg))

	rec, err := e.deliveries.GetDelivery(ctx, notif.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.AttemptCount)
	// side channels fire only on the first attempt: default preferences
	// enable push, so two deliveries still mean exactly one push send
	require.Len(t, e.sender.sent, 1)
	assert.Equal(t, domain.ChannelPush, e.sender.sent[0].channel)
	assert.Equal(t, notif.ID, e.sender.sent[0].id)
}

func TestProcessDeliverySideChannelsFireOnce(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	req := sendReq("user-1")
	req.Priority = domain.PriorityHigh // high priority adds email
	notif, err := e.uc.Send(ctx, req)
	require.NoError(t, err)
	e.online("user-1", "server-a")

	msg := queue.Message{NotificationID: notif.ID, RecipientID: "user-1"}
	require.NoError(t, e.uc.ProcessDelivery(ctx, msg))
	require.NoError(t, e.uc.ProcessDelivery(ctx, msg))

	var emails int
	for _, s := range e.sender.sent {
		if s.channel == domain.ChannelEmail {
			emails++
		}
	}
	assert.Equal(t, 1, emails)
}

func TestProcessDeliveryDeadLettersAfterMaxAttempts(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)
	e.online("user-1", "server-a")

	msg := queue.Message{NotificationID: notif.ID, RecipientID: "user-1"}
	for i := 0; i < 5; i++ {
		require.NoError(t, e.uc.ProcessDelivery(ctx, msg))
	}
	assert.Len(t, e.fanout.notifications(), 5)

	// sixth attempt crosses the ceiling
	require.NoError(t, e.uc.ProcessDelivery(ctx, msg))
	rec, err := e.deliveries.GetDelivery(ctx, notif.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeadLettered, rec.Status)
	assert.Len(t, e.fanout.notifications(), 5)

	// dead-lettered records are terminal
	require.NoError(t, e.uc.ProcessDelivery(ctx, msg))
	rec, err = e.deliveries.GetDelivery(ctx, notif.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, rec.AttemptCount)
}

func TestProcessDeliveryMissingRecordIsNoop(t *testing.T) {
	e := newEnv()
	msg := queue.Message{NotificationID: "gone", RecipientID: "user-1"}
	require.NoError(t, e.uc.ProcessDelivery(context.Background(), msg))
	assert.Empty(t, e.fanout.publish)
	assert.Empty(t, e.queue.delayed)
}

func TestProcessDeliveryOrphanedRecordIsCleaned(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	rec := &domain.DeliveryRecord{NotificationID: "n1", RecipientID: "user-1", Status: domain.StatusQueued}
	require.NoError(t, e.deliveries.CreateDelivery(ctx, rec))

	msg := queue.Message{NotificationID: "n1", RecipientID: "user-1"}
	require.NoError(t, e.uc.ProcessDelivery(ctx, msg))

	_, err := e.deliveries.GetDelivery(ctx, "n1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAckMarksDeliveredAndIsIdempotent(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)

	require.NoError(t, e.uc.Ack(ctx, "user-1", notif.ID))
	stored, err := e.store.Get(ctx, notif.ID)
	require.NoError(t, err)
	assert.True(t, stored.Delivered)
	_, err = e.deliveries.GetDelivery(ctx, notif.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// duplicate ack from another device
	require.NoError(t, e.uc.Ack(ctx, "user-1", notif.ID))
	// stale ack for an id that never existed
	require.NoError(t, e.uc.Ack(ctx, "user-1", "long-gone"))
}

func TestAckAfterDeleteIsNoop(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)

	require.NoError(t, e.uc.Delete(ctx, "user-1", notif.ID))
	require.NoError(t, e.uc.Ack(ctx, "user-1", notif.ID))
	_, err = e.store.Get(ctx, notif.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkReadIdempotentAndPushesCount(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)
	e.online("user-1", "server-a")

	require.NoError(t, e.uc.MarkRead(ctx, "user-1", notif.ID))
	count, err := e.uc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	published := len(e.fanout.publish)
	require.Greater(t, published, 0)
	last := e.fanout.publish[published-1]
	require.NotNil(t, last.env.UnreadCount)
	assert.Equal(t, 0, *last.env.UnreadCount)

	// re-reading is a no-op and pushes nothing new
	require.NoError(t, e.uc.MarkRead(ctx, "user-1", notif.ID))
	assert.Len(t, e.fanout.publish, published)
}

func TestMarkAllRead(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := e.uc.Send(ctx, sendReq("user-1"))
		require.NoError(t, err)
	}
	require.NoError(t, e.uc.MarkAllRead(ctx, "user-1"))
	count, err := e.uc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClearAllRemovesEverything(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	n1, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)
	n2, err := e.uc.Send(ctx, sendReq("user-2"))
	require.NoError(t, err)

	require.NoError(t, e.uc.ClearAll(ctx, "user-1"))
	_, err = e.store.Get(ctx, n1.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	// other recipients untouched
	_, err = e.store.Get(ctx, n2.ID)
	assert.NoError(t, err)
}

func TestBacklogFlipsRecordsAndOrders(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	n1, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)
	n2, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)

	backlog, err := e.uc.Backlog(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, backlog, 2)

	for _, id := range []string{n1.ID, n2.ID} {
		rec, err := e.deliveries.GetDelivery(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPendingAck, rec.Status)
		assert.Equal(t, 1, rec.AttemptCount)
	}
}

func TestBacklogAfterAckIsEmpty(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)

	backlog, err := e.uc.Backlog(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	require.NoError(t, e.uc.Ack(ctx, "user-1", notif.ID))

	// reconnecting after the ack owes nothing
	backlog, err = e.uc.Backlog(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, backlog)
}

func TestBacklogDeadLettersExhaustedRecords(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)

	rec, err := e.deliveries.GetDelivery(ctx, notif.ID)
	require.NoError(t, err)
	e.deliveries.mu.Lock()
	e.deliveries.records[rec.NotificationID].AttemptCount = 5
	e.deliveries.mu.Unlock()

	backlog, err := e.uc.Backlog(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, backlog)
	rec, err = e.deliveries.GetDelivery(ctx, notif.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeadLettered, rec.Status)
}

func TestSweepReenqueuesExpired(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	e.deliveries.expired = []*domain.DeliveryRecord{
		{NotificationID: "n1", RecipientID: "user-1", Status: domain.StatusPendingAck},
	}
	e.deliveries.stale = []*domain.DeliveryRecord{
		{NotificationID: "n2", RecipientID: "user-2", Status: domain.StatusQueued},
	}

	e.uc.Sweep(ctx)
	require.Len(t, e.queue.enqueued, 2)
	ids := []string{e.queue.enqueued[0].NotificationID, e.queue.enqueued[1].NotificationID}
	assert.ElementsMatch(t, []string{"n1", "n2"}, ids)
}

func TestRequeueDeadLetterRestoresDelivery(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	notif, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)
	require.NoError(t, e.deliveries.MarkDeadLettered(ctx, notif.ID))

	letters, err := e.uc.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, notif.ID, letters[0].NotificationID)

	before := len(e.queue.enqueued)
	require.NoError(t, e.uc.RequeueDeadLetter(ctx, notif.ID))

	rec, err := e.deliveries.GetDelivery(ctx, notif.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, rec.Status)
	assert.Zero(t, rec.AttemptCount)
	require.Len(t, e.queue.enqueued, before+1)

	// only dead-lettered records can be requeued
	assert.ErrorIs(t, e.uc.RequeueDeadLetter(ctx, notif.ID), domain.ErrNotFound)
}

func TestPushUnreadCountSkipsOffline(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	_, err := e.uc.Send(ctx, sendReq("user-1"))
	require.NoError(t, err)

	e.uc.PushUnreadCount(ctx, "user-1")
	assert.Empty(t, e.fanout.publish)

	e.online("user-1", "server-a")
	e.uc.PushUnreadCount(ctx, "user-1")
	require.Len(t, e.fanout.publish, 1)
	require.NotNil(t, e.fanout.publish[0].env.UnreadCount)
	assert.Equal(t, 1, *e.fanout.publish[0].env.UnreadCount)
}
