package usecase

import (
	"context"
	"time"

	"realtime-notifier/internal/domain"
	"realtime-notifier/internal/filter"
	"realtime-notifier/internal/queue"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

type Options struct {
	MaxAttempts   int
	AckDeadline   time.Duration
	SweepInterval time.Duration
}

type NotificationUsecase struct {
	store      NotificationStore
	deliveries DeliveryStore
	prefs      PreferenceStore
	queue      Queue
	registry   Registry
	fanout     Broadcaster
	sender     SideChannelSender
	retries    retry.Strategy
	opts       Options

	// serializes ack/read/delete handling per recipient
	perRecipient *keyedMutex
}

func New(
	store NotificationStore,
	deliveries DeliveryStore,
	prefs PreferenceStore,
	q Queue,
	registry Registry,
	fanout Broadcaster,
	sender SideChannelSender,
	retries retry.Strategy,
	opts Options,
) *NotificationUsecase {
	return &NotificationUsecase{
		store:        store,
		deliveries:   deliveries,
		prefs:        prefs,
		queue:        q,
		registry:     registry,
		fanout:       fanout,
		sender:       sender,
		retries:      retries,
		opts:         opts,
		perRecipient: newKeyedMutex(),
	}
}

// Send is the producer-facing accept call. It returns once the notification
// is durably recorded; actual delivery happens asynchronously. A dropped
// notification (preference filter) is terminal and never queued.
func (u *NotificationUsecase) Send(ctx context.Context, req *domain.CreateNotification) (*domain.Notification, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	notif := &domain.Notification{
		ID:          uuid.New().String(),
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Title:       req.Title,
		Body:        req.Body,
		Priority:    req.Priority,
		Metadata:    req.Metadata,
		ActionURL:   req.ActionURL,
		CreatedAt:   time.Now().UTC(),
	}

	prefs, err := u.prefs.GetPreferences(ctx, notif.RecipientID)
	if err != nil {
		return nil, err
	}
	decision := filter.Decide(notif, prefs, time.Now())
	if !decision.Deliver {
		zlog.Logger.Info().Str("id", notif.ID).Str("recipient", notif.RecipientID).Msg("Notification dropped by preferences")
		return notif, nil
	}

	if err := u.store.Create(ctx, notif); err != nil {
		return nil, err
	}
	rec := &domain.DeliveryRecord{
		NotificationID: notif.ID,
		RecipientID:    notif.RecipientID,
		Channels:       decision.Channels,
		Status:         domain.StatusQueued,
		EnqueuedAt:     time.Now().UTC(),
	}
	if err := u.deliveries.CreateDelivery(ctx, rec); err != nil {
		return nil, domain.ErrEnqueueFailed
	}

	// broker publish failures are survivable: the record is durable and
	// the sweep re-enqueues it
	msg := queue.Message{NotificationID: notif.ID, RecipientID: notif.RecipientID}
	if err := u.queue.Enqueue(ctx, msg); err != nil {
		zlog.Logger.Warn().Err(err).Str("id", notif.ID).Msg("Failed to publish to broker, sweep will retry")
	}
	return notif, nil
}

// ProcessDelivery is one step of the delivery state machine, invoked by the
// worker per dequeued message. Idempotent on notification id.
func (u *NotificationUsecase) ProcessDelivery(ctx context.Context, msg queue.Message) error {
	rec, err := u.deliveries.GetDelivery(ctx, msg.NotificationID)
	if err == domain.ErrNotFound {
		// already acknowledged or deleted
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status == domain.StatusDeadLettered || rec.Status == domain.StatusAcknowledged {
		return nil
	}

	notif, err := u.store.Get(ctx, msg.NotificationID)
	if err == domain.ErrNotFound {
		return u.deliveries.DeleteDelivery(ctx, msg.NotificationID)
	}
	if err != nil {
		return err
	}

	entries, err := u.registry.Lookup(ctx, rec.RecipientID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		// offline: the record stays queued as the offline store; retry on
		// the sweep cadence rather than spinning on the broker
		zlog.Logger.Debug().Str("id", msg.NotificationID).Str("recipient", rec.RecipientID).Msg("Recipient offline, deferring")
		return u.queue.EnqueueDelayed(ctx, msg, u.opts.SweepInterval)
	}

	attempts, err := u.deliveries.MarkPublished(ctx, msg.NotificationID)
	if err == domain.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if attempts > u.opts.MaxAttempts {
		zlog.Logger.Error().
			Str("id", msg.NotificationID).
			Str("recipient", rec.RecipientID).
			Int("attempts", attempts).
			Msg("ALERT: delivery attempts exhausted, dead-lettering")
		return u.deliveries.MarkDeadLettered(ctx, msg.NotificationID)
	}

	for _, instance := range uniqueInstances(entries) {
		env := &domain.Envelope{RecipientID: rec.RecipientID, Notification: notif}
		if err := u.fanout.Publish(ctx, instance, env); err != nil {
			// not retried synchronously; the ack deadline sweep re-attempts
			zlog.Logger.Warn().Err(err).Str("id", notif.ID).Str("instance", instance).Msg("Fanout publish failed")
		}
	}

	// side channels fire once, on the first attempt
	if attempts == 1 {
		u.sendSideChannels(ctx, rec, notif)
	}

	u.PushUnreadCount(ctx, rec.RecipientID)
	return nil
}

func (u *NotificationUsecase) sendSideChannels(ctx context.Context, rec *domain.DeliveryRecord, notif *domain.Notification) {
	for _, ch := range rec.Channels {
		if ch == domain.ChannelInApp {
			continue
		}
		ch := ch
		err := retry.DoContext(ctx, u.retries, func() error {
			return u.sender.Send(ctx, ch, notif)
		})
		if err != nil {
			zlog.Logger.Error().Err(err).Str("id", notif.ID).Str("channel", string(ch)).Msg("Side channel send failed")
		}
	}
}

// Sweep re-enqueues records whose ack deadline lapsed and queued records
// whose broker message went missing. Runs on the worker's sweep ticker.
func (u *NotificationUsecase) Sweep(ctx context.Context) {
	expired, err := u.deliveries.ExpirePendingAcks(ctx, u.opts.AckDeadline)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("Sweep: expiring pending acks failed")
	}
	stale, err := u.deliveries.StaleQueued(ctx, u.opts.AckDeadline)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("Sweep: collecting stale queued failed")
	}
	for _, rec := range append(expired, stale...) {
		msg := queue.Message{NotificationID: rec.NotificationID, RecipientID: rec.RecipientID}
		if err := u.queue.Enqueue(ctx, msg); err != nil {
			zlog.Logger.Warn().Err(err).Str("id", rec.NotificationID).Msg("Sweep: re-enqueue failed")
		}
	}
}

// Backlog returns everything a recipient is still owed and flips those
// records to pending_ack, closing the offline->online gap at connect time.
func (u *NotificationUsecase) Backlog(ctx context.Context, recipientID string) ([]*domain.Notification, error) {
	unlock := u.perRecipient.Lock(recipientID)
	defer unlock()

	notifs, err := u.deliveries.Backlog(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	delivered := notifs[:0]
	for _, n := range notifs {
		attempts, err := u.deliveries.MarkPublished(ctx, n.ID)
		if err != nil {
			if err != domain.ErrNotFound {
				zlog.Logger.Warn().Err(err).Str("id", n.ID).Msg("Backlog publish mark failed")
			}
			continue
		}
		if attempts > u.opts.MaxAttempts {
			zlog.Logger.Error().Str("id", n.ID).Int("attempts", attempts).Msg("ALERT: delivery attempts exhausted, dead-lettering")
			u.deliveries.MarkDeadLettered(ctx, n.ID)
			continue
		}
		delivered = append(delivered, n)
	}
	return delivered, nil
}

// Ack processes a client acknowledgment: the delivery record is removed and
// the notification is marked delivered. Duplicate and stale acks are no-ops.
func (u *NotificationUsecase) Ack(ctx context.Context, recipientID, notificationID string) error {
	unlock := u.perRecipient.Lock(recipientID)
	defer unlock()

	if err := u.deliveries.Acknowledge(ctx, notificationID); err != nil {
		return err
	}
	if err := u.store.MarkDelivered(ctx, notificationID); err != nil && err != domain.ErrNotFound {
		return err
	}
	return nil
}

// MarkRead is idempotent: re-reading an already-read or deleted
// notification is a no-op, tolerating network reordering.
func (u *NotificationUsecase) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	unlock := u.perRecipient.Lock(recipientID)
	defer unlock()

	err := u.store.MarkRead(ctx, notificationID, recipientID)
	if err == domain.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	u.PushUnreadCount(ctx, recipientID)
	return nil
}

func (u *NotificationUsecase) MarkAllRead(ctx context.Context, recipientID string) error {
	unlock := u.perRecipient.Lock(recipientID)
	defer unlock()

	if err := u.store.MarkAllRead(ctx, recipientID); err != nil {
		return err
	}
	u.PushUnreadCount(ctx, recipientID)
	return nil
}

// Delete removes one notification and its delivery record; any in-flight
// ack for the id lands on nothing and is ignored.
func (u *NotificationUsecase) Delete(ctx context.Context, recipientID, notificationID string) error {
	unlock := u.perRecipient.Lock(recipientID)
	defer unlock()

	if err := u.deliveries.DeleteDelivery(ctx, notificationID); err != nil {
		return err
	}
	err := u.store.Delete(ctx, notificationID, recipientID)
	if err == domain.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	u.PushUnreadCount(ctx, recipientID)
	return nil
}

func (u *NotificationUsecase) ClearAll(ctx context.Context, recipientID string) error {
	unlock := u.perRecipient.Lock(recipientID)
	defer unlock()

	if err := u.deliveries.DeleteAllDeliveriesForRecipient(ctx, recipientID); err != nil {
		return err
	}
	if err := u.store.DeleteAll(ctx, recipientID); err != nil {
		return err
	}
	u.PushUnreadCount(ctx, recipientID)
	return nil
}

func (u *NotificationUsecase) List(ctx context.Context, recipientID string, limit int) ([]*domain.Notification, error) {
	return u.store.ListByRecipient(ctx, recipientID, limit)
}

func (u *NotificationUsecase) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return u.store.CountUnread(ctx, recipientID)
}

func (u *NotificationUsecase) GetPreferences(ctx context.Context, recipientID string) (*domain.UserPreferences, error) {
	return u.prefs.GetPreferences(ctx, recipientID)
}

func (u *NotificationUsecase) SetPreferences(ctx context.Context, prefs *domain.UserPreferences) error {
	return u.prefs.UpsertPreferences(ctx, prefs)
}

// DeadLetters lists exhausted deliveries for operator inspection.
func (u *NotificationUsecase) DeadLetters(ctx context.Context, limit int) ([]*domain.DeliveryRecord, error) {
	return u.deliveries.ListDeadLettered(ctx, limit)
}

// RequeueDeadLetter puts a dead-lettered delivery back through the pipeline
// with a fresh attempt budget.
func (u *NotificationUsecase) RequeueDeadLetter(ctx context.Context, notificationID string) error {
	if err := u.deliveries.Requeue(ctx, notificationID); err != nil {
		return err
	}
	rec, err := u.deliveries.GetDelivery(ctx, notificationID)
	if err != nil {
		return err
	}
	msg := queue.Message{NotificationID: rec.NotificationID, RecipientID: rec.RecipientID}
	if err := u.queue.Enqueue(ctx, msg); err != nil {
		zlog.Logger.Warn().Err(err).Str("id", notificationID).Msg("Requeue publish failed, sweep will retry")
	}
	return nil
}

// PushUnreadCount fans the current unread count out to every instance
// holding a live connection for the recipient.
func (u *NotificationUsecase) PushUnreadCount(ctx context.Context, recipientID string) {
	count, err := u.store.CountUnread(ctx, recipientID)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("recipient", recipientID).Msg("Unread count query failed")
		return
	}
	entries, err := u.registry.Lookup(ctx, recipientID)
	if err != nil || len(entries) == 0 {
		return
	}
	for _, instance := range uniqueInstances(entries) {
		env := &domain.Envelope{RecipientID: recipientID, UnreadCount: &count}
		if err := u.fanout.Publish(ctx, instance, env); err != nil {
			zlog.Logger.Warn().Err(err).Str("instance", instance).Msg("Unread count publish failed")
		}
	}
}

func uniqueInstances(entries []domain.RegistryEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	var instances []string
	for _, e := range entries {
		if _, ok := seen[e.ServerInstanceID]; ok {
			continue
		}
		seen[e.ServerInstanceID] = struct{}{}
		instances = append(instances, e.ServerInstanceID)
	}
	return instances
}
