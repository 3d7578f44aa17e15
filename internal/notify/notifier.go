// Package notify creates in-app notifications and keeps per-user unread
// counters.
package notify

import (
	"context"
	"fmt"
	"sync/atomic"

	"cryptorafts/api/internal/logger"
	"cryptorafts/api/internal/store"
	"cryptorafts/api/internal/util"

	"golang.org/x/sync/errgroup"
)

const (
	TypeNewMessage      = "new_message"
	TypeMention         = "mention"
	TypeReaction        = "reaction"
	TypeProjectAccepted = "project_accepted"
	TypeVerification    = "verification"
	TypeTeamJoined      = "team_joined"

	bodyLimit          = 100
	defaultConcurrency = 8
)

// Store is where notifications are persisted.
type Store interface {
	InsertNotification(ctx context.Context, item store.Notification) error
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
}

// Counter caches unread counts. Get reports ok=false on a cache miss.
type Counter interface {
	Incr(ctx context.Context, userID string, delta int) error
	Get(ctx context.Context, userID string) (count int, ok bool, err error)
	Set(ctx context.Context, userID string, count int) error
}

type Notifier struct {
	store       Store
	counter     Counter
	log         *logger.Logger
	concurrency int
}

// New returns a Notifier. counter may be nil, in which case unread counts
// always come from the store.
func New(st Store, counter Counter, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{store: st, counter: counter, log: log, concurrency: defaultConcurrency}
}

// WithConcurrency bounds how many recipients are written at once.
func (n *Notifier) WithConcurrency(limit int) *Notifier {
	if limit > 0 {
		n.concurrency = limit
	}
	return n
}

// Recipient is a room member other than the sender.
type Recipient struct {
	UserID string
	Role   string
}

type MessageEvent struct {
	RoomID     string
	MessageID  string
	SenderID   string
	SenderName string
	Content    string
	Mentions   []string
	Recipients []Recipient
}

type Report struct {
	Delivered int
	Failed    int
}

// FanOutMessage writes one notification per recipient. Mentioned members get
// a mention notification instead of new_message. The sender is skipped even
// if listed. Individual failures are logged and counted, never returned.
func (n *Notifier) FanOutMessage(ctx context.Context, ev MessageEvent) Report {
	mentioned := make(map[string]bool, len(ev.Mentions))
	for _, id := range ev.Mentions {
		mentioned[id] = true
	}
	sender := ev.SenderName
	if sender == "" {
		sender = "Someone"
	}
	body := util.Truncate(ev.Content, bodyLimit)

	var delivered, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for _, recipient := range ev.Recipients {
		if recipient.UserID == "" || recipient.UserID == ev.SenderID {
			continue
		}
		item := store.Notification{
			UserID:    recipient.UserID,
			Type:      TypeNewMessage,
			Title:     "New message from " + sender,
			Body:      body,
			URL:       RoleMessagesURL(recipient.Role, ev.RoomID),
			RoomID:    ev.RoomID,
			MessageID: ev.MessageID,
		}
		if mentioned[recipient.UserID] {
			item.Type = TypeMention
			item.Title = sender + " mentioned you"
		}
		g.Go(func() error {
			if err := n.Notify(gctx, item); err != nil {
				failed.Add(1)
				n.log.Warn("notification fan-out failed", "room", ev.RoomID, "recipient", item.UserID, "error", err.Error())
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return Report{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
}

// Notify persists one notification and bumps the recipient's unread count.
func (n *Notifier) Notify(ctx context.Context, item store.Notification) error {
	if item.ID == "" {
		item.ID = util.NewID("ntf")
	}
	if err := n.store.InsertNotification(ctx, item); err != nil {
		return err
	}
	if n.counter != nil {
		if err := n.counter.Incr(ctx, item.UserID, 1); err != nil {
			n.log.Warn("unread counter increment failed", "user", item.UserID, "error", err.Error())
		}
	}
	return nil
}

// Unread returns the cached unread count, reconciling from the store on a
// miss or counter failure.
func (n *Notifier) Unread(ctx context.Context, userID string) (int, error) {
	if n.counter != nil {
		count, ok, err := n.counter.Get(ctx, userID)
		if err == nil && ok {
			return count, nil
		}
		if err != nil {
			n.log.Warn("unread counter read failed", "user", userID, "error", err.Error())
		}
	}
	count, err := n.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	if n.counter != nil {
		if err := n.counter.Set(ctx, userID, count); err != nil {
			n.log.Warn("unread counter reconcile failed", "user", userID, "error", err.Error())
		}
	}
	return count, nil
}

// MarkedRead adjusts the cached count after notifications were marked read.
// all=true resets it to zero.
func (n *Notifier) MarkedRead(ctx context.Context, userID string, count int, all bool) {
	if n.counter == nil {
		return
	}
	var err error
	switch {
	case all:
		err = n.counter.Set(ctx, userID, 0)
	case count > 0:
		err = n.counter.Incr(ctx, userID, -count)
	}
	if err != nil {
		n.log.Warn("unread counter update failed", "user", userID, "error", err.Error())
	}
}

// RoleMessagesURL links a recipient to the messages page of their dashboard.
func RoleMessagesURL(role, roomID string) string {
	switch role {
	case "founder", "vc", "exchange", "ido", "agency", "influencer":
		return "/" + role + "/messages?room=" + roomID
	default:
		return "/messages?room=" + roomID
	}
}
