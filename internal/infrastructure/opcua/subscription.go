package opcua

import (
	"context"
	"fmt"
	"sync"

	gopcua "github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/instrument"
)

// subscription adapts a gopcua subscription to instrument.Subscription.
type subscription struct {
	sub     *gopcua.Subscription
	in      chan *gopcua.PublishNotificationData
	out     chan instrument.Notification
	handles []attribute.Address
	logger  Logger

	done       chan struct{}
	cancelOnce sync.Once
	cancelErr  error
}

func newSubscription(sub *gopcua.Subscription, in chan *gopcua.PublishNotificationData, addrs []attribute.Address, logger Logger) *subscription {
	return &subscription{
		sub:     sub,
		in:      in,
		out:     make(chan instrument.Notification, 16),
		handles: append([]attribute.Address(nil), addrs...),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Notifications implements instrument.Subscription.
func (s *subscription) Notifications() <-chan instrument.Notification {
	return s.out
}

// Cancel implements instrument.Subscription.
func (s *subscription) Cancel(ctx context.Context) error {
	s.cancelOnce.Do(func() {
		close(s.done)
		s.cancelErr = s.sub.Cancel(ctx)
	})
	return s.cancelErr
}

// forward translates publish responses until the subscription is
// cancelled or the server reports an error. Closing out tells the
// acquisition task that the stream is gone.
func (s *subscription) forward() {
	defer close(s.out)

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.in:
			if msg == nil {
				continue
			}
			if msg.Error != nil {
				s.logger.Warn("publish failed", "subscription", msg.SubscriptionID, "error", msg.Error)
				return
			}

			switch v := msg.Value.(type) {
			case *ua.DataChangeNotification:
				n := changes(v, s.handles)
				if len(n.Changes) == 0 {
					continue
				}
				select {
				case s.out <- n:
				case <-s.done:
					return
				}
			case *ua.StatusChangeNotification:
				if v.Status != ua.StatusOK {
					s.logger.Warn("subscription status changed", "subscription", msg.SubscriptionID, "status", v.Status)
					return
				}
			default:
				s.logger.Debug("ignoring notification", "type", fmt.Sprintf("%T", msg.Value))
			}
		}
	}
}

// changes maps monitored item notifications back to addresses through
// their client handles. Items with a bad status or an unknown handle are
// dropped.
func changes(n *ua.DataChangeNotification, handles []attribute.Address) instrument.Notification {
	out := instrument.Notification{Changes: make([]instrument.DataChange, 0, len(n.MonitoredItems))}
	for _, item := range n.MonitoredItems {
		if item == nil || item.Value == nil {
			continue
		}
		idx := int(item.ClientHandle)
		if idx < 0 || idx >= len(handles) {
			continue
		}
		if item.Value.Status != ua.StatusOK {
			continue
		}
		out.Changes = append(out.Changes, instrument.DataChange{
			Address: handles[idx],
			Value:   dataValue(item.Value),
		})
	}
	return out
}
