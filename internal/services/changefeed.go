package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/petpals/internal/logging"
	"github.com/HammerMeetNail/petpals/internal/metrics"
	"github.com/HammerMeetNail/petpals/internal/models"
)

const changeChannelPrefix = "petpals:changes"

// Topic selects the change events a subscriber receives. Column and Value
// narrow the stream on the publishing side; Match filters on the receiving
// side.
type Topic struct {
	Table  string
	Column string
	Value  string
	Match  func(models.ChangeEvent) bool
}

func (t Topic) channel() string {
	if t.Column == "" {
		return tableChannel(t.Table)
	}
	return keyedChannel(t.Table, t.Column, t.Value)
}

func (t Topic) accepts(e models.ChangeEvent) bool {
	if e.Table != t.Table {
		return false
	}
	if t.Column != "" && e.Keys[t.Column] != t.Value {
		return false
	}
	return t.Match == nil || t.Match(e)
}

func tableChannel(table string) string {
	return changeChannelPrefix + ":" + table
}

func keyedChannel(table, column, value string) string {
	return fmt.Sprintf("%s:%s:%s=%s", changeChannelPrefix, table, column, value)
}

// eventChannels lists every channel an event is published on.
func eventChannels(e models.ChangeEvent) []string {
	cols := make([]string, 0, len(e.Keys))
	for col := range e.Keys {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	channels := []string{tableChannel(e.Table)}
	for _, col := range cols {
		channels = append(channels, keyedChannel(e.Table, col, e.Keys[col]))
	}
	return channels
}

type Subscription interface {
	// Unsubscribe stops delivery and waits for the delivery goroutine to
	// exit. It is safe to call more than once. It must not be called from
	// inside the onChange callback.
	Unsubscribe() error
}

type ChangeFeed interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
	Subscribe(ctx context.Context, topic Topic, onChange func(models.ChangeEvent)) (Subscription, error)
}

func newChangeEvent(table string, typ models.ChangeType, id uuid.UUID, keys map[string]string, record any) models.ChangeEvent {
	event := models.ChangeEvent{
		Table:      table,
		Type:       typ,
		RecordID:   id,
		Keys:       keys,
		OccurredAt: time.Now().UTC(),
	}
	if record != nil {
		if raw, err := json.Marshal(record); err == nil {
			event.Record = raw
		}
	}
	return event
}

// publishChange sends event on feed. Committed mutations never fail because
// of the feed, so errors are only logged.
func publishChange(ctx context.Context, feed ChangeFeed, event models.ChangeEvent) {
	if feed == nil {
		return
	}
	if err := feed.Publish(ctx, event); err != nil {
		metrics.ChangeFeedPublishFailures.WithLabelValues(event.Table).Inc()
		logging.Warn("Failed to publish change event", map[string]interface{}{
			"error":     err.Error(),
			"table":     event.Table,
			"type":      string(event.Type),
			"record_id": event.RecordID.String(),
		})
	}
}

type subscription struct {
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeFn   func() error
	closeErr  error
}

func newSubscription(cancel context.CancelFunc, closeFn func() error) *subscription {
	return &subscription{cancel: cancel, done: make(chan struct{}), closeFn: closeFn}
}

func (s *subscription) release() error {
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
	})
	return s.closeErr
}

func (s *subscription) Unsubscribe() error {
	s.cancel()
	<-s.done
	return s.release()
}

// RedisFeed carries change events over Redis Pub/Sub so every server
// instance sees every committed change.
type RedisFeed struct {
	client RedisClient
}

func NewRedisFeed(client RedisClient) *RedisFeed {
	return &RedisFeed{client: client}
}

func (f *RedisFeed) Publish(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	var errs []error
	for _, channel := range eventChannels(event) {
		if err := f.client.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

func (f *RedisFeed) Subscribe(ctx context.Context, topic Topic, onChange func(models.ChangeEvent)) (Subscription, error) {
	ps, err := f.client.Subscribe(ctx, topic.channel())
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic.channel(), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel, ps.Close)
	messages := ps.Messages()

	go func() {
		defer close(sub.done)
		defer func() { _ = sub.release() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event models.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logging.Warn("Dropping undecodable change event", map[string]interface{}{
						"error":   err.Error(),
						"channel": msg.Channel,
					})
					continue
				}
				if topic.accepts(event) {
					onChange(event)
				}
			}
		}
	}()

	return sub, nil
}

// MemoryFeed fans change events out within one process.
type MemoryFeed struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscriber]struct{}
	buffer int
}

type memorySubscriber struct {
	events chan models.ChangeEvent
}

const defaultMemoryFeedBuffer = 64

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		subs:   make(map[string]map[*memorySubscriber]struct{}),
		buffer: defaultMemoryFeedBuffer,
	}
}

// Publish never blocks. A subscriber whose buffer is full misses the event
// and the miss is reported in the returned error.
func (f *MemoryFeed) Publish(ctx context.Context, event models.ChangeEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	dropped := 0
	for _, channel := range eventChannels(event) {
		for s := range f.subs[channel] {
			select {
			case s.events <- event:
			default:
				dropped++
			}
		}
	}
	if dropped > 0 {
		return fmt.Errorf("change event dropped for %d slow subscriber(s)", dropped)
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, topic Topic, onChange func(models.ChangeEvent)) (Subscription, error) {
	channel := topic.channel()
	s := &memorySubscriber{events: make(chan models.ChangeEvent, f.buffer)}

	f.mu.Lock()
	if f.subs[channel] == nil {
		f.subs[channel] = make(map[*memorySubscriber]struct{})
	}
	f.subs[channel][s] = struct{}{}
	f.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	sub := newSubscription(cancel, func() error {
		f.mu.Lock()
		delete(f.subs[channel], s)
		if len(f.subs[channel]) == 0 {
			delete(f.subs, channel)
		}
		f.mu.Unlock()
		return nil
	})

	go func() {
		defer close(sub.done)
		defer func() { _ = sub.release() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-s.events:
				if topic.accepts(event) {
					onChange(event)
				}
			}
		}
	}()

	return sub, nil
}

func (f *MemoryFeed) subscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, set := range f.subs {
		n += len(set)
	}
	return n
}
