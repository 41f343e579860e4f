package redis

import (
	"context"
	"sync"

	"github.com/leafsii/redis-demo/pkg/kv"
	"github.com/redis/go-redis/v9"
)

type pubSubOps struct {
	store *Store
}

func (p pubSubOps) Publish(ctx context.Context, channel string, message any) (int64, error) {
	enc, err := kv.Encode(p.store.codec, message)
	if err != nil {
		return 0, err
	}
	n, err := p.store.client.Publish(ctx, channel, enc).Result()
	return n, wrapError(err)
}

// Subscribe waits for the server to confirm the subscription before
// returning, so a message published right after is not lost
func (p pubSubOps) Subscribe(ctx context.Context, channels ...string) (kv.Subscription, error) {
	ps := p.store.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, wrapError(err)
	}

	sub := &subscription{
		pubsub: ps,
		out:    make(chan *kv.Message, 100),
		done:   make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	out    chan *kv.Message
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Channel() <-chan *kv.Message {
	return s.out
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *subscription) pump() {
	defer close(s.out)

	in := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- &kv.Message{Channel: msg.Channel, Payload: msg.Payload}:
			case <-s.done:
				return
			}
		}
	}
}
