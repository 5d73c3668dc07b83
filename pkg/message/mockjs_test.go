package message

import (
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
)

// mockJS is an in-memory JSContext. Published messages queue up for Fetch.
type mockJS struct {
	mu        sync.Mutex
	queue     []*nats.Msg
	published []*nats.Msg
	streams   map[string]*nats.StreamInfo
	consumers map[string]*nats.ConsumerInfo
	failures  int
}

func newMockJS() *mockJS {
	return &mockJS{
		streams:   make(map[string]*nats.StreamInfo),
		consumers: make(map[string]*nats.ConsumerInfo),
	}
}

func (m *mockJS) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return nil, errors.New("nats: no responders available")
	}
	msg := &nats.Msg{Subject: subj, Data: data}
	m.queue = append(m.queue, msg)
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "MOCK", Sequence: uint64(len(m.published))}, nil
}

func (m *mockJS) PullSubscribe(subj, durable string, opts ...nats.SubOpt) (JSSubscription, error) {
	return &mockSubscription{owner: m}, nil
}

func (m *mockJS) StreamInfo(stream string) (*nats.StreamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.streams[stream]; ok {
		return info, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (m *mockJS) AddStream(cfg *nats.StreamConfig) (*nats.StreamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := &nats.StreamInfo{Config: *cfg}
	m.streams[cfg.Name] = info
	return info, nil
}

func (m *mockJS) ConsumerInfo(stream, consumer string) (*nats.ConsumerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.consumers[stream+"/"+consumer]; ok {
		return info, nil
	}
	return nil, nats.ErrConsumerNotFound
}

func (m *mockJS) AddConsumer(stream string, cfg *nats.ConsumerConfig) (*nats.ConsumerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := &nats.ConsumerInfo{Stream: stream, Name: cfg.Durable, Config: *cfg}
	m.consumers[stream+"/"+cfg.Durable] = info
	return info, nil
}

func (m *mockJS) enqueue(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, &nats.Msg{Subject: "IMPORTS.request", Data: data})
}

type mockSubscription struct {
	owner *mockJS
}

func (s *mockSubscription) Unsubscribe() error { return nil }

func (s *mockSubscription) Fetch(batch int, opts ...nats.PullOpt) ([]*nats.Msg, error) {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if len(s.owner.queue) == 0 {
		return nil, nats.ErrTimeout
	}
	n := batch
	if n > len(s.owner.queue) {
		n = len(s.owner.queue)
	}
	out := s.owner.queue[:n]
	s.owner.queue = s.owner.queue[n:]
	return out, nil
}
