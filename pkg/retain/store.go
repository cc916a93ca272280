package retain

import (
	"sync"

	"github.com/brokerfed/cluster/pkg/broker"
)

// Store is the local, in-memory retained-message table, keyed by
// concrete topic. It holds at most one Retain per topic: the last
// publish with the retain flag set overwrites any prior value.
// There is no persistence across restarts.
type Store struct {
	mu   sync.RWMutex
	data map[broker.Topic]broker.Retain
}

// NewStore constructs an empty local retained-message store.
func NewStore() *Store {
	return &Store{data: make(map[broker.Topic]broker.Retain)}
}

// Set stores retain under topic, overwriting whatever was there.
func (s *Store) Set(topic broker.Topic, retain broker.Retain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[topic] = retain
}

// Entry pairs a concrete topic with its retained record.
type Entry struct {
	Topic  broker.Topic
	Retain broker.Retain
}

// Match returns every (topic, retain) pair whose topic matches filter.
// Result ordering is unspecified.
func (s *Store) Match(filter broker.TopicFilter) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for topic, r := range s.data {
		if broker.MatchTopic(filter, topic) {
			out = append(out, Entry{Topic: topic, Retain: r})
		}
	}
	return out
}
