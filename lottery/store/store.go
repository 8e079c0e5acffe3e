// Package store is the single source of truth for observed chain state.
// Every mutation commits under one lock, then publishes a typed
// notification with a snapshot payload on an event feed. Consumers never
// see internal data structures, only copies.
package store

import (
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/zfdang/enclave-lottery-app-sub000/container/ring"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

var log = logrus.WithField("prefix", "store")

const (
	// DefaultHistoryCapacity bounds the finished-round history.
	DefaultHistoryCapacity = 100
	// DefaultFeedCapacity bounds the live activity feed.
	DefaultFeedCapacity = 1000
)

// NotificationType identifies a store change event.
type NotificationType int

const (
	// RoundUpdate is sent when the current round is replaced or cleared.
	RoundUpdate NotificationType = iota + 1
	// ParticipantsUpdate is sent when the participant set is resynced.
	ParticipantsUpdate
	// HistoryUpdate is sent when a terminal round snapshot is recorded.
	HistoryUpdate
	// LiveFeed is sent when an activity item is appended.
	LiveFeed
	// ConfigUpdate is sent when the contract config is replaced.
	ConfigUpdate
	// OperatorStatus is sent when the operator reports a change.
	OperatorStatus
)

// String returns the wire name used in WebSocket messages.
func (t NotificationType) String() string {
	switch t {
	case RoundUpdate:
		return "round_update"
	case ParticipantsUpdate:
		return "participants_update"
	case HistoryUpdate:
		return "history_update"
	case LiveFeed:
		return "live_feed"
	case ConfigUpdate:
		return "config_update"
	case OperatorStatus:
		return "operator_status"
	default:
		return "unknown"
	}
}

// Notification is the message sent to subscribers. Payload is one of the
// serialized payload types in serialize.go and safe to share.
type Notification struct {
	Type    NotificationType
	Payload interface{}
}

// Option configures a Store.
type Option func(s *Store)

// WithHistoryCapacity overrides the history bound.
func WithHistoryCapacity(n int) Option {
	return func(s *Store) {
		s.history = ring.New[types.RoundSnapshot](n)
	}
}

// WithFeedCapacity overrides the live feed bound.
func WithFeedCapacity(n int) Option {
	return func(s *Store) {
		s.live = ring.New[types.LiveFeedItem](n)
	}
}

// Store holds the in-memory mirror of contract state.
type Store struct {
	mu           sync.RWMutex
	feed         event.Feed
	current      *types.LotteryRound
	participants map[common.Address]*big.Int
	history      *ring.Buffer[types.RoundSnapshot]
	live         *ring.Buffer[types.LiveFeedItem]
	config       *types.ContractConfig
	operator     types.OperatorStatus
}

// New creates an empty store with the given options.
func New(opts ...Option) *Store {
	s := &Store{
		participants: make(map[common.Address]*big.Int),
		history:      ring.New[types.RoundSnapshot](DefaultHistoryCapacity),
		live:         ring.New[types.LiveFeedItem](DefaultFeedCapacity),
		operator:     types.OperatorStatus{Status: "stopped"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubscribeEvents registers a notification channel. Subscribers must drain
// their channel promptly; the feed blocks the mutator's emit goroutine on a
// full unbuffered channel, so channels should be buffered.
func (s *Store) SubscribeEvents(ch chan<- Notification) event.Subscription {
	return s.feed.Subscribe(ch)
}

// Bootstrap seeds the store after a cold start. Notifications are emitted
// only for non-empty inputs.
func (s *Store) Bootstrap(round *types.LotteryRound, participants []types.ParticipantSummary, history []types.RoundSnapshot, cfg *types.ContractConfig) {
	var notifs []Notification

	s.mu.Lock()
	if round != nil {
		s.current = round.Copy()
		notifs = append(notifs, Notification{RoundUpdate, s.roundPayloadLocked()})
	}
	if len(participants) > 0 {
		s.setParticipantsLocked(participants)
		notifs = append(notifs, Notification{ParticipantsUpdate, s.participantsPayloadLocked()})
	}
	if len(history) > 0 {
		for _, snap := range history {
			s.history.Append(snap)
		}
		notifs = append(notifs, Notification{HistoryUpdate, s.historyPayloadLocked(0)})
	}
	if cfg != nil {
		s.config = cfg.Copy()
		notifs = append(notifs, Notification{ConfigUpdate, s.configPayloadLocked()})
	}
	s.mu.Unlock()

	s.emit(notifs...)
}

// SetCurrentRound replaces the current round. A nil round clears it. State
// regressions within the same round are discarded so racing chain reads
// can never surface an invalid transition. Participants are wiped when the
// round id changes or when resetParticipants is set.
func (s *Store) SetCurrentRound(round *types.LotteryRound, resetParticipants bool) {
	var notifs []Notification

	s.mu.Lock()
	if round != nil && s.current != nil {
		if round.RoundID < s.current.RoundID {
			s.mu.Unlock()
			return
		}
		if round.RoundID == s.current.RoundID && round.State < s.current.State {
			log.WithFields(logrus.Fields{
				"round": round.RoundID,
				"old":   s.current.State.String(),
				"new":   round.State.String(),
			}).Debug("Discarding stale round state")
			s.mu.Unlock()
			return
		}
	}
	roundChanged := (round == nil) != (s.current == nil) ||
		(round != nil && s.current != nil && round.RoundID != s.current.RoundID)
	s.current = round.Copy()
	notifs = append(notifs, Notification{RoundUpdate, s.roundPayloadLocked()})
	if resetParticipants || roundChanged {
		s.participants = make(map[common.Address]*big.Int)
		notifs = append(notifs, Notification{ParticipantsUpdate, s.participantsPayloadLocked()})
	}
	s.mu.Unlock()

	s.emit(notifs...)
}

// SyncParticipants replaces the participant set with a fresh chain read.
func (s *Store) SyncParticipants(summaries []types.ParticipantSummary) {
	s.mu.Lock()
	s.setParticipantsLocked(summaries)
	payload := s.participantsPayloadLocked()
	s.mu.Unlock()

	s.emit(Notification{ParticipantsUpdate, payload})
}

func (s *Store) setParticipantsLocked(summaries []types.ParticipantSummary) {
	m := make(map[common.Address]*big.Int, len(summaries))
	for _, p := range summaries {
		if p.TotalAmount == nil || p.TotalAmount.Sign() <= 0 {
			continue
		}
		m[p.Address] = new(big.Int).Set(p.TotalAmount)
	}
	s.participants = m
}

// AddLiveFeed appends an activity item, evicting the oldest past capacity.
func (s *Store) AddLiveFeed(item types.LiveFeedItem) {
	s.mu.Lock()
	s.live.Append(item)
	payload := liveFeedPayload(item)
	s.mu.Unlock()

	s.emit(Notification{LiveFeed, payload})
}

// AddHistorySnapshot records a terminal round outcome exactly once. A
// duplicate (event type, round id) pair is ignored; at most one terminal
// event per round can exist on-chain.
func (s *Store) AddHistorySnapshot(snap types.RoundSnapshot) {
	s.mu.Lock()
	for _, existing := range s.history.Items() {
		if existing.RoundID == snap.RoundID && existing.EventType == snap.EventType {
			s.mu.Unlock()
			return
		}
	}
	s.history.Append(snap)
	payload := s.historyPayloadLocked(0)
	s.mu.Unlock()

	s.emit(Notification{HistoryUpdate, payload})
}

// SetContractConfig replaces the contract config snapshot.
func (s *Store) SetContractConfig(cfg *types.ContractConfig) {
	s.mu.Lock()
	s.config = cfg.Copy()
	payload := s.configPayloadLocked()
	s.mu.Unlock()

	s.emit(Notification{ConfigUpdate, payload})
}

// SetOperatorStatus records the operator's self-reported state.
func (s *Store) SetOperatorStatus(st types.OperatorStatus) {
	s.mu.Lock()
	if s.operator == st {
		s.mu.Unlock()
		return
	}
	s.operator = st
	s.mu.Unlock()

	s.emit(Notification{OperatorStatus, statusPayload(st)})
}

// ClearAll wipes every entity and emits empty payloads for each.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.current = nil
	s.participants = make(map[common.Address]*big.Int)
	s.history = ring.New[types.RoundSnapshot](s.history.Cap())
	s.live = ring.New[types.LiveFeedItem](s.live.Cap())
	s.config = nil
	notifs := []Notification{
		{RoundUpdate, s.roundPayloadLocked()},
		{ParticipantsUpdate, s.participantsPayloadLocked()},
		{HistoryUpdate, s.historyPayloadLocked(0)},
		{ConfigUpdate, s.configPayloadLocked()},
	}
	s.mu.Unlock()

	s.emit(notifs...)
}

// SetHistoryCapacity resizes the history bound, keeping the newest entries.
func (s *Store) SetHistoryCapacity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Resize(n)
}

// SetFeedCapacity resizes the live feed bound, keeping the newest entries.
func (s *Store) SetFeedCapacity(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Resize(n)
}

// HistoryCapacity returns the configured history bound.
func (s *Store) HistoryCapacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Cap()
}

// FeedCapacity returns the configured live feed bound.
func (s *Store) FeedCapacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live.Cap()
}

// CurrentRound returns a copy of the active round, nil when none.
func (s *Store) CurrentRound() *types.LotteryRound {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Copy()
}

// Participants returns summaries sorted by total amount descending.
func (s *Store) Participants() []types.ParticipantSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participantsSortedLocked()
}

// ParticipantTotal returns the aggregated bet of one address, zero when
// absent. Lookup is case-insensitive.
func (s *Store) ParticipantTotal(addr string) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !common.IsHexAddress(addr) {
		return new(big.Int)
	}
	if amount, ok := s.participants[common.HexToAddress(strings.ToLower(addr))]; ok {
		return new(big.Int).Set(amount)
	}
	return new(big.Int)
}

// History returns snapshots ordered by round id descending. A non-positive
// limit returns everything.
func (s *Store) History(limit int) []types.RoundSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.historySortedLocked(limit)
}

// LiveFeed returns activity items ordered by (round id desc, event time
// desc). A non-positive limit returns everything.
func (s *Store) LiveFeed(limit int) []types.LiveFeedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveSortedLocked(limit)
}

// ContractConfig returns a copy of the config snapshot, nil before the
// first refresh.
func (s *Store) ContractConfig() *types.ContractConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Copy()
}

// OperatorStatus returns the operator's last reported state.
func (s *Store) OperatorStatus() types.OperatorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.operator
}

// emit publishes notifications after the lock is released. Delivery order
// per type matches commit order because mutators emit synchronously.
func (s *Store) emit(notifs ...Notification) {
	for _, n := range notifs {
		s.feed.Send(n)
	}
}
