// Package watcher keeps the store consistent with the chain. It runs three
// polling loops (contract config, current round + participants, event logs)
// and turns decoded logs into live feed messages and history records.
package watcher

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/paulbellamy/ratecounter"
	"github.com/sirupsen/logrus"

	"github.com/zfdang/enclave-lottery-app-sub000/async"
	"github.com/zfdang/enclave-lottery-app-sub000/config"
	contract "github.com/zfdang/enclave-lottery-app-sub000/contracts/lottery"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/store"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

var log = logrus.WithField("prefix", "watcher")

// ChainReader is the view surface of the chain client the watcher needs.
type ChainReader interface {
	GetContractConfig(ctx context.Context) (*types.ContractConfig, error)
	GetCurrentRound(ctx context.Context) (*types.LotteryRound, error)
	GetParticipantSummaries(ctx context.Context, roundID uint64) ([]types.ParticipantSummary, error)
	GetEvents(ctx context.Context, fromBlock uint64) ([]types.Event, error)
	LastSeenBlock() uint64
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// ServiceConfig bundles the watcher's dependencies.
type ServiceConfig struct {
	Chain    ChainReader
	Store    *store.Store
	Settings config.EventManagerConfig
}

// Service is the event manager. It implements runtime.Service.
type Service struct {
	cfg    *ServiceConfig
	ctx    context.Context
	cancel context.CancelFunc
	feed   event.Feed
	rate   *ratecounter.RateCounter
}

// New creates the watcher service. Loops start on Start.
func New(ctx context.Context, cfg *ServiceConfig) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		rate:   ratecounter.NewRateCounter(time.Second),
	}
}

// SubscribeChainEvents registers a channel for raw decoded events. The
// operator uses this to react to state transitions ahead of the next poll.
func (s *Service) SubscribeChainEvents(ch chan<- types.Event) event.Subscription {
	return s.feed.Subscribe(ch)
}

// Start launches the three loops and returns.
func (s *Service) Start() {
	log.WithFields(logrus.Fields{
		"configInterval": s.configInterval(),
		"roundInterval":  s.roundInterval(),
		"startOffset":    s.cfg.Settings.StartBlockOffset,
	}).Info("Starting event manager")

	// Prime config and round state once so the gateway has data before the
	// first tick.
	s.refreshConfig()
	s.refreshRound()

	async.RunEvery(s.ctx, s.configInterval(), s.refreshConfig)
	async.RunEvery(s.ctx, s.roundInterval(), s.refreshRound)
	go s.eventLoop()
}

// Stop cancels every loop.
func (s *Service) Stop() error {
	s.cancel()
	return nil
}

// Status always reports healthy; chain errors are transient and retried.
func (s *Service) Status() error {
	return nil
}

// EventsPerSecond reports the current raw event throughput.
func (s *Service) EventsPerSecond() int64 {
	return s.rate.Rate()
}

func (s *Service) configInterval() time.Duration {
	return time.Duration(s.cfg.Settings.ContractConfigIntervalSec) * time.Second
}

func (s *Service) roundInterval() time.Duration {
	return time.Duration(s.cfg.Settings.RoundAndParticipantsIntervalSec) * time.Second
}

func (s *Service) refreshConfig() {
	cfg, err := s.cfg.Chain.GetContractConfig(s.ctx)
	if err != nil {
		pollErrors.WithLabelValues("config").Inc()
		log.WithError(err).Warn("Could not refresh contract config")
		return
	}
	s.cfg.Store.SetContractConfig(cfg)
}

func (s *Service) refreshRound() {
	round, err := s.cfg.Chain.GetCurrentRound(s.ctx)
	if err != nil {
		pollErrors.WithLabelValues("round").Inc()
		log.WithError(err).Warn("Could not refresh current round")
		return
	}
	s.cfg.Store.SetCurrentRound(round, false)
	if round == nil {
		return
	}
	participants, err := s.cfg.Chain.GetParticipantSummaries(s.ctx, round.RoundID)
	if err != nil {
		pollErrors.WithLabelValues("participants").Inc()
		log.WithError(err).Warn("Could not refresh participants")
		return
	}
	s.cfg.Store.SyncParticipants(participants)
}

// eventLoop tails contract logs. The cursor starts a bounded distance
// behind the head so a restart replays recent history, then follows
// LastSeenBlock.
func (s *Service) eventLoop() {
	from, ok := s.initialFromBlock()
	if !ok {
		return
	}
	log.WithField("fromBlock", from).Info("Event loop started")

	for {
		if s.ctx.Err() != nil {
			return
		}
		events, err := s.cfg.Chain.GetEvents(s.ctx, from)
		if err != nil {
			pollErrors.WithLabelValues("events").Inc()
			log.WithError(err).Warn("Could not fetch events")
			s.sleep(s.emptyPollInterval())
			continue
		}
		for i := range events {
			s.HandleEvent(&events[i])
		}
		from = s.cfg.Chain.LastSeenBlock() + 1
		eventRate.Set(float64(s.rate.Rate()))
		if len(events) == 0 {
			s.sleep(s.emptyPollInterval())
		} else {
			s.sleep(s.pollInterval())
		}
	}
}

// initialFromBlock retries until the node answers or the service stops.
func (s *Service) initialFromBlock() (uint64, bool) {
	for {
		latest, err := s.cfg.Chain.LatestBlockNumber(s.ctx)
		if err == nil {
			offset := s.cfg.Settings.StartBlockOffset
			if latest < offset {
				return 0, true
			}
			return latest - offset, true
		}
		pollErrors.WithLabelValues("events").Inc()
		log.WithError(err).Warn("Could not resolve start block, retrying")
		select {
		case <-s.ctx.Done():
			return 0, false
		case <-time.After(s.emptyPollInterval()):
		}
	}
}

// HandleEvent dispatches one decoded event: raw re-emit for subscribers,
// live feed message for the feed-worthy names and a history record for
// terminal transitions. Parameter updates are consumed silently; the next
// config refresh picks them up. EndTimeExtended stays off the feed, its
// effect shows up in the next round refresh.
func (s *Service) HandleEvent(evt *types.Event) {
	s.rate.Incr(1)
	eventsProcessed.WithLabelValues(evt.Name).Inc()
	s.feed.Send(*evt)

	msg, worthy := FeedMessage(evt)
	if !worthy {
		return
	}
	feedMessages.Inc()
	s.cfg.Store.AddLiveFeed(types.LiveFeedItem{
		EventType: evt.Name,
		Message:   msg,
		Details:   feedDetails(evt),
		EventTime: evt.Timestamp,
		RoundID:   argUint64(evt.Args, "roundId"),
	})

	switch evt.Name {
	case contract.EventRoundCompleted:
		winner := argString(evt.Args, "winner")
		s.cfg.Store.AddHistorySnapshot(types.RoundSnapshot{
			EventType:        evt.Name,
			RoundID:          argUint64(evt.Args, "roundId"),
			ParticipantCount: argUint64(evt.Args, "participantCount"),
			TotalPot:         new(big.Int).Set(argBig(evt.Args, "totalPot")),
			FinishedAt:       evt.Timestamp,
			Winner:           addressPtr(winner),
			WinnerPrize:      new(big.Int).Set(argBig(evt.Args, "winnerPrize")),
		})
	case contract.EventRoundRefunded:
		s.cfg.Store.AddHistorySnapshot(types.RoundSnapshot{
			EventType:        evt.Name,
			RoundID:          argUint64(evt.Args, "roundId"),
			ParticipantCount: argUint64(evt.Args, "participantCount"),
			TotalPot:         new(big.Int).Set(argBig(evt.Args, "totalRefunded")),
			FinishedAt:       evt.Timestamp,
			WinnerPrize:      new(big.Int),
			RefundReason:     argString(evt.Args, "reason"),
		})
	}
}

// feedDetails copies event args with big integers stringified so the map
// is safe to marshal for the SPA.
func feedDetails(evt *types.Event) map[string]interface{} {
	details := make(map[string]interface{}, len(evt.Args))
	for k, v := range evt.Args {
		if b, ok := v.(*big.Int); ok {
			details[k] = b.String()
			continue
		}
		details[k] = v
	}
	return details
}

func (s *Service) pollInterval() time.Duration {
	return time.Duration(s.cfg.Settings.EventPollIntervalMs) * time.Millisecond
}

func (s *Service) emptyPollInterval() time.Duration {
	return time.Duration(s.cfg.Settings.EmptyPollIntervalMs) * time.Millisecond
}

func (s *Service) sleep(d time.Duration) {
	select {
	case <-s.ctx.Done():
	case <-time.After(d):
	}
}
