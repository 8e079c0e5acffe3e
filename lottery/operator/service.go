// Package operator drives round progression. It is passive: it only reacts
// to round updates from the store and submits drawWinner/refundRound when
// the draw window opens or closes. The contract enforces every rule; a
// rejected transaction is logged and retried on the next update.
package operator

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/zfdang/enclave-lottery-app-sub000/config"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/store"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

var log = logrus.WithField("prefix", "operator")

// Transactor is the transaction surface of the chain client.
type Transactor interface {
	DrawRound(ctx context.Context, roundID uint64) (common.Hash, error)
	RefundRound(ctx context.Context, roundID uint64) (common.Hash, error)
	WaitForTransaction(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.TxReceipt, error)
	OperatorInstalled() bool
}

type action string

const (
	actionDraw   action = "draw"
	actionRefund action = "refund"
)

// attempt is the single-slot in-flight guard. Only one transaction may be
// pending at a time; a duplicate (round, action) pair is dropped.
type attempt struct {
	roundID uint64
	kind    action
}

// ServiceConfig bundles the operator's dependencies.
type ServiceConfig struct {
	Chain    Transactor
	Store    *store.Store
	Settings config.OperatorConfig
}

// Service is the passive operator. It implements runtime.Service.
type Service struct {
	cfg    *ServiceConfig
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inFlight *attempt

	statusMu     sync.RWMutex
	running      bool
	currentRound uint64

	// statusOut is a single-slot queue to the status publisher goroutine.
	// Holding only the newest snapshot keeps publications ordered without
	// ever blocking the notification loop.
	statusOut chan types.OperatorStatus

	// now is swapped in tests.
	now func() uint64
}

// New creates the operator service.
func New(ctx context.Context, cfg *ServiceConfig) *Service {
	ctx, cancel := context.WithCancel(ctx)
	return &Service{
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		statusOut: make(chan types.OperatorStatus, 1),
		now:       func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// Start subscribes to round updates and returns.
func (s *Service) Start() {
	if !s.cfg.Settings.Enabled {
		log.Warn("Operator disabled by configuration")
		return
	}
	go s.publishStatusLoop()
	s.setStatus(true, 0)
	log.WithField("txTimeout", s.txTimeout()).Info("Starting operator")

	ch := make(chan store.Notification, 16)
	sub := s.cfg.Store.SubscribeEvents(ch)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-s.ctx.Done():
				return
			case n := <-ch:
				if n.Type != store.RoundUpdate {
					continue
				}
				payload, ok := n.Payload.(store.RoundPayload)
				if !ok {
					continue
				}
				s.onRoundUpdate(payload)
			}
		}
	}()
}

// Stop cancels the subscription loop and any pending wait. The stopped
// status is queued before cancellation so the publisher drains it on exit.
func (s *Service) Stop() error {
	s.setStatus(false, 0)
	s.cancel()
	return nil
}

// Status reports healthy whenever the loop is alive; transaction failures
// are expected operation, not service failure.
func (s *Service) Status() error {
	return nil
}

// GetStatus returns the operator state for /api/status and WS snapshots.
func (s *Service) GetStatus() types.OperatorStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st := types.OperatorStatus{Status: "stopped"}
	if s.running {
		st.Status = "running"
		st.CurrentRoundID = s.currentRound
	}
	return st
}

func (s *Service) setStatus(running bool, roundID uint64) {
	s.statusMu.Lock()
	s.running = running
	s.currentRound = roundID
	s.statusMu.Unlock()

	// Replace whatever is queued: only the newest snapshot matters, and the
	// notification loop must never block on its own store subscription.
	st := s.GetStatus()
	for {
		select {
		case s.statusOut <- st:
			return
		default:
			select {
			case <-s.statusOut:
			default:
			}
		}
	}
}

// publishStatusLoop forwards status snapshots to the store one at a time,
// preserving transition order. A last drain after cancellation delivers the
// stopped status queued by Stop.
func (s *Service) publishStatusLoop() {
	for {
		select {
		case <-s.ctx.Done():
			select {
			case st := <-s.statusOut:
				s.cfg.Store.SetOperatorStatus(st)
			default:
			}
			return
		case st := <-s.statusOut:
			s.cfg.Store.SetOperatorStatus(st)
		}
	}
}

// onRoundUpdate applies the decision procedure to one round payload.
func (s *Service) onRoundUpdate(round store.RoundPayload) {
	if round.RoundID == 0 {
		return
	}
	s.setStatus(true, round.RoundID)
	if types.RoundState(round.State) != types.Betting {
		return
	}

	now := s.now()
	switch {
	case now < round.MinDrawTime:
		return
	case now <= round.MaxDrawTime:
		s.tryTransact(attempt{round.RoundID, actionDraw})
	default:
		s.tryTransact(attempt{round.RoundID, actionRefund})
	}
}

// tryTransact claims the in-flight slot and runs the attempt. Claims are
// synchronous; the transaction itself runs on a fresh goroutine so the
// notification loop keeps draining.
func (s *Service) tryTransact(a attempt) {
	s.mu.Lock()
	if s.inFlight != nil {
		dropped := *s.inFlight == a
		s.mu.Unlock()
		if dropped {
			log.WithFields(logrus.Fields{
				"round":  a.roundID,
				"action": a.kind,
			}).Debug("Duplicate attempt dropped, transaction pending")
		}
		return
	}
	s.inFlight = &a
	s.mu.Unlock()

	go func() {
		defer s.clearInFlight()
		s.execute(a)
	}()
}

func (s *Service) clearInFlight() {
	s.mu.Lock()
	s.inFlight = nil
	s.mu.Unlock()
}

func (s *Service) execute(a attempt) {
	if !s.cfg.Chain.OperatorInstalled() {
		log.WithField("round", a.roundID).Error("Operator key not installed, cannot transact")
		return
	}
	fields := logrus.Fields{"round": a.roundID, "action": a.kind}

	var hash common.Hash
	var err error
	switch a.kind {
	case actionDraw:
		hash, err = s.cfg.Chain.DrawRound(s.ctx, a.roundID)
	case actionRefund:
		hash, err = s.cfg.Chain.RefundRound(s.ctx, a.roundID)
	}
	if err != nil {
		txAttemptsFailed.WithLabelValues(string(a.kind)).Inc()
		log.WithError(err).WithFields(fields).Warn("Transaction rejected")
		return
	}
	txAttempts.WithLabelValues(string(a.kind)).Inc()
	log.WithFields(fields).WithField("tx", hash.Hex()).Info("Transaction submitted")

	receipt, err := s.cfg.Chain.WaitForTransaction(s.ctx, hash, s.txTimeout())
	if err != nil {
		txAttemptsFailed.WithLabelValues(string(a.kind)).Inc()
		log.WithError(err).WithFields(fields).Warn("Transaction not confirmed")
		return
	}
	if receipt.Status != 1 {
		txAttemptsFailed.WithLabelValues(string(a.kind)).Inc()
		log.WithFields(fields).WithField("block", receipt.BlockNumber).Warn("Transaction reverted on-chain")
		return
	}
	log.WithFields(fields).WithFields(logrus.Fields{
		"block":   receipt.BlockNumber,
		"gasUsed": receipt.GasUsed,
	}).Info("Transaction confirmed")
}

func (s *Service) txTimeout() time.Duration {
	return time.Duration(s.cfg.Settings.TxTimeoutSeconds) * time.Second
}
