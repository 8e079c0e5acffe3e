package watcher

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/zfdang/enclave-lottery-app-sub000/config"
	contract "github.com/zfdang/enclave-lottery-app-sub000/contracts/lottery"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/store"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/assert"
	"github.com/zfdang/enclave-lottery-app-sub000/testing/require"
)

type fakeChain struct {
	config       *types.ContractConfig
	configErr    error
	round        *types.LotteryRound
	roundErr     error
	participants []types.ParticipantSummary
	events       []types.Event
	lastSeen     uint64
	latest       uint64
	latestErr    error
}

func (f *fakeChain) GetContractConfig(_ context.Context) (*types.ContractConfig, error) {
	return f.config, f.configErr
}

func (f *fakeChain) GetCurrentRound(_ context.Context) (*types.LotteryRound, error) {
	return f.round, f.roundErr
}

func (f *fakeChain) GetParticipantSummaries(_ context.Context, _ uint64) ([]types.ParticipantSummary, error) {
	return f.participants, nil
}

func (f *fakeChain) GetEvents(_ context.Context, _ uint64) ([]types.Event, error) {
	return f.events, nil
}

func (f *fakeChain) LastSeenBlock() uint64 { return f.lastSeen }

func (f *fakeChain) LatestBlockNumber(_ context.Context) (uint64, error) {
	return f.latest, f.latestErr
}

func newTestService(chain *fakeChain) (*Service, *store.Store) {
	st := store.New()
	svc := New(context.Background(), &ServiceConfig{
		Chain:    chain,
		Store:    st,
		Settings: config.Default().EventManager,
	})
	return svc, st
}

func TestRefreshConfig_WritesStore(t *testing.T) {
	chain := &fakeChain{config: &types.ContractConfig{
		Operator:  common.HexToAddress("0x3333333333333333333333333333333333333333"),
		MinBetWei: big.NewInt(10000000000000000),
	}}
	svc, st := newTestService(chain)

	svc.refreshConfig()

	cfg := st.ContractConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "10000000000000000", cfg.MinBetWei.String())
}

func TestRefreshConfig_ToleratesChainError(t *testing.T) {
	svc, st := newTestService(&fakeChain{configErr: errors.New("node down")})

	svc.refreshConfig()

	if st.ContractConfig() != nil {
		t.Fatal("failed refresh must not write the store")
	}
}

func TestRefreshRound_SyncsParticipantsWhenActive(t *testing.T) {
	player := common.HexToAddress("0x9965507d1a55bcc2695c58ba16fb37d819b0a4dc")
	chain := &fakeChain{
		round: &types.LotteryRound{
			RoundID:  7,
			State:    types.Betting,
			TotalPot: big.NewInt(10000000000000000),
		},
		participants: []types.ParticipantSummary{
			{Address: player, TotalAmount: big.NewInt(10000000000000000)},
		},
	}
	svc, st := newTestService(chain)

	svc.refreshRound()

	require.NotNil(t, st.CurrentRound())
	assert.Equal(t, uint64(7), st.CurrentRound().RoundID)
	got := st.Participants()
	require.Equal(t, 1, len(got))
	assert.Equal(t, player, got[0].Address)
}

func TestRefreshRound_NoRoundSkipsParticipants(t *testing.T) {
	svc, st := newTestService(&fakeChain{round: nil})

	svc.refreshRound()

	if st.CurrentRound() != nil {
		t.Fatal("no round expected")
	}
}

func TestHandleEvent_BetPlacedReachesFeedAndSubscribers(t *testing.T) {
	svc, st := newTestService(&fakeChain{})
	raw := make(chan types.Event, 1)
	sub := svc.SubscribeChainEvents(raw)
	defer sub.Unsubscribe()

	svc.HandleEvent(&types.Event{
		Name: contract.EventBetPlaced,
		Args: map[string]interface{}{
			"roundId": big.NewInt(7),
			"player":  "0x9965507d1a55bcc2695c58ba16fb37d819b0a4dc",
			"amount":  big.NewInt(10000000000000000),
		},
		Timestamp: 1700000100,
	})

	evt := <-raw
	assert.Equal(t, contract.EventBetPlaced, evt.Name)

	feed := st.LiveFeed(0)
	require.Equal(t, 1, len(feed))
	assert.Equal(t, "0x996550...a4dc placed a bet for 0.0100 ETH", feed[0].Message)
	assert.Equal(t, uint64(7), feed[0].RoundID)
	assert.Equal(t, uint64(1700000100), feed[0].EventTime)
	// Details are stringified for the SPA.
	assert.Equal(t, "10000000000000000", feed[0].Details["amount"])
	assert.Equal(t, 0, len(st.History(0)))
}

func TestHandleEvent_RoundCompletedWritesHistory(t *testing.T) {
	svc, st := newTestService(&fakeChain{})

	svc.HandleEvent(&types.Event{
		Name: contract.EventRoundCompleted,
		Args: map[string]interface{}{
			"roundId":          big.NewInt(12),
			"winner":           "0x9965507d1a55bcc2695c58ba16fb37d819b0a4dc",
			"totalPot":         big.NewInt(50000000000000000),
			"winnerPrize":      big.NewInt(49850000000000000),
			"participantCount": big.NewInt(3),
		},
		Timestamp: 1700000500,
	})

	hist := st.History(0)
	require.Equal(t, 1, len(hist))
	assert.Equal(t, "RoundCompleted", hist[0].EventType)
	assert.Equal(t, uint64(12), hist[0].RoundID)
	assert.Equal(t, uint64(3), hist[0].ParticipantCount)
	assert.Equal(t, "50000000000000000", hist[0].TotalPot.String())
	assert.Equal(t, "49850000000000000", hist[0].WinnerPrize.String())
	require.NotNil(t, hist[0].Winner)
	assert.Equal(t, common.HexToAddress("0x9965507d1a55bcc2695c58ba16fb37d819b0a4dc"), *hist[0].Winner)
}

func TestHandleEvent_RoundRefundedWritesHistory(t *testing.T) {
	svc, st := newTestService(&fakeChain{})

	svc.HandleEvent(&types.Event{
		Name: contract.EventRoundRefunded,
		Args: map[string]interface{}{
			"roundId":          big.NewInt(13),
			"reason":           "insufficient participants",
			"totalRefunded":    big.NewInt(50000000000000000),
			"participantCount": big.NewInt(1),
		},
		Timestamp: 900,
	})

	hist := st.History(0)
	require.Equal(t, 1, len(hist))
	assert.Equal(t, "RoundRefunded", hist[0].EventType)
	assert.Equal(t, "50000000000000000", hist[0].TotalPot.String())
	assert.Equal(t, "0", hist[0].WinnerPrize.String())
	assert.Equal(t, "insufficient participants", hist[0].RefundReason)
	if hist[0].Winner != nil {
		t.Fatal("refund history must not carry a winner")
	}
}

func TestHandleEvent_EndTimeExtendedStaysOffFeed(t *testing.T) {
	svc, st := newTestService(&fakeChain{})

	svc.HandleEvent(&types.Event{
		Name: contract.EventEndTimeExtended,
		Args: map[string]interface{}{"roundId": big.NewInt(7)},
	})

	assert.Equal(t, 0, len(st.LiveFeed(0)))
	assert.Equal(t, 0, len(st.History(0)))
}

func TestHandleEvent_ParameterUpdatesConsumedSilently(t *testing.T) {
	svc, st := newTestService(&fakeChain{})

	for _, name := range []string{
		contract.EventMinBetAmountUpdated,
		contract.EventBettingDurationUpdated,
		contract.EventMinParticipantsUpdated,
	} {
		svc.HandleEvent(&types.Event{
			Name: name,
			Args: map[string]interface{}{"oldValue": big.NewInt(1), "newValue": big.NewInt(2)},
		})
	}

	assert.Equal(t, 0, len(st.LiveFeed(0)))
	assert.Equal(t, 0, len(st.History(0)))
}

func TestInitialFromBlock_AppliesOffset(t *testing.T) {
	svc, _ := newTestService(&fakeChain{latest: 1200})
	from, ok := svc.initialFromBlock()
	require.Equal(t, true, ok)
	assert.Equal(t, uint64(700), from)
}

func TestInitialFromBlock_ClampsAtGenesis(t *testing.T) {
	svc, _ := newTestService(&fakeChain{latest: 100})
	from, ok := svc.initialFromBlock()
	require.Equal(t, true, ok)
	assert.Equal(t, uint64(0), from)
}

func TestInitialFromBlock_StopsWithService(t *testing.T) {
	svc, _ := newTestService(&fakeChain{latestErr: errors.New("node down")})
	require.NoError(t, svc.Stop())
	_, ok := svc.initialFromBlock()
	assert.Equal(t, false, ok)
}
