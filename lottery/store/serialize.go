package store

import (
	"bytes"
	"math/big"
	"sort"
	"strings"

	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

// RoundPayload is the wire shape of the current round. Wei amounts are
// decimal strings so values past 2^53 survive JSON.
type RoundPayload struct {
	RoundID             uint64  `json:"round_id"`
	State               uint8   `json:"state"`
	StateLabel          string  `json:"state_label"`
	StateName           string  `json:"state_name"`
	StartTime           uint64  `json:"start_time"`
	EndTime             uint64  `json:"end_time"`
	MinDrawTime         uint64  `json:"min_draw_time"`
	MaxDrawTime         uint64  `json:"max_draw_time"`
	TotalPot            string  `json:"total_pot"`
	ParticipantCount    uint64  `json:"participant_count"`
	Winner              *string `json:"winner,omitempty"`
	PublisherCommission string  `json:"publisher_commission"`
	SparsityCommission  string  `json:"sparsity_commission"`
	WinnerPrize         string  `json:"winner_prize"`
}

// ParticipantPayload is one entry of the participants list.
type ParticipantPayload struct {
	Address        string `json:"address"`
	TotalAmountWei string `json:"totalAmountWei"`
}

// HistoryItemPayload is one finished-round record.
type HistoryItemPayload struct {
	EventType        string  `json:"event_type"`
	RoundID          uint64  `json:"round_id"`
	ParticipantCount uint64  `json:"participant_count"`
	TotalPotWei      string  `json:"total_pot_wei"`
	FinishedAt       uint64  `json:"finished_at"`
	Winner           *string `json:"winner"`
	WinnerPrizeWei   string  `json:"winner_prize_wei"`
	RefundReason     string  `json:"refund_reason,omitempty"`
}

// FeedItemPayload is one live activity entry.
type FeedItemPayload struct {
	EventType string                 `json:"event_type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	EventTime uint64                 `json:"event_time"`
	RoundID   uint64                 `json:"round_id"`
}

// ConfigPayload is the wire shape of the contract config snapshot.
type ConfigPayload struct {
	PublisherAddress    string `json:"publisher_address"`
	SparsityAddress     string `json:"sparsity_address"`
	OperatorAddress     string `json:"operator_address"`
	PublisherCommission uint64 `json:"publisher_commission"`
	SparsityCommission  uint64 `json:"sparsity_commission"`
	MinBetWei           string `json:"min_bet_wei"`
	BettingDuration     uint64 `json:"betting_duration"`
	MinDrawDelay        uint64 `json:"min_draw_delay"`
	MaxDrawDelay        uint64 `json:"max_draw_delay"`
	MinEndTimeExtension uint64 `json:"min_end_time_extension"`
	MinParticipants     uint64 `json:"min_participants"`
}

// StatusPayload is the operator status wire shape.
type StatusPayload struct {
	Status         string `json:"status"`
	CurrentRoundID uint64 `json:"current_round_id,omitempty"`
}

// SerializeRound converts a round snapshot to its wire shape. A nil round
// serializes as the zeroed "waiting" shape.
func SerializeRound(r *types.LotteryRound) RoundPayload {
	if r == nil {
		return RoundPayload{
			StateLabel:          types.Waiting.Label(),
			StateName:           types.Waiting.Label(),
			TotalPot:            "0",
			PublisherCommission: "0",
			SparsityCommission:  "0",
			WinnerPrize:         "0",
		}
	}
	p := RoundPayload{
		RoundID:             r.RoundID,
		State:               uint8(r.State),
		StateLabel:          r.State.Label(),
		StateName:           r.State.Label(),
		StartTime:           r.StartTime,
		EndTime:             r.EndTime,
		MinDrawTime:         r.MinDrawTime,
		MaxDrawTime:         r.MaxDrawTime,
		TotalPot:            weiString(r.TotalPot),
		ParticipantCount:    r.ParticipantCount,
		PublisherCommission: weiString(r.PublisherCommission),
		SparsityCommission:  weiString(r.SparsityCommission),
		WinnerPrize:         weiString(r.WinnerPrize),
	}
	if r.Winner != nil {
		w := strings.ToLower(r.Winner.Hex())
		p.Winner = &w
	}
	return p
}

// SerializeHistory converts snapshots to their wire shape, newest round
// first.
func SerializeHistory(snaps []types.RoundSnapshot) []HistoryItemPayload {
	out := make([]HistoryItemPayload, 0, len(snaps))
	for _, s := range snaps {
		item := HistoryItemPayload{
			EventType:        s.EventType,
			RoundID:          s.RoundID,
			ParticipantCount: s.ParticipantCount,
			TotalPotWei:      weiString(s.TotalPot),
			FinishedAt:       s.FinishedAt,
			WinnerPrizeWei:   weiString(s.WinnerPrize),
			RefundReason:     s.RefundReason,
		}
		if s.Winner != nil {
			w := strings.ToLower(s.Winner.Hex())
			item.Winner = &w
		}
		out = append(out, item)
	}
	return out
}

// SerializeFeed converts activity items to their wire shape.
func SerializeFeed(items []types.LiveFeedItem) []FeedItemPayload {
	out := make([]FeedItemPayload, 0, len(items))
	for _, it := range items {
		out = append(out, liveFeedPayload(it))
	}
	return out
}

// SerializeConfig converts a config snapshot to its wire shape, nil when
// the store has none.
func SerializeConfig(cfg *types.ContractConfig) *ConfigPayload {
	if cfg == nil {
		return nil
	}
	return &ConfigPayload{
		PublisherAddress:    strings.ToLower(cfg.Publisher.Hex()),
		SparsityAddress:     strings.ToLower(cfg.Sparsity.Hex()),
		OperatorAddress:     strings.ToLower(cfg.Operator.Hex()),
		PublisherCommission: cfg.PublisherCommission,
		SparsityCommission:  cfg.SparsityCommission,
		MinBetWei:           weiString(cfg.MinBetWei),
		BettingDuration:     cfg.BettingDuration,
		MinDrawDelay:        cfg.MinDrawDelay,
		MaxDrawDelay:        cfg.MaxDrawDelay,
		MinEndTimeExtension: cfg.MinEndTimeExtension,
		MinParticipants:     cfg.MinParticipants,
	}
}

// SerializeParticipants converts summaries to their wire shape. The input
// order is preserved.
func SerializeParticipants(summaries []types.ParticipantSummary) []ParticipantPayload {
	out := make([]ParticipantPayload, 0, len(summaries))
	for _, p := range summaries {
		out = append(out, ParticipantPayload{
			Address:        strings.ToLower(p.Address.Hex()),
			TotalAmountWei: weiString(p.TotalAmount),
		})
	}
	return out
}

func liveFeedPayload(it types.LiveFeedItem) FeedItemPayload {
	return FeedItemPayload{
		EventType: it.EventType,
		Message:   it.Message,
		Details:   it.Details,
		EventTime: it.EventTime,
		RoundID:   it.RoundID,
	}
}

func statusPayload(st types.OperatorStatus) StatusPayload {
	return StatusPayload{Status: st.Status, CurrentRoundID: st.CurrentRoundID}
}

func (s *Store) roundPayloadLocked() RoundPayload {
	return SerializeRound(s.current)
}

func (s *Store) participantsPayloadLocked() []ParticipantPayload {
	return SerializeParticipants(s.participantsSortedLocked())
}

func (s *Store) historyPayloadLocked(limit int) []HistoryItemPayload {
	return SerializeHistory(s.historySortedLocked(limit))
}

func (s *Store) configPayloadLocked() *ConfigPayload {
	return SerializeConfig(s.config)
}

// participantsSortedLocked returns copies sorted by total descending; ties
// break on address bytes so the order is stable across refreshes.
func (s *Store) participantsSortedLocked() []types.ParticipantSummary {
	out := make([]types.ParticipantSummary, 0, len(s.participants))
	for addr, amount := range s.participants {
		out = append(out, types.ParticipantSummary{
			Address:     addr,
			TotalAmount: new(big.Int).Set(amount),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalAmount.Cmp(out[j].TotalAmount); c != 0 {
			return c > 0
		}
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out
}

func (s *Store) historySortedLocked(limit int) []types.RoundSnapshot {
	items := s.history.Items()
	out := make([]types.RoundSnapshot, len(items))
	for i, it := range items {
		out[i] = it.Copy()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RoundID > out[j].RoundID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) liveSortedLocked(limit int) []types.LiveFeedItem {
	items := s.live.Items()
	out := make([]types.LiveFeedItem, len(items))
	for i, it := range items {
		out[i] = it.Copy()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RoundID != out[j].RoundID {
			return out[i].RoundID > out[j].RoundID
		}
		return out[i].EventTime > out[j].EventTime
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
