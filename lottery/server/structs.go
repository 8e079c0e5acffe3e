package server

import (
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/store"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

// HealthResponse is the /api/health shape.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// StatusResponse is the /api/status full snapshot.
type StatusResponse struct {
	Timestamp    string                     `json:"timestamp"`
	Round        store.RoundPayload         `json:"round"`
	Participants []store.ParticipantPayload `json:"participants"`
	History      []store.HistoryItemPayload `json:"history"`
	Operator     types.OperatorStatus       `json:"operator"`
	Blockchain   types.ChainHealth          `json:"blockchain"`
}

// ParticipantsResponse is the /api/round/participants shape.
type ParticipantsResponse struct {
	RoundID           uint64                     `json:"round_id"`
	Participants      []store.ParticipantPayload `json:"participants"`
	TotalParticipants int                        `json:"total_participants"`
	TotalAmountWei    string                     `json:"total_amount_wei"`
	Timestamp         string                     `json:"timestamp"`
}

// PlayerResponse is the /api/round/player shape.
type PlayerResponse struct {
	Player         string  `json:"player"`
	RoundID        uint64  `json:"round_id"`
	TotalAmountWei string  `json:"totalAmountWei"`
	WinRate        float64 `json:"winRate"`
	Timestamp      string  `json:"timestamp"`
}

// HistorySummary aggregates the recorded history.
type HistorySummary struct {
	TotalRounds     int    `json:"total_rounds"`
	CompletedRounds int    `json:"completed_rounds"`
	RefundedRounds  int    `json:"refunded_rounds"`
	TotalVolumeWei  string `json:"total_volume_wei"`
	TotalPrizesWei  string `json:"total_prizes_wei"`
}

// HistoryResponse is the /api/history shape.
type HistoryResponse struct {
	Rounds    []store.HistoryItemPayload `json:"rounds"`
	Summary   HistorySummary             `json:"summary"`
	Timestamp string                     `json:"timestamp"`
}

// ActivitiesResponse is the /api/activities shape.
type ActivitiesResponse struct {
	Activities []store.FeedItemPayload `json:"activities"`
	Timestamp  string                  `json:"timestamp"`
}

// ContractAddressResponse is the /api/contract/address shape.
type ContractAddressResponse struct {
	ContractAddress string `json:"contract_address"`
	Timestamp       string `json:"timestamp"`
}

// PubKeyResponse is the /api/get_pub_key shape.
type PubKeyResponse struct {
	PublicKeyPEM string `json:"public_key_pem"`
	PublicKeyHex string `json:"public_key_hex"`
	Timestamp    string `json:"timestamp"`
}

// SetOperatorKeyRequest is the /api/set_operator_key request body.
type SetOperatorKeyRequest struct {
	EncryptedPrivateKey string `json:"encrypted_private_key"`
}

// SetOperatorKeyResponse is the success shape of /api/set_operator_key.
type SetOperatorKeyResponse struct {
	Success         bool   `json:"success"`
	OperatorAddress string `json:"operator_address"`
}

// KeyErrorResponse covers the failure shapes of /api/set_operator_key.
type KeyErrorResponse struct {
	Error           string `json:"error"`
	OperatorAddress string `json:"operator_address,omitempty"`
	ExpectedAddress string `json:"expected_address,omitempty"`
	DerivedAddress  string `json:"derived_address,omitempty"`
	OperatorKeySet  *bool  `json:"operator_key_set,omitempty"`
}
