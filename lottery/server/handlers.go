package server

import (
	"encoding/json"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/zfdang/enclave-lottery-app-sub000/lottery/enclave"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/store"
	"github.com/zfdang/enclave-lottery-app-sub000/network/httputil"
)

const (
	defaultParticipantLimit = 200
	maxParticipantLimit     = 200
	defaultHistoryLimit     = 50
	defaultActivitiesLimit  = 50
)

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// limitParam parses ?limit=N clamped to [1, max]; def when absent or bad.
func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "server.handleHealth")
	defer span.End()

	chainHealth := s.cfg.Chain.HealthCheck(ctx)
	components := map[string]string{
		"web":        "ok",
		"operator":   s.cfg.Operator.GetStatus().Status,
		"blockchain": chainHealth.Status,
		"store":      "ok",
	}
	status := "ok"
	if chainHealth.Status != "ok" {
		status = "degraded"
	}
	httputil.WriteJson(w, HealthResponse{
		Status:     status,
		Timestamp:  timestamp(),
		Components: components,
	})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "server.handleStatus")
	defer span.End()

	httputil.WriteJson(w, StatusResponse{
		Timestamp:    timestamp(),
		Round:        store.SerializeRound(s.cfg.Store.CurrentRound()),
		Participants: store.SerializeParticipants(s.cfg.Store.Participants()),
		History:      store.SerializeHistory(s.cfg.Store.History(5)),
		Operator:     s.cfg.Operator.GetStatus(),
		Blockchain:   s.cfg.Chain.HealthCheck(ctx),
	})
}

func (s *Service) handleRoundStatus(w http.ResponseWriter, r *http.Request) {
	_, span := trace.StartSpan(r.Context(), "server.handleRoundStatus")
	defer span.End()

	httputil.WriteJson(w, store.SerializeRound(s.cfg.Store.CurrentRound()))
}

func (s *Service) handleParticipants(w http.ResponseWriter, r *http.Request) {
	_, span := trace.StartSpan(r.Context(), "server.handleParticipants")
	defer span.End()

	limit := limitParam(r, defaultParticipantLimit, maxParticipantLimit)
	participants := s.cfg.Store.Participants()
	total := new(big.Int)
	for _, p := range participants {
		total.Add(total, p.TotalAmount)
	}
	count := len(participants)
	if len(participants) > limit {
		participants = participants[:limit]
	}

	var roundID uint64
	if round := s.cfg.Store.CurrentRound(); round != nil {
		roundID = round.RoundID
	}
	httputil.WriteJson(w, ParticipantsResponse{
		RoundID:           roundID,
		Participants:      store.SerializeParticipants(participants),
		TotalParticipants: count,
		TotalAmountWei:    total.String(),
		Timestamp:         timestamp(),
	})
}

func (s *Service) handlePlayer(w http.ResponseWriter, r *http.Request) {
	_, span := trace.StartSpan(r.Context(), "server.handlePlayer")
	defer span.End()

	player := r.URL.Query().Get("player")
	if player == "" {
		httputil.HandleError(w, "player parameter is required", http.StatusBadRequest)
		return
	}

	resp := PlayerResponse{
		Player:         strings.ToLower(player),
		TotalAmountWei: "0",
		Timestamp:      timestamp(),
	}
	playerTotal := s.cfg.Store.ParticipantTotal(player)
	resp.TotalAmountWei = playerTotal.String()
	if round := s.cfg.Store.CurrentRound(); round != nil {
		resp.RoundID = round.RoundID
		if round.TotalPot != nil && round.TotalPot.Sign() > 0 {
			rate := new(big.Float).Quo(
				new(big.Float).SetInt(playerTotal),
				new(big.Float).SetInt(round.TotalPot),
			)
			rate.Mul(rate, big.NewFloat(100))
			resp.WinRate, _ = rate.Float64()
		}
	}
	httputil.WriteJson(w, resp)
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	_, span := trace.StartSpan(r.Context(), "server.handleHistory")
	defer span.End()

	limit := limitParam(r, defaultHistoryLimit, s.cfg.Store.HistoryCapacity())
	rounds := s.cfg.Store.History(limit)

	summary := HistorySummary{TotalVolumeWei: "0", TotalPrizesWei: "0"}
	volume := new(big.Int)
	prizes := new(big.Int)
	for _, snap := range s.cfg.Store.History(0) {
		summary.TotalRounds++
		if snap.EventType == "RoundRefunded" {
			summary.RefundedRounds++
		} else {
			summary.CompletedRounds++
		}
		if snap.TotalPot != nil {
			volume.Add(volume, snap.TotalPot)
		}
		if snap.WinnerPrize != nil {
			prizes.Add(prizes, snap.WinnerPrize)
		}
	}
	summary.TotalVolumeWei = volume.String()
	summary.TotalPrizesWei = prizes.String()

	httputil.WriteJson(w, HistoryResponse{
		Rounds:    store.SerializeHistory(rounds),
		Summary:   summary,
		Timestamp: timestamp(),
	})
}

func (s *Service) handleActivities(w http.ResponseWriter, r *http.Request) {
	_, span := trace.StartSpan(r.Context(), "server.handleActivities")
	defer span.End()

	limit := limitParam(r, defaultActivitiesLimit, s.cfg.Store.FeedCapacity())
	httputil.WriteJson(w, ActivitiesResponse{
		Activities: store.SerializeFeed(s.cfg.Store.LiveFeed(limit)),
		Timestamp:  timestamp(),
	})
}

func (s *Service) handleContractConfig(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "server.handleContractConfig")
	defer span.End()

	cfg := s.cfg.Store.ContractConfig()
	if cfg == nil {
		// Cold start: the watcher has not populated the store yet.
		fresh, err := s.cfg.Chain.GetContractConfig(ctx)
		if err != nil {
			httputil.HandleError(w, errors.Wrap(err, "contract config unavailable").Error(), http.StatusServiceUnavailable)
			return
		}
		s.cfg.Store.SetContractConfig(fresh)
		cfg = fresh
	}
	httputil.WriteJson(w, store.SerializeConfig(cfg))
}

func (s *Service) handleContractAddress(w http.ResponseWriter, r *http.Request) {
	_, span := trace.StartSpan(r.Context(), "server.handleContractAddress")
	defer span.End()

	httputil.WriteJson(w, ContractAddressResponse{
		ContractAddress: strings.ToLower(s.cfg.Chain.ContractAddress().Hex()),
		Timestamp:       timestamp(),
	})
}

func (s *Service) handleAttestation(w http.ResponseWriter, r *http.Request) {
	_, span := trace.StartSpan(r.Context(), "server.handleAttestation")
	defer span.End()

	httputil.WriteJson(w, s.cfg.Attestor.Attest())
}

func (s *Service) handleGetPubKey(w http.ResponseWriter, r *http.Request) {
	_, span := trace.StartSpan(r.Context(), "server.handleGetPubKey")
	defer span.End()

	pemKey, err := s.cfg.Vault.PublicKeyPEM()
	if err != nil {
		httputil.HandleError(w, "could not encode public key", http.StatusInternalServerError)
		return
	}
	httputil.WriteJson(w, PubKeyResponse{
		PublicKeyPEM: pemKey,
		PublicKeyHex: s.cfg.Vault.PublicKeyHex(),
		Timestamp:    timestamp(),
	})
}

func (s *Service) handleSetOperatorKey(w http.ResponseWriter, r *http.Request) {
	_, span := trace.StartSpan(r.Context(), "server.handleSetOperatorKey")
	defer span.End()

	var req SetOperatorKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EncryptedPrivateKey == "" {
		httputil.HandleError(w, "encrypted_private_key is required", http.StatusBadRequest)
		return
	}

	addr, err := s.cfg.Injector.Install(req.EncryptedPrivateKey, clientIP(r))
	if err == nil {
		httputil.WriteJson(w, SetOperatorKeyResponse{
			Success:         true,
			OperatorAddress: strings.ToLower(addr.Hex()),
		})
		return
	}

	var mismatch *enclave.MismatchError
	switch {
	case errors.Is(err, enclave.ErrAlreadyInstalled):
		httputil.WriteJsonWithStatus(w, KeyErrorResponse{
			Error:           "Operator key already set",
			OperatorAddress: s.cfg.Injector.OperatorAddress(),
		}, http.StatusForbidden)
	case errors.Is(err, enclave.ErrRateLimited):
		httputil.WriteJsonWithStatus(w, KeyErrorResponse{Error: err.Error()}, http.StatusTooManyRequests)
	case errors.As(err, &mismatch):
		keySet := false
		httputil.WriteJsonWithStatus(w, KeyErrorResponse{
			Error:           "derived address does not match expected operator",
			ExpectedAddress: mismatch.Expected,
			DerivedAddress:  mismatch.Derived,
			OperatorKeySet:  &keySet,
		}, http.StatusBadRequest)
	default:
		httputil.WriteJsonWithStatus(w, KeyErrorResponse{Error: err.Error()}, http.StatusBadRequest)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// spaHandler serves the static frontend with index.html fallback so client
// side routes survive a refresh.
func (s *Service) spaHandler() http.Handler {
	staticDir := s.cfg.Settings.StaticDir
	fileServer := http.FileServer(http.Dir(staticDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
	})
}
