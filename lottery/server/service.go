// Package server is the web gateway: REST endpoints over the store, the
// lottery WebSocket stream and the static SPA.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/zfdang/enclave-lottery-app-sub000/config"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/enclave"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/store"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/types"
)

var log = logrus.WithField("prefix", "server")

const shutdownTimeout = 5 * time.Second

// ChainStatus is the chain client surface the gateway reads from.
type ChainStatus interface {
	HealthCheck(ctx context.Context) types.ChainHealth
	GetContractConfig(ctx context.Context) (*types.ContractConfig, error)
	ContractAddress() common.Address
}

// OperatorStatusProvider reports the operator's state.
type OperatorStatusProvider interface {
	GetStatus() types.OperatorStatus
}

// ServiceConfig bundles the gateway's dependencies.
type ServiceConfig struct {
	Store    *store.Store
	Chain    ChainStatus
	Operator OperatorStatusProvider
	Vault    *enclave.Vault
	Attestor *enclave.Attestor
	Injector *enclave.Injector
	Settings config.ServerConfig
}

// Service is the web gateway. It implements runtime.Service.
type Service struct {
	cfg    *ServiceConfig
	ctx    context.Context
	cancel context.CancelFunc
	srv    *http.Server
	hub    *Hub

	startErr error
}

// New creates the gateway service.
func New(ctx context.Context, cfg *ServiceConfig) *Service {
	ctx, cancel := context.WithCancel(ctx)
	s := &Service{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	s.hub = newHub(ctx, cfg.Store, s.snapshot)
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Settings.Host, cfg.Settings.Port),
		Handler:           s.corsMiddleware().Handler(s.router()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// router wires every endpoint. Exposed to tests through httptest servers.
func (s *Service) router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/round/status", s.handleRoundStatus).Methods(http.MethodGet)
	api.HandleFunc("/round/participants", s.handleParticipants).Methods(http.MethodGet)
	api.HandleFunc("/round/player", s.handlePlayer).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/activities", s.handleActivities).Methods(http.MethodGet)
	api.HandleFunc("/contract/config", s.handleContractConfig).Methods(http.MethodGet)
	api.HandleFunc("/contract/address", s.handleContractAddress).Methods(http.MethodGet)
	api.HandleFunc("/attestation", s.handleAttestation).Methods(http.MethodGet)
	api.HandleFunc("/get_pub_key", s.handleGetPubKey).Methods(http.MethodGet)
	api.HandleFunc("/set_operator_key", s.handleSetOperatorKey).Methods(http.MethodPost)

	r.HandleFunc("/ws/lottery", s.handleWebSocket)
	r.PathPrefix("/").Handler(s.spaHandler())
	return r
}

func (s *Service) corsMiddleware() *cors.Cors {
	origins := s.cfg.Settings.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
}

// Start runs the broadcaster and the HTTP listener.
func (s *Service) Start() {
	s.hub.run()
	log.WithField("address", s.srv.Addr).Info("Starting web gateway")
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.startErr = err
			log.WithError(err).Error("Gateway listener failed")
		}
	}()
}

// Stop drains WebSocket clients and shuts the listener down.
func (s *Service) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Status surfaces a failed listener bind.
func (s *Service) Status() error {
	return s.startErr
}
