// Package node wires the lottery backend together: configuration, the
// chain client, the in-memory store, the enclave key vault and every
// long-running service, composed through a service registry.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/zfdang/enclave-lottery-app-sub000/cmd/lottery/flags"
	"github.com/zfdang/enclave-lottery-app-sub000/config"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/chain"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/enclave"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/operator"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/server"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/store"
	"github.com/zfdang/enclave-lottery-app-sub000/lottery/watcher"
	"github.com/zfdang/enclave-lottery-app-sub000/monitoring/prometheus"
	"github.com/zfdang/enclave-lottery-app-sub000/monitoring/tracing"
	"github.com/zfdang/enclave-lottery-app-sub000/runtime"
)

var log = logrus.WithField("prefix", "node")

// LotteryNode hosts the full backend. It handles the lifecycle of the
// entire system and registers services to a service registry.
type LotteryNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	lock     sync.RWMutex
	services *runtime.ServiceRegistry
	stop     chan struct{} // Channel to wait for termination notifications.
}

// New builds a node instance: it loads and validates the configuration,
// dials the chain, generates the enclave keypair and registers every
// required service. Any failure here is fatal to startup.
func New(cliCtx *cli.Context) (*LotteryNode, error) {
	if err := tracing.Setup(
		cliCtx.String(flags.TracingProcessNameFlag.Name),
		cliCtx.String(flags.TracingEndpointFlag.Name),
		cliCtx.Float64(flags.TraceSampleFractionFlag.Name),
		cliCtx.Bool(flags.EnableTracingFlag.Name),
	); err != nil {
		return nil, err
	}

	cfg, err := config.Load(cliCtx.String(flags.ConfigFileFlag.Name))
	if err != nil {
		return nil, err
	}
	if cliCtx.IsSet(flags.HTTPHostFlag.Name) {
		cfg.Server.Host = cliCtx.String(flags.HTTPHostFlag.Name)
	}
	if cliCtx.IsSet(flags.HTTPPortFlag.Name) {
		cfg.Server.Port = cliCtx.Int(flags.HTTPPortFlag.Name)
	}

	ctx, cancel := context.WithCancel(cliCtx.Context)
	n := &LotteryNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	if err := n.registerServices(cfg); err != nil {
		cancel()
		return nil, err
	}
	return n, nil
}

func (n *LotteryNode) registerServices(cfg *config.Config) error {
	st := store.New(
		store.WithHistoryCapacity(cfg.EventManager.RoundHistoryMax),
		store.WithFeedCapacity(cfg.EventManager.LiveFeedMaxEntries),
	)

	chainClient, err := chain.NewClient(n.ctx,
		chain.WithEndpoint(cfg.Blockchain.RPCURL),
		chain.WithContractAddress(cfg.ContractAddr()),
		chain.WithChainID(cfg.Blockchain.ChainID),
		chain.WithGasPriceGwei(cfg.Blockchain.GasPrice),
		chain.WithGasMultiplier(cfg.Blockchain.GasMultiplier),
	)
	if err != nil {
		return errors.Wrap(err, "could not set up chain client")
	}

	vault, err := enclave.NewVault()
	if err != nil {
		return errors.Wrap(err, "could not generate enclave keypair")
	}
	injector := enclave.NewInjector(vault, chainClient, cfg.Blockchain.OperatorAddress)
	attestor := enclave.NewAttestor(vault, injector.OperatorAddress)

	watcherSvc := watcher.New(n.ctx, &watcher.ServiceConfig{
		Chain:    chainClient,
		Store:    st,
		Settings: cfg.EventManager,
	})
	if err := n.services.RegisterService(watcherSvc); err != nil {
		return err
	}

	operatorSvc := operator.New(n.ctx, &operator.ServiceConfig{
		Chain:    chainClient,
		Store:    st,
		Settings: cfg.Operator,
	})
	if err := n.services.RegisterService(operatorSvc); err != nil {
		return err
	}

	gateway := server.New(n.ctx, &server.ServiceConfig{
		Store:    st,
		Chain:    chainClient,
		Operator: operatorSvc,
		Vault:    vault,
		Attestor: attestor,
		Injector: injector,
		Settings: cfg.Server,
	})
	if err := n.services.RegisterService(gateway); err != nil {
		return err
	}

	if cfg.Server.MonitoringPort > 0 {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MonitoringPort)
		if err := n.services.RegisterService(prometheus.NewService(addr, n.services)); err != nil {
			return err
		}
	}
	return nil
}

// Start the node and kick off every registered service.
func (n *LotteryNode) Start() {
	n.lock.Lock()
	n.services.StartAll()
	n.lock.Unlock()

	stop := n.stop
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the lottery node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *LotteryNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping lottery node")
	n.services.StopAll()
	n.cancel()
	close(n.stop)
}
