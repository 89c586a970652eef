package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/BitcreditProtocol/E-Bill/blockchain"
	"github.com/BitcreditProtocol/E-Bill/config"
	"github.com/BitcreditProtocol/E-Bill/encryption"
	"github.com/BitcreditProtocol/E-Bill/identity"
	"github.com/BitcreditProtocol/E-Bill/logger"
	"github.com/BitcreditProtocol/E-Bill/models"
	"github.com/BitcreditProtocol/E-Bill/relay"
	"github.com/BitcreditProtocol/E-Bill/service"
	"github.com/BitcreditProtocol/E-Bill/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting e-bill node")

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ebill.db"))
	if err != nil {
		log.Fatal("failed to open leveldb", zap.Error(err))
	}
	defer db.Close()

	crypto := encryption.NewCryptoService()

	identities, err := identity.NewStore(db, crypto)
	if err != nil {
		log.Fatal("failed to open identity store", zap.Error(err))
	}
	if _, err := identities.Active(); err == identity.ErrNoActiveIdentity {
		ident, err := identities.Create("", models.IdentityPersonal)
		if err != nil {
			log.Fatal("failed to create initial identity", zap.Error(err))
		}
		log.Info("created initial identity", zap.String("node_id", ident.NodeID))
	}

	chains := storage.NewChainStore(db)
	inflight := storage.NewInFlightStore(db)

	// The relay transport is an external collaborator; the loopback relay
	// stands in until one is wired up.
	rl := relay.NewMemoryRelay()

	dispatcher := service.NewNotificationDispatcher(log)
	syncEngine := service.NewSyncEngine(rl, inflight, identities, crypto, dispatcher,
		cfg.RetryMaxAttempts, cfg.RetryBackoff, log)

	deadlines := blockchain.Deadlines{
		Accept:   cfg.AcceptDeadline,
		Payment:  cfg.PaymentDeadline,
		Recourse: cfg.RecourseDeadline,
	}
	bills := service.NewBillService(chains, identities, crypto, syncEngine, dispatcher, deadlines, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := syncEngine.Start(ctx); err != nil {
		log.Fatal("failed to start sync engine", zap.Error(err))
	}

	jobs := service.NewJobRunner(cfg.JobInitialDelay, cfg.JobInterval, log,
		syncEngine.RetrySweep, bills.SweepWaitingStates)
	jobs.Start(ctx)

	log.Info("e-bill node running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, exiting")
	cancel()
	jobs.Wait()
	syncEngine.Wait()
	dispatcher.Close()
}
