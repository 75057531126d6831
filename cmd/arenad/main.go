// arenad boots a memory-pool-system virtual-memory arena and exposes its
// stats, metrics, and profiling endpoints over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nainya/mpsarena/internal/logger"
	"github.com/nainya/mpsarena/internal/metrics"
	"github.com/nainya/mpsarena/internal/server"
	"github.com/nainya/mpsarena/pkg/arena"
)

var (
	port             = flag.Int("port", 9090, "Observability server port")
	userSize         = flag.Uint64("user-size", 64<<20, "Initial chunk size hint in bytes")
	commitLimit      = flag.Uint64("commit-limit", 0, "Commit limit in bytes (0 means no limit)")
	spareCommitLimit = flag.Uint64("spare-commit-limit", 16<<20, "Spare-commit hysteresis limit in bytes")
	vmnz             = flag.Bool("vmnz", false, "Use the VMNZ class (no zone discipline)")
	policyInterval   = flag.Duration("policy-interval", 10*time.Second, "Collection-start policy evaluation interval")
	logLevel         = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logPretty        = flag.Bool("log-pretty", false, "Pretty-print logs for development")
)

func main() {
	flag.Parse()

	logger.InitGlobalLogger(logger.Config{
		Level:  *logLevel,
		Pretty: *logPretty,
	})
	lg := logger.GetGlobalLogger()
	met := metrics.NewMetrics()

	class := arena.ClassVM
	if *vmnz {
		class = arena.ClassVMNZ
	}

	a, err := arena.Create(class, *userSize, arena.Config{
		CommitLimit:      *commitLimit,
		SpareCommitLimit: *spareCommitLimit,
		Logger:           lg.ArenaLogger(),
		Metrics:          met,
	})
	if err != nil {
		log.Fatalf("failed to create arena: %v", err)
	}
	defer a.Destroy()

	obs := server.NewObservabilityServer(*port, lg, func() interface{} {
		return a.Stats()
	})

	go func() {
		if err := obs.Start(); err != nil {
			log.Fatalf("observability server failed: %v", err)
		}
	}()

	stop := make(chan struct{})
	go runPolicyLoop(a, lg.PolicyLogger(), *policyInterval, stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	close(stop)
	lg.LogServerShutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = obs.Shutdown(ctx)
}

// runPolicyLoop periodically evaluates the collection-start policy and
// logs the outcome. Actual tracing (scanning and copying condemned
// generations) is out of scope; this loop only exercises the decision
// surface so operators can observe when the policy would have fired.
func runPolicyLoop(a *arena.Arena, lg *logger.Logger, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if trace, started := a.PolicyStartTrace(); started {
				lg.Info("policy started trace").
					Str("reason", trace.Reason.String()).
					Uint64("condemned_bytes", trace.CondemnedBytes).
					Send()
			}
		}
	}
}
