// Command eevdfsim drives a real-time, goroutine-per-simulated-CPU
// instance of the scheduler core: one goroutine repeatedly calls
// simharness.Harness.RunQuantum for its CPU, synthetic workload
// generators decide when each thread blocks and wakes, a periodic
// balancer goroutine migrates threads across CPUs, and an
// introspect HTTP server exposes the running state for inspection.
// This is the live counterpart to internal/simharness's test-only,
// virtual-clock driver (see that package's doc comment), grounded on
// the teacher's own cmd/golang-cri-resmgr binary wiring its policy
// backends, topology, and HTTP instrumentation together at startup.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonestone57/eevdf-scheduler/internal/balance"
	"github.com/tonestone57/eevdf-scheduler/internal/config"
	"github.com/tonestone57/eevdf-scheduler/internal/eevdf"
	"github.com/tonestone57/eevdf-scheduler/internal/introspect"
	"github.com/tonestone57/eevdf-scheduler/internal/irq"
	"github.com/tonestone57/eevdf-scheduler/internal/logging"
	"github.com/tonestone57/eevdf-scheduler/internal/metrics"
	"github.com/tonestone57/eevdf-scheduler/internal/placement"
	"github.com/tonestone57/eevdf-scheduler/internal/sched"
	"github.com/tonestone57/eevdf-scheduler/internal/simharness"
	"github.com/tonestone57/eevdf-scheduler/internal/team"
	"github.com/tonestone57/eevdf-scheduler/internal/topology"
)

func main() {
	cfg := config.New("eevdfsim")

	simModule := cfg.RegisterModule("sim", "Simulation topology and runtime shape")
	packages := simModule.Int("packages", 1, "number of simulated packages")
	coresPerPkg := simModule.Int("cores-per-package", 4, "physical cores per package")
	smtWidth := simModule.Int("smt-width", 2, "logical CPUs (SMT siblings) per core")
	threadsPerCPU := simModule.Int("threads-per-cpu", 3, "synthetic threads spawned per CPU at startup")
	teamCount := simModule.Int("teams", 2, "number of teams threads are distributed across")
	duration := simModule.Duration("duration", 30*time.Second, "how long to run before exiting, 0 runs forever")
	listenAddr := simModule.String("listen-addr", "127.0.0.1:9470", "introspect/metrics HTTP listen address")
	mode := simModule.String("mode", placement.PerformanceModeName, "placement mode: performance or power-saving")
	debug := simModule.Bool("debug", false, "enable debug-level logging")
	seed := simModule.Int64("seed", 1, "PRNG seed for mixed-workload generators")

	eevdfParams := eevdf.RegisterFlags(cfg)
	balanceParams := balance.RegisterFlags(cfg)
	irqParams := irq.RegisterFlags(cfg)

	if err := cfg.Parse(os.Args[1:]); err != nil {
		logging.Fatal("config: %v", err)
	}
	if *debug {
		logging.SetDebug(true)
	}

	placementMode := placement.PerformanceMode()
	if *mode == placement.PowerSaveModeName {
		placementMode = placement.PowerSaveMode()
	}

	sys := topology.Uniform(*packages, *coresPerPkg, *smtWidth)
	collector := metrics.New()
	h := simharness.New(sys, placementMode, collector)
	h.EevdfParams = eevdfParams()

	irqRouterParams := irqParams()
	balancerParams := balanceParams()

	srv := introspect.NewServer(collector, harnessDumpers{h}, harnessDumpers{h}, harnessDumpers{h}, harnessDumpers{h})
	httpServer := &http.Server{Addr: *listenAddr, Handler: srv}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *duration > 0 {
		var durationCancel context.CancelFunc
		ctx, durationCancel = context.WithTimeout(ctx, *duration)
		defer durationCancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logging.Info("signal received, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	if *teamCount < 1 {
		*teamCount = 1
	}

	reg := newWorkloadRegistry()
	teams := make([]team.ID, 0, *teamCount)
	for i := 0; i < *teamCount; i++ {
		tm := h.Teams.Create(100 / (*teamCount))
		teams = append(teams, tm.ID())
	}

	now := time.Now()
	for _, cpuID := range sys.CPUIDs() {
		for i := 0; i < *threadsPerCPU; i++ {
			name := fmt.Sprintf("cpu%d-thread%d", cpuID, i)
			priority := sched.NormalPriorityNice0
			t := h.SpawnThread(name, priority, now)
			t.SetTeam(teams[int(cpuID)%len(teams)])
			reg.assign(t.ID(), generatorFor(int(cpuID), i, *seed))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("introspect server listening on %s", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	for _, cpuID := range sys.CPUIDs() {
		cpuID := cpuID
		g.Go(func() error {
			return runCPU(gctx, h, cpuID, reg)
		})
	}

	g.Go(func() error {
		return runBalancer(gctx, h, balancerParams)
	})

	g.Go(func() error {
		return runIRQRouter(gctx, h, irqRouterParams)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logging.Error("eevdfsim exited with error: %v", err)
		os.Exit(1)
	}
	logging.Info("eevdfsim shut down cleanly")
}
