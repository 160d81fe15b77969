// Package control mediates running goat as a long-lived process:
// daemonization, signal handling, and the driver loop that ticks the
// connection pool and dispatches events. Ported from smtpd's
// control.go; StartServer-per-listener becomes one pool-managed
// network connection per config.NetworkConfig, and the
// goroutine-per-connection Serve loop smtpd used is replaced by the
// pool's single Tick/DispatchEvents pump.
package control

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/abligh/go-daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flrl/goat/config"
	"github.com/flrl/goat/ircnet"
	"github.com/flrl/goat/ircpool"
	"github.com/flrl/goat/logging"
)

var (
	configFile  = flag.String("c", "/etc/goat.conf", "Path to YAML config file")
	pidFile     = flag.String("p", "/var/run/goat.pid", "Path to PID file")
	sendSignal  = flag.String("s", "", "Send signal to daemon (either \"stop\" or \"reload\")")
	foreground  = flag.Bool("f", false, "Run in foreground (not as daemon)")
	enablePprof = flag.Bool("pprof", false, "Run pprof")
)

const (
	envConfFile = "_GOAT_CONFFILE"
	envPIDFile  = "_GOAT_PIDFILE"

	tickInterval = 200 * time.Millisecond
)

// Control mediates the running of the main process: a quit channel for
// programmatic shutdown, and a WaitGroup the caller of Run can wait on.
type Control struct {
	quit chan struct{}
	wg   sync.WaitGroup
}

// metricsHandler serves /metrics off whichever pool's Collector was
// most recently registered, so a SIGHUP reload (which replaces the
// pool outright) doesn't require restarting the pprof/metrics
// listener alongside it.
type metricsHandler struct {
	mu sync.RWMutex
	h  http.Handler
}

func (m *metricsHandler) set(reg *prometheus.Registry) {
	m.mu.Lock()
	m.h = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	m.mu.Unlock()
}

func (m *metricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	h := m.h
	m.mu.RUnlock()
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}

// metrics is the process-wide /metrics endpoint, wired up in Run
// alongside the pprof toggle and populated by RunConfig each time it
// builds (or rebuilds, on reload) the connection pool.
var metrics = &metricsHandler{}

// NewControl returns a Control ready to pass to Run. Quit requests an
// orderly shutdown.
func NewControl() *Control {
	return &Control{quit: make(chan struct{})}
}

// Quit requests RunConfig's reload loop exit at the next signal check.
func (c *Control) Quit() {
	close(c.quit)
}

// runNetworks builds a pool populated from cfg.Networks and connects
// each one, returning the pool and the handles in config order.
func runNetworks(cfg *config.Config, logger *log.Logger) (*ircpool.Pool, []ircpool.Handle) {
	timeout := time.Duration(cfg.Resolver.TimeoutSeconds) * time.Second

	pool := ircpool.NewPool(func() *ircnet.Connection {
		resolver := ircnet.NewDNSResolver(cfg.Resolver.Server, timeout)
		return ircnet.NewConnection(resolver, ircnet.PlainTransport{})
	})

	handles := make([]ircpool.Handle, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		h := pool.New()
		conn, err := pool.Get(h)
		if err != nil {
			logger.Printf("[ERROR] allocating connection for %s: %v", n.Name, err)
			continue
		}
		if n.Secure {
			conn.SetTransport(ircnet.TLSTransport{Config: n.Tls})
		}
		if err := conn.Connect("tcp", n.Host, strconv.Itoa(n.Port), n.Secure); err != nil {
			logger.Printf("[ERROR] connecting to %s (%s:%d): %v", n.Name, n.Host, n.Port, err)
		} else {
			logger.Printf("[INFO] connecting to %s (%s:%d)", n.Name, n.Host, n.Port)
		}
		handles = append(handles, h)
	}

	return pool, handles
}

// driveTicks runs the single-driver cooperative loop of spec §5 until
// ctx is canceled: one Tick, then one DispatchEvents, every
// tickInterval.
func driveTicks(ctx context.Context, pool *ircpool.Pool) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pool.Tick(tickInterval)
			pool.DispatchEvents()
		}
	}
}

// RunConfig is the effective main entry point once daemonization (or
// not) has already happened. It parses the config, connects every
// configured network, and drives ticks until interrupted, reloading
// configuration on SIGHUP without dropping the process. Interrupt,
// SIGTERM and SIGHUP are only caught when not running in the
// foreground (-f); SIGUSR1 is caught in both modes.
func RunConfig(control *Control) {
	logger := log.New(os.Stderr, "goat:", log.LstdFlags)
	var logCloser io.Closer

	defer func() {
		logger.Println("[INFO] Shutting down")
		if logCloser != nil {
			logCloser.Close()
		}
		control.wg.Done()
	}()

	intr := make(chan os.Signal, 1)
	term := make(chan os.Signal, 1)
	hup := make(chan os.Signal, 1)
	usr1 := make(chan os.Signal, 1)
	defer close(intr)
	defer close(term)
	defer close(hup)
	defer close(usr1)

	if !*foreground {
		signal.Notify(intr, os.Interrupt)
		signal.Notify(term, syscall.SIGTERM)
		signal.Notify(hup, syscall.SIGHUP)
	}
	signal.Notify(usr1, syscall.SIGUSR1)

	go func() {
		for range usr1 {
			logger.Println("[INFO] Run GC()")
			runtime.GC()
			debug.FreeOSMemory()
			logger.Println("[INFO] GC() done")
		}
	}()

	for {
		cfg, err := config.Parse(*configFile)
		if err != nil {
			logger.Printf("[ERROR] Cannot parse configuration file: %v", err)
			return
		}

		if nlogger, nlogCloser, err := logging.New(cfg.Logging); err != nil {
			logger.Printf("[ERROR] Could not load logger: %v", err)
		} else {
			if logCloser != nil {
				logCloser.Close()
			}
			logger, logCloser = nlogger, nlogCloser
		}
		logger.Printf("[INFO] Loaded configuration.")

		pool, _ := runNetworks(cfg, logger)

		registry := prometheus.NewRegistry()
		registry.MustRegister(ircpool.NewCollector(pool))
		metrics.set(registry)

		driveCtx, cancelDrive := context.WithCancel(context.Background())
		var driveWg sync.WaitGroup
		driveWg.Add(1)
		go func() {
			defer driveWg.Done()
			driveTicks(driveCtx, pool)
		}()

		reload := false
		select {
		case <-intr:
			logger.Println("[INFO] Interrupt signal received")
		case <-term:
			logger.Println("[INFO] Terminate signal received")
		case <-control.quit:
			logger.Println("[INFO] Programmatic quit received")
		case <-hup:
			logger.Println("[INFO] Reload signal received; reconnecting with new configuration")
			reload = true
		}

		cancelDrive()
		driveWg.Wait()
		for _, h := range pool.Connections() {
			if conn, err := pool.Get(h); err == nil {
				conn.Disconnect()
			}
		}

		if !reload {
			return
		}
	}
}

// Run is goat's top-level entry point: it parses flags, handles
// daemon-control signals (-s stop/-s reload), daemonizes unless -f was
// given, and then calls RunConfig.
func Run(control *Control) {
	if control == nil {
		control = NewControl()
		control.wg.Add(1)
	}

	if *enablePprof {
		runtime.MemProfileRate = 1
		http.Handle("/metrics", metrics)
		go http.ListenAndServe("localhost:8080", nil)
	}

	logger := log.New(os.Stderr, "goat:", log.LstdFlags)

	daemon.AddFlag(daemon.StringFlag(sendSignal, "stop"), syscall.SIGTERM)
	daemon.AddFlag(daemon.StringFlag(sendSignal, "reload"), syscall.SIGHUP)

	if daemon.WasReborn() {
		if v := os.Getenv(envConfFile); v != "" {
			*configFile = v
		}
		if v := os.Getenv(envPIDFile); v != "" {
			*pidFile = v
		}
	}

	var err error
	if *configFile, err = filepath.Abs(*configFile); err != nil {
		logger.Fatalf("[CRIT] Error canonicalising config file path: %s", err)
	}
	if *pidFile, err = filepath.Abs(*pidFile); err != nil {
		logger.Fatalf("[CRIT] Error canonicalising pid file path: %v", err)
	}

	if _, err := config.Parse(*configFile); err != nil {
		logger.Fatalf("[CRIT] Cannot parse configuration file: %v", err)
	}

	if *foreground {
		RunConfig(control)
		return
	}

	os.Setenv(envConfFile, *configFile)
	os.Setenv(envPIDFile, *pidFile)

	d := &daemon.Context{
		PidFileName: *pidFile,
		PidFilePerm: 0644,
		Umask:       027,
	}

	if len(daemon.ActiveFlags()) > 0 {
		p, err := d.Search()
		if err != nil {
			logger.Fatalf("[CRIT] Unable to send signal to the daemon - not running")
		}
		if err := p.Signal(syscall.Signal(0)); err != nil {
			logger.Fatalf("[CRIT] Unable to send signal to the daemon - not running, perhaps PID file is stale")
		}
		daemon.SendCommands(p)
		return
	}

	if !daemon.WasReborn() {
		if p, err := d.Search(); err == nil {
			if err := p.Signal(syscall.Signal(0)); err == nil {
				logger.Fatalf("[CRIT] Daemon is already running (pid %d)", p.Pid)
			}
			logger.Printf("[INFO] Removing stale PID file %s", *pidFile)
			os.Remove(*pidFile)
		}
	}

	child, err := d.Reborn()
	if err != nil {
		logger.Fatalf("[CRIT] Daemonize: %s", err)
	}
	if child != nil {
		return
	}
	defer d.Release()

	RunConfig(control)
}
