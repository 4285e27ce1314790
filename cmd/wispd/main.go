// Command wispd is the wisp file-watching daemon: it holds the daemon
// lock, listens on the local IPC endpoint for client connections, and
// serves watch-project/query/since/subscribe commands against whatever
// roots its clients ask it to watch.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/spf13/cobra"

	"github.com/wisprd/wisp/pkg/clock"
	"github.com/wisprd/wisp/pkg/command"
	"github.com/wisprd/wisp/pkg/config"
	"github.com/wisprd/wisp/pkg/daemon"
	"github.com/wisprd/wisp/pkg/housekeeping"
	"github.com/wisprd/wisp/pkg/logging"
	"github.com/wisprd/wisp/pkg/profile"
)

// terminationSignals are the signals wispd treats as a termination
// request. SIGABRT is deliberately excluded: the Go runtime handles it
// itself (dumping a stack trace) and it should not be intercepted here.
var terminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// profileName, if set via --profile, names the file prefix under which
// wispd writes a CPU and heap profile for the lifetime of the run.
var profileName string

func run(_ *cobra.Command, _ []string) error {
	lock, err := daemon.AcquireLock(logging.RootLogger)
	if err != nil {
		return fmt.Errorf("unable to acquire daemon lock: %w", err)
	}
	defer lock.Release()

	if profileName != "" {
		p, err := profile.New(profileName)
		if err != nil {
			return fmt.Errorf("unable to start profiling: %w", err)
		}
		defer p.Finalize()
	}

	terminate := make(chan os.Signal, 1)
	signal.Notify(terminate, terminationSignals...)

	logFile, err := daemon.OpenLog()
	if err != nil {
		return fmt.Errorf("unable to open daemon log: %w", err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
	logger := logging.RootLogger

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("unable to load configuration: %w", err)
	}

	process := clock.ProcessContext{StartTime: time.Now().Unix(), PID: int64(os.Getpid())}
	registry := command.NewRegistry(process, cfg)

	housekeepingCtx, cancelHousekeeping := context.WithCancel(context.Background())
	defer cancelHousekeeping()
	go housekeeping.HousekeepRegularly(housekeepingCtx, registry.RootPaths, logger.Sublogger("housekeeping"))

	endpoint, err := daemon.EndpointPath()
	if err != nil {
		return fmt.Errorf("unable to compute IPC endpoint path: %w", err)
	}
	listener, err := daemon.NewListener()
	if err != nil {
		return fmt.Errorf("unable to create IPC listener at %s: %w", endpoint, err)
	}
	defer listener.Close()

	connectionErrors := make(chan error, 1)
	go serveConnections(listener, registry, logger.Sublogger("command"), connectionErrors)

	router := httprouter.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.HandleMethodNotAllowed = false
	router.HandleOPTIONS = false

	daemonService := daemon.NewService()
	daemonService.Register(router)

	server := &http.Server{Handler: router}
	metadataListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("unable to bind daemon metadata listener: %w", err)
	}
	defer metadataListener.Close()

	serverErrors := make(chan error, 1)
	go func() { serverErrors <- server.Serve(metadataListener) }()
	defer server.Close()

	select {
	case s := <-terminate:
		logger.Info("Received termination signal:", s)
		return nil
	case <-daemonService.Done():
		logger.Info("Received termination request")
		return nil
	case err := <-connectionErrors:
		logger.Error(err)
		return fmt.Errorf("command listener terminated abnormally: %w", err)
	case err := <-serverErrors:
		logger.Error(err)
		return fmt.Errorf("metadata server terminated abnormally: %w", err)
	}
}

// serveConnections accepts client connections until listener is closed,
// handling each on its own goroutine.
func serveConnections(listener net.Listener, registry *command.Registry, logger *logging.Logger, errs chan<- error) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			errs <- err
			return
		}
		go command.ServeConn(conn, registry, logger)
	}
}

var rootCommand = &cobra.Command{
	Use:          "wispd",
	Short:        "Run the wisp file-watching daemon",
	Args:         cobra.NoArgs,
	RunE:         run,
	SilenceUsage: true,
}

func main() {
	rootCommand.Flags().StringVar(&profileName, "profile", "", "write CPU and heap profiles with this file prefix")
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
