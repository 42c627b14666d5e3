package natsbus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// readyTimeout bounds how long [StartEmbedded] waits for the server to
// accept clients.
const readyTimeout = 5 * time.Second

// EmbeddedServer is an in-process NATS server for single-node deployments.
type EmbeddedServer struct {
	ns  *server.Server
	log *slog.Logger
}

// StartEmbedded starts a NATS server listening on host:port. A port of -1
// picks a random free port.
func StartEmbedded(host string, port int, log *slog.Logger) (*EmbeddedServer, error) {
	ns, err := server.NewServer(&server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("natsbus: create embedded server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("natsbus: embedded server not ready within %s", readyTimeout)
	}

	log = log.With("component", "natsbus.embedded")
	log.Info("embedded NATS server started", "url", ns.ClientURL())
	return &EmbeddedServer{ns: ns, log: log}, nil
}

// ClientURL returns the URL clients connect to.
func (e *EmbeddedServer) ClientURL() string {
	return e.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.log.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
