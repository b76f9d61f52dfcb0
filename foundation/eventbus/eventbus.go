// Package eventbus provides an embedded NATS broker used to pass events between
// the dispatcher's commit loop and the future estimator without requiring an
// externally run NATS deployment. It mirrors the publish/subscribe idiom the
// teacher's prediction aggregator uses against a remote nats.Conn (subject
// strings, JSON payloads, ChanSubscribe into a buffered channel), but starts
// the broker in-process since this system has no other use for a standalone
// message bus.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Bus wraps an embedded NATS server and a client connection to it.
type Bus struct {
	server *natsserver.Server
	conn   *nats.Conn
}

// Start launches an embedded NATS server on a loopback port and connects a client to it.
func Start() (*Bus, error) {
	opts := &natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1, // let the OS pick a free port
		NoSigs:         true,
		NoLog:          true,
		MaxControlLine: 4096,
	}

	server, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("starting embedded nats server: %w", err)
	}
	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		return nil, fmt.Errorf("embedded nats server did not become ready in time")
	}

	conn, err := nats.Connect(server.ClientURL())
	if err != nil {
		server.Shutdown()
		return nil, fmt.Errorf("connecting to embedded nats server: %w", err)
	}

	return &Bus{server: server, conn: conn}, nil
}

// Close closes the client connection and shuts down the embedded server.
func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
	}
}

// Publish marshals v to JSON and publishes it on subject.
func Publish(b *Bus, subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling event for subject %s: %w", subject, err)
	}
	return b.conn.Publish(subject, data)
}

// Subscribe decodes each message on subject as T and delivers it on the returned
// channel. Malformed payloads are dropped. Call the returned unsubscribe func on
// shutdown.
func Subscribe[T any](b *Bus, subject string, queueGroup string, buffer int) (<-chan T, func(), error) {
	raw := make(chan *nats.Msg, buffer)
	sub, err := b.conn.ChanQueueSubscribe(subject, queueGroup, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	out := make(chan T, buffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var v T
				if err := json.Unmarshal(msg.Data, &v); err != nil {
					continue
				}
				out <- v
			case <-done:
				return
			}
		}
	}()

	unsubscribe := func() {
		_ = sub.Unsubscribe()
		close(done)
	}
	return out, unsubscribe, nil
}
