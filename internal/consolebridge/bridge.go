// Package consolebridge carries the §6 UI contract (internal/events)
// across a process boundary over a Unix domain socket, since
// cmd/bbsconsole is a separate binary from cmd/bbsd and cannot share an
// in-process events.Bus. Wire encoding is newline-delimited JSON,
// grounded on the same encoding/json request/response shape the
// teacher's internal/configtool/nodes packages consume from
// NodeManager, just carried over a socket instead of an in-process
// interface.
package consolebridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/robwilkins/ftnbbs/internal/events"
	"github.com/robwilkins/ftnbbs/internal/logging"
)

// Hub accepts console connections and broadcasts events handed to it
// via Broadcast. It does not itself read from an events.Bus: a Bus's
// Events() channel has exactly one consumer, so when anything else in
// the process (e.g. the call log) also needs to observe events, the
// caller must drain the bus once and fan out manually — Broadcast is
// that fan-out point for every connected console.
type Hub struct {
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Serve opens a Unix socket at path and returns a Hub; call Broadcast
// for every events.Event the caller's own bus-reader loop observes.
// Commands a console sends back are forwarded onto bus as Commands.
func Serve(path string, bus *events.Bus) (*Hub, error) {
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("consolebridge: listen %s: %w", path, err)
	}

	h := &Hub{conns: make(map[net.Conn]struct{})}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			h.mu.Lock()
			h.conns[conn] = struct{}{}
			h.mu.Unlock()
			go func() {
				defer func() {
					h.mu.Lock()
					delete(h.conns, conn)
					h.mu.Unlock()
					conn.Close()
				}()
				scanner := bufio.NewScanner(conn)
				for scanner.Scan() {
					var cmd events.Command
					if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
						logging.Warn("consolebridge: malformed command: %v", err)
						continue
					}
					bus.SendCommand(cmd)
				}
			}()
		}
	}()

	return h, nil
}

// Broadcast sends ev to every connected console, dropping any console
// whose write fails.
func (h *Hub) Broadcast(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	data = append(data, '\n')
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if _, err := c.Write(data); err != nil {
			c.Close()
			delete(h.conns, c)
		}
	}
}

// Client is a console-side connection to a running bbsd's bridge
// socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// Dial connects to a bridge socket.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("consolebridge: dial %s: %w", path, err)
	}
	return &Client{conn: conn, scanner: bufio.NewScanner(conn)}, nil
}

// Recv blocks for the next event from bbsd.
func (c *Client) Recv() (events.Event, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return events.Event{}, err
		}
		return events.Event{}, fmt.Errorf("consolebridge: connection closed")
	}
	var ev events.Event
	if err := json.Unmarshal(c.scanner.Bytes(), &ev); err != nil {
		return events.Event{}, err
	}
	return ev, nil
}

// Send delivers a command to bbsd.
func (c *Client) Send(cmd events.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = c.conn.Write(data)
	return err
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
