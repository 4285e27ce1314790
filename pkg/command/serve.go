package command

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/wisprd/wisp/pkg/bser"
	"github.com/wisprd/wisp/pkg/logging"
	"github.com/wisprd/wisp/pkg/pubsub"
	"github.com/wisprd/wisp/pkg/wireframe"
)

// subscriptionPollInterval bounds how often a connection's push loop
// drains each of its live subscriptions for newly changed paths.
const subscriptionPollInterval = 50 * time.Millisecond

type connSubscription struct {
	name     string
	rootPath string
	sub      *pubsub.Subscription
}

// connState is the per-connection state shared between the request/
// response read loop and the asynchronous subscription push loop: both
// write PDUs to the same connection, so both take mu before encoding,
// and the push loop needs to observe whichever encoding/capabilities the
// most recent request negotiated.
type connState struct {
	mu       sync.Mutex
	conn     net.Conn
	encoding wireframe.Encoding
	caps     bser.Capabilities
	subs     []*connSubscription
}

func (cs *connState) write(value bser.Value) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	enc := wireframe.NewEncoder(cs.conn, cs.encoding, cs.caps)
	return enc.Encode(value)
}

func (cs *connState) addSubscription(s *connSubscription) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.subs = append(cs.subs, s)
}

func (cs *connState) setEncoding(enc wireframe.Encoding, caps bser.Capabilities) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.encoding, cs.caps = enc, caps
}

// pushPending drains every live subscription's pending paths and writes
// one unilateral PDU per subscription that has something new.
func (cs *connState) pushPending(logger *logging.Logger) {
	cs.mu.Lock()
	subs := cs.subs
	cs.mu.Unlock()

	var pending []pubsub.Item
	for _, s := range subs {
		pending = s.sub.GetPending(pending[:0])
		if len(pending) == 0 {
			continue
		}
		push := map[string]bser.Value{
			"subscription": s.name,
			"root":         s.rootPath,
			"files":        pathsToValue(pending),
		}
		if err := cs.write(push); err != nil {
			logger.Debugf("unable to push subscription %q update: %s", s.name, err)
			return
		}
	}
}

func pathsToValue(items []pubsub.Item) []bser.Value {
	out := make([]bser.Value, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			out[i] = s
		} else {
			out[i] = fmt.Sprint(item)
		}
	}
	return out
}

// ServeConn drives a single client connection to completion: it decodes
// PDUs, dispatches each through reg, writes the response in the same
// encoding the request arrived in, and concurrently pushes unilateral
// updates for any subscription the connection has created. It returns
// once the connection is closed or encounters a protocol error.
func ServeConn(conn net.Conn, reg *Registry, logger *logging.Logger) {
	defer conn.Close()

	state := &connState{conn: conn, encoding: wireframe.EncodingJSON}
	decoder := wireframe.NewDecoder(conn)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(subscriptionPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				state.pushPending(logger)
			}
		}
	}()

	for {
		pdu, err := decoder.Decode()
		if err != nil {
			if err != io.EOF {
				logger.Debugf("connection terminated: %s", err)
			}
			return
		}
		state.setEncoding(pdu.Encoding, pdu.Capabilities)

		resp, dispatchErr := reg.Dispatch(pdu.Value)
		var responseValue bser.Value
		if dispatchErr != nil {
			responseValue = map[string]bser.Value{"error": dispatchErr.Error()}
		} else {
			responseValue = resp.Value
			if resp.Subscription != nil {
				state.addSubscription(&connSubscription{
					name:     resp.SubscriptionName,
					rootPath: resp.Root.Path,
					sub:      resp.Subscription,
				})
			}
		}

		if err := state.write(responseValue); err != nil {
			logger.Debugf("unable to write response: %s", err)
			return
		}
	}
}
