package modbusio

import (
	"time"

	"github.com/devskill-org/phaeton-driver/internal/perr"
)

// Reconnector wraps a Client with retry, backoff, and transient-error
// classification (C3). It is the only thing the poll loop talks to;
// the Client itself is never touched from elsewhere.
type Reconnector struct {
	client     *Client
	maxRetries int
	retryDelay time.Duration

	sleep func(time.Duration)
}

// NewReconnector constructs a reconnect manager around client.
func NewReconnector(client *Client, maxRetries int, retryDelay time.Duration) *Reconnector {
	return &Reconnector{
		client:     client,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		sleep:      time.Sleep,
	}
}

// IsConnected reports whether the wrapped client currently has a live
// connection.
func (r *Reconnector) IsConnected() bool { return r.client.IsConnected() }

// Disconnect drops the underlying connection so the next Execute call
// reconnects from scratch.
func (r *Reconnector) Disconnect() error { return r.client.Disconnect() }

// Execute runs op against a connected client, connecting (and retrying
// the connect) as needed, and reconnecting on transient errors per the
// classification rule in internal/perr.IsTransient.
func (r *Reconnector) Execute(op func(*Client) error) error {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if !r.client.IsConnected() {
			if err := r.client.Connect(); err != nil {
				lastErr = err
				r.sleep(r.retryDelay)
				continue
			}
		}

		err := op(r.client)
		if err == nil {
			return nil
		}

		if perr.IsTransient(err) {
			_ = r.client.Disconnect()
			lastErr = err
			r.sleep(r.retryDelay)
			continue
		}

		// Not transient: surface to the caller without dropping the
		// connection, since the session itself may still be healthy.
		return err
	}

	if lastErr == nil {
		lastErr = perr.ModbusNotConnected("execute: retries exhausted")
	}
	return lastErr
}

// ReadHolding is a convenience wrapper over Execute for a single
// ReadHoldingRegisters call, returning the decoded registers.
func (r *Reconnector) ReadHolding(slave byte, addr, count uint16) ([]uint16, error) {
	var out []uint16
	err := r.Execute(func(c *Client) error {
		c.SetSlaveID(slave)
		regs, err := c.ReadHolding(addr, count)
		if err != nil {
			return err
		}
		out = regs
		return nil
	})
	return out, err
}

// WriteMultiple is a convenience wrapper over Execute for a single
// WriteMultipleRegisters call.
func (r *Reconnector) WriteMultiple(slave byte, addr uint16, values []uint16) error {
	return r.Execute(func(c *Client) error {
		c.SetSlaveID(slave)
		return c.WriteMultiple(addr, values)
	})
}
