// Package modbusio wraps github.com/goburrow/modbus with the driver's
// connect/read/write contract (C2) and a reconnecting retry wrapper (C3).
package modbusio

import (
	"time"

	"github.com/goburrow/modbus"

	"github.com/devskill-org/phaeton-driver/internal/perr"
)

// Client is a single TCP connection to the charger, speaking the Modbus
// application protocol against holding registers only.
type Client struct {
	address        string
	handler        *modbus.TCPClientHandler
	client         modbus.Client
	connected      bool
	connectTimeout time.Duration
}

// NewClient constructs a disconnected client for the given "host:port"
// address and default slave id. goburrow/modbus applies a single Timeout
// to both the dial and each request/response round trip, so the handler
// carries operationTimeout for requests and Connect swaps in
// connectTimeout for the duration of the dial.
func NewClient(address string, slaveID byte, connectTimeout, operationTimeout time.Duration) *Client {
	handler := modbus.NewTCPClientHandler(address)
	handler.SlaveId = slaveID
	handler.Timeout = operationTimeout
	return &Client{address: address, handler: handler, client: modbus.NewClient(handler), connectTimeout: connectTimeout}
}

// SetSlaveID changes the slave id used by subsequent operations, letting
// one TCP connection address both the "socket" and "station" slaves.
func (c *Client) SetSlaveID(slaveID byte) { c.handler.SlaveId = slaveID }

// Connect opens the TCP connection, bounding the dial by connectTimeout.
func (c *Client) Connect() error {
	opTimeout := c.handler.Timeout
	if c.connectTimeout > 0 {
		c.handler.Timeout = c.connectTimeout
	}
	err := c.handler.Connect()
	c.handler.Timeout = opTimeout
	if err != nil {
		return perr.ModbusAddress("connect to "+c.address, err)
	}
	c.connected = true
	return nil
}

// Disconnect closes the TCP connection. Safe to call when not connected.
func (c *Client) Disconnect() error {
	c.connected = false
	return c.handler.Close()
}

// IsConnected reports the cached connection state.
func (c *Client) IsConnected() bool { return c.connected }

// ReadHolding issues a single framed ReadHoldingRegisters request and
// returns the registers as a []uint16, big-endian word order.
func (c *Client) ReadHolding(addr, count uint16) ([]uint16, error) {
	if !c.connected {
		return nil, perr.ModbusNotConnected("read_holding: not connected")
	}
	raw, err := c.client.ReadHoldingRegisters(addr, count)
	if err != nil {
		c.connected = false
		return nil, perr.ModbusIo("read_holding", err)
	}
	return bytesToRegisters(raw), nil
}

// WriteMultiple writes a contiguous block of registers.
func (c *Client) WriteMultiple(addr uint16, values []uint16) error {
	if !c.connected {
		return perr.ModbusNotConnected("write_multiple: not connected")
	}
	_, err := c.client.WriteMultipleRegisters(addr, uint16(len(values)), registersToBytes(values))
	if err != nil {
		c.connected = false
		return perr.ModbusIo("write_multiple", err)
	}
	return nil
}

// WriteSingle writes one register.
func (c *Client) WriteSingle(addr, value uint16) error {
	if !c.connected {
		return perr.ModbusNotConnected("write_single: not connected")
	}
	_, err := c.client.WriteSingleRegister(addr, value)
	if err != nil {
		c.connected = false
		return perr.ModbusIo("write_single", err)
	}
	return nil
}

func bytesToRegisters(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}

func registersToBytes(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r & 0xFF)
	}
	return out
}
