// internal/writer/modbus/client.go
package modbus

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// EndpointClient is a single TCP connection to one Modbus target.
// It serializes requests because it mutates SlaveId per write.
// The transport dials on first use and again after it was closed,
// so a target that is down at startup only fails writes.
type EndpointClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	h.IdleTimeout = time.Minute

	return &EndpointClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

func (c *EndpointClient) WriteCoils(unitID uint8, addr uint16, bits []bool) error {
	return c.do(unitID, func(cl modbus.Client) error {
		_, err := cl.WriteMultipleCoils(addr, uint16(len(bits)), PackBits(bits))
		return err
	})
}

func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	return c.do(unitID, func(cl modbus.Client) error {
		_, err := cl.WriteMultipleRegisters(addr, uint16(len(regs)), PackRegisters(regs))
		return err
	})
}

// do runs one request addressed to unitID. After a failure the connection
// is dropped so the next request redials.
func (c *EndpointClient) do(unitID uint8, req func(modbus.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID
	err := req(c.client)
	if err != nil {
		_ = c.handler.Close()
	}
	return err
}

// PackBits packs coils LSB first, as Modbus function 15 expects.
func PackBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, v := range bits {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// PackRegisters packs registers big-endian.
func PackRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
