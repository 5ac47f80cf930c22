package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/renardein/smbus"

	"github.com/karalabe/hid"

	"github.com/renardein/smbus/cmd/smbus/console"
	"github.com/renardein/smbus/smbctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

var ErrCommandFailed = errors.New("command failed")
var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// MCP2221 drives the Microchip USB-to-I2C bridge over 64-byte HID
// reports, one report out and one report in per engine command.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	retries      int
	device       int
}

type MCP2221Status struct {
	EngineState            int    `yaml:"engine_state"`
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
	SCLLine                int    `yaml:"scl_line"`
	SDALine                int    `yaml:"sda_line"`
}

type MCP2221Opt func(*MCP2221)

// WithResponseWait adjusts the pause between writing a command report
// and polling for the response report.
func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(d *MCP2221) { d.responseWait = wait }
}

// WithRetryLimit sets how many times a transaction is reissued after
// the I2C engine reports busy. The bus is released between attempts.
func WithRetryLimit(limit int) MCP2221Opt {
	return func(d *MCP2221) { d.retries = limit }
}

// WithDeviceIndex pins the adapter to one device when several MCP2221
// bridges are plugged in. Without it a single device is required.
func WithDeviceIndex(index int) MCP2221Opt {
	return func(d *MCP2221) { d.device = index }
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	d := &MCP2221{
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: 50 * time.Millisecond,
		retries:      1,
		device:       -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Adapter wraps the device in a bus adapter under the given name. The
// device carries its own access routine, so nothing goes through
// transfer emulation.
func (d *MCP2221) Adapter(name string) *smbus.Adapter {
	return smbus.NewAdapter(name, smbus.Native,
		smbus.WithAccessFunc(d.access),
		smbus.WithTimeout(d.responseWait),
		smbus.WithRetries(d.retries),
	)
}

// access maps each transaction kind onto the engine commands the bridge
// understands: plain writes issue START..STOP, register reads write the
// command byte without STOP and read back under a repeated START.
func (d *MCP2221) access(ctx context.Context, addr uint8, dir smbus.Direction, command uint8, kind smbus.Kind, data *smbus.Data) error {
	if data == nil && needsData(kind, dir) {
		return fmt.Errorf("%s %s: %w", dir, kind, smbus.ErrMissingData)
	}
	switch kind {
	case smbus.KindQuick:
		if dir == smbus.Read {
			return d.readFromAddr(ctx, addr, nil)
		}
		return d.writeToAddr(ctx, addr, nil)
	case smbus.KindByte:
		if dir == smbus.Read {
			var buf [1]byte
			if err := d.readFromAddr(ctx, addr, buf[:]); err != nil {
				return err
			}
			data.Byte = buf[0]
			return nil
		}
		return d.writeToAddr(ctx, addr, []byte{command})
	case smbus.KindByteData:
		if dir == smbus.Read {
			var buf [1]byte
			if err := d.writeRead(ctx, addr, []byte{command}, buf[:]); err != nil {
				return err
			}
			data.Byte = buf[0]
			return nil
		}
		return d.writeToAddr(ctx, addr, []byte{command, data.Byte})
	case smbus.KindWordData:
		if dir == smbus.Read {
			var buf [2]byte
			if err := d.writeRead(ctx, addr, []byte{command}, buf[:]); err != nil {
				return err
			}
			data.Word = binary.LittleEndian.Uint16(buf[:])
			return nil
		}
		return d.writeToAddr(ctx, addr, []byte{command, uint8(data.Word), uint8(data.Word >> 8)})
	case smbus.KindProcCall:
		var buf [2]byte
		err := d.writeRead(ctx, addr, []byte{command, uint8(data.Word), uint8(data.Word >> 8)}, buf[:])
		if err != nil {
			return err
		}
		data.Word = binary.LittleEndian.Uint16(buf[:])
		return nil
	case smbus.KindBlockData:
		if dir == smbus.Read {
			var buf [smbus.BlockMax + 1]byte
			if err := d.writeRead(ctx, addr, []byte{command}, buf[:]); err != nil {
				return err
			}
			n := int(buf[0])
			if n > smbus.BlockMax {
				n = smbus.BlockMax
			}
			data.SetBlock(buf[1 : 1+n])
			return nil
		}
		n := int(data.Block[0])
		if n > smbus.BlockMax {
			n = smbus.BlockMax
		}
		buf := make([]byte, 2+n)
		buf[0] = command
		buf[1] = uint8(n)
		copy(buf[2:], data.Block[1:1+n])
		return d.writeToAddr(ctx, addr, buf)
	}
	return fmt.Errorf("kind %d: %w", kind, smbus.ErrNotSupported)
}

func (d *MCP2221) writeToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.withRetry(ctx, func(ctx context.Context) error {
		return d.i2cWrite(ctx, 0x90, address, buffer)
	})
}

func (d *MCP2221) readFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.withRetry(ctx, func(ctx context.Context) error {
		return d.i2cRead(ctx, 0x91, address, buffer)
	})
}

// writeRead keeps the bus between the phases: the command bytes go out
// with no STOP condition and the read is issued under a repeated START.
func (d *MCP2221) writeRead(ctx context.Context, address byte, wbuf, rbuf []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.withRetry(ctx, func(ctx context.Context) error {
		err := d.i2cWrite(ctx, 0x94, address, wbuf)
		if err != nil {
			return err
		}
		return d.i2cRead(ctx, 0x93, address, rbuf)
	})
}

// withRetry reissues op while the engine reports busy. Callers hold
// d.mx.
func (d *MCP2221) withRetry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for i := d.retries; i >= 0; i-- {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrBusBusy) {
			return err
		}
		// cancel whatever the engine is stuck on before trying again
		_, _ = d.releaseBus(ctx)
	}
	return err
}

func (d *MCP2221) i2cWrite(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	if len(buffer) > 0 {
		copy(d.request[4:], buffer)
	}
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	// engine did not take the transfer
	if d.response[1] == 0x01 {
		console.Debug("adapter busy")
		return ErrBusBusy
	}
	return nil
}

func (d *MCP2221) i2cRead(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		console.Debug("adapter busy")
		return ErrBusBusy
	}
	if len(buffer) == 0 {
		// presence pulse only, nothing to fetch
		return nil
	}
	d.request[0] = 0x40
	resetBuffer(d.response)
	err = d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("reading the slave data from the I2C engine: %w", &smbus.TransferError{Code: int(d.response[2])})
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}

	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x10
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// SetSpeed reprograms the engine clock divider, derived from the 12MHz
// internal clock. The engine refuses while a transfer is in flight.
func (d *MCP2221) SetSpeed(ctx context.Context, hz uint32) error {
	if hz == 0 {
		return fmt.Errorf("unsupported bus speed %d", hz)
	}
	div := int(12000000/hz) - 3
	if div < 0 || div > 255 {
		return fmt.Errorf("unsupported bus speed %d", hz)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = 0x10
	d.request[3] = 0x20
	d.request[4] = byte(div)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	if d.response[3] != 0x20 {
		return fmt.Errorf("speed %d not accepted: %w", hz, ErrCommandFailed)
	}
	return nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		8:  Internal I2C state machine state value
		9:  Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
		22: SCL line value as read from the pin
		23: SDA line value as read from the pin
		25: Number of read bytes pending in the engine
	*/
	status := &MCP2221Status{
		EngineState:          int(buffer[8]),
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
		SCLLine:              int(buffer[22]),
		SDALine:              int(buffer[23]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = 0x10
	d.request[2] = 0x10
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return fmt.Errorf("MCP2221 device not found")
	}
	idx := d.device
	if idx < 0 {
		if len(devs) > 1 {
			return fmt.Errorf("ambiguous device identification")
		}
		idx = 0
	}
	if idx >= len(devs) {
		return fmt.Errorf("no device with index %d", idx)
	}
	dev, err := devs[idx].Open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	defer func() {
		_ = dev.Close()
	}()
	verbose := smbctx.IsVerbose(ctx)
	if verbose {
		console.Printf("sending message to adapter:\n%s\n", hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	time.Sleep(d.responseWait)
	console.Debug("reading response from adapter")
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		console.Printf("read message from adapter:\n%s\n", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := 0; i < len(buf)-1; i++ {
		buf[i] = 0x00
	}
}
