package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/renardein/smbus"
)

func TestMCP2221Defaults(t *testing.T) {
	d := NewMCP2221()
	assert.Equal(t, 50*time.Millisecond, d.responseWait)
	assert.Equal(t, 1, d.retries)
	assert.Equal(t, -1, d.device)

	d = NewMCP2221(WithResponseWait(10*time.Millisecond), WithRetryLimit(3), WithDeviceIndex(2))
	assert.Equal(t, 10*time.Millisecond, d.responseWait)
	assert.Equal(t, 3, d.retries)
	assert.Equal(t, 2, d.device)
}

func TestMCP2221AdapterBinding(t *testing.T) {
	d := NewMCP2221(WithRetryLimit(2))
	a := d.Adapter("mcp2221-0")

	assert.Equal(t, "mcp2221-0", a.Name())
	assert.True(t, a.SMBusNative())
	assert.Equal(t, smbus.Native, a.Algorithm())
	assert.Equal(t, 2, a.Retries())
	assert.Equal(t, 50*time.Millisecond, a.Timeout())
}

func TestMCP2221AccessRejectsMissingData(t *testing.T) {
	d := NewMCP2221()
	ctx := context.Background()

	err := d.access(ctx, 0x48, smbus.Read, 0x03, smbus.KindByteData, nil)
	assert.ErrorIs(t, err, smbus.ErrMissingData)
	err = d.access(ctx, 0x48, smbus.Write, 0x03, smbus.KindBlockData, nil)
	assert.ErrorIs(t, err, smbus.ErrMissingData)
}

func TestMCP2221AccessRejectsUnknownKind(t *testing.T) {
	d := NewMCP2221()
	var data smbus.Data

	err := d.access(context.Background(), 0x48, smbus.Read, 0, smbus.Kind(9), &data)
	assert.ErrorIs(t, err, smbus.ErrNotSupported)
}

func TestMCP2221SetSpeedValidation(t *testing.T) {
	d := NewMCP2221()
	ctx := context.Background()

	// all of these fail before any report leaves the host
	assert.ErrorContains(t, d.SetSpeed(ctx, 0), "unsupported bus speed")
	assert.ErrorContains(t, d.SetSpeed(ctx, 40000), "unsupported bus speed")
	assert.ErrorContains(t, d.SetSpeed(ctx, 5000000), "unsupported bus speed")
}

func TestMCP2221BufferToStatus(t *testing.T) {
	buffer := make([]byte, 64)
	buffer[8] = 0x25
	buffer[9] = 0x10 // requested length 0x0210
	buffer[10] = 0x02
	buffer[11] = 0x0F // transferred 0x000F
	buffer[13] = 5
	buffer[14] = 27
	buffer[15] = 18
	buffer[16] = 0x90
	buffer[17] = 0x00
	buffer[22] = 1
	buffer[23] = 0
	buffer[25] = 2

	status := bufferToStatus(buffer)
	assert.Equal(t, 0x25, status.EngineState)
	assert.Equal(t, uint16(0x0210), status.LastWriteRequestedSize)
	assert.Equal(t, uint16(0x000F), status.LastWriteSentSize)
	assert.Equal(t, 5, status.I2CDataBufferCounter)
	assert.Equal(t, 27, status.I2CSpeedDivider)
	assert.Equal(t, 18, status.I2CTimeout)
	assert.Equal(t, "9000", status.CurrentAddress)
	assert.Equal(t, 1, status.SCLLine)
	assert.Equal(t, 0, status.SDALine)
	assert.Equal(t, 2, status.ReadPending)
}
