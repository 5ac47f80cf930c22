package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/renardein/smbus"
)

func TestMockRegisterFile(t *testing.T) {
	m := NewMock()
	m.SetByte(0x48, 0x00, 0x5A)
	m.SetWord(0x48, 0x06, 0xBEEF)
	m.SetBlock(0x50, 0x20, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	a := m.Adapter("mock-0")
	ctx := context.Background()

	b, err := a.ReadByteData(ctx, 0x48, 0x00)
	assert.NoError(t, err)
	assert.Equal(t, uint8(0x5A), b)

	w, err := a.ReadWordData(ctx, 0x48, 0x06)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), w)

	buf := make([]byte, smbus.BlockMax)
	n, err := a.ReadBlockData(ctx, 0x50, 0x20, buf)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, buf[:n])

	// writes land in the same registers reads come from
	assert.NoError(t, a.WriteByteData(ctx, 0x48, 0x01, 0x80))
	b, err = a.ReadByteData(ctx, 0x48, 0x01)
	assert.NoError(t, err)
	assert.Equal(t, uint8(0x80), b)

	assert.NoError(t, a.WriteBlockData(ctx, 0x50, 0x21, []byte{1, 2, 3}))
	n, err = a.ReadBlockData(ctx, 0x50, 0x21, buf)
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf[:n])
}

func TestMockReceiveSendByte(t *testing.T) {
	m := NewMock()
	m.AddDevice(0x2D)
	a := m.Adapter("mock-0")
	ctx := context.Background()

	assert.NoError(t, a.WriteByte(ctx, 0x2D, 0xCE))
	got, err := a.ReadByte(ctx, 0x2D)
	assert.NoError(t, err)
	assert.Equal(t, uint8(0xCE), got)
}

func TestMockProcessCallLatchesWord(t *testing.T) {
	m := NewMock()
	m.SetWord(0x48, 0x30, 0x5A5A)
	a := m.Adapter("mock-0")
	ctx := context.Background()

	prev, err := a.ProcessCall(ctx, 0x48, 0x30, 0x1234)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x5A5A), prev)

	prev, err = a.ProcessCall(ctx, 0x48, 0x30, 0x4321)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x1234), prev)
}

func TestMockQuickProbe(t *testing.T) {
	m := NewMock()
	m.AddDevice(0x48)
	a := m.Adapter("mock-0")
	ctx := context.Background()

	assert.NoError(t, a.WriteQuick(ctx, 0x48, false))
	assert.NoError(t, a.WriteQuick(ctx, 0x48, true))
	assert.Equal(t, 2, m.QuickCount(0x48))

	err := a.WriteQuick(ctx, 0x49, false)
	assert.Error(t, err)
	var terr *smbus.TransferError
	assert.ErrorAs(t, err, &terr)
	assert.Zero(t, m.QuickCount(0x49))
}

func TestMockBehaviorOverride(t *testing.T) {
	injected := &smbus.TransferError{Code: -110}
	m := NewMock(WithMockBehavior(func(ctx context.Context, addr uint8, dir smbus.Direction, command uint8, kind smbus.Kind, data *smbus.Data) error {
		return injected
	}))
	m.SetByte(0x48, 0x00, 0x5A)
	a := m.Adapter("mock-0")

	_, err := a.ReadByteData(context.Background(), 0x48, 0x00)
	assert.Same(t, injected, err)
}

func TestMockBlockSeedClamp(t *testing.T) {
	m := NewMock()
	long := make([]byte, 40)
	for i := range long {
		long[i] = 0xA5
	}
	m.SetBlock(0x50, 0x20, long)
	a := m.Adapter("mock-0")

	buf := make([]byte, 64)
	n, err := a.ReadBlockData(context.Background(), 0x50, 0x20, buf)
	assert.NoError(t, err)
	assert.Equal(t, smbus.BlockMax, n)
}
