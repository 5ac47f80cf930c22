package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/renardein/smbus"

	"periph.io/x/conn/v3/physic"
)

type fakeTx struct {
	addr uint16
	w    []byte
	rlen int
}

// fakeBus records transactions and serves canned read data.
type fakeBus struct {
	txs   []fakeTx
	fill  []byte
	err   error
	speed physic.Frequency
}

func (f *fakeBus) String() string {
	return "fake"
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	f.txs = append(f.txs, fakeTx{addr: addr, w: append([]byte(nil), w...), rlen: len(r)})
	if f.err != nil {
		return f.err
	}
	copy(r, f.fill)
	return nil
}

func (f *fakeBus) SetSpeed(freq physic.Frequency) error {
	if f.err != nil {
		return f.err
	}
	f.speed = freq
	return nil
}

func (f *fakeBus) Close() error {
	return nil
}

func newFakeBusAdapter(f *fakeBus) *smbus.Adapter {
	b := &GenericBus{name: "periph-i2c:fake", bus: f}
	return b.Adapter("i2c-1")
}

func TestRegisterReadUsesOneTransaction(t *testing.T) {
	f := &fakeBus{fill: []byte{0x5A}}
	a := newFakeBusAdapter(f)

	got, err := a.ReadByteData(context.Background(), 0x48, 0x03)
	assert.NoError(t, err)
	assert.Equal(t, uint8(0x5A), got)
	// write half and read half collapse under a repeated START
	assert.Len(t, f.txs, 1)
	assert.Equal(t, uint16(0x48), f.txs[0].addr)
	assert.Equal(t, []byte{0x03}, f.txs[0].w)
	assert.Equal(t, 1, f.txs[0].rlen)
}

func TestWordWriteIsSingleWrite(t *testing.T) {
	f := &fakeBus{}
	a := newFakeBusAdapter(f)

	err := a.WriteWordData(context.Background(), 0x48, 0x10, 0xBEEF)
	assert.NoError(t, err)
	assert.Len(t, f.txs, 1)
	assert.Equal(t, []byte{0x10, 0xEF, 0xBE}, f.txs[0].w)
	assert.Equal(t, 0, f.txs[0].rlen)
}

func TestReceiveByteIsSingleRead(t *testing.T) {
	f := &fakeBus{fill: []byte{0xCE}}
	a := newFakeBusAdapter(f)

	got, err := a.ReadByte(context.Background(), 0x2D)
	assert.NoError(t, err)
	assert.Equal(t, uint8(0xCE), got)
	assert.Len(t, f.txs, 1)
	assert.Empty(t, f.txs[0].w)
	assert.Equal(t, 1, f.txs[0].rlen)
}

func TestBlockReadFetchesFullFrame(t *testing.T) {
	f := &fakeBus{fill: []byte{0x04, 0xDE, 0xAD, 0xBE, 0xEF}}
	a := newFakeBusAdapter(f)

	buf := make([]byte, smbus.BlockMax)
	n, err := a.ReadBlockData(context.Background(), 0x50, 0x20, buf)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, buf[:n])
	assert.Len(t, f.txs, 1)
	assert.Equal(t, smbus.BlockMax+1, f.txs[0].rlen)
}

func TestProcessCallKeepsRepeatedStart(t *testing.T) {
	f := &fakeBus{fill: []byte{0x34, 0x12}}
	a := newFakeBusAdapter(f)

	got, err := a.ProcessCall(context.Background(), 0x48, 0x30, 0xBEEF)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x1234), got)
	assert.Len(t, f.txs, 1)
	assert.Equal(t, []byte{0x30, 0xEF, 0xBE}, f.txs[0].w)
	assert.Equal(t, 2, f.txs[0].rlen)
}

func TestQuickTransferRefused(t *testing.T) {
	f := &fakeBus{}
	a := newFakeBusAdapter(f)
	ctx := context.Background()

	err := a.WriteQuick(ctx, 0x20, false)
	assert.ErrorIs(t, err, smbus.ErrNotSupported)
	err = a.WriteQuick(ctx, 0x20, true)
	assert.ErrorIs(t, err, smbus.ErrNotSupported)
	// nothing may reach the bus; sysfs drops empty transfers silently,
	// which would look like an acknowledge from every address
	assert.Empty(t, f.txs)
}

func TestTransferErrorSurfaces(t *testing.T) {
	f := &fakeBus{err: errors.New("remote i/o error")}
	a := newFakeBusAdapter(f)

	_, err := a.ReadByteData(context.Background(), 0x48, 0x03)
	assert.ErrorContains(t, err, "could not read from i2c bus 48")
	assert.ErrorContains(t, err, "remote i/o error")
}

func TestControlSetSpeed(t *testing.T) {
	f := &fakeBus{}
	a := newFakeBusAdapter(f)
	ctx := context.Background()

	err := a.Control(ctx, CtlSetSpeed, int64(400000))
	assert.NoError(t, err)
	assert.Equal(t, 400*physic.KiloHertz, f.speed)

	err = a.Control(ctx, CtlSetSpeed, "fast")
	assert.ErrorContains(t, err, "wants a frequency in hertz")

	err = a.Control(ctx, 42, nil)
	assert.ErrorIs(t, err, smbus.ErrNotSupported)
}
