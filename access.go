package smbus

import (
	"context"
	"fmt"
)

// Access is the single dispatch point for SMBus transactions. It
// validates the address, serializes on the adapter lock and hands the
// transaction to the adapter's native access routine, or translates it
// into a master transfer when the adapter has none. Errors from the
// access routine are propagated verbatim; the dispatcher never retries.
func (a *Adapter) Access(ctx context.Context, addr uint8, dir Direction, command uint8, kind Kind, data *Data) error {
	if addr > AddrMax {
		return fmt.Errorf("address %#x: %w", addr, ErrAddressOutOfRange)
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.SMBusNative() {
		return a.access(ctx, addr, dir, command, kind, data)
	}
	if xf, ok := a.algo.(MasterTransferor); ok {
		return a.emulate(ctx, xf, addr, dir, command, kind, data)
	}
	return fmt.Errorf("adapter %s: %w", a.name, ErrNotSupported)
}

// emulate translates one SMBus transaction into raw messages, one for
// writes and quick pulses, a write plus a read for everything else.
// Words travel low byte first. Block reads fetch the full frame and let
// the chip's length byte decide how much of it is payload.
func (a *Adapter) emulate(ctx context.Context, xf MasterTransferor, addr uint8, dir Direction, command uint8, kind Kind, data *Data) error {
	var (
		wbuf [BlockMax + 2]byte
		rbuf [BlockMax + 1]byte
		msgs []Msg
	)
	if data == nil && payloadKind(kind, dir) {
		return fmt.Errorf("%s %s: %w", dir, kind, ErrMissingData)
	}
	switch kind {
	case KindQuick:
		var f MsgFlags
		if dir == Read {
			f = MsgRead
		}
		msgs = []Msg{{Addr: addr, Flags: f}}
	case KindByte:
		if dir == Read {
			msgs = []Msg{{Addr: addr, Flags: MsgRead, Buf: rbuf[:1]}}
		} else {
			wbuf[0] = command
			msgs = []Msg{{Addr: addr, Buf: wbuf[:1]}}
		}
	case KindByteData:
		wbuf[0] = command
		if dir == Read {
			msgs = []Msg{
				{Addr: addr, Buf: wbuf[:1]},
				{Addr: addr, Flags: MsgRead, Buf: rbuf[:1]},
			}
		} else {
			wbuf[1] = data.Byte
			msgs = []Msg{{Addr: addr, Buf: wbuf[:2]}}
		}
	case KindWordData:
		wbuf[0] = command
		if dir == Read {
			msgs = []Msg{
				{Addr: addr, Buf: wbuf[:1]},
				{Addr: addr, Flags: MsgRead, Buf: rbuf[:2]},
			}
		} else {
			wbuf[1] = uint8(data.Word)
			wbuf[2] = uint8(data.Word >> 8)
			msgs = []Msg{{Addr: addr, Buf: wbuf[:3]}}
		}
	case KindProcCall:
		wbuf[0] = command
		wbuf[1] = uint8(data.Word)
		wbuf[2] = uint8(data.Word >> 8)
		msgs = []Msg{
			{Addr: addr, Buf: wbuf[:3]},
			{Addr: addr, Flags: MsgRead, Buf: rbuf[:2]},
		}
	case KindBlockData:
		wbuf[0] = command
		if dir == Read {
			msgs = []Msg{
				{Addr: addr, Buf: wbuf[:1]},
				{Addr: addr, Flags: MsgRead, Buf: rbuf[:]},
			}
		} else {
			n := int(data.Block[0])
			if n > BlockMax {
				n = BlockMax
			}
			wbuf[1] = uint8(n)
			copy(wbuf[2:], data.Block[1:1+n])
			msgs = []Msg{{Addr: addr, Buf: wbuf[:2+n]}}
		}
	default:
		return fmt.Errorf("kind %d: %w", kind, ErrNotSupported)
	}
	if _, err := xf.MasterXfer(ctx, a, msgs); err != nil {
		return err
	}
	switch {
	case kind == KindProcCall:
		data.Word = uint16(rbuf[0]) | uint16(rbuf[1])<<8
	case dir != Read:
	case kind == KindByte || kind == KindByteData:
		data.Byte = rbuf[0]
	case kind == KindWordData:
		data.Word = uint16(rbuf[0]) | uint16(rbuf[1])<<8
	case kind == KindBlockData:
		n := int(rbuf[0])
		if n > BlockMax {
			n = BlockMax
		}
		data.Block[0] = uint8(n)
		copy(data.Block[1:1+n], rbuf[1:1+n])
	}
	return nil
}

// payloadKind reports whether a transaction of this kind and direction
// carries a Data payload.
func payloadKind(kind Kind, dir Direction) bool {
	switch kind {
	case KindQuick:
		return false
	case KindByte:
		return dir == Read
	}
	return true
}

// WriteQuick sends the single bit value in the direction slot of a quick
// transaction, the SMBus presence-check primitive. No payload travels.
func (a *Adapter) WriteQuick(ctx context.Context, addr uint8, value bool) error {
	dir := Write
	if value {
		dir = Read
	}
	return a.Access(ctx, addr, dir, 0, KindQuick, nil)
}

// ReadByte receives one byte without selecting a register.
func (a *Adapter) ReadByte(ctx context.Context, addr uint8) (uint8, error) {
	var data Data
	if err := a.Access(ctx, addr, Read, 0, KindByte, &data); err != nil {
		return 0, err
	}
	return data.Byte, nil
}

// WriteByte sends one byte; the value travels in the command slot.
func (a *Adapter) WriteByte(ctx context.Context, addr uint8, value uint8) error {
	return a.Access(ctx, addr, Write, value, KindByte, nil)
}

// ReadByteData reads the byte register selected by command.
func (a *Adapter) ReadByteData(ctx context.Context, addr uint8, command uint8) (uint8, error) {
	var data Data
	if err := a.Access(ctx, addr, Read, command, KindByteData, &data); err != nil {
		return 0, err
	}
	return data.Byte, nil
}

// WriteByteData writes the byte register selected by command.
func (a *Adapter) WriteByteData(ctx context.Context, addr uint8, command uint8, value uint8) error {
	data := Data{Byte: value}
	return a.Access(ctx, addr, Write, command, KindByteData, &data)
}

// ReadWordData reads the 16-bit register selected by command.
func (a *Adapter) ReadWordData(ctx context.Context, addr uint8, command uint8) (uint16, error) {
	var data Data
	if err := a.Access(ctx, addr, Read, command, KindWordData, &data); err != nil {
		return 0, err
	}
	return data.Word, nil
}

// WriteWordData writes the 16-bit register selected by command.
func (a *Adapter) WriteWordData(ctx context.Context, addr uint8, command uint8, value uint16) error {
	data := Data{Word: value}
	return a.Access(ctx, addr, Write, command, KindWordData, &data)
}

// ProcessCall sends value to the register selected by command and returns
// the chip's 16-bit answer from the same transaction.
func (a *Adapter) ProcessCall(ctx context.Context, addr uint8, command uint8, value uint16) (uint16, error) {
	data := Data{Word: value}
	if err := a.Access(ctx, addr, Write, command, KindProcCall, &data); err != nil {
		return 0, err
	}
	return data.Word, nil
}

// ReadBlockData reads the block register selected by command into buf
// and returns the number of bytes copied, at most BlockMax and never
// more than len(buf).
func (a *Adapter) ReadBlockData(ctx context.Context, addr uint8, command uint8, buf []byte) (int, error) {
	var data Data
	if err := a.Access(ctx, addr, Read, command, KindBlockData, &data); err != nil {
		return 0, err
	}
	return copy(buf, data.BlockBytes()), nil
}

// WriteBlockData writes buf to the block register selected by command,
// silently truncating to BlockMax bytes.
func (a *Adapter) WriteBlockData(ctx context.Context, addr uint8, command uint8, buf []byte) error {
	var data Data
	data.SetBlock(buf)
	return a.Access(ctx, addr, Write, command, KindBlockData, &data)
}

// Control forwards an algorithm-specific control request, serialized
// with the adapter's transactions.
func (a *Adapter) Control(ctx context.Context, cmd uint, arg any) error {
	ctl, ok := a.algo.(Controller)
	if !ok {
		return fmt.Errorf("adapter %s: control: %w", a.name, ErrNotSupported)
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	return ctl.Control(ctx, a, cmd, arg)
}

// SlaveSend sends buf when the controller is addressed as a slave.
func (a *Adapter) SlaveSend(ctx context.Context, buf []byte) (int, error) {
	s, ok := a.algo.(SlaveSender)
	if !ok {
		return 0, fmt.Errorf("adapter %s: slave send: %w", a.name, ErrNotSupported)
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	return s.SlaveSend(ctx, a, buf)
}

// SlaveRecv receives into buf when the controller is addressed as a
// slave.
func (a *Adapter) SlaveRecv(ctx context.Context, buf []byte) (int, error) {
	s, ok := a.algo.(SlaveReceiver)
	if !ok {
		return 0, fmt.Errorf("adapter %s: slave receive: %w", a.name, ErrNotSupported)
	}
	a.mx.Lock()
	defer a.mx.Unlock()
	return s.SlaveRecv(ctx, a, buf)
}
