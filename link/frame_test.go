package link

import (
	"bytes"
	"errors"
	"testing"
)

// mockBus records frames and replies from a scripted byte queue.
type mockBus struct {
	frames  [][]byte
	current []byte
	replies []byte
	failAt  int // Transfer index (within frame) that fails; -1 disables
	began   int
	ended   int
	inFrame bool
}

var errMock = errors.New("mock transfer failure")

func newMockBus(replies ...byte) *mockBus {
	return &mockBus{replies: replies, failAt: -1}
}

func (m *mockBus) Begin() error {
	if m.inFrame {
		return errors.New("nested frame")
	}
	m.inFrame = true
	m.began++
	m.current = nil
	return nil
}

func (m *mockBus) Transfer(out byte) (byte, error) {
	if m.failAt >= 0 && len(m.current) == m.failAt {
		return 0, errMock
	}
	m.current = append(m.current, out)
	if len(m.replies) == 0 {
		return 0, nil
	}
	in := m.replies[0]
	m.replies = m.replies[1:]
	return in, nil
}

func (m *mockBus) End() error {
	m.inFrame = false
	m.ended++
	m.frames = append(m.frames, m.current)
	return nil
}

func TestFrame_WriteU32BigEndian(t *testing.T) {
	bus := newMockBus()
	f := Open(bus, TargetSDC, SDCCoreRW)
	f.WriteU32(0x01020304)
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := []byte{byte(TargetSDC), SDCCoreRW, 0x01, 0x02, 0x03, 0x04}
	if len(bus.frames) != 1 || !bytes.Equal(bus.frames[0], want) {
		t.Errorf("frame = % x, want % x", bus.frames, want)
	}
}

func TestFrame_ReadU32(t *testing.T) {
	// Two replies for target and command bytes, then the payload.
	bus := newMockBus(0, 0, 0xde, 0xad, 0xbe, 0xef)
	f := Open(bus, TargetSDC, SDCStatus)
	got := f.ReadU32()
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got != 0xdeadbeef {
		t.Errorf("ReadU32() = %#x, want 0xdeadbeef", got)
	}
}

func TestFrame_StickyError(t *testing.T) {
	bus := newMockBus()
	bus.failAt = 3
	f := Open(bus, TargetSys, SysRGB)
	f.Write([]byte{0x40, 0x00, 0x00})
	if got := f.Tx(0xff); got != 0 {
		t.Errorf("Tx after error = %#x, want 0", got)
	}
	if err := f.Close(); !errors.Is(err, errMock) {
		t.Fatalf("Close() error = %v, want %v", err, errMock)
	}
	if bus.ended != 1 {
		t.Errorf("End called %d times, want 1", bus.ended)
	}
	// target, command, first payload byte
	if n := len(bus.frames[0]); n != 3 {
		t.Errorf("frame length = %d, want 3", n)
	}
}

func TestFrame_CloseTwice(t *testing.T) {
	bus := newMockBus()
	f := Open(bus, TargetSys, SysLEDs)
	f.Tx(1)
	_ = f.Close()
	_ = f.Close()
	if bus.ended != 1 {
		t.Errorf("End called %d times, want 1", bus.ended)
	}
}

func TestCardType(t *testing.T) {
	tests := []struct {
		status uint8
		want   string
	}{
		{0x80, "UNKNOWN"},
		{0x84, "SDv1"},
		{0x88, "SDv2"},
		{0x8c, "SDHCv2"},
	}
	for _, tt := range tests {
		if got := CardType(tt.status); got != tt.want {
			t.Errorf("CardType(%#x) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestTarget_String(t *testing.T) {
	if TargetSys.String() != "sys" || TargetSDC.String() != "sdc" || Target(9).String() != "unknown" {
		t.Error("unexpected target names")
	}
}
