package sim

import (
	"bytes"
	"testing"

	"github.com/ardnew/sdcbridge/fatfs"
	"github.com/ardnew/sdcbridge/link"
)

func newCore(t *testing.T, opts Options) (*Core, *fatfs.MemoryDevice) {
	t.Helper()
	card := fatfs.NewMemoryDevice(64)
	return New(card, opts), card
}

func TestStatusPoll(t *testing.T) {
	core, _ := newCore(t, Options{NotReadyPolls: 2})

	for i, want := range []uint8{0, 0, DefaultCardStatus} {
		f := link.Open(core, link.TargetSDC, link.SDCStatus)
		got := f.Tx(0)
		if err := f.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if got != want {
			t.Errorf("poll %d: status = %#02x, want %#02x", i, got, want)
		}
	}
}

func TestSectorRequest(t *testing.T) {
	core, _ := newCore(t, Options{})
	core.RequestSector(1, 0x01020304)

	select {
	case <-core.IRQ():
	default:
		t.Fatal("no interrupt raised")
	}

	f := link.Open(core, link.TargetSDC, link.SDCStatus)
	f.Tx(0)
	request := f.Tx(0)
	sector := f.ReadU32()
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if request != link.RequestDriveB {
		t.Errorf("request = %#02x, want %#02x", request, link.RequestDriveB)
	}
	if sector != 0x01020304 {
		t.Errorf("sector = %#x, want 0x01020304", sector)
	}

	f = link.Open(core, link.TargetSDC, link.SDCCoreRW)
	f.WriteU32(1234)
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	got := core.Deliveries()
	want := Delivery{Drive: 1, Sector: 0x01020304, Physical: 1234}
	if len(got) != 1 || got[0] != want {
		t.Errorf("Deliveries() = %+v, want [%+v]", got, want)
	}
	if core.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", core.Pending())
	}
}

func TestMCUReadWrite(t *testing.T) {
	core, card := newCore(t, Options{BusyCycles: 3})

	data := make([]byte, link.SectorSize)
	for i := range data {
		data[i] = byte(i * 7)
	}

	f := link.Open(core, link.TargetSDC, link.SDCMCUWrite)
	f.WriteU32(5)
	f.Write(data)
	polls := 0
	for f.Tx(0) != 0 {
		polls++
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if polls != 3 {
		t.Errorf("write busy polls = %d, want 3", polls)
	}

	stored := make([]byte, link.SectorSize)
	if _, err := card.ReadAt(stored, 5*link.SectorSize); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(stored, data) {
		t.Error("card content differs from written sector")
	}

	f = link.Open(core, link.TargetSDC, link.SDCMCURead)
	f.WriteU32(5)
	polls = 0
	for f.Tx(0) != 0 {
		polls++
	}
	got := make([]byte, link.SectorSize)
	f.Read(got)
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if polls != 3 {
		t.Errorf("read busy polls = %d, want 3", polls)
	}
	if !bytes.Equal(got, data) {
		t.Error("read sector differs from written sector")
	}

	if r, w := core.SectorIO(); r != 1 || w != 1 {
		t.Errorf("SectorIO() = %d, %d, want 1, 1", r, w)
	}
}

func TestInserted(t *testing.T) {
	core, _ := newCore(t, Options{})

	f := link.Open(core, link.TargetSDC, link.SDCInserted)
	f.Tx(1)
	f.WriteU32(737280)
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	got := core.Insertions()
	if len(got) != 1 || got[0] != (Insertion{Drive: 1, Size: 737280}) {
		t.Errorf("Insertions() = %+v", got)
	}
}

func TestACSIExchange(t *testing.T) {
	core, _ := newCore(t, Options{})

	var cmd [link.ACSIFrameSize]byte
	cmd[0] = 0x03
	cmd[10] = 1 << 5
	core.SubmitACSI(cmd)

	f := link.Open(core, link.TargetSys, link.SysACSIStatus)
	f.Tx(0)
	var frame [link.ACSIFrameSize]byte
	f.Read(frame[:])
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if frame[0] != 0x03 || frame[10] != 1<<5|link.ACSIBusy {
		t.Errorf("frame = % x", frame)
	}

	f = link.Open(core, link.TargetSys, link.SysACSIData)
	f.Write([]byte{1, 2, 3})
	f.Close()
	f = link.Open(core, link.TargetSys, link.SysACSIAck)
	f.Tx(1)
	f.Tx(0x02)
	f.Close()

	results := core.ACSIResults()
	if len(results) != 1 {
		t.Fatalf("ACSIResults() = %d results, want 1", len(results))
	}
	r := results[0]
	if !r.Ack || r.Status != 0x02 || !bytes.Equal(r.Data, []byte{1, 2, 3}) {
		t.Errorf("result = %+v", r)
	}

	f = link.Open(core, link.TargetSys, link.SysACSIStatus)
	f.Tx(0)
	f.Read(frame[:])
	f.Close()
	if frame[10]&link.ACSIBusy != 0 {
		t.Error("busy flag still set after acknowledge")
	}
}

func TestSystemCommands(t *testing.T) {
	core, _ := newCore(t, Options{CoreID: 1})
	core.SetButtons(0x03)

	f := link.Open(core, link.TargetSys, link.SysStatus)
	f.Tx(0)
	b0, b1, id := f.Tx(0), f.Tx(0), f.Tx(0)
	f.Close()
	if b0 != link.CoreMagic0 || b1 != link.CoreMagic1 || id != 1 {
		t.Errorf("status = %#02x %#02x %d", b0, b1, id)
	}

	f = link.Open(core, link.TargetSys, link.SysRGB)
	f.Write([]byte{0x40, 0x00, 0x10})
	f.Close()
	if core.RGB() != 0x400010 {
		t.Errorf("RGB() = %#06x, want 0x400010", core.RGB())
	}

	f = link.Open(core, link.TargetSys, link.SysLEDs)
	f.Tx(0x05)
	f.Close()
	if core.LEDs() != 0x05 {
		t.Errorf("LEDs() = %#02x, want 0x05", core.LEDs())
	}

	f = link.Open(core, link.TargetSys, link.SysSetValue)
	f.Write([]byte{'V', 2})
	f.Close()
	if v, ok := core.Value('V'); !ok || v != 2 {
		t.Errorf("Value('V') = %d, %v", v, ok)
	}

	f = link.Open(core, link.TargetSys, link.SysButtons)
	f.Tx(0)
	btns := f.Tx(0)
	f.Close()
	if btns != 0x03 {
		t.Errorf("buttons = %#02x, want 0x03", btns)
	}
}

func TestIRQControl(t *testing.T) {
	core, _ := newCore(t, Options{})
	core.RequestSector(0, 1)
	core.RaiseHID()

	irq := func(ack byte) byte {
		f := link.Open(core, link.TargetSys, link.SysIRQControl)
		f.Tx(ack)
		pending := f.Tx(0)
		f.Close()
		return pending
	}

	if got := irq(link.IRQHID); got != link.IRQStorage|link.IRQHID {
		t.Errorf("pending = %#02x, want %#02x", got, link.IRQStorage|link.IRQHID)
	}
	if got := irq(0xFF); got != link.IRQStorage {
		t.Errorf("pending after HID ack = %#02x, want %#02x", got, link.IRQStorage)
	}
	if got := irq(0xFF); got != 0 {
		t.Errorf("pending after ack = %#02x, want 0", got)
	}
}

func TestTransferOutsideFrame(t *testing.T) {
	core, _ := newCore(t, Options{})
	if _, err := core.Transfer(0); err == nil {
		t.Error("Transfer() outside frame succeeded")
	}
	if err := core.End(); err == nil {
		t.Error("End() outside frame succeeded")
	}
}
