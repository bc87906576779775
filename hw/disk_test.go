package hw

import (
	"bytes"
	"testing"
)

func TestDiskPIOSequence(t *testing.T) {
	apic := NewAPIC()
	d := NewDisk(apic, 14, 8)
	d.EnableIntr()
	apic.SetMask(14, false)

	sect := make([]byte, SectorSize)
	for i := range sect {
		sect[i] = 0x5A
	}

	d.StartCmd(2, 1, WriteSect)
	d.OutputSect(sect)
	if got := apic.Pending(); len(got) != 1 || got[0] != 14 {
		t.Fatalf("expected one pending request on pin 14, got %v", got)
	}
	apic.Ack(14)

	if !bytes.Equal(d.Image()[2*SectorSize:3*SectorSize], sect) {
		t.Fatal("the written sector did not land on the image")
	}

	d.StartCmd(2, 1, ReadSect)
	if got := apic.Pending(); len(got) != 1 {
		t.Fatalf("a PIO read must raise its first interrupt at once, got %v", got)
	}
	apic.Ack(14)
	back := make([]byte, SectorSize)
	d.InputSect(back)
	if !bytes.Equal(back, sect) {
		t.Fatal("the read sector differs from the written one")
	}
	// a single-sector read raises exactly one interrupt
	if got := apic.Pending(); len(got) != 0 {
		t.Fatalf("unexpected pending request after the last sector: %v", got)
	}
}

func TestAPICPriorityOrder(t *testing.T) {
	a := NewAPIC()
	a.SetVect(1, 0x50)
	a.SetVect(14, 0x60)
	a.SetMask(1, false)
	a.SetMask(14, false)
	a.Raise(1)
	a.Raise(14)

	got := a.Pending()
	if len(got) != 2 || got[0] != 14 || got[1] != 1 {
		t.Fatalf("pending order %v, expected the higher vector (pin 14) first", got)
	}
}

func TestAPICMasking(t *testing.T) {
	a := NewAPIC()
	a.SetVect(1, 0x50)
	a.Raise(1)
	if got := a.Pending(); len(got) != 0 {
		t.Fatalf("a masked pin must not be deliverable, got %v", got)
	}
	a.SetMask(1, false)
	if got := a.Pending(); len(got) != 1 {
		t.Fatalf("unmasking must expose the latched request, got %v", got)
	}
}
