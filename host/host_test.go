package host

import "testing"

func TestParseOSRelease(t *testing.T) {
	data := []byte(`NAME="Test Linux"
ID=testlinux
VERSION="1.2 (Nautilus)"
BROKEN-LINE
`)
	got := parseOSRelease(data)
	if got["ID"] != "testlinux" {
		t.Logf("ID was %q, expected %q", got["ID"], "testlinux")
		t.Fail()
	}
	if got["VERSION"] != "1.2 (Nautilus)" {
		t.Logf("VERSION was %q, expected %q", got["VERSION"], "1.2 (Nautilus)")
		t.Fail()
	}
	if _, ok := got["BROKEN-LINE"]; ok {
		t.Log("a line without '=' should be skipped")
		t.Fail()
	}
}

func TestGetHardware(t *testing.T) {
	r := NewLinuxReader(LinuxReaderConfig{})
	h, err := r.GetHardware()
	if err != nil {
		t.Fatalf("unexpected error reading hardware details: %s", err)
	}
	if h.Architecture == "" {
		t.Fail()
	}
	if h.CPU.CPUCount < 1 {
		t.Fail()
	}
}
