package kern

import "testing"

func testMem(t *testing.T) *Mem {
	t.Helper()
	return NewMem(2*MiB, 128*KiB, 1)
}

func TestMapTranslateUnmap(t *testing.T) {
	mm := testMem(t)
	root := mm.allocTable()
	if root == 0 {
		t.Fatal("cannot allocate a root table")
	}
	free := mm.FreeFrames()

	begin := iniUsrPrivate
	end := begin + 4*PageSize
	if v := mm.mapRange(root, begin, end, bitRW|bitUS,
		func(VAddr) PAddr { return mm.AllocFrame() }); v != end {
		t.Fatalf("mapRange stopped at %#x, expected %#x", uint64(v), uint64(end))
	}

	pa := mm.translate(root, begin+PageSize+123)
	if pa == 0 {
		t.Fatal("mapped address did not translate")
	}
	if uint64(pa)%PageSize != 123 {
		t.Fatalf("page offset not preserved: %#x", uint64(pa))
	}
	if mm.translate(root, begin-PageSize) != 0 {
		t.Fatal("unmapped address translated")
	}

	mm.unmapRange(root, begin, end, func(_ VAddr, f PAddr, _ int) { mm.FreeFrame(f) })
	if mm.translate(root, begin) != 0 {
		t.Fatal("address still translates after unmap")
	}
	// leaf frames and the intermediate tables must all be back
	if mm.FreeFrames() != free {
		t.Fatalf("free frames after unmap: %d, expected %d", mm.FreeFrames(), free)
	}
	if mm.getRef(root) != 0 {
		t.Fatalf("root still has %d valid entries", mm.getRef(root))
	}
}

func TestReleaseTableWithEntriesPanics(t *testing.T) {
	mm := testMem(t)
	root := mm.allocTable()
	end := iniUsrPrivate + PageSize
	mm.mapRange(root, iniUsrPrivate, end, bitRW,
		func(VAddr) PAddr { return mm.AllocFrame() })

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("releasing a table with valid entries must be a kernel fault")
		}
	}()
	mm.releaseTable(root)
}

func TestCopyAndClearRootRange(t *testing.T) {
	mm := testMem(t)
	src := mm.allocTable()
	dst := mm.allocTable()
	mm.mapRange(src, iniUsrShared, iniUsrShared+PageSize, bitRW|bitUS,
		func(VAddr) PAddr { return mm.AllocFrame() })

	mm.copyRootRange(src, dst, iUsrShared, nUsrShared)
	if mm.getRef(dst) != 1 {
		t.Fatalf("dst root valid entries: %d, expected 1", mm.getRef(dst))
	}
	if mm.translate(dst, iniUsrShared) == 0 {
		t.Fatal("shared entry does not translate through the copy")
	}
	// the sub-tree is shared, not duplicated
	if mm.translate(dst, iniUsrShared) != mm.translate(src, iniUsrShared) {
		t.Fatal("copy produced a different translation")
	}

	mm.clearRootRange(dst, iUsrShared, nUsrShared)
	if mm.getRef(dst) != 0 {
		t.Fatalf("dst root valid entries after clear: %d, expected 0", mm.getRef(dst))
	}
	mm.releaseTable(dst)
}

func TestCheckAccess(t *testing.T) {
	mm := testMem(t)
	root := mm.allocTable()

	rw := iniUsrShared
	ro := iniUsrShared + 16*PageSize
	priv := iniSysPrivate

	mm.mapRange(root, rw, rw+2*PageSize, bitRW|bitUS,
		func(VAddr) PAddr { return mm.AllocFrame() })
	mm.mapRange(root, ro, ro+PageSize, bitUS,
		func(VAddr) PAddr { return mm.AllocFrame() })
	mm.mapRange(root, priv, priv+PageSize, bitRW,
		func(VAddr) PAddr { return mm.AllocFrame() })

	cases := []struct {
		name      string
		begin     VAddr
		dim       uint64
		writeable bool
		shared    bool
		want      bool
	}{
		{"writable range", rw, 2 * PageSize, true, true, true},
		{"crosses into unmapped", rw + PageSize, 2 * PageSize, false, true, false},
		{"read-only refuses write", ro, 10, true, true, false},
		{"read-only allows read", ro, 10, false, true, true},
		{"no user bit", priv, 8, false, false, false},
		{"outside user/shared with shared set", priv, 8, false, true, false},
		{"empty interval, shared, inside", rw, 0, false, true, true},
		{"empty interval, shared, outside", priv, 0, false, true, false},
	}
	for _, c := range cases {
		if got := mm.checkAccess(root, c.begin, c.dim, c.writeable, c.shared); got != c.want {
			t.Errorf("%s: access returned %v, expected %v", c.name, got, c.want)
		}
	}
}
