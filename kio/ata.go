package kio

import (
	"encoding/binary"

	"github.com/arctir/kmux/hw"
	"github.com/arctir/kmux/kern"
)

// ataDesc is the state of the single ATA interface: the command in
// flight, a mutex serializing the primitives and a synchronization
// semaphore the external process signals on completion.
type ataDesc struct {
	cmd     byte
	mutex   uint32
	syncSem uint32
	// sectors still to move
	left uint32
	// where the next sector goes (or comes from)
	ptr kern.VAddr
}

// readHDN reads nsec sectors starting at lba into buf, one interrupt per
// sector. Invalid buffers abort the caller.
func (io *IO) readHDN(s *kern.Sys, buf, lba, nsec uint64) uint64 {
	d := &io.ata

	if !s.Access(kern.VAddr(buf), nsec*hw.SectorSize, true, true) {
		s.Flog(kern.LogWarn, "readhd_n: invalid parameters: %#x, %d", buf, nsec)
		s.AbortP()
	}

	if nsec == 0 {
		return 0
	}

	s.SemWait(d.mutex)
	io.startHDIn(kern.VAddr(buf), uint32(lba), uint8(nsec))
	s.SemWait(d.syncSem)
	s.SemSignal(d.mutex)
	return 0
}

func (io *IO) startHDIn(buf kern.VAddr, lba uint32, nsec uint8) {
	d := &io.ata
	d.left = uint32(nsec)
	d.ptr = buf
	d.cmd = hw.ReadSect
	io.disk.StartCmd(lba, nsec, hw.ReadSect)
}

// writeHDN writes nsec sectors starting at lba from buf. The first sector
// goes out with the command; the rest follow one interrupt at a time.
// Invalid buffers abort the caller.
func (io *IO) writeHDN(s *kern.Sys, buf, lba, nsec uint64) uint64 {
	d := &io.ata

	if !s.Access(kern.VAddr(buf), nsec*hw.SectorSize, false, true) {
		s.Flog(kern.LogWarn, "writehd_n: invalid parameters: %#x, %d", buf, nsec)
		s.AbortP()
	}

	if nsec == 0 {
		return 0
	}

	s.SemWait(d.mutex)
	io.startHDOut(s, kern.VAddr(buf), uint32(lba), uint8(nsec))
	s.SemWait(d.syncSem)
	s.SemSignal(d.mutex)
	return 0
}

func (io *IO) startHDOut(s *kern.Sys, buf kern.VAddr, lba uint32, nsec uint8) {
	d := &io.ata
	d.left = uint32(nsec)
	d.ptr = buf + hw.SectorSize
	d.cmd = hw.WriteSect
	io.disk.StartCmd(lba, nsec, hw.WriteSect)
	io.outputSect(s, buf)
}

func (io *IO) outputSect(s *kern.Sys, buf kern.VAddr) {
	var sect [hw.SectorSize]byte
	s.MemRead(buf, sect[:])
	io.disk.OutputSect(sect[:])
}

// preparePRD fills the PRD table for a transfer of nsec sectors at buf,
// splitting the buffer at page boundaries. It reports false when MaxPRD
// descriptors are not enough.
func (io *IO) preparePRD(s *kern.Sys, buf kern.VAddr, nsec uint8) bool {
	n := uint64(nsec) * hw.SectorSize
	i := 0

	var entry [8]byte
	for n > 0 && i < kern.MaxPRD {
		p := s.Translate(buf)
		r := uint64(kern.PageSize - uint64(p)%kern.PageSize)
		if r > n {
			r = n
		}
		binary.LittleEndian.PutUint32(entry[0:4], uint32(p))
		binary.LittleEndian.PutUint32(entry[4:8], uint32(r))
		s.MemWrite(io.prd+kern.VAddr(8*i), entry[:])

		n -= r
		buf += kern.VAddr(r)
		i++
	}
	if n > 0 {
		return false
	}
	// end-of-table bit on the last descriptor's count
	last := io.prd + kern.VAddr(8*(i-1))
	s.MemRead(last, entry[:])
	binary.LittleEndian.PutUint32(entry[4:8],
		binary.LittleEndian.Uint32(entry[4:8])|0x80000000)
	s.MemWrite(last, entry[:])
	return true
}

// dmaReadHDN reads nsec sectors in a single bus-master transfer; the
// transfer must fit MaxPRD pages. Invalid parameters abort the caller.
func (io *IO) dmaReadHDN(s *kern.Sys, buf, lba, nsec uint64) uint64 {
	d := &io.ata

	if nsec*hw.SectorSize > kern.MaxPRD*kern.PageSize {
		s.Flog(kern.LogWarn, "dmareadhd_n: nsec %d too large", nsec)
		s.AbortP()
	}
	if !s.Access(kern.VAddr(buf), nsec*hw.SectorSize, true, true) {
		s.Flog(kern.LogWarn, "dmareadhd_n: invalid parameters: %#x, %d", buf, nsec)
		s.AbortP()
	}

	if nsec == 0 {
		return 0
	}

	s.SemWait(d.mutex)
	io.dmaStartHDIn(s, kern.VAddr(buf), uint32(lba), uint8(nsec))
	s.SemWait(d.syncSem)
	s.SemSignal(d.mutex)
	return 0
}

func (io *IO) dmaStartHDIn(s *kern.Sys, buf kern.VAddr, lba uint32, nsec uint8) {
	d := &io.ata
	if !io.preparePRD(s, buf, nsec) {
		s.Flog(kern.LogErr, "not enough PRD descriptors")
		s.SemSignal(d.syncSem)
		return
	}

	d.cmd = hw.ReadDMA
	d.left = 1
	io.bm.Prepare(uint64(s.Translate(io.prd)), false)
	io.disk.StartCmd(lba, nsec, hw.ReadDMA)
	io.bm.Start()
}

// dmaWriteHDN writes nsec sectors in a single bus-master transfer.
// Invalid parameters abort the caller.
func (io *IO) dmaWriteHDN(s *kern.Sys, buf, lba, nsec uint64) uint64 {
	d := &io.ata

	if nsec*hw.SectorSize > kern.MaxPRD*kern.PageSize {
		s.Flog(kern.LogWarn, "dmawritehd_n: nsec %d too large", nsec)
		s.AbortP()
	}
	if !s.Access(kern.VAddr(buf), nsec*hw.SectorSize, false, true) {
		s.Flog(kern.LogWarn, "dmawritehd_n: invalid parameters: %#x, %d", buf, nsec)
		s.AbortP()
	}

	if nsec == 0 {
		return 0
	}

	s.SemWait(d.mutex)
	io.dmaStartHDOut(s, kern.VAddr(buf), uint32(lba), uint8(nsec))
	s.SemWait(d.syncSem)
	s.SemSignal(d.mutex)
	return 0
}

func (io *IO) dmaStartHDOut(s *kern.Sys, buf kern.VAddr, lba uint32, nsec uint8) {
	d := &io.ata
	if !io.preparePRD(s, buf, nsec) {
		s.Flog(kern.LogErr, "not enough PRD descriptors")
		s.SemSignal(d.syncSem)
		return
	}

	d.cmd = hw.WriteDMA
	d.left = 1
	io.bm.Prepare(uint64(s.Translate(io.prd)), true)
	io.disk.StartCmd(lba, nsec, hw.WriteDMA)
	io.bm.Start()
}

// externHD is the disk external process, one interrupt per sector in PIO
// mode and a single completion interrupt in DMA mode. The counter is
// decremented before the opcode switch: when a WRITE interrupt finds it at
// zero, the last sector has already been sent and nothing more goes out.
func (io *IO) externHD(s *kern.Sys, _ uint64) {
	d := &io.ata
	for {
		d.left--
		io.disk.Ack()
		switch d.cmd {
		case hw.ReadSect:
			var sect [hw.SectorSize]byte
			io.disk.InputSect(sect[:])
			s.MemWrite(d.ptr, sect[:])
			d.ptr += hw.SectorSize
		case hw.WriteSect:
			if d.left != 0 {
				io.outputSect(s, d.ptr)
				d.ptr += hw.SectorSize
			}
		case hw.ReadDMA, hw.WriteDMA:
			io.bm.Ack()
		}
		if d.left == 0 {
			s.SemSignal(d.syncSem)
		}
		s.WFI()
	}
}

// hdInit creates the ATA semaphores, locates the bus master, allocates
// the PRD table and creates the disk external process.
func (io *IO) hdInit(s *kern.Sys) bool {
	d := &io.ata

	if d.mutex = s.SemInit(1); d.mutex == kern.InvalidID {
		s.Flog(kern.LogErr, "hd: cannot create mutex")
		return false
	}
	if d.syncSem = s.SemInit(0); d.syncSem == kern.InvalidID {
		s.Flog(kern.LogErr, "hd: cannot create the sync semaphore")
		return false
	}

	bus, dev, fun, ok := io.bm.Find()
	if !ok {
		s.Flog(kern.LogWarn, "hd: bus master not found")
		return false
	}
	s.Flog(kern.LogInfo, "bm: %02x:%02x.%d", bus, dev, fun)
	io.bm.Init(bus, dev, fun)

	io.prd = io.alloc(s, kern.MaxPRD*8)
	if io.prd == 0 {
		s.Flog(kern.LogErr, "hd: cannot allocate the PRD table")
		return false
	}

	if s.ActivatePE(io.externHD, 0, kern.MinExtPrio+kern.IntrTypeHD, kern.LevelSystem, hdIRQ) == kern.InvalidID {
		s.Flog(kern.LogErr, "hd: cannot create the disk process")
		return false
	}

	io.disk.EnableIntr()
	return true
}
