package progs

import "github.com/arctir/kmux/kern"

func init() {
	register(Program{
		Name:  "notes",
		Short: "A tiny note store on the raw disk; block 0 is the directory.",
		Body:  notesMain,
	})
}

// The notes program keeps one note per sector, with sector 0 holding the
// note count in its first byte. That layout is this program's own
// convention, not something the disk driver knows about.

const notesMax = 16

func notesBody(s *kern.Sys, _ uint64) {
	u := NewUserLib(s)
	dir := u.Alloc(s, kern.BlockSize)
	sect := u.Alloc(s, kern.BlockSize)

	s.ReadHDN(dir, 0, 1)
	var count [1]byte
	s.MemRead(dir, count[:])
	n := count[0]
	u.Printf(s, "%d notes on disk\n", n)

	for i := byte(0); i < n; i++ {
		s.ReadHDN(sect, uint32(i)+1, 1)
		b := make([]byte, kern.BlockSize)
		s.MemRead(sect, b)
		end := 0
		for end < len(b) && b[end] != 0 {
			end++
		}
		u.Printf(s, "%2d: %s\n", i, b[:end])
	}

	for {
		u.Printf(s, "note> ")
		line, got := u.ReadLine(s, kern.BlockSize-1)
		if got == 0 || line == "q" {
			break
		}
		if n >= notesMax {
			u.Printf(s, "directory full\n")
			break
		}
		b := make([]byte, kern.BlockSize)
		copy(b, line)
		s.MemWrite(sect, b)
		s.WriteHDN(sect, uint32(n)+1, 1)
		n++
		count[0] = n
		s.MemWrite(dir, count[:])
		s.WriteHDN(dir, 0, 1)
		u.Printf(s, "saved as note %d\n", n-1)
	}

	u.Free(s, sect)
	u.Free(s, dir)
	s.TerminateP()
}

func notesMain(s *kern.Sys, _ uint64) {
	s.ActivateP(notesBody, 0, 5, kern.LevelUser)
	s.TerminateP()
}
