package progs

import "github.com/arctir/kmux/kern"

func init() {
	register(Program{
		Name:  "debugmem",
		Short: "Shows that creating and terminating a process gives every byte back.",
		Body:  debugmemMain,
	})
}

func debugmemBody(s *kern.Sys, _ uint64) {
	u := NewUserLib(s)

	m1 := s.GetMemInfo()
	u.Printf(s, "before activate_p: heap %d, frames %d\n", m1.HeapFree, m1.FreeFrames)
	s.ActivateP(func(s *kern.Sys, _ uint64) {
		m := s.GetMemInfo()
		u.Printf(s, "child:             heap %d, frames %d\n", m.HeapFree, m.FreeFrames)
		s.TerminateP()
	}, 0, 4, kern.LevelUser)
	s.Delay(10)
	m2 := s.GetMemInfo()
	u.Printf(s, "after terminate:   heap %d, frames %d\n", m2.HeapFree, m2.FreeFrames)

	s.TerminateP()
}

func debugmemMain(s *kern.Sys, _ uint64) {
	s.ActivateP(debugmemBody, 0, 5, kern.LevelUser)
	s.TerminateP()
}
