package progs

import "github.com/arctir/kmux/kern"

func init() {
	register(Program{
		Name:  "barrier",
		Short: "Two processes meeting at a timed barrier, twice.",
		Body:  barrierMain,
	})
}

type barrierDemo struct {
	u    *UserLib
	id   uint32
	done uint32
}

func (bd *barrierDemo) runner(s *kern.Sys, who uint64) {
	for round := 1; round <= 2; round++ {
		ok := s.Barrier(bd.id)
		bd.u.Printf(s, "proc %d round %d: %v\n", who, round, ok)
	}
	s.SemSignal(bd.done)
	s.TerminateP()
}

func barrierBody(s *kern.Sys, _ uint64) {
	bd := &barrierDemo{
		u:    NewUserLib(s),
		done: s.SemInit(0),
	}
	bd.id = s.BarrierCreate(2, 100)

	s.ActivateP(bd.runner, 1, 4, kern.LevelUser)
	s.ActivateP(bd.runner, 2, 4, kern.LevelUser)
	s.SemWait(bd.done)
	s.SemWait(bd.done)
	bd.u.Printf(s, "both rounds complete\n")
	s.TerminateP()
}

func barrierMain(s *kern.Sys, _ uint64) {
	s.ActivateP(barrierBody, 0, 5, kern.LevelUser)
	s.TerminateP()
}
