package progs

import "github.com/arctir/kmux/kern"

func init() {
	register(Program{
		Name:  "hello",
		Short: "Asks for a name on the console and greets it.",
		Body:  helloMain,
	})
}

const helloNameCap = 80

func helloBody(s *kern.Sys, _ uint64) {
	u := NewUserLib(s)
	var name string
	for {
		u.Printf(s, "Hi, what is your name? ")
		n := uint64(0)
		name, n = u.ReadLine(s, helloNameCap+1)
		if n == helloNameCap+1 {
			u.Printf(s, "Too long! Max %d characters\n", helloNameCap)
			continue
		}
		break
	}
	u.Printf(s, "Hi %s, nice to meet you!\n", name)

	s.TerminateP()
}

func helloMain(s *kern.Sys, _ uint64) {
	s.ActivateP(helloBody, 0, 5, kern.LevelUser)
	s.TerminateP()
}
