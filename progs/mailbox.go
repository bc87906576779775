package progs

import "github.com/arctir/kmux/kern"

func init() {
	register(Program{
		Name:  "mailbox",
		Short: "Producer and consumer exchanging heap-allocated messages through a one-slot mailbox.",
		Body:  mailboxMain,
	})
}

// mailbox is a one-slot rendezvous: the producer allocates a message in
// the user heap and deposits its address; the consumer picks it up and
// frees it. Two synchronization semaphores keep the slot alternating.
type mailbox struct {
	u *UserLib

	syncRead  uint32
	syncWrite uint32
	slot      kern.VAddr
	size      uint64
}

const mailboxRounds = 5

func (mb *mailbox) producer(s *kern.Sys, _ uint64) {
	for i := 0; i < mailboxRounds; i++ {
		msg := []byte{byte('a' + i), byte('0' + i), '\n'}
		buf := mb.u.Alloc(s, uint64(len(msg)))
		s.MemWrite(buf, msg)

		s.SemWait(mb.syncWrite)
		mb.slot = buf
		mb.size = uint64(len(msg))
		s.SemSignal(mb.syncRead)
	}
	s.TerminateP()
}

func (mb *mailbox) consumer(s *kern.Sys, _ uint64) {
	for i := 0; i < mailboxRounds; i++ {
		s.SemWait(mb.syncRead)
		buf, n := mb.slot, mb.size
		s.SemSignal(mb.syncWrite)

		s.WriteConsole(buf, n)
		mb.u.Free(s, buf)
	}
	s.TerminateP()
}

func mailboxBody(s *kern.Sys, _ uint64) {
	mb := &mailbox{
		u:         NewUserLib(s),
		syncRead:  s.SemInit(0),
		syncWrite: s.SemInit(1),
	}
	s.ActivateP(mb.producer, 0, 4, kern.LevelUser)
	s.ActivateP(mb.consumer, 0, 4, kern.LevelUser)
	s.TerminateP()
}

func mailboxMain(s *kern.Sys, _ uint64) {
	s.ActivateP(mailboxBody, 0, 5, kern.LevelUser)
	s.TerminateP()
}
