// hw models the hardware the kmux kernel drives: the interrupt
// controller, the keyboard, the text-mode video and the ATA disk with its
// bus-master DMA engine. The models are deterministic; an interrupt is a
// pending bit that stays set until the kernel acknowledges it.
package hw

// MaxIRQ is the number of interrupt pins on the controller.
const MaxIRQ = 24

// APIC is the interrupt controller: per-pin vector, mask and pending
// state.
type APIC struct {
	vect    [MaxIRQ]uint8
	masked  [MaxIRQ]bool
	pending [MaxIRQ]bool
}

// NewAPIC returns a controller with every pin masked.
func NewAPIC() *APIC {
	a := &APIC{}
	for i := range a.masked {
		a.masked[i] = true
	}
	return a
}

// SetVect programs the redirection entry for the pin.
func (a *APIC) SetVect(irq int, v uint8) { a.vect[irq] = v }

// SetMask masks or unmasks the pin.
func (a *APIC) SetMask(irq int, m bool) { a.masked[irq] = m }

// Raise latches a request on the pin; it stays pending until Ack.
func (a *APIC) Raise(irq int) { a.pending[irq] = true }

// Ack clears the pending request on the pin.
func (a *APIC) Ack(irq int) { a.pending[irq] = false }

// Vect returns the vector programmed on the pin.
func (a *APIC) Vect(irq int) uint8 { return a.vect[irq] }

// Pending returns the unmasked pending pins, highest vector first.
func (a *APIC) Pending() []int {
	var out []int
	for irq := 0; irq < MaxIRQ; irq++ {
		if a.pending[irq] && !a.masked[irq] {
			out = append(out, irq)
		}
	}
	// insertion sort by vector, descending; the list is tiny
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && a.vect[out[j]] > a.vect[out[j-1]]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
