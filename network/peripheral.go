package network

import (
	"sync"

	"github.com/go-errors/errors"
)

// Peripheral is the ownership token of a single radio. Only one association
// or handle can hold the radio at any time.
type Peripheral struct {
	mu    sync.Mutex
	radio Radio
	taken bool
}

func NewPeripheral(radio Radio) *Peripheral {
	return &Peripheral{
		radio: radio,
	}
}

func (p *Peripheral) take() (Radio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.taken {
		return nil, errors.New("radio is already taken")
	}

	p.taken = true

	return p.radio, nil
}

func (p *Peripheral) give() {
	p.mu.Lock()
	p.taken = false
	p.mu.Unlock()
}

// Taken reports whether an association or handle currently holds the radio.
func (p *Peripheral) Taken() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.taken
}
