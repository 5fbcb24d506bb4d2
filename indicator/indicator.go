package indicator

import (
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/connectivity"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

const defaultBlinkInterval = 500 * time.Millisecond

// Pin is the part of a GPIO pin the indicator drives.
type Pin interface {
	Out(l gpio.Level) error
}

type Config struct {
	Pin           Pin
	Reporter      connectivity.Reporter
	BlinkInterval time.Duration
	Logger        Logger
}

// Indicator mirrors the connectivity state on a LED. It blinks while
// associating, is lit while online and dark while offline.
type Indicator struct {
	log      Logger
	pin      Pin
	reporter connectivity.Reporter
	blink    time.Duration
	client   *connectivity.Client
	done     chan struct{}
	wg       sync.WaitGroup
}

func New(config *Config) *Indicator {
	i := &Indicator{
		pin:      config.Pin,
		reporter: config.Reporter,
		blink:    config.BlinkInterval,
		done:     make(chan struct{}),
	}

	if i.blink <= 0 {
		i.blink = defaultBlinkInterval
	}

	if config.Logger != nil {
		i.log = config.Logger
	} else {
		i.log = noopLogger{}
	}

	return i
}

// GpioPin initializes the host drivers and looks up a pin like "GPIO2".
func GpioPin(name string) (gpio.PinIO, error) {
	_, err := host.Init()
	if err != nil {
		return nil, errors.Errorf("could not initialize host drivers: %v", err)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, errors.Errorf("could not find pin %v", name)
	}

	return pin, nil
}

func (i *Indicator) Start() error {
	err := i.pin.Out(gpio.Low)
	if err != nil {
		return errors.Errorf("could not drive pin: %v", err)
	}

	i.client = i.reporter.Subscribe()

	i.wg.Add(1)
	go i.run()

	return nil
}

func (i *Indicator) Stop() error {
	close(i.done)
	i.wg.Wait()

	i.client.Cancel()

	err := i.pin.Out(gpio.Low)
	if err != nil {
		return errors.Errorf("could not turn off LED: %v", err)
	}

	return nil
}

func (i *Indicator) run() {
	defer i.wg.Done()

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
		level  gpio.Level
	)

	stopBlinking := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}

	defer stopBlinking()

	set := func(l gpio.Level) {
		level = l

		err := i.pin.Out(l)
		if err != nil {
			i.log.Warnf("Could not drive LED: %v", err)
		}
	}

	for {
		select {
		case state := <-i.client.Updates:
			i.log.Debugf("Connectivity changed to %v", state)

			stopBlinking()

			switch state {
			case connectivity.Associating:
				set(gpio.High)
				ticker = time.NewTicker(i.blink)
				tick = ticker.C
			case connectivity.Online:
				set(gpio.High)
			default:
				set(gpio.Low)
			}
		case <-tick:
			set(!level)
		case <-i.done:
			return
		}
	}
}
