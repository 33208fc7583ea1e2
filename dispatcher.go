package astivoice

import (
	"sync"

	"github.com/asticode/go-astilog"
	"github.com/pkg/errors"
)

// Listener handles an event
type Listener func(e Event) error

// dispatcher delivers events to listeners in a single goroutine, in the order they were dispatched.
// dispatch never blocks so that it can be called while holding a lock.
type dispatcher struct {
	c      *sync.Cond
	closed bool
	es     []Event
	ls     map[string][]Listener
	m      *sync.Mutex // Locks closed, es and ls
}

func newDispatcher() (d *dispatcher) {
	d = &dispatcher{
		ls: make(map[string][]Listener),
		m:  &sync.Mutex{},
	}
	d.c = sync.NewCond(d.m)
	go d.loop()
	return
}

func (d *dispatcher) addListener(name string, l Listener) {
	d.m.Lock()
	defer d.m.Unlock()
	d.ls[name] = append(d.ls[name], l)
}

func (d *dispatcher) close() {
	d.m.Lock()
	defer d.m.Unlock()
	d.closed = true
	d.c.Signal()
}

func (d *dispatcher) dispatch(e Event) {
	d.m.Lock()
	defer d.m.Unlock()
	if d.closed {
		return
	}
	d.es = append(d.es, e)
	d.c.Signal()
}

func (d *dispatcher) loop() {
	for {
		// Wait for events
		d.m.Lock()
		for len(d.es) == 0 && !d.closed {
			d.c.Wait()
		}

		// Dispatcher is closed
		if d.closed {
			d.m.Unlock()
			return
		}

		// Pop event
		e := d.es[0]
		d.es = d.es[1:]
		ls := append([]Listener{}, d.ls[e.Name]...)
		d.m.Unlock()

		// Loop through listeners
		for _, l := range ls {
			if err := l(e); err != nil {
				astilog.Error(errors.Wrapf(err, "astivoice: handling %s event failed", e.Name))
			}
		}
	}
}
