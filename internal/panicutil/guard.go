// Package panicutil turns the abnormal ends of a fetch (panic, runtime.Goexit)
// into signals the caller can hand to every goroutine waiting on that fetch.
package panicutil

import (
	"github.com/sourcegraph/conc/panics"
)

// Guard runs functions that must not take their goroutine down silently.
// The zero value is ready to use.
type Guard struct {
	// OnPanic is called with the recovered panic before Run returns it as an error.
	OnPanic func(*panics.Recovered)

	// OnGoexit is called when the function calls runtime.Goexit.
	// Run never returns in that case, so this is the only notification.
	OnGoexit func()
}

// Run calls f and returns its error.
// A panic in f is recovered and returned as *panics.ErrRecovered.
// If f calls runtime.Goexit, OnGoexit is called and the goroutine keeps exiting.
func (g *Guard) Run(f func() error) (err error) {
	var (
		returned  bool
		recovered *panics.Recovered
	)
	defer func() {
		if returned || recovered != nil {
			return
		}
		if g.OnGoexit != nil {
			g.OnGoexit()
		}
	}()

	func() {
		defer func() {
			if v := recover(); v != nil {
				r := panics.NewRecovered(2, v)
				recovered = &r
			}
		}()
		err = f()
		returned = true
	}()

	if recovered != nil {
		if g.OnPanic != nil {
			g.OnPanic(recovered)
		}
		err = recovered.AsError()
	}
	return err
}

// Run is a shorthand for a zero Guard.
func Run(f func() error) error {
	var g Guard
	return g.Run(f)
}
