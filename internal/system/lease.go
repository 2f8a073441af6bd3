package system

import (
	"os/signal"
	"sync"
	"syscall"
)

// A Lease keeps a long-running composition alive when the controlling
// terminal goes away. While at least one lease is held SIGHUP is ignored.
type Lease struct {
	once sync.Once
}

var (
	leaseMu    sync.Mutex
	leaseCount int
)

// AcquireLease takes a background-execution lease. Release must be called on
// every exit path; it is safe to call more than once.
func AcquireLease() *Lease {
	leaseMu.Lock()
	defer leaseMu.Unlock()

	if leaseCount == 0 {
		signal.Ignore(syscall.SIGHUP)
	}
	leaseCount++
	return &Lease{}
}

// Release gives the lease back.
func (l *Lease) Release() {
	l.once.Do(func() {
		leaseMu.Lock()
		defer leaseMu.Unlock()

		leaseCount--
		if leaseCount == 0 {
			signal.Reset(syscall.SIGHUP)
		}
	})
}

// ActiveLeases reports how many leases are currently held.
func ActiveLeases() int {
	leaseMu.Lock()
	defer leaseMu.Unlock()
	return leaseCount
}
