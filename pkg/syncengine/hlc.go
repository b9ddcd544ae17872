// Package syncengine implements the sync core described by spec.md §4.6:
// a Hybrid Logical Clock, the shared/device-owned model classification, the
// Transaction Manager every library write passes through, a peer log,
// batched sync, a NetworkTransport seam, HLC-ordered apply with conflict
// resolution, and per-peer backfill with persisted last-seen timestamps.
package syncengine

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// HLC is a Hybrid Logical Clock value: physical time clamped to be
// monotonically non-decreasing, a counter that breaks ties within the same
// physical millisecond, and the device that minted it (the final
// tiebreaker, guaranteeing a total order across devices that mint the same
// physical_ms/counter pair).
type HLC struct {
	PhysicalMS int64
	Counter    uint32
	Device     string
}

// Compare returns -1, 0, or 1 according to whether h sorts before, equal to,
// or after other, ordering first by physical time, then counter, then
// device id.
func (h HLC) Compare(other HLC) int {
	if h.PhysicalMS != other.PhysicalMS {
		if h.PhysicalMS < other.PhysicalMS {
			return -1
		}
		return 1
	}
	if h.Counter != other.Counter {
		if h.Counter < other.Counter {
			return -1
		}
		return 1
	}
	return strings.Compare(h.Device, other.Device)
}

// Before reports whether h sorts strictly before other.
func (h HLC) Before(other HLC) bool { return h.Compare(other) < 0 }

// After reports whether h sorts strictly after other.
func (h HLC) After(other HLC) bool { return h.Compare(other) > 0 }

// IsZero reports whether h is the zero HLC, used as a "nothing applied yet"
// sentinel by watermarks.
func (h HLC) IsZero() bool { return h.PhysicalMS == 0 && h.Counter == 0 && h.Device == "" }

// String renders the HLC in "physical_ms.counter@device" form, a stable
// sortable-by-eye representation suitable for log lines and as a primary
// key component in the peer log.
func (h HLC) String() string {
	return fmt.Sprintf("%d.%d@%s", h.PhysicalMS, h.Counter, h.Device)
}

// ParseHLC parses the String() representation back into an HLC.
func ParseHLC(s string) (HLC, error) {
	atIdx := strings.LastIndexByte(s, '@')
	if atIdx < 0 {
		return HLC{}, fmt.Errorf("syncengine: malformed hlc %q: missing device", s)
	}
	device := s[atIdx+1:]
	rest := s[:atIdx]
	dotIdx := strings.IndexByte(rest, '.')
	if dotIdx < 0 {
		return HLC{}, fmt.Errorf("syncengine: malformed hlc %q: missing counter", s)
	}
	physical, err := strconv.ParseInt(rest[:dotIdx], 10, 64)
	if err != nil {
		return HLC{}, fmt.Errorf("syncengine: malformed hlc %q: %w", s, err)
	}
	counter, err := strconv.ParseUint(rest[dotIdx+1:], 10, 32)
	if err != nil {
		return HLC{}, fmt.Errorf("syncengine: malformed hlc %q: %w", s, err)
	}
	return HLC{PhysicalMS: physical, Counter: uint32(counter), Device: device}, nil
}

// Clock generates monotonic HLC values for one library on one device. It is
// safe for concurrent use.
type Clock struct {
	mu     sync.Mutex
	last   HLC
	device string
	now    func() time.Time
}

// NewClock constructs a Clock that mints values attributed to device.
func NewClock(device string) *Clock {
	return &Clock{device: device, now: time.Now}
}

// Next mints a new HLC: physical time is clamped to be at least the last
// minted value's physical time (so a local clock that jumps backward
// doesn't produce a value that sorts earlier than one already minted), and
// the counter increments on a tie so two calls within the same millisecond
// remain totally ordered.
func (c *Clock) Next() HLC {
	c.mu.Lock()
	defer c.mu.Unlock()

	physical := c.now().UnixMilli()
	if physical <= c.last.PhysicalMS {
		physical = c.last.PhysicalMS
		c.last.Counter++
	} else {
		c.last.Counter = 0
	}
	c.last.PhysicalMS = physical
	c.last.Device = c.device
	return c.last
}

// Receive advances the clock using an HLC observed from a remote peer, per
// the standard HLC merge rule: the local clock adopts whichever of its own
// last value and the received value has the later physical time, then
// mints a value strictly after both. This keeps the local clock from ever
// minting a value that would sort before one it has already seen.
func (c *Clock) Receive(remote HLC) HLC {
	c.mu.Lock()
	defer c.mu.Unlock()

	physicalNow := c.now().UnixMilli()
	physical := physicalNow
	if c.last.PhysicalMS > physical {
		physical = c.last.PhysicalMS
	}
	if remote.PhysicalMS > physical {
		physical = remote.PhysicalMS
	}

	switch {
	case physical == c.last.PhysicalMS && physical == remote.PhysicalMS:
		if remote.Counter >= c.last.Counter {
			c.last.Counter = remote.Counter + 1
		} else {
			c.last.Counter++
		}
	case physical == c.last.PhysicalMS:
		c.last.Counter++
	case physical == remote.PhysicalMS:
		c.last.Counter = remote.Counter + 1
	default:
		c.last.Counter = 0
	}
	c.last.PhysicalMS = physical
	c.last.Device = c.device
	return c.last
}
