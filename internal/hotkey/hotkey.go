// Package hotkey delivers global hotkey presses to the daemon. The capture
// mechanism is platform specific; key-name parsing and binding state are
// shared. An unrecognized key name disables the hotkey rather than failing
// the daemon.
package hotkey

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// pressBuffer bounds undelivered presses. The controller drains quickly;
// anything beyond this is a key held down or a stalled loop, and extra
// presses carry no information.
const pressBuffer = 8

// vkF1 is the Windows virtual-key code for F1; F2-F12 follow contiguously.
// The Windows layout is the canonical key space on all platforms; letters
// and digits map to their ASCII uppercase values.
const vkF1 = 0x70

// ParseKeyName maps a configured key name to a virtual-key code.
// Accepted: F1-F12 and single alphanumeric characters, case-insensitive.
func ParseKeyName(name string) (uint32, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if len(key) >= 2 && key[0] == 'F' {
		n, err := strconv.Atoi(key[1:])
		if err == nil && n >= 1 && n <= 12 {
			return vkF1 + uint32(n-1), true
		}
		return 0, false
	}
	if len(key) == 1 {
		c := key[0]
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return uint32(c), true
		}
	}
	return 0, false
}

// binder holds the cross-platform binding state: the currently armed
// virtual-key code and the press delivery channel. A zero code means the
// hotkey is disabled.
type binder struct {
	logger  *zap.Logger
	presses chan time.Time
	vk      atomic.Uint32
}

func newBinder(logger *zap.Logger) binder {
	return binder{
		logger:  logger,
		presses: make(chan time.Time, pressBuffer),
	}
}

// Bind arms the hotkey named by the configuration. Unrecognized names
// disable the hotkey and return an error the caller may log; the previous
// binding does not survive a failed Bind.
func (b *binder) Bind(name string) error {
	vk, ok := ParseKeyName(name)
	if !ok {
		b.vk.Store(0)
		return fmt.Errorf("unrecognized hotkey %q: hotkey disabled", name)
	}
	b.vk.Store(vk)
	b.logger.Info("hotkey bound", zap.String("key", strings.ToUpper(strings.TrimSpace(name))))
	return nil
}

// Unbind disables the hotkey.
func (b *binder) Unbind() {
	b.vk.Store(0)
}

// Presses returns the channel on which press timestamps are delivered.
func (b *binder) Presses() <-chan time.Time {
	return b.presses
}

// deliver hands a press to the consumer without ever blocking the
// capture thread. Excess presses are dropped.
func (b *binder) deliver(ts time.Time) {
	select {
	case b.presses <- ts:
	default:
	}
}
