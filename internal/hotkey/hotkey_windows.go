//go:build windows

package hotkey

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/mgrindstad/replayd/internal/domain"
)

var (
	user32                  = syscall.NewLazyDLL("user32.dll")
	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")

	kernel32               = syscall.NewLazyDLL("kernel32.dll")
	procGetCurrentThreadId = kernel32.NewProc("GetCurrentThreadId")
)

const (
	whKeyboardLL  = 13
	wmKeyDown     = 0x0100
	wmSysKeyDown  = 0x0104
	wmQuit        = 0x0012
	llkhfInjected = 0x00000010

	hookInstallTimeout = 5 * time.Second
)

// kbdLLHookStruct mirrors KBDLLHOOKSTRUCT.
type kbdLLHookStruct struct {
	VKCode    uint32
	ScanCode  uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// msg mirrors MSG for the GetMessageW pump.
type msg struct {
	HWND    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// Listener captures global key presses with a low-level keyboard hook.
// The hook lives on a dedicated OS thread running a message pump; Bind and
// Unbind swap the armed key atomically without reinstalling the hook.
type Listener struct {
	binder
	threadID  atomic.Uint32
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

var _ domain.HotkeyBinder = (*Listener)(nil)

// NewListener returns an unstarted listener.
func NewListener(logger *zap.Logger) *Listener {
	return &Listener{
		binder: newBinder(logger),
		done:   make(chan struct{}),
	}
}

// Start installs the keyboard hook. Injected key events are ignored so
// synthetic input cannot trigger flushes.
func (l *Listener) Start() error {
	var err error
	l.startOnce.Do(func() {
		errCh := make(chan error, 1)
		go l.pump(errCh)
		select {
		case err = <-errCh:
		case <-time.After(hookInstallTimeout):
			err = errors.New("timed out installing keyboard hook")
		}
	})
	return err
}

// Close tears down the hook thread and waits for it to exit.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		tid := l.threadID.Load()
		if tid == 0 {
			return
		}
		procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
		<-l.done
	})
}

// pump owns the hook for its whole lifetime. Low-level keyboard hooks are
// delivered to the installing thread's message queue, so the thread must
// stay locked and pumping until shutdown.
func (l *Listener) pump(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	callback := syscall.NewCallback(l.hookProc)
	hook, _, callErr := procSetWindowsHookExW.Call(whKeyboardLL, callback, 0, 0)
	if hook == 0 {
		errCh <- fmt.Errorf("SetWindowsHookExW: %w", callErr)
		return
	}
	defer procUnhookWindowsHookEx.Call(hook)

	tid, _, _ := procGetCurrentThreadId.Call()
	l.threadID.Store(uint32(tid))
	errCh <- nil

	l.logger.Info("keyboard hook installed")
	var m msg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) <= 0 {
			return
		}
	}
}

func (l *Listener) hookProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) >= 0 && (wParam == wmKeyDown || wParam == wmSysKeyDown) {
		info := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
		target := l.vk.Load()
		if target != 0 && info.VKCode == target && info.Flags&llkhfInjected == 0 {
			l.deliver(time.Now())
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}
