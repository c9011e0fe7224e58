package browser

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// maxDisplays bounds the search for a free display above the base.
const maxDisplays = 64

// displayPool hands out X display numbers. Every headful manager gets its
// own display, so one site's Close never tears down another's screen.
type displayPool struct {
	mu   sync.Mutex
	used map[int]bool
	// held reports a display owned outside this process.
	held func(n int) bool
}

var displays = &displayPool{used: make(map[int]bool), held: xLockExists}

func (p *displayPool) acquire(base int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := base; n < base+maxDisplays; n++ {
		if p.used[n] || p.held(n) {
			continue
		}
		p.used[n] = true
		return n, nil
	}
	return 0, fmt.Errorf("no free display in :%d-:%d", base, base+maxDisplays-1)
}

func (p *displayPool) release(n int) {
	p.mu.Lock()
	delete(p.used, n)
	p.mu.Unlock()
}

func xLockExists(n int) bool {
	_, err := os.Stat("/tmp/.X" + strconv.Itoa(n) + "-lock")
	return err == nil
}

// parseDisplay turns ":99" (or ":99.0") into 99.
func parseDisplay(s string) (int, error) {
	num, _, _ := strings.Cut(strings.TrimPrefix(s, ":"), ".")
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid display %q", s)
	}
	return n, nil
}

// startXvfb launches an Xvfb virtual display sized to the viewport on the
// first free display at or above the configured one.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}

	base, err := parseDisplay(m.cfg.XvfbDisplay)
	if err != nil {
		return err
	}
	n, err := displays.acquire(base)
	if err != nil {
		return err
	}

	display := ":" + strconv.Itoa(n)
	screen := strconv.Itoa(m.cfg.Viewport.Width) + "x" + strconv.Itoa(m.cfg.Viewport.Height) + "x24"
	cmd := exec.Command("Xvfb", display, "-screen", "0", screen, "-ac")
	if err := cmd.Start(); err != nil {
		displays.release(n)
		return fmt.Errorf("start xvfb: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	// Xvfb exits at once when the display is taken.
	select {
	case err := <-exited:
		displays.release(n)
		return fmt.Errorf("xvfb %s exited: %v", display, err)
	case <-time.After(500 * time.Millisecond):
	}

	m.xvfb = cmd
	m.xvfbExited = exited
	m.display = display
	m.displayNum = n
	m.cfg.Logger.Info("browser: xvfb started", "display", display, "screen", screen, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if m.xvfb.Process != nil {
		m.xvfb.Process.Kill()
		<-m.xvfbExited
	}
	displays.release(m.displayNum)
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.display)
	m.xvfb = nil
	m.xvfbExited = nil
	m.display = ""
}
