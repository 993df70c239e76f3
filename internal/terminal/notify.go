package terminal

import (
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	failure = color.New(color.FgRed, color.Bold)
	info    = color.New(color.FgCyan)
)

// Notifier prints notices, failures in red. Safe for concurrent use.
type Notifier struct {
	mu  sync.Mutex
	out io.Writer
}

func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{out: out}
}

func (n *Notifier) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := info
	if strings.Contains(strings.ToLower(msg), "failed") || strings.Contains(msg, "not found") {
		c = failure
	}
	c.Fprintln(n.out, msg)
}
