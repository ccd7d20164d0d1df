package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// progress redraws a single status line on an interactive terminal. On pipes
// and files it stays silent so scripted output is not polluted.
type progress struct {
	mu      sync.Mutex
	w       io.Writer
	total   int
	enabled bool
	width   int
}

func newProgress(w io.Writer, total int) *progress {
	return &progress{w: w, total: total, enabled: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *progress) Update(generation int, best float64, stall int) {
	if p == nil || !p.enabled {
		return
	}
	line := fmt.Sprintf("gen %s/%s best=%s stall=%d",
		humanize.Comma(int64(generation)),
		humanize.Comma(int64(p.total)),
		commaf(best),
		stall,
	)
	p.mu.Lock()
	defer p.mu.Unlock()
	pad := ""
	if len(line) < p.width {
		pad = strings.Repeat(" ", p.width-len(line))
	}
	p.width = len(line)
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
}

func (p *progress) Done() {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.width > 0 {
		fmt.Fprintln(p.w)
		p.width = 0
	}
}
