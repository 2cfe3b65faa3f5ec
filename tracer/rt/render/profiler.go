package render

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Frame phases timed by FrameLoop.
const (
	PhaseResize   = "resize"
	PhaseUpload   = "upload"
	PhaseDispatch = "dispatch"
	PhaseRelease  = "release"
)

// Profiler keeps the last and accumulated CPU time per frame phase.
type Profiler struct {
	last   map[string]time.Duration
	total  map[string]time.Duration
	starts map[string]time.Time
	counts map[string]int
	order  []string
	now    func() time.Time
}

func NewProfiler() *Profiler {
	return &Profiler{
		last:   make(map[string]time.Duration),
		total:  make(map[string]time.Duration),
		starts: make(map[string]time.Time),
		counts: make(map[string]int),
		now:    time.Now,
	}
}

func (p *Profiler) Begin(phase string) {
	if _, seen := p.total[phase]; !seen {
		p.order = append(p.order, phase)
		p.total[phase] = 0
	}
	p.starts[phase] = p.now()
}

func (p *Profiler) End(phase string) {
	start, ok := p.starts[phase]
	if !ok {
		return
	}
	delete(p.starts, phase)
	d := p.now().Sub(start)
	p.last[phase] = d
	p.total[phase] += d
}

func (p *Profiler) SetCount(name string, n int) {
	p.counts[name] = n
}

func (p *Profiler) Last(phase string) time.Duration  { return p.last[phase] }
func (p *Profiler) Total(phase string) time.Duration { return p.total[phase] }
func (p *Profiler) Count(name string) int            { return p.counts[name] }

// Phases returns the timed phases in first-seen order.
func (p *Profiler) Phases() []string {
	return append([]string(nil), p.order...)
}

func (p *Profiler) String() string {
	var sb strings.Builder
	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.order {
		ms := float64(p.last[name].Microseconds()) / 1000.0
		fmt.Fprintf(&sb, "  %-10s: %.2f ms\n", name, ms)
	}

	keys := make([]string, 0, len(p.counts))
	for k := range p.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		sb.WriteString("Stats:\n")
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %-10s: %d\n", k, p.counts[k])
	}
	return sb.String()
}
