package monitor

import (
	"fmt"
	"math"
	"time"

	"github.com/nsf/termbox-go"
)

const (
	colDef    = termbox.ColorDefault
	colWhite  = termbox.ColorWhite
	colGreen  = termbox.ColorGreen
	colYellow = termbox.ColorYellow
	colCyan   = termbox.ColorCyan
)

// Console runs an interactive terminal dashboard showing a driver's
// progress until it reaches a terminal status or the user quits.
type Console struct {
	driver  Driver
	history []Progress
	maxHist int
	quit    bool
}

// NewConsole creates a console dashboard for driver, keeping a rolling
// window of maxHistory snapshots for the cost/gradient trend plots.
func NewConsole(driver Driver, maxHistory int) *Console {
	if maxHistory <= 0 {
		maxHistory = 200
	}
	return &Console{driver: driver, maxHist: maxHistory}
}

// Run initializes termbox and redraws the dashboard at pollInterval,
// calling step once per tick to advance the driver before redrawing.
// step returns done=true once the driver has reached a terminal
// status; Run then returns. The user can also quit early with 'q' or
// Esc, in which case step is simply no longer called. Driving and
// drawing share this one goroutine, so step and Snapshot never race
// over the driver's state.
func (c *Console) Run(pollInterval time.Duration, step func() (done bool, err error)) (string, error) {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	if err := termbox.Init(); err != nil {
		return "", fmt.Errorf("monitor: initializing console: %w", err)
	}
	defer termbox.Close()
	termbox.SetInputMode(termbox.InputEsc)

	eventQueue := make(chan termbox.Event)
	go func() {
		for {
			eventQueue <- termbox.PollEvent()
		}
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := Snapshot(c.driver)
	c.record(last)
	c.draw(last)

	for !c.quit {
		select {
		case ev := <-eventQueue:
			switch ev.Type {
			case termbox.EventKey:
				if ev.Key == termbox.KeyEsc || ev.Ch == 'q' {
					c.quit = true
				}
			case termbox.EventResize:
				c.draw(last)
			}
		case <-ticker.C:
			done, err := step()
			if err != nil {
				return last.Status, err
			}
			last = Snapshot(c.driver)
			c.record(last)
			c.draw(last)
			if done {
				return last.Status, nil
			}
		}
	}
	return last.Status, nil
}

func (c *Console) record(p Progress) {
	c.history = append(c.history, p)
	if len(c.history) > c.maxHist {
		c.history = c.history[len(c.history)-c.maxHist:]
	}
}

func (c *Console) draw(p Progress) {
	_ = termbox.Clear(colDef, colDef)

	printTB(0, 0, colCyan, colDef, "TiPi deconvolution monitor")
	printTB(0, 1, colDef, colDef, "'q' or Esc to quit.")
	printTB(0, 2, colDef, colDef, "----------------------------------------------------")

	printTB(0, 4, colWhite, colDef, fmt.Sprintf("status     %s", p.Status))
	printTB(0, 5, colWhite, colDef, fmt.Sprintf("iteration  %d", p.Iteration))
	printTB(0, 6, colWhite, colDef, fmt.Sprintf("cost       %.6e", p.Cost))
	printTB(0, 7, colWhite, colDef, fmt.Sprintf("||g||      %.6e", p.GradientNorm))

	c.drawTrend(9, "cost trend ", func(pt Progress) float64 { return pt.Cost })
	c.drawTrend(12, "||g|| trend", func(pt Progress) float64 { return pt.GradientNorm })

	termbox.Flush()
}

// drawTrend renders a simple sparkline of log10(value) over the
// recorded history, since cost and gradient norm both span orders of
// magnitude over a run.
func (c *Console) drawTrend(y int, label string, value func(Progress) float64) {
	printTB(0, y, colYellow, colDef, label)
	if len(c.history) < 2 {
		return
	}

	width := 60
	start := 0
	if len(c.history) > width {
		start = len(c.history) - width
	}
	window := c.history[start:]

	minV, maxV := math.Inf(1), math.Inf(-1)
	logs := make([]float64, len(window))
	for i, pt := range window {
		v := value(pt)
		l := math.Log10(math.Max(v, 1e-300))
		logs[i] = l
		if l < minV {
			minV = l
		}
		if l > maxV {
			maxV = l
		}
	}
	spread := maxV - minV
	if spread < 1e-12 {
		spread = 1
	}

	for i, l := range logs {
		ratio := (l - minV) / spread
		height := int(ratio * 7)
		barChar := rune(int('▁') + height)
		termbox.SetCell(len(label)+1+i, y, barChar, colGreen, colDef)
	}
}

func printTB(x, y int, fg, bg termbox.Attribute, msg string) {
	for _, ch := range msg {
		termbox.SetCell(x, y, ch, fg, bg)
		x++
	}
}
