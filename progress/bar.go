package progress

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar renders a terminal progress bar. It spins until SetTotal is called,
// since the bulk producer only learns the total after paging.
type Bar struct {
	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	done int
}

// NewBar creates a bar writing to w (stderr when nil).
func NewBar(description string, w io.Writer) *Bar {
	if w == nil {
		w = os.Stderr
	}
	return &Bar{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWidth(50),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
			progressbar.OptionSetWriter(w),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// SetTotal switches the spinner to a sized bar. The spinner counts modulo its
// width, so the count is replayed from scratch.
func (b *Bar) SetTotal(total int) {
	if total < 1 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bar.ChangeMax(total)
	b.bar.Reset()
	_ = b.bar.Add(b.done)
}

func (b *Bar) Increment() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.done++
	_ = b.bar.Add(1)
}

// Finish completes the bar and clears it.
func (b *Bar) Finish() error {
	return b.bar.Finish()
}

// Current returns the number of completions rendered so far.
func (b *Bar) Current() int {
	return int(b.bar.State().CurrentNum)
}
