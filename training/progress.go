package training

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// ProgressBar renders a single-line training progress display with a rate
// and ETA estimate, in the style of tqdm.
type ProgressBar struct {
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	metrics     map[string]float64
	out         io.Writer
}

// NewProgressBar creates a bar over total steps writing to out.
func NewProgressBar(description string, total int, out io.Writer) *ProgressBar {
	return &ProgressBar{
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       40,
		metrics:     make(map[string]float64),
		out:         out,
	}
}

// Update advances the bar and replaces the displayed metrics.
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	for k, v := range metrics {
		pb.metrics[k] = v
	}
	pb.render()
}

// Finish completes the bar and moves to a new line.
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

func (pb *ProgressBar) render() {
	percentage := float64(pb.current) / float64(pb.total)
	if percentage > 1.0 {
		percentage = 1.0
	}
	filled := int(percentage * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var rate float64
	var eta time.Duration
	if pb.current > 0 && elapsed > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		remaining := pb.total - pb.current
		eta = time.Duration(float64(remaining)/rate) * time.Second
	}

	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var metrics strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&metrics, " %s=%.4f", k, pb.metrics[k])
	}

	fmt.Fprintf(pb.out, "\r%s: %3.0f%%|%s| %d/%d [%s<%s, %.2fit/s]%s",
		pb.description, percentage*100, bar, pb.current, pb.total,
		formatDuration(elapsed), formatDuration(eta), rate, metrics.String())
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
