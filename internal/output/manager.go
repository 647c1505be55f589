package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/parcel/internal/progress"
)

type FunctionOutput struct {
	ID          int
	Name        string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	FunctionName string
	Error        error
	Time         time.Time
}

// Manager renders one line per registered download plus its progress bar.
// On a non-interactive writer nothing is redrawn and only the summary is printed.
type Manager struct {
	outputs       map[int]*FunctionOutput
	mutex         sync.RWMutex
	out           io.Writer
	interactive   bool
	numLines      int
	errors        []ErrorReport
	doneCh        chan struct{}
	displayTick   time.Duration
	functionCount int
	displayWg     sync.WaitGroup
	stopOnce      sync.Once
}

func NewManager() *Manager {
	return newManager(os.Stdout, isTerminal(os.Stdout))
}

func newManager(out io.Writer, interactive bool) *Manager {
	return &Manager{
		outputs:     make(map[int]*FunctionOutput),
		out:         out,
		interactive: interactive,
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

// Quiet turns off live redraws, e.g. for --no-progress.
func (m *Manager) Quiet() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.interactive = false
}

func (m *Manager) RegisterFunction(name string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.functionCount++
	m.outputs[m.functionCount] = &FunctionOutput{
		ID:          m.functionCount,
		Name:        name,
		Status:      "pending",
		StreamLines: []string{},
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}
	return m.functionCount
}

func (m *Manager) update(id int, fn func(*FunctionOutput)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		fn(info)
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetMessage(id int, message string) {
	m.update(id, func(info *FunctionOutput) { info.Message = message })
}

func (m *Manager) Complete(id int, message string) {
	m.update(id, func(info *FunctionOutput) {
		info.StreamLines = []string{}
		if message == "" {
			message = fmt.Sprintf("Completed %s", info.Name)
		}
		info.Message = message
		info.Complete = true
		info.Status = "success"
	})
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists {
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.StreamLines = []string{}
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{
			FunctionName: info.Name,
			Error:        err,
			Time:         time.Now(),
		})
	}
}

// Sink returns a progress sink that keeps the function's single stream line
// set to the latest progress bar.
func (m *Manager) Sink(id int) progress.Sink {
	return progress.SinkFunc(func(s progress.Snapshot) {
		line := progressLine(s)
		m.update(id, func(info *FunctionOutput) {
			if !info.Complete {
				info.StreamLines = []string{line}
			}
		})
	})
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return successStyle.Render(StyleSymbols["pass"])
	case "error", "fail":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	case "warning":
		return warningStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) sortFunctions() (active, pending, completed []*FunctionOutput) {
	all := make([]*FunctionOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	for _, f := range all {
		if f.Complete {
			completed = append(completed, f)
		} else if f.Status == "pending" && f.Message == "" {
			pending = append(pending, f)
		} else {
			active = append(active, f)
		}
	}
	return active, pending, completed
}

func (m *Manager) updateDisplay() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !m.interactive {
		return
	}
	availableLines := getTerminalHeight() - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}

	lineCount := 0
	indent := strings.Repeat(" ", 2+4)
	printFunc := func(f *FunctionOutput, elapsed time.Duration, message string) {
		if lineCount >= availableLines {
			return
		}
		fmt.Fprintf(m.out, "  %s %s %s\n", m.GetStatusIndicator(f.Status), debugStyle.Render(elapsed.Round(time.Second).String()), message)
		lineCount++
		for _, line := range f.StreamLines {
			if lineCount >= availableLines {
				return
			}
			fmt.Fprintf(m.out, "%s%s\n", indent, streamStyle.Render(line))
			lineCount++
		}
	}

	active, pending, completed := m.sortFunctions()
	needed := len(completed)
	for _, f := range append(active, pending...) {
		needed += 1 + len(f.StreamLines)
	}
	if needed > availableLines {
		keep := max(0, availableLines-(needed-len(completed)))
		if len(completed) > keep {
			completed = completed[len(completed)-keep:]
		}
	}

	for _, f := range active {
		printFunc(f, time.Since(f.StartTime), styleMessage(f.Status, f.Message))
	}
	for _, f := range pending {
		printFunc(f, 0, pendingStyle.Render("Waiting..."))
	}
	if len(completed) > 10 && lineCount < availableLines {
		fmt.Fprintln(m.out, infoStyle.Render(fmt.Sprintf("  %d downloads completed with varying hidden status ...", len(completed)-8)))
		completed = completed[len(completed)-8:]
		lineCount++
	}
	for _, f := range completed {
		printFunc(f, f.LastUpdated.Sub(f.StartTime), styleMessage(f.Status, f.Message))
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	m.stopOnce.Do(func() { close(m.doneCh) })
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "    %s %s %s\n",
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(err.FunctionName))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 6), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

// ShowSummary prints the success and failure counts followed by every reported error.
func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	var success, failures int
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	fmt.Fprintln(m.out, "  "+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if failures > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}

func (m *Manager) Failures() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.errors)
}
