package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/tanq16/parcel/internal/progress"
	"github.com/tanq16/parcel/internal/utils"
	"golang.org/x/term"
)

func PrintProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	if current < 0 {
		current = 0
	}
	if current > total {
		current = total
	}
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	if filled < width {
		bar += strings.Repeat(" ", width-filled)
	}
	bar += StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// progressLine renders one snapshot. Unknown totals get a byte counter
// instead of a bar.
func progressLine(s progress.Snapshot) string {
	speed := utils.FormatSpeed(s.Speed)
	if s.Total <= 0 {
		text := fmt.Sprintf("%s %s %s", utils.FormatBytes(uint64(max(0, s.Downloaded))), StyleSymbols["bullet"], speed)
		return debugStyle.Render(text)
	}
	text := fmt.Sprintf("%s / %s", utils.FormatBytes(uint64(max(0, s.Downloaded))), utils.FormatBytes(uint64(s.Total)))
	eta := utils.FormatETA(s.ETA)
	return fmt.Sprintf("%s%s %s %s %s %s", PrintProgressBar(s.Downloaded, s.Total, 30),
		debugStyle.Render(text), StyleSymbols["bullet"], debugStyle.Render(speed), StyleSymbols["bullet"], debugStyle.Render(eta))
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func getTerminalHeight() int {
	_, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || height <= 0 {
		return 24
	}
	return height
}
