package utils

import (
	"fmt"
	"path"
	"strings"
	"time"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// ClampSegments maps a requested segment count onto the supported range.
// Zero or negative selects the default, 1 means a single stream.
func ClampSegments(n int) int {
	switch {
	case n <= 0:
		return DefaultSegments
	case n > MaxSegments:
		return MaxSegments
	}
	return n
}

func ClampWorkers(n int) int {
	return max(1, min(n, MaxWorkers))
}

// SegmentsPerLink spreads a total connection budget over parallel downloads.
func SegmentsPerLink(segments, workers int) int {
	if workers*segments > MaxTotalConnections {
		return max(MaxTotalConnections/workers, 1)
	}
	return segments
}

// TempPartPath is the temp unit for one segment of outputPath (slash separated, storage relative).
func TempPartPath(outputPath string, index int) string {
	return path.Join(path.Dir(outputPath), TempDirName, fmt.Sprintf("%s.part%d", path.Base(outputPath), index))
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "0 B/s"
	}
	return FormatBytes(uint64(bytesPerSecond)) + "/s"
}

func FormatETA(seconds float64) string {
	if seconds < 0 {
		return "calculating..."
	}
	s := int64(seconds)
	if s < 60 {
		return fmt.Sprintf("%ds", s)
	} else if s < 3600 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
}
