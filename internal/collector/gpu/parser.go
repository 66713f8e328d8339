package gpu

import (
	"bytes"
	"strings"
)

// ParseRows parses nvidia-smi CSV output into device samples, in output order.
// Empty lines are ignored; lines with fewer than the queried number of fields
// are dropped and counted in skipped. Lines of any length are accepted.
func ParseRows(data []byte) (samples []DeviceSample, skipped int) {
	for raw := range bytes.Lines(data) {
		line := bytes.TrimRight(raw, "\r\n")
		if len(line) == 0 {
			continue
		}

		s, ok := parseRow(string(line))
		if !ok {
			skipped++
			continue
		}
		samples = append(samples, s)
	}

	return samples, skipped
}

// parseRow parses a single row:
//
//	0, 45, 12, 2048, 6144, 8192, 65, 150.5, 1530, 877, Tesla V100
//
// The name is the last column, so any extra commas are kept as part of it.
func parseRow(line string) (DeviceSample, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < minFields {
		return DeviceSample{}, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return DeviceSample{
		Index:             parts[0],
		UtilizationGPU:    parts[1],
		UtilizationMemory: parts[2],
		MemoryUsed:        parts[3],
		MemoryFree:        parts[4],
		MemoryTotal:       parts[5],
		Temperature:       parts[6],
		PowerDraw:         parts[7],
		SMClock:           parts[8],
		MemoryClock:       parts[9],
		Name:              strings.Join(parts[10:], ","),
	}, true
}
