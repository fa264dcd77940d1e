package monitor

import (
	"fmt"
	"time"

	"github.com/sjstein/tpMonitor/tele"
)

// Banner describes acquisition parameters at start.
func Banner(ps *PollingState, start time.Time) []string {
	logTo := ps.LogPath
	if logTo == "" {
		logTo = "(disabled)"
	}
	return []string{
		"Starting pressure and temperature log with the following parameters:",
		"Saving to file     : " + logTo,
		"Server             : " + ps.Addr(),
		fmt.Sprintf("Polling frequency  : %.0f seconds", ps.Frequency.Seconds()),
		"Acquiring data for : " + ps.RunTimeString(),
		"Acquisition started: " + start.Format("20060102") + " at " + start.Format("15:04:05"),
	}
}

// Status describes one successful poll.
func Status(ps *PollingState, t time.Time, r tele.Reading) []string {
	lines := []string{
		fmt.Sprintf("Server reports : %s at %s(%s)", r.String(), t.Format("15:04:05"), t.Format("20060102")),
	}
	if ps.RunTime > 0 {
		lines = append(lines, fmt.Sprintf("Run time       : %.0f of %.0f seconds", ps.Elapsed.Seconds(), ps.RunTime.Seconds()))
	} else {
		lines = append(lines, fmt.Sprintf("Run time       : %.0f seconds", ps.Elapsed.Seconds()))
	}
	lines = append(lines,
		fmt.Sprintf("Current depth  : %s meters (%s feet)", tele.FormatValue(r.Depth), tele.FormatValue(r.DepthFeet())),
		fmt.Sprintf("Temperature    : %s C (%s F)", tele.FormatValue(r.Temperature), tele.FormatValue(r.Fahrenheit())),
	)
	return lines
}
