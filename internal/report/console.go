// Package report renders a check result to the console and ships it to a
// HEC-style collector.
package report

import (
	"fmt"
	"io"

	"github.com/balaji-balu/etcdcheck/pkg/model"
)

var units = []string{"KB", "MB", "GB"}

// HumanBytes scales n by 1024 to the largest unit that keeps the value >= 1.
// Bytes are printed as an integer, larger units with two decimals.
func HumanBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n) / 1024
	unit := units[0]
	for _, u := range units[1:] {
		if v < 1024 {
			break
		}
		v /= 1024
		unit = u
	}
	return fmt.Sprintf("%.2f %s", v, unit)
}

// WriteConsole prints the fixed-width human readable block.
func WriteConsole(w io.Writer, r model.Result) error {
	_, err := fmt.Fprintf(w,
		"==== etcd health check ====\n"+
			"%-14s: %s\n"+
			"%-14s: %s\n"+
			"%-14s: %d\n"+
			"%-14s: %s\n"+
			"%-14s: %s\n"+
			"%-14s: %s\n"+
			"%-14s: %d%% of %s\n"+
			"%-14s: %s\n"+
			"%-14s: %s\n",
		"Manager", r.Target,
		"Environment", r.Environment,
		"Members", r.Members,
		"Leader", r.Leader,
		"Avg DB size", HumanBytes(r.AvgDBSize),
		"Max DB size", HumanBytes(r.MaxDBSize),
		"Usage", r.Percent, HumanBytes(r.CritBytes),
		"Status", r.Level,
		"Message", r.Message,
	)
	return err
}
