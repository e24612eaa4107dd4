package status

import (
	"fmt"
	"math/bits"
	"strconv"

	"github.com/balaji-balu/etcdcheck/pkg/model"
)

const (
	msgOK       = "etcd DB size OK: %d%% of critical threshold (%s GB)"
	msgWarning  = "etcd DB size above warning threshold: %d%% of critical threshold (%s GB)"
	msgCritical = "etcd DB size above critical threshold: %d%% of critical threshold (%s GB)"
)

// Percent is floor(max*100/crit). crit must be positive.
func Percent(max, crit int64) int {
	if max <= 0 {
		return 0
	}
	// remainder*100 can exceed int64 for large thresholds
	hi, lo := bits.Mul64(uint64(max%crit), 100)
	frac, _ := bits.Div64(hi, lo, uint64(crit))
	return int(max/crit*100 + int64(frac))
}

// Classify maps the largest member DB size onto a level. Ties go to the more
// severe level. critGB is the threshold as configured and only feeds the
// message; the comparison uses the byte values.
func Classify(max, warn, crit int64, critGB float64) (level model.Level, message string, percent int, exitCode int) {
	percent = Percent(max, crit)
	gb := strconv.FormatFloat(critGB, 'f', -1, 64)

	switch {
	case max >= crit:
		return model.LevelCritical, fmt.Sprintf(msgCritical, percent, gb), percent, model.ExitCritical
	case max >= warn:
		return model.LevelWarning, fmt.Sprintf(msgWarning, percent, gb), percent, model.ExitWarning
	default:
		return model.LevelOK, fmt.Sprintf(msgOK, percent, gb), percent, model.ExitOK
	}
}

// Evaluate classifies a summary and assembles the immutable Result.
func Evaluate(target, env string, s model.Summary, warn, crit int64, critGB float64) model.Result {
	level, msg, pct, code := Classify(s.MaxDBSize, warn, crit, critGB)
	return model.Result{
		Target:      target,
		Environment: env,
		Members:     len(s.Members),
		Leader:      s.LeaderName,
		AvgDBSize:   s.AvgDBSize,
		MaxDBSize:   s.MaxDBSize,
		CritBytes:   crit,
		Level:       level,
		Message:     msg,
		Percent:     pct,
		ExitCode:    code,
	}
}
