package model

// Level is the three-state outcome of a DB size check.
type Level string

const (
	LevelOK       Level = "OK"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Exit codes shared by the classifier and the CLI.
const (
	ExitOK       = 0
	ExitWarning  = 1
	ExitCritical = 2
)

// LeaderUnavailable is reported when the leader cannot be resolved to a name.
const LeaderUnavailable = "N/A"

// MemberStatus is one record of `etcdctl endpoint status -w json`.
type MemberStatus struct {
	Endpoint    string `json:"endpoint"`
	MemberID    uint64 `json:"member_id"`
	Leader      uint64 `json:"leader"`
	DBSize      int64  `json:"db_size"`
	DBSizeInUse int64  `json:"db_size_in_use"`
	Version     string `json:"version"`
}

// Summary is the aggregate view of all members.
type Summary struct {
	Members    []MemberStatus
	AvgDBSize  int64
	MaxDBSize  int64
	LeaderHost string
	LeaderName string
}

// Result is the outcome of one run. It is built once and handed to a reporter.
type Result struct {
	Target      string
	Environment string
	Members     int
	Leader      string
	AvgDBSize   int64
	MaxDBSize   int64
	CritBytes   int64
	Level       Level
	Message     string
	Percent     int
	ExitCode    int
}
