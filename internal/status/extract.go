// Package status turns `etcdctl endpoint status -w json` output into a
// classified health result.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/balaji-balu/etcdcheck/internal/logger"
	"github.com/balaji-balu/etcdcheck/pkg/model"
)

// ExtractionError is returned for an empty or malformed status payload.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid status payload: %s: %v", e.Reason, e.Err)
	}
	return "invalid status payload: " + e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ErrNoMembers is wrapped when the member array is empty.
var ErrNoMembers = errors.New("no cluster members")

// AddrResolver does reverse lookups. *net.Resolver satisfies it.
type AddrResolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// wire shape of one etcdctl record; pointers detect missing fields.
type endpointStatus struct {
	Endpoint *string `json:"Endpoint"`
	Status   *struct {
		Header *struct {
			MemberID *uint64 `json:"member_id"`
		} `json:"header"`
		Version     string  `json:"version"`
		DBSize      *int64  `json:"dbSize"`
		DBSizeInUse int64   `json:"dbSizeInUse"`
		Leader      *uint64 `json:"leader"`
	} `json:"Status"`
}

// ParseMembers decodes raw etcdctl JSON into member records.
func ParseMembers(raw []byte) ([]model.MemberStatus, error) {
	var records []endpointStatus
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &ExtractionError{Reason: "decode", Err: err}
	}
	if len(records) == 0 {
		return nil, &ExtractionError{Reason: "empty member array", Err: ErrNoMembers}
	}

	members := make([]model.MemberStatus, 0, len(records))
	for i, r := range records {
		switch {
		case r.Endpoint == nil:
			return nil, missing(i, "Endpoint")
		case r.Status == nil:
			return nil, missing(i, "Status")
		case r.Status.Header == nil || r.Status.Header.MemberID == nil:
			return nil, missing(i, "Status.header.member_id")
		case r.Status.Leader == nil:
			return nil, missing(i, "Status.leader")
		case r.Status.DBSize == nil:
			return nil, missing(i, "Status.dbSize")
		}
		members = append(members, model.MemberStatus{
			Endpoint:    *r.Endpoint,
			MemberID:    *r.Status.Header.MemberID,
			Leader:      *r.Status.Leader,
			DBSize:      *r.Status.DBSize,
			DBSizeInUse: r.Status.DBSizeInUse,
			Version:     r.Status.Version,
		})
	}
	return members, nil
}

func missing(i int, field string) error {
	return &ExtractionError{Reason: fmt.Sprintf("member %d: missing %s", i, field)}
}

// Sizes returns the integer average and the maximum DB size.
func Sizes(members []model.MemberStatus) (avg, max int64) {
	if len(members) == 0 {
		return 0, 0
	}
	var sum int64
	for i, m := range members {
		sum += m.DBSize
		if i == 0 || m.DBSize > max {
			max = m.DBSize
		}
	}
	return sum / int64(len(members)), max
}

// LeaderEndpoint finds the endpoint of the member named as leader by the first record.
func LeaderEndpoint(members []model.MemberStatus) (string, bool) {
	if len(members) == 0 {
		return "", false
	}
	leader := members[0].Leader
	for _, m := range members {
		if m.MemberID == leader {
			return m.Endpoint, true
		}
	}
	return "", false
}

// HostFromEndpoint strips scheme and port: https://10.0.0.5:2379 -> 10.0.0.5.
func HostFromEndpoint(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Hostname()
	}
	host := endpoint
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}

// Extractor builds a Summary from raw status output.
type Extractor struct {
	resolver AddrResolver
	log      *logger.Logger
}

func NewExtractor(resolver AddrResolver, log *logger.Logger) *Extractor {
	return &Extractor{resolver: resolver, log: log}
}

// Extract parses raw and resolves the leader name. Leader resolution problems
// degrade to model.LeaderUnavailable instead of failing.
func (e *Extractor) Extract(ctx context.Context, raw []byte) (model.Summary, error) {
	members, err := ParseMembers(raw)
	if err != nil {
		return model.Summary{}, err
	}
	avg, max := Sizes(members)

	s := model.Summary{
		Members:    members,
		AvgDBSize:  avg,
		MaxDBSize:  max,
		LeaderName: model.LeaderUnavailable,
	}

	endpoint, ok := LeaderEndpoint(members)
	if !ok {
		e.log.Warn("leader not found among members", zap.Uint64("leader_id", members[0].Leader))
		return s, nil
	}
	s.LeaderHost = HostFromEndpoint(endpoint)
	s.LeaderName = e.resolveName(ctx, s.LeaderHost)
	return s, nil
}

func (e *Extractor) resolveName(ctx context.Context, host string) string {
	if host == "" {
		return model.LeaderUnavailable
	}
	if net.ParseIP(host) == nil {
		return host
	}
	names, err := e.resolver.LookupAddr(ctx, host)
	if err != nil || len(names) == 0 {
		e.log.Warn("reverse lookup of leader failed", zap.String("addr", host), zap.Error(err))
		return model.LeaderUnavailable
	}
	return strings.TrimSuffix(names[0], ".")
}
