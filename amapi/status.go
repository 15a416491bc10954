package amapi

import (
	"strings"

	"github.com/geni-nsf/am-contract-tests/fault"
)

// SliverState is the provisioning state of a sliver, normalized from the
// strings aggregates report.
type SliverState string

const (
	StateProvisioning SliverState = "Provisioning"
	StateReady        SliverState = "Ready"
	StateFailed       SliverState = "Failed"
	StateUnknown      SliverState = "Unknown"
)

func normalizeState(raw string) SliverState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "configuring", "changing", "pending":
		return StateProvisioning
	case "ready":
		return StateReady
	case "failed":
		return StateFailed
	default:
		return StateUnknown
	}
}

// StatusRecord is a normalized SliverStatus response.
type StatusRecord struct {
	URN      string
	State    SliverState
	RawState string

	Resources []ResourceStatus

	// Raw preserves the response for strictness checks on members the
	// normalized form does not carry.
	Raw map[string]interface{}
}

// ResourceStatus is the state of one resource inside a sliver. Error holds
// the aggregate's explanation when the resource failed; it is a value rather
// than a Go error because it is data reported about the remote resource.
type ResourceStatus struct {
	URN      string
	State    SliverState
	RawState string
	Error    string
}

// Ready reports whether the sliver and every listed resource are ready.
func (s *StatusRecord) Ready() bool {
	if s.State != StateReady {
		return false
	}
	for _, r := range s.Resources {
		if r.State != StateReady {
			return false
		}
	}
	return true
}

func normalizeStatus(raw interface{}) (*StatusRecord, error) {
	value, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fault.Newf(fault.KindProtocol,
			"SliverStatus returned %T, not a struct", raw)
	}
	record := &StatusRecord{Raw: value}
	record.URN, _ = value["geni_urn"].(string)
	record.RawState, _ = value["geni_status"].(string)
	record.State = normalizeState(record.RawState)

	resources, _ := value["geni_resources"].([]interface{})
	for _, entry := range resources {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		rs := ResourceStatus{}
		rs.URN, _ = m["geni_urn"].(string)
		rs.RawState, _ = m["geni_status"].(string)
		rs.State = normalizeState(rs.RawState)
		rs.Error, _ = m["geni_error"].(string)
		record.Resources = append(record.Resources, rs)
	}
	return record, nil
}
