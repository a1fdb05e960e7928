package models

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the outcome kind recorded for a photo
type Status string

const (
	StatusSuccess         Status = "success"
	StatusErrorCorrupt    Status = "error_corrupt"
	StatusErrorCapability Status = "error_capability"
	StatusErrorProcessing Status = "error_processing"
)

// Older journals used backend-flavoured names for the two error kinds
var legacyStatuses = map[string]Status{
	"error_api":   StatusErrorCapability,
	"error_model": StatusErrorProcessing,
}

// AllStatuses returns the closed set of statuses in display order
func AllStatuses() []Status {
	return []Status{
		StatusSuccess,
		StatusErrorCorrupt,
		StatusErrorCapability,
		StatusErrorProcessing,
	}
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusErrorCorrupt, StatusErrorCapability, StatusErrorProcessing:
		return true
	default:
		return false
	}
}

// IsError reports whether s is one of the failure statuses
func (s Status) IsError() bool {
	return s.Valid() && s != StatusSuccess
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a status name, including legacy aliases, into a Status
func ParseStatus(name string) (Status, error) {
	name = strings.TrimSpace(name)
	if s := Status(name); s.Valid() {
		return s, nil
	}
	if s, ok := legacyStatuses[name]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", name)
}

// StatusSet is a set of statuses, used for the retry set of a run
type StatusSet map[Status]struct{}

// NewStatusSet builds a set from the given statuses
func NewStatusSet(statuses ...Status) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

// Has reports whether s is in the set. A nil set contains nothing.
func (set StatusSet) Has(s Status) bool {
	_, ok := set[s]
	return ok
}

// Slice returns the members in a stable order
func (set StatusSet) Slice() []Status {
	out := make([]Status, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseStatusList parses a comma separated list such as "error_capability,error_processing"
func ParseStatusList(list string) (StatusSet, error) {
	set := NewStatusSet()
	if strings.TrimSpace(list) == "" {
		return set, nil
	}
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := ParseStatus(part)
		if err != nil {
			return nil, err
		}
		set[s] = struct{}{}
	}
	return set, nil
}

// Record is one durable fact about one photo
type Record struct {
	Key    string  `json:"key"`
	Result *string `json:"result"`
	Status Status  `json:"status"`
}

// Caption returns the result text, or "" when there is none
func (r Record) Caption() string {
	if r.Result == nil {
		return ""
	}
	return *r.Result
}

// Item is a unit of work: a stable key and where to read the photo from
type Item struct {
	Key  string
	Path string
}

// StringPtr is a small helper for building optional results
func StringPtr(s string) *string {
	return &s
}
