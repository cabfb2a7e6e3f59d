package models

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// IntrinsicValues are the per-question intrinsic worth components used by
// the opportunity model.
type IntrinsicValues struct {
	Environmental      float64 `json:"environmental"`
	Business           float64 `json:"business"`
	Profitability      float64 `json:"profitability"`
	ImplementationEase float64 `json:"implementation_ease"`
}

// ElementExtra is the typed view of an element's attribute bag. Fields the
// engine does not know about survive round-trips in Open.
type ElementExtra struct {
	Pagebreak       bool            `json:"pagebreak,omitempty"`
	Searchable      bool            `json:"searchable,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	IntrinsicValues IntrinsicValues `json:"intrinsic_values,omitempty"`
	Segments        []string        `json:"segments,omitempty"`
	ScoreWeight     *float64        `json:"score_weight,omitempty"`

	Open map[string]json.RawMessage `json:"-"`
}

// SampleExtra is the typed view of a sample's attribute bag.
type SampleExtra struct {
	Tags []string `json:"tags,omitempty"`
}

// The is_planned tag marks improvement-plan samples.
const TagPlanned = "is_planned"

// The scorecard tag marks subtrees whose rollup is preserved in the cache.
const TagScorecard = "scorecard"

// The verifier_notes tag marks samples holding a verifier's annotations.
const TagVerifierNotes = "verifier_notes"

type elementExtraAlias ElementExtra

// UnmarshalJSON keeps unknown attributes in Open alongside the typed fields.
func (e *ElementExtra) UnmarshalJSON(data []byte) error {
	var alias elementExtraAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var open map[string]json.RawMessage
	if err := json.Unmarshal(data, &open); err != nil {
		return err
	}
	for _, known := range []string{"pagebreak", "searchable", "tags", "intrinsic_values", "segments", "score_weight"} {
		delete(open, known)
	}
	if len(open) == 0 {
		open = nil
	}
	*e = ElementExtra(alias)
	e.Open = open
	return nil
}

// MarshalJSON merges the typed fields back over the open attributes.
func (e ElementExtra) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(elementExtraAlias(e))
	if err != nil {
		return nil, err
	}
	if len(e.Open) == 0 {
		return typed, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(typed, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.Open {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// HasTag reports whether tag is present in the extra tags.
func (e ElementExtra) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Weight returns the node score weight, defaulting to 1.0.
func (e ElementExtra) Weight() float64 {
	if e.ScoreWeight != nil {
		return *e.ScoreWeight
	}
	return 1.0
}

// ParseElementExtra decodes a stored attribute bag. A null column yields
// the zero value.
func ParseElementExtra(raw datatypes.JSON) (ElementExtra, error) {
	var extra ElementExtra
	if len(raw) == 0 {
		return extra, nil
	}
	err := json.Unmarshal(raw, &extra)
	return extra, err
}

// ParseSampleExtra decodes a stored sample attribute bag.
func ParseSampleExtra(raw datatypes.JSON) (SampleExtra, error) {
	var extra SampleExtra
	if len(raw) == 0 {
		return extra, nil
	}
	err := json.Unmarshal(raw, &extra)
	return extra, err
}

// IsPlanned reports whether the sample carries the is_planned tag.
func (s Sample) IsPlanned() bool {
	extra, err := ParseSampleExtra(s.Extra)
	if err != nil {
		return false
	}
	for _, t := range extra.Tags {
		if t == TagPlanned {
			return true
		}
	}
	return false
}

// ExtraKey normalizes a sample extra bag for grouping frozen siblings.
func ExtraKey(raw datatypes.JSON) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}
