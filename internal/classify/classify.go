// Package classify maps incoming records to log destinations.
//
// Each axis of the destination key (group, stream) is named by exactly one
// policy: a fixed configured name, the record's routing tag, or a field
// extracted from the record body (optionally removed after extraction).
// Policy selection happens once, at construction; classification itself is
// branch-free per record.
package classify

import (
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"

	"github.com/Nao-Mk2/aws-logs-shipper/internal/model"
)

// Axis configures the naming policy for one axis of the destination key.
// Exactly one of Fixed, FromTag, or FieldPath must be set. RemoveField is
// only valid with FieldPath and requires a plain top-level key.
type Axis struct {
	Fixed       string
	FromTag     bool
	FieldPath   string
	RemoveField bool
}

type axisKind int

const (
	axisFixed axisKind = iota + 1
	axisTag
	axisField
	axisFieldRemove
)

type axis struct {
	kind  axisKind
	fixed string
	key   string
	path  *jmespath.JMESPath
}

// Classifier computes destination keys for records under the configured
// naming policies.
type Classifier struct {
	group  axis
	stream axis
}

// New validates the two axis configurations and returns a Classifier.
// An ambiguous axis (zero or more than one policy selected) is a
// configuration error; nothing is classified until both axes are valid.
func New(group, stream Axis) (*Classifier, error) {
	g, err := compileAxis("group", group)
	if err != nil {
		return nil, err
	}
	s, err := compileAxis("stream", stream)
	if err != nil {
		return nil, err
	}
	return &Classifier{group: g, stream: s}, nil
}

func compileAxis(name string, cfg Axis) (axis, error) {
	selected := 0
	if cfg.Fixed != "" {
		selected++
	}
	if cfg.FromTag {
		selected++
	}
	if cfg.FieldPath != "" {
		selected++
	}
	if selected == 0 {
		return axis{}, fmt.Errorf("%s axis: no naming policy configured", name)
	}
	if selected > 1 {
		return axis{}, fmt.Errorf("%s axis: multiple naming policies configured", name)
	}
	switch {
	case cfg.Fixed != "":
		if cfg.RemoveField {
			return axis{}, fmt.Errorf("%s axis: remove-field requires a field policy", name)
		}
		return axis{kind: axisFixed, fixed: cfg.Fixed}, nil
	case cfg.FromTag:
		if cfg.RemoveField {
			return axis{}, fmt.Errorf("%s axis: remove-field requires a field policy", name)
		}
		return axis{kind: axisTag}, nil
	default:
		if cfg.RemoveField {
			// Removal deletes a map key, so the path must be a bare
			// top-level identifier rather than an arbitrary expression.
			if strings.ContainsAny(cfg.FieldPath, ".[|@&*\"'`") {
				return axis{}, fmt.Errorf("%s axis: remove-field requires a plain key, got %q", name, cfg.FieldPath)
			}
			return axis{kind: axisFieldRemove, key: cfg.FieldPath}, nil
		}
		compiled, err := jmespath.Compile(cfg.FieldPath)
		if err != nil {
			return axis{}, fmt.Errorf("%s axis: invalid field path %q: %w", name, cfg.FieldPath, err)
		}
		return axis{kind: axisField, key: cfg.FieldPath, path: compiled}, nil
	}
}

// Classify resolves the destination key for one record. The returned record
// map is the input map unless a remove-field policy applies, in which case
// it is a copy with the consumed key deleted; the caller's map is never
// mutated.
func (c *Classifier) Classify(tag string, record map[string]any) (model.DestinationKey, map[string]any, error) {
	group, record, err := c.group.resolve(tag, record)
	if err != nil {
		return model.DestinationKey{}, nil, fmt.Errorf("group: %w", err)
	}
	stream, record, err := c.stream.resolve(tag, record)
	if err != nil {
		return model.DestinationKey{}, nil, fmt.Errorf("stream: %w", err)
	}
	return model.DestinationKey{Group: group, Stream: stream}, record, nil
}

func (a axis) resolve(tag string, record map[string]any) (string, map[string]any, error) {
	switch a.kind {
	case axisFixed:
		return a.fixed, record, nil
	case axisTag:
		if tag == "" {
			return "", nil, fmt.Errorf("record has no tag")
		}
		return tag, record, nil
	case axisField:
		v, err := a.path.Search(record)
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", a.key, err)
		}
		name, ok := stringValue(v)
		if !ok {
			return "", nil, fmt.Errorf("field %q missing or not a string", a.key)
		}
		return name, record, nil
	default: // axisFieldRemove
		v, present := record[a.key]
		name, ok := stringValue(v)
		if !present || !ok {
			return "", nil, fmt.Errorf("field %q missing or not a string", a.key)
		}
		trimmed := make(map[string]any, len(record)-1)
		for k, val := range record {
			if k != a.key {
				trimmed[k] = val
			}
		}
		return name, trimmed, nil
	}
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
