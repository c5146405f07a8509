package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SupportedFormat is the semver constraint a pack's format_version must satisfy.
const SupportedFormat = "^1.0"

// Pack is a decoded rule pack file.
type Pack struct {
	FormatVersion string      `yaml:"format_version"`
	ContextType   ContextType `yaml:"context_type,omitempty"`
	Rules         []*Rule     `yaml:"rules"`
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// ParsePack decodes and validates a rule pack. name identifies the pack in
// errors and is recorded as each rule's Source. All problems are reported
// together as an *ErrorList, except structural errors which stop parsing.
func ParsePack(name string, data []byte) (*Pack, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{File: name, Line: errorLine(err), Message: "invalid YAML", Cause: err}
	}
	if doc == nil {
		return nil, &ParseError{File: name, Message: "empty rule pack"}
	}

	if err := validateStructure(doc); err != nil {
		return nil, &ParseError{File: name, Message: "schema validation failed", Cause: err}
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, &ParseError{File: name, Line: errorLine(err), Message: "failed to decode rule pack", Cause: err}
	}

	if err := CheckFormat(pack.FormatVersion); err != nil {
		return nil, &ParseError{File: name, Message: err.Error(), Cause: err}
	}

	var errs ErrorList
	for _, r := range pack.Rules {
		if r.ContextType == "" {
			r.ContextType = pack.ContextType
		}
		ApplyDefaults(r)
		r.Source = name
		for _, err := range Validate(r) {
			errs.Add(err)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	return &pack, nil
}

// CheckFormat verifies that a pack format version is supported.
func CheckFormat(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid format_version %q: %w", version, err)
	}
	c, err := semver.NewConstraint(SupportedFormat)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("format_version %s is not supported (want %s)", version, SupportedFormat)
	}
	return nil
}

// MergePacks flattens packs into one rule list, rejecting duplicate ids.
func MergePacks(packs ...*Pack) ([]*Rule, error) {
	seen := make(map[string]string)
	var (
		out  []*Rule
		errs ErrorList
	)
	for _, p := range packs {
		for _, r := range p.Rules {
			if prev, dup := seen[r.ID]; dup {
				errs.Add(&ValidationError{
					RuleID:  r.ID,
					Message: fmt.Sprintf("duplicate rule id (also defined in %s)", prev),
				})
				continue
			}
			seen[r.ID] = r.Source
			out = append(out, r)
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func errorLine(err error) int {
	var te *yaml.TypeError
	msg := err.Error()
	if errors.As(err, &te) && len(te.Errors) > 0 {
		msg = te.Errors[0]
	}
	m := yamlLine.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
