package alert

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSuppressionDuration is used when a RuleDoc doesn't set one
// explicitly: 15 minutes matches the cooldown scale of the compound
// condition rules this engine evaluates.
const DefaultSuppressionDuration = 15 * time.Minute

// Threshold is a rule threshold that accepts both numeric and boolean YAML
// literals; booleans coerce to 1/0, matching how boolean metrics are carried
// in the candidate's metric map.
type Threshold float64

func (t *Threshold) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!bool" {
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		if b {
			*t = 1
		} else {
			*t = 0
		}
		return nil
	}
	var f float64
	if err := value.Decode(&f); err != nil {
		return err
	}
	*t = Threshold(f)
	return nil
}

// ConditionDoc is the yaml-decodable form of a Condition tree (V2 rules).
// Two spellings are accepted: the compact {kind, op, children} form and the
// long {type: simple|compound, operator, conditions} form; documents may
// mix them freely.
type ConditionDoc struct {
	Kind      string         `yaml:"kind,omitempty"`
	Metric    string         `yaml:"metric,omitempty"`
	Op        string         `yaml:"op,omitempty"`
	Threshold Threshold      `yaml:"threshold,omitempty"`
	Children  []ConditionDoc `yaml:"children,omitempty"`

	// Long-form aliases.
	Type       string         `yaml:"type,omitempty"`
	Operator   string         `yaml:"operator,omitempty"`
	Conditions []ConditionDoc `yaml:"conditions,omitempty"`
}

// normalizedKind resolves the condition's node kind across both spellings.
func (d ConditionDoc) normalizedKind() string {
	if d.Kind != "" {
		return d.Kind
	}
	switch strings.ToLower(d.Type) {
	case "simple":
		return string(NodeSimple)
	case "compound":
		return strings.ToLower(d.Operator) // AND|OR|NOT
	}
	if d.Metric != "" {
		return string(NodeSimple)
	}
	return ""
}

// normalizedOp resolves the comparison operator: `op` in the compact form,
// `operator` in the long form.
func (d ConditionDoc) normalizedOp() string {
	if d.Op != "" {
		return d.Op
	}
	return strings.ToLower(d.Operator)
}

// normalizedChildren merges the two child-list spellings.
func (d ConditionDoc) normalizedChildren() []ConditionDoc {
	if len(d.Children) > 0 {
		return d.Children
	}
	return d.Conditions
}

// EscalationStepDoc is one step of an escalation policy.
type EscalationStepDoc struct {
	AfterSeconds int      `yaml:"after_seconds"`
	Channels     []string `yaml:"channels"`
}

// EscalationDoc is the yaml-decodable escalation policy reference:
// {name, steps: [(after_seconds, channels)]}.
type EscalationDoc struct {
	Name  string               `yaml:"name"`
	Steps []EscalationStepDoc  `yaml:"steps"`
}

// RuleDoc is the yaml-decodable rule document loaded from configuration
// (forward-referenced by internal/config.Document.AlertRules). It carries
// both V1 (legacy flat condition) and V2 (compound condition, escalation,
// template) shapes; CompileRule detects which is present.
type RuleDoc struct {
	ID       string `yaml:"id"`
	Severity string `yaml:"severity"`
	Enabled  *bool  `yaml:"enabled,omitempty"`

	// V1: legacy flat condition.
	Metric    string  `yaml:"metric,omitempty"`
	Op        string  `yaml:"op,omitempty"`
	Threshold float64 `yaml:"threshold,omitempty"`

	// V2: compound condition tree, template, escalation, explicit channels.
	Condition          *ConditionDoc  `yaml:"condition,omitempty"`
	Template           string         `yaml:"template,omitempty"`
	SuppressionSeconds int            `yaml:"suppression_seconds,omitempty"`
	Escalation         *EscalationDoc `yaml:"escalation,omitempty"`
	Channels           []string       `yaml:"channels,omitempty"`
}

// EscalationStep is one compiled escalation step.
type EscalationStep struct {
	After    time.Duration
	Channels []string
}

// EscalationPolicy is a compiled escalation policy.
type EscalationPolicy struct {
	Name  string
	Steps []EscalationStep
}

// Rule is a compiled, ready-to-evaluate alert rule.
type Rule struct {
	ID                  string
	Version             string // "v1" or "v2"
	Severity            string
	Enabled             bool
	Condition           Condition
	Template            string
	SuppressionDuration time.Duration
	Escalation          *EscalationPolicy
	Channels            []string
}

// CompileRule validates a RuleDoc and builds the Condition tree and
// escalation policy it describes.
func CompileRule(doc RuleDoc) (*Rule, error) {
	if doc.ID == "" {
		return nil, fmt.Errorf("alert: rule missing id")
	}

	var (
		cond    Condition
		version string
	)
	switch {
	case doc.Condition != nil:
		version = "v2"
		var err error
		cond, err = compileConditionDoc(*doc.Condition)
		if err != nil {
			return nil, fmt.Errorf("alert: rule %q: %w", doc.ID, err)
		}
	case doc.Metric != "":
		version = "v1"
		cond = Condition{Kind: NodeSimple, Metric: doc.Metric, Op: Op(doc.Op), Threshold: doc.Threshold}
	default:
		return nil, fmt.Errorf("alert: rule %q has neither a v1 flat condition nor a v2 condition tree", doc.ID)
	}

	if err := cond.Validate(); err != nil {
		return nil, fmt.Errorf("alert: rule %q: %w", doc.ID, err)
	}

	suppression := DefaultSuppressionDuration
	if doc.SuppressionSeconds > 0 {
		suppression = time.Duration(doc.SuppressionSeconds) * time.Second
	}

	enabled := true
	if doc.Enabled != nil {
		enabled = *doc.Enabled
	}

	rule := &Rule{
		ID:                  doc.ID,
		Version:             version,
		Severity:            doc.Severity,
		Enabled:             enabled,
		Condition:           cond,
		Template:            doc.Template,
		SuppressionDuration: suppression,
		Channels:            doc.Channels,
	}

	if doc.Escalation != nil {
		policy, err := compileEscalationDoc(*doc.Escalation)
		if err != nil {
			return nil, fmt.Errorf("alert: rule %q: %w", doc.ID, err)
		}
		rule.Escalation = policy
	}

	return rule, nil
}

func compileConditionDoc(doc ConditionDoc) (Condition, error) {
	kind := NodeKind(doc.normalizedKind())
	docChildren := doc.normalizedChildren()
	switch kind {
	case NodeSimple:
		return Condition{Kind: NodeSimple, Metric: doc.Metric, Op: Op(doc.normalizedOp()), Threshold: float64(doc.Threshold)}, nil

	case NodeAnd, NodeOr:
		children := make([]Condition, 0, len(docChildren))
		for _, childDoc := range docChildren {
			child, err := compileConditionDoc(childDoc)
			if err != nil {
				return Condition{}, err
			}
			children = append(children, child)
		}
		return Condition{Kind: kind, Children: children}, nil

	case NodeNot:
		if len(docChildren) != 1 {
			return Condition{}, fmt.Errorf("not condition must have exactly one child, got %d", len(docChildren))
		}
		child, err := compileConditionDoc(docChildren[0])
		if err != nil {
			return Condition{}, err
		}
		return Condition{Kind: NodeNot, Children: []Condition{child}}, nil

	default:
		if doc.Kind != "" {
			return Condition{}, fmt.Errorf("unknown condition kind %q", doc.Kind)
		}
		return Condition{}, fmt.Errorf("unknown condition kind %q/%q", doc.Type, doc.Operator)
	}
}

func compileEscalationDoc(doc EscalationDoc) (*EscalationPolicy, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("escalation policy missing name")
	}
	steps := make([]EscalationStep, 0, len(doc.Steps))
	for _, s := range doc.Steps {
		if s.AfterSeconds <= 0 {
			return nil, fmt.Errorf("escalation policy %q: after_seconds must be positive", doc.Name)
		}
		if len(s.Channels) == 0 {
			return nil, fmt.Errorf("escalation policy %q: step at %ds has no channels", doc.Name, s.AfterSeconds)
		}
		steps = append(steps, EscalationStep{After: time.Duration(s.AfterSeconds) * time.Second, Channels: s.Channels})
	}
	return &EscalationPolicy{Name: doc.Name, Steps: steps}, nil
}
