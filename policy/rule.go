package policy

// Rule types stored in the ptype column.
const (
	PTypePolicy = "p"
	PTypeGroup  = "g"
)

// EffectAllow is the only effect that grants access. Rules carrying any
// other effect value never allow and never override.
const EffectAllow = "allow"

// Subject prefixes used in p-rule subjects and g-rule names.
const (
	RolePrefix  = "role:"
	GroupPrefix = "group:"
)

// Rule is one row of the policy table. For p rules the columns are
// subject, object pattern, action pattern, condition and effect. For g
// rules V0 is the child name and V1 the parent role or group.
type Rule struct {
	PType string
	V0    string
	V1    string
	V2    string
	V3    string
	V4    string
	V5    string
}

// P builds a p rule. An empty condition always passes; an empty effect
// means allow.
func P(subject, object, action, condition, effect string) Rule {
	if effect == "" {
		effect = EffectAllow
	}
	return Rule{PType: PTypePolicy, V0: subject, V1: object, V2: action, V3: condition, V4: effect}
}

// G builds a g rule linking a child name to a parent role or group.
func G(child, parent string) Rule {
	return Rule{PType: PTypeGroup, V0: child, V1: parent}
}
