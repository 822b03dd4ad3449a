package descriptor

// Descriptor is a deprecated alias of Output, kept for callers migrating off
// the earlier "descriptor" terminology that predates Output. Prefer New.
type Descriptor = Output

// NewFromExpression is the deprecated counterpart of New, accepting a
// descriptor string under its old "expression" name.
func NewFromExpression(expression string, opts ...Option) (*Descriptor, error) {
	return New(expression, opts...)
}
