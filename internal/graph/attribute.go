package graph

// AttrID indexes a declared attribute. Every flow and boundary stores its
// attribute values in a slice indexed by AttrID, so names are resolved once
// at declaration time and never looked up per tick.
type AttrID int

// NoAttr is returned where no attribute applies.
const NoAttr AttrID = -1

// Attribute describes a named scalar carried by every flow and boundary.
type Attribute struct {
	ID   AttrID
	Name string

	// Direction marks the attribute whose sign determines a flow's endpoint
	// order. At most one attribute may carry it.
	Direction bool

	// Default produces the initial value for flows that do not override it.
	// Nil means zero.
	Default func() float64
}

// AttributeOptions configures DeclareAttribute.
type AttributeOptions struct {
	Direction bool
	Default   func() float64
}

// Constant returns a default initializer that always yields v.
func Constant(v float64) func() float64 {
	return func() float64 { return v }
}

// DeclareAttribute registers an attribute, or updates the initializer of an
// existing one. Redeclaring keeps an existing direction flag. It fails with a
// ConfigError once flows exist or when a second attribute claims Direction.
func (g *Graph) DeclareAttribute(name string, opts AttributeOptions) (AttrID, error) {
	if len(g.Flows) > 0 {
		return NoAttr, configErrorf("declare attribute", ErrLateAttribute, "%q", name)
	}

	if id, ok := g.attrIndex[name]; ok {
		a := &g.attrs[id]
		if opts.Direction && !a.Direction {
			if g.direction != NoAttr {
				return NoAttr, configErrorf("declare attribute", ErrDuplicateDirection,
					"%q conflicts with %q", name, g.attrs[g.direction].Name)
			}
			a.Direction = true
			g.direction = id
		}
		if opts.Default != nil {
			a.Default = opts.Default
		}
		return id, nil
	}

	if opts.Direction && g.direction != NoAttr {
		return NoAttr, configErrorf("declare attribute", ErrDuplicateDirection,
			"%q conflicts with %q", name, g.attrs[g.direction].Name)
	}

	id := AttrID(len(g.attrs))
	g.attrs = append(g.attrs, Attribute{
		ID:        id,
		Name:      name,
		Direction: opts.Direction,
		Default:   opts.Default,
	})
	g.attrIndex[name] = id
	if opts.Direction {
		g.direction = id
	}

	// Boundaries created before this declaration still need a slot.
	for i := range g.Boundaries {
		g.Boundaries[i].Attrs = append(g.Boundaries[i].Attrs, 0)
	}
	return id, nil
}

// Attr resolves an attribute name. Referencing an undeclared attribute is a
// ConfigError.
func (g *Graph) Attr(name string) (AttrID, error) {
	id, ok := g.attrIndex[name]
	if !ok {
		return NoAttr, configErrorf("resolve attribute", ErrUnknownAttribute, "%q", name)
	}
	return id, nil
}

// Attributes returns the declared attributes in declaration order.
func (g *Graph) Attributes() []Attribute {
	out := make([]Attribute, len(g.attrs))
	copy(out, g.attrs)
	return out
}

// DirectionAttr returns the direction attribute, or a ConfigError when none
// has been declared.
func (g *Graph) DirectionAttr() (AttrID, error) {
	if g.direction == NoAttr {
		return NoAttr, configErrorf("direction attribute", ErrNoDirection, "")
	}
	return g.direction, nil
}
