package metadata

import (
	"slices"
	"strings"

	"github.com/pcrain/ilreader/cil"
	"github.com/pcrain/ilreader/errors"
)

// Module is the owning module of a set of method bodies. It is read-only
// after loading and safe for concurrent use.
type Module struct {
	members map[cil.Token]*Member
	methods map[string]*MethodEntry
	Name    string
	Path    string // empty for manifests parsed from memory
}

// ResolveMember implements cil.Resolver. The returned member is a copy with
// !N replaced from typeArgs and !!N from methodArgs.
func (m *Module) ResolveMember(tok cil.Token, typeArgs, methodArgs []string) (cil.Member, error) {
	if tok.IsNil() {
		return nil, errors.New(errors.PhaseResolve, errors.KindInvalidInput).
			Value(tok).
			Detail("token %s has no row", tok).
			Build()
	}
	member, ok := m.members[tok]
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "member", tok.String())
	}
	inst, err := member.instantiate(typeArgs, methodArgs)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Lookup returns the declared member for tok without substitution.
func (m *Module) Lookup(tok cil.Token) (*Member, bool) {
	member, ok := m.members[tok]
	return member, ok
}

// Method returns the method entry with the given name.
func (m *Module) Method(name string) (*MethodEntry, error) {
	e, ok := m.methods[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "method", name)
	}
	return e, nil
}

// Methods returns every method entry sorted by name.
func (m *Module) Methods() []*MethodEntry {
	out := make([]*MethodEntry, 0, len(m.methods))
	for _, e := range m.methods {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *MethodEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// MethodEntry is a method body declared in a manifest along with the
// generic context it is decoded under.
type MethodEntry struct {
	Name              string
	DeclaringTypeArgs []string
	GenericArgs       []string
	body              []byte
	Token             cil.Token
	Constructor       bool
}

// Context builds the method context for decoding this entry's body
// against r, normally the Module the entry was loaded from.
func (e *MethodEntry) Context(r cil.Resolver) cil.Method {
	return cil.Method{
		Module:      r,
		TypeArgs:    e.DeclaringTypeArgs,
		GenericArgs: e.GenericArgs,
		Constructor: e.Constructor,
	}
}

// RawBody returns the body bytes, header included.
func (e *MethodEntry) RawBody() []byte {
	return e.body
}

// Body parses the entry's method body.
func (e *MethodEntry) Body() (*cil.MethodBody, error) {
	body, err := cil.ParseMethodBody(e.body)
	if err != nil {
		return nil, withPath(err, e.Name)
	}
	return body, nil
}
