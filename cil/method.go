package cil

// MemberKind classifies a resolved member.
type MemberKind uint8

const (
	MemberMethod MemberKind = iota
	MemberConstructor
	MemberField
	MemberType
)

func (k MemberKind) String() string {
	switch k {
	case MemberMethod:
		return "method"
	case MemberConstructor:
		return "constructor"
	case MemberField:
		return "field"
	case MemberType:
		return "type"
	}
	return "unknown"
}

// Member is a program element a token operand resolved to.
type Member interface {
	Token() Token
	Kind() MemberKind
	String() string
}

// Resolver turns a raw token into a member of the owning module. typeArgs
// and methodArgs substitute generic parameters of the declaring type and of
// the method; either may be nil.
type Resolver interface {
	ResolveMember(tok Token, typeArgs, methodArgs []string) (Member, error)
}

// MethodContext describes the method whose body is being decoded.
type MethodContext interface {
	Resolver
	// DeclaringTypeArgs returns the generic arguments of the declaring
	// type, nil when it is unknown or not generic.
	DeclaringTypeArgs() []string
	// MethodArgs returns the method's own generic arguments.
	MethodArgs() []string
	// IsConstructor reports whether the method is a constructor, which
	// never carries generic arguments of its own.
	IsConstructor() bool
}

// Method is a MethodContext backed by a module Resolver.
type Method struct {
	Module      Resolver
	TypeArgs    []string
	GenericArgs []string
	Constructor bool
}

// ResolveMember delegates to the owning module.
func (m Method) ResolveMember(tok Token, typeArgs, methodArgs []string) (Member, error) {
	if m.Module == nil {
		return nil, errNoModule
	}
	return m.Module.ResolveMember(tok, typeArgs, methodArgs)
}

// DeclaringTypeArgs implements MethodContext.
func (m Method) DeclaringTypeArgs() []string { return m.TypeArgs }

// MethodArgs implements MethodContext.
func (m Method) MethodArgs() []string { return m.GenericArgs }

// IsConstructor implements MethodContext.
func (m Method) IsConstructor() bool { return m.Constructor }
