package metadata

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pcrain/ilreader/cil"
	"github.com/pcrain/ilreader/errors"
)

// Member is a method, constructor, field or type declared in a manifest.
// Generic placeholders (!N for the declaring type, !!N for the method) may
// appear in DeclaringType, Name and Signature until the member is resolved.
type Member struct {
	DeclaringType string
	Name          string
	// Signature is "ret(params)" for methods and the field type for
	// fields. Types leave it empty.
	Signature string
	token     cil.Token
	kind      cil.MemberKind
}

// Token implements cil.Member.
func (m *Member) Token() cil.Token { return m.token }

// Kind implements cil.Member.
func (m *Member) Kind() cil.MemberKind { return m.kind }

func (m *Member) String() string {
	switch m.kind {
	case cil.MemberType:
		return m.Name
	case cil.MemberField:
		qualified := qualify(m.DeclaringType, m.Name)
		if m.Signature == "" {
			return qualified
		}
		return m.Signature + " " + qualified
	}

	ret, params := splitSignature(m.Signature)
	qualified := qualify(m.DeclaringType, m.Name) + params
	if ret == "" {
		return qualified
	}
	return ret + " " + qualified
}

func qualify(declaring, name string) string {
	if declaring == "" {
		return name
	}
	return declaring + "::" + name
}

// splitSignature splits "void(int32)" into "void" and "(int32)".
func splitSignature(sig string) (ret, params string) {
	i := strings.IndexByte(sig, '(')
	if i < 0 {
		return strings.TrimSpace(sig), "()"
	}
	return strings.TrimSpace(sig[:i]), sig[i:]
}

// instantiate returns a copy of m with generic placeholders replaced.
func (m *Member) instantiate(typeArgs, methodArgs []string) (*Member, error) {
	out := *m
	var err error
	if out.DeclaringType, err = substitute(m.token, m.DeclaringType, typeArgs, methodArgs); err != nil {
		return nil, err
	}
	if out.Name, err = substitute(m.token, m.Name, typeArgs, methodArgs); err != nil {
		return nil, err
	}
	if out.Signature, err = substitute(m.token, m.Signature, typeArgs, methodArgs); err != nil {
		return nil, err
	}
	return &out, nil
}

// substitute replaces !N with typeArgs[N] and !!N with methodArgs[N].
// A '!' not followed by digits is copied unchanged.
func substitute(tok cil.Token, s string, typeArgs, methodArgs []string) (string, error) {
	if strings.IndexByte(s, '!') < 0 {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '!' {
			b.WriteByte(s[i])
			i++
			continue
		}

		j := i + 1
		args, what := typeArgs, "type"
		if j < len(s) && s[j] == '!' {
			args, what = methodArgs, "method"
			j++
		}
		k := j
		for k < len(s) && s[k] >= '0' && s[k] <= '9' {
			k++
		}
		if k == j {
			b.WriteString(s[i:k])
			i = k
			continue
		}

		n, err := strconv.Atoi(s[j:k])
		if err != nil || n >= len(args) {
			return "", errors.New(errors.PhaseResolve, errors.KindOutOfBounds).
				Path(tok.String()).
				Value(s[i:k]).
				Detail("generic parameter %s needs %s argument %s, %d supplied", s[i:k], what, s[j:k], len(args)).
				Build()
		}
		b.WriteString(args[n])
		i = k
	}
	return b.String(), nil
}

// kindTables lists the token tables each manifest kind may live in.
var kindTables = map[cil.MemberKind][]cil.TokenTable{
	cil.MemberMethod:      {cil.TableMethodDef, cil.TableMemberRef, cil.TableMethodSpec},
	cil.MemberConstructor: {cil.TableMethodDef, cil.TableMemberRef},
	cil.MemberField:       {cil.TableFieldDef, cil.TableMemberRef},
	cil.MemberType:        {cil.TableTypeDef, cil.TableTypeRef, cil.TableTypeSpec},
}

func parseKind(s string) (cil.MemberKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "method":
		return cil.MemberMethod, true
	case "constructor", "ctor":
		return cil.MemberConstructor, true
	case "field":
		return cil.MemberField, true
	case "type":
		return cil.MemberType, true
	}
	return 0, false
}

func tableAllowed(kind cil.MemberKind, table cil.TokenTable) bool {
	return slices.Contains(kindTables[kind], table)
}
