package cil

import "fmt"

// Token is a metadata token: table index in the high byte, row id below.
type Token uint32

// TokenTable identifies the metadata table a token points into.
type TokenTable uint8

const (
	TableModule        TokenTable = 0x00
	TableTypeRef       TokenTable = 0x01
	TableTypeDef       TokenTable = 0x02
	TableFieldDef      TokenTable = 0x04
	TableMethodDef     TokenTable = 0x06
	TableParamDef      TokenTable = 0x08
	TableMemberRef     TokenTable = 0x0A
	TableStandAloneSig TokenTable = 0x11
	TableTypeSpec      TokenTable = 0x1B
	TableMethodSpec    TokenTable = 0x2B
	TableUserString    TokenTable = 0x70
)

func (t TokenTable) String() string {
	switch t {
	case TableModule:
		return "Module"
	case TableTypeRef:
		return "TypeRef"
	case TableTypeDef:
		return "TypeDef"
	case TableFieldDef:
		return "FieldDef"
	case TableMethodDef:
		return "MethodDef"
	case TableParamDef:
		return "ParamDef"
	case TableMemberRef:
		return "MemberRef"
	case TableStandAloneSig:
		return "StandAloneSig"
	case TableTypeSpec:
		return "TypeSpec"
	case TableMethodSpec:
		return "MethodSpec"
	case TableUserString:
		return "UserString"
	}
	return fmt.Sprintf("Table(0x%02x)", uint8(t))
}

// NewToken builds a token from a table and row id.
func NewToken(table TokenTable, rid uint32) Token {
	return Token(uint32(table)<<24 | rid&0x00FFFFFF)
}

// Table returns the metadata table of the token.
func (t Token) Table() TokenTable {
	return TokenTable(t >> 24)
}

// RID returns the row id (or heap offset for user strings).
func (t Token) RID() uint32 {
	return uint32(t) & 0x00FFFFFF
}

// IsNil reports whether the token has no row.
func (t Token) IsNil() bool {
	return t.RID() == 0
}

func (t Token) String() string {
	return fmt.Sprintf("0x%08x", uint32(t))
}
