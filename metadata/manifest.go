package metadata

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pcrain/ilreader/cil"
	"github.com/pcrain/ilreader/errors"
)

// Format is a manifest encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a manifest format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", errors.Unsupported(errors.PhaseLoad, fmt.Sprintf("manifest extension %q", filepath.Ext(path)))
}

// manifestDisk is the on-disk layout shared by both formats.
type manifestDisk struct {
	Name    string       `toml:"name" yaml:"name"`
	Members []memberDisk `toml:"member" yaml:"member"`
	Methods []methodDisk `toml:"method" yaml:"method"`
}

type memberDisk struct {
	Kind          string `toml:"kind" yaml:"kind"`
	DeclaringType string `toml:"declaring_type" yaml:"declaring_type"`
	Name          string `toml:"name" yaml:"name"`
	Signature     string `toml:"signature" yaml:"signature"`
	Token         uint32 `toml:"token" yaml:"token"`
}

type methodDisk struct {
	Name              string   `toml:"name" yaml:"name"`
	DeclaringTypeArgs []string `toml:"declaring_type_args" yaml:"declaring_type_args"`
	GenericArgs       []string `toml:"generic_args" yaml:"generic_args"`
	Body              string   `toml:"body" yaml:"body"`
	Token             uint32   `toml:"token" yaml:"token"`
	Constructor       bool     `toml:"constructor" yaml:"constructor"`
}

// Load reads a manifest file. The format follows the file extension.
func Load(path string) (*Module, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("cannot read %s", path), err)
	}

	mod, err := Parse(data, format)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.Path = append([]string{path}, e.Path...)
		}
		return nil, err
	}
	mod.Path = path

	Logger().Debug("loaded manifest",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.String("module", mod.Name),
		zap.Int("members", len(mod.members)),
		zap.Int("methods", len(mod.methods)))
	return mod, nil
}

// Parse decodes a manifest held in memory. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Module, error) {
	var raw manifestDisk
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &raw)
		if err != nil {
			return nil, errors.Load("parse toml manifest", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Load(fmt.Sprintf("unknown manifest key %q", undecoded[0].String()), nil)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Load("parse yaml manifest", err)
		}
	default:
		return nil, errors.Unsupported(errors.PhaseLoad, fmt.Sprintf("manifest format %q", format))
	}
	return raw.toModule()
}

func (d *manifestDisk) toModule() (*Module, error) {
	mod := &Module{
		Name:    strings.TrimSpace(d.Name),
		members: make(map[cil.Token]*Member, len(d.Members)),
		methods: make(map[string]*MethodEntry, len(d.Methods)),
	}

	for i, raw := range d.Members {
		m, err := raw.toMember()
		if err != nil {
			return nil, withPath(err, fmt.Sprintf("member[%d]", i))
		}
		if prev, ok := mod.members[m.token]; ok {
			return nil, errors.Collision(errors.PhaseLoad, m.token.String(), prev.String(), m.String())
		}
		mod.members[m.token] = m
	}

	for i, raw := range d.Methods {
		e, err := raw.toEntry()
		if err != nil {
			return nil, withPath(err, fmt.Sprintf("method[%d]", i))
		}
		if _, ok := mod.methods[e.Name]; ok {
			return nil, errors.Collision(errors.PhaseLoad, e.Name, e.Name, fmt.Sprintf("method[%d]", i))
		}
		mod.methods[e.Name] = e
	}
	return mod, nil
}

func (d memberDisk) toMember() (*Member, error) {
	kind, ok := parseKind(d.Kind)
	if !ok {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, fmt.Sprintf("unknown member kind %q", d.Kind))
	}
	tok := cil.Token(d.Token)
	if tok.IsNil() {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, fmt.Sprintf("member token %s has no row", tok))
	}
	if !tableAllowed(kind, tok.Table()) {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Value(tok).
			Detail("%s token %s points into the %s table", kind, tok, tok.Table()).
			Build()
	}
	if d.Name == "" {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, fmt.Sprintf("member %s has no name", tok))
	}
	return &Member{
		DeclaringType: d.DeclaringType,
		Name:          d.Name,
		Signature:     d.Signature,
		token:         tok,
		kind:          kind,
	}, nil
}

func (d methodDisk) toEntry() (*MethodEntry, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return nil, errors.InvalidData(errors.PhaseLoad, nil, "method has no name")
	}
	tok := cil.Token(d.Token)
	if tok != 0 && tok.Table() != cil.TableMethodDef {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidData).
			Path(name).
			Value(tok).
			Detail("method token %s is not a MethodDef", tok).
			Build()
	}
	if d.Constructor && len(d.GenericArgs) > 0 {
		return nil, errors.InvalidData(errors.PhaseLoad, []string{name}, "constructor cannot take generic arguments")
	}

	// Bodies may be wrapped or grouped for readability.
	body, err := hex.DecodeString(strings.Join(strings.Fields(d.Body), ""))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "method "+name+" body is not hex")
	}
	return &MethodEntry{
		Name:              name,
		Token:             tok,
		DeclaringTypeArgs: d.DeclaringTypeArgs,
		GenericArgs:       d.GenericArgs,
		Constructor:       d.Constructor,
		body:              body,
	}, nil
}

func withPath(err error, segment string) error {
	if e, ok := err.(*errors.Error); ok {
		e.Path = append([]string{segment}, e.Path...)
	}
	return err
}
