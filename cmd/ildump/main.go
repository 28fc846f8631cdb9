package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/pcrain/ilreader/cil"
	"github.com/pcrain/ilreader/disasm"
	"github.com/pcrain/ilreader/metadata"
)

type config struct {
	manifest    string
	method      string
	body        string
	typeArgs    string
	methodArgs  string
	switchMode  string
	tokenScope  string
	format      string
	color       string
	raw         bool
	ctor        bool
	list        bool
	verbose     bool
	interactive bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.manifest, "manifest", "", "Path to a TOML or YAML metadata manifest")
	flag.StringVar(&cfg.method, "method", "", "Method in the manifest to disassemble")
	flag.StringVar(&cfg.body, "body", "", "Path to a binary method body")
	flag.BoolVar(&cfg.raw, "raw", false, "Body file is bare IL with no method header")
	flag.StringVar(&cfg.typeArgs, "type-args", "", "Declaring type generic arguments (comma-separated)")
	flag.StringVar(&cfg.methodArgs, "method-args", "", "Method generic arguments (comma-separated)")
	flag.BoolVar(&cfg.ctor, "ctor", false, "Decode the body as a constructor")
	flag.StringVar(&cfg.switchMode, "switch", "table", "Switch operand decoding: table or count")
	flag.StringVar(&cfg.tokenScope, "tokens", "members", "Token operands to resolve: members or methods")
	flag.StringVar(&cfg.format, "format", "text", "Output format: text, yaml or cbor")
	flag.BoolVar(&cfg.list, "list", false, "List methods in the manifest and exit")
	flag.StringVar(&cfg.color, "color", "auto", "Colorize text output: auto, always or never")
	flag.BoolVar(&cfg.verbose, "v", false, "Log decoding diagnostics to stderr")
	flag.BoolVar(&cfg.interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if cfg.manifest == "" && cfg.body == "" {
		fmt.Fprintln(os.Stderr, "Usage: ildump -manifest <file.toml|file.yaml> -method <name> [-format text|yaml|cbor]")
		fmt.Fprintln(os.Stderr, "       ildump -manifest <file> -list")
		fmt.Fprintln(os.Stderr, "       ildump -body <file> [-raw] [-manifest <file>] [-type-args a,b] [-method-args a,b]")
		fmt.Fprintln(os.Stderr, "       ildump ... -i  (interactive mode)")
		os.Exit(1)
	}

	if cfg.verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		cil.SetLogger(logger)
		metadata.SetLogger(logger)
	}

	if err := run(cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config, out io.Writer) error {
	var mod *metadata.Module
	if cfg.manifest != "" {
		var err error
		if mod, err = metadata.Load(cfg.manifest); err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}
	}

	if cfg.list {
		if mod == nil {
			return fmt.Errorf("-list needs -manifest")
		}
		return listMethods(out, mod)
	}

	opts, err := decodeOptions(cfg)
	if err != nil {
		return err
	}

	listing, err := disassemble(cfg, mod, opts)
	if listing == nil {
		return err
	}
	if err != nil {
		// Show what decoded before the failure.
		if cfg.format == "text" && !cfg.interactive {
			_ = disasm.WriteText(out, listing, nil)
		}
		return fmt.Errorf("disassemble %s: %w", listing.Method, err)
	}

	if cfg.interactive {
		return runInteractive(listing)
	}

	switch cfg.format {
	case "text":
		style, err := textStyle(cfg.color, out)
		if err != nil {
			return err
		}
		return disasm.WriteText(out, listing, style)
	case "yaml":
		return disasm.WriteYAML(out, listing)
	case "cbor":
		return disasm.WriteCBOR(out, listing)
	}
	return fmt.Errorf("unknown -format %q", cfg.format)
}

func disassemble(cfg config, mod *metadata.Module, opts []cil.Option) (*disasm.Listing, error) {
	table := cil.InitOpcodeTable()

	var method cil.Method
	if mod != nil {
		method.Module = mod
	}

	if cfg.method != "" {
		if mod == nil {
			return nil, fmt.Errorf("-method needs -manifest")
		}
		entry, err := mod.Method(cfg.method)
		if err != nil {
			return nil, err
		}
		body, err := entry.Body()
		if err != nil {
			return nil, err
		}
		method = entry.Context(mod)
		applyOverrides(cfg, &method)

		l, err := disasm.Disassemble(table, body, method, opts...)
		if l != nil {
			l.Method = entry.Name
		}
		return l, err
	}

	if cfg.body == "" {
		return nil, fmt.Errorf("need -method or -body")
	}
	data, err := os.ReadFile(cfg.body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	applyOverrides(cfg, &method)

	var l *disasm.Listing
	if cfg.raw {
		l, err = disasm.DisassembleCode(table, data, method, opts...)
	} else {
		body, perr := cil.ParseMethodBody(data)
		if perr != nil {
			return nil, fmt.Errorf("parse body: %w", perr)
		}
		l, err = disasm.Disassemble(table, body, method, opts...)
	}
	if l != nil {
		l.Method = cfg.body
	}
	return l, err
}

// applyOverrides lets flags replace the generic context from the manifest.
func applyOverrides(cfg config, m *cil.Method) {
	if args := splitList(cfg.typeArgs); args != nil {
		m.TypeArgs = args
	}
	if args := splitList(cfg.methodArgs); args != nil {
		m.GenericArgs = args
	}
	if cfg.ctor {
		m.Constructor = true
	}
}

func decodeOptions(cfg config) ([]cil.Option, error) {
	var opts []cil.Option

	switch cfg.switchMode {
	case "table", "":
		opts = append(opts, cil.WithSwitchMode(cil.SwitchTable))
	case "count":
		opts = append(opts, cil.WithSwitchMode(cil.SwitchCountOnly))
	default:
		return nil, fmt.Errorf("unknown -switch %q", cfg.switchMode)
	}

	switch cfg.tokenScope {
	case "members", "":
		opts = append(opts, cil.WithTokenScope(cil.TokenScopeMembers))
	case "methods":
		opts = append(opts, cil.WithTokenScope(cil.TokenScopeMethods))
	default:
		return nil, fmt.Errorf("unknown -tokens %q", cfg.tokenScope)
	}
	return opts, nil
}

func listMethods(out io.Writer, mod *metadata.Module) error {
	fmt.Fprintf(out, "Module: %s\n", mod.Name)
	fmt.Fprintf(out, "Methods:\n")
	for _, e := range mod.Methods() {
		var generic []string
		if len(e.DeclaringTypeArgs) > 0 {
			generic = append(generic, "type<"+strings.Join(e.DeclaringTypeArgs, ",")+">")
		}
		if len(e.GenericArgs) > 0 {
			generic = append(generic, "method<"+strings.Join(e.GenericArgs, ",")+">")
		}
		if e.Constructor {
			generic = append(generic, "ctor")
		}
		suffix := ""
		if len(generic) > 0 {
			suffix = " [" + strings.Join(generic, " ") + "]"
		}
		fmt.Fprintf(out, "  %s %s (%d bytes)%s\n", e.Token, e.Name, len(e.RawBody()), suffix)
	}
	return nil
}

// textStyle picks listing colors for out. Non-file writers are never
// colored in auto mode.
func textStyle(mode string, out io.Writer) (*disasm.Style, error) {
	switch mode {
	case "never":
		return nil, nil
	case "always":
		r := lipgloss.NewRenderer(out)
		r.SetColorProfile(termenv.ANSI256)
		return disasm.DefaultStyle(r), nil
	case "auto", "":
		f, ok := out.(*os.File)
		if !ok || !term.IsTerminal(int(f.Fd())) {
			return nil, nil
		}
		return disasm.DefaultStyle(lipgloss.NewRenderer(out)), nil
	}
	return nil, fmt.Errorf("unknown -color %q", mode)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}
