package driver

import (
	"os"
	"path/filepath"
	"strings"

	"kava/pkg/errors"
	"kava/pkg/lexer"
	"kava/pkg/nodes"
	"kava/pkg/parser"
	"kava/pkg/source"
)

// CompileOptions configures a compilation.
type CompileOptions struct {
	// Bare skips the isolating closure wrapper and emits the statements
	// at the top level. The REPL compiles bare; files default to wrapped.
	Bare bool
}

// CompileString compiles Kava source text and returns the JavaScript,
// wrapped in the isolating closure.
func CompileString(src string) (string, []errors.KavaError) {
	return CompileSource(source.NewEvalSource(src), CompileOptions{})
}

// CompileSource runs the full pipeline on a source file: lex, parse,
// compile. The first failing stage short-circuits.
func CompileSource(file *source.SourceFile, opts CompileOptions) (string, []errors.KavaError) {
	p := parser.NewParser(lexer.NewLexer(file.Content))
	program, parseErrs := p.ParseProgram()
	if len(parseErrs) > 0 {
		return "", parseErrs
	}

	var js string
	var err error
	if opts.Bare {
		js, err = program.Compile("", nodes.NewScope(nil), nodes.Options{})
	} else {
		js, err = program.CompileRoot()
	}
	if err != nil {
		return "", compileFailure(err)
	}
	return js, nil
}

// CompileFile reads and compiles a .kava file.
func CompileFile(path string, opts CompileOptions) (string, []errors.KavaError) {
	file, err := source.ReadFile(path)
	if err != nil {
		readErr := errors.NewCompileError(errors.Unknown, "failed to read %s: %s", path, err.Error())
		return "", []errors.KavaError{readErr}
	}
	return CompileSource(file, opts)
}

// WriteJSFile compiles inputPath and writes the JavaScript to
// outputPath. An empty outputPath swaps the .kava extension for .js.
func WriteJSFile(inputPath, outputPath string, opts CompileOptions) []errors.KavaError {
	js, errs := CompileFile(inputPath, opts)
	if len(errs) > 0 {
		return errs
	}
	if outputPath == "" {
		outputPath = OutputName(inputPath)
	}
	if err := os.WriteFile(outputPath, []byte(js+"\n"), 0o644); err != nil {
		writeErr := errors.NewCompileError(errors.Unknown, "failed to write %s: %s", outputPath, err.Error())
		return []errors.KavaError{writeErr}
	}
	return nil
}

// OutputName derives the JavaScript file name for a Kava input path.
func OutputName(inputPath string) string {
	return strings.TrimSuffix(inputPath, ".kava") + ".js"
}

// BuildFromManifest compiles every manifest target into the output
// directory. Target paths and the output directory resolve relative to
// the manifest's own directory; a bare manifest builds bare regardless
// of opts. Compilation continues past a failing target so one build
// reports every broken file.
func BuildFromManifest(m *Manifest, opts CompileOptions) []errors.KavaError {
	root := filepath.Dir(m.Path)
	outDir := m.Out
	if outDir == "" {
		outDir = "."
	}
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(root, outDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		mkErr := errors.NewCompileError(errors.Unknown, "failed to create %s: %s", outDir, err.Error())
		return []errors.KavaError{mkErr}
	}

	effective := opts
	effective.Bare = opts.Bare || m.Bare

	var all []errors.KavaError
	for _, target := range m.Targets {
		input := target
		if !filepath.IsAbs(input) {
			input = filepath.Join(root, input)
		}
		output := filepath.Join(outDir, OutputName(filepath.Base(target)))
		if errs := WriteJSFile(input, output, effective); len(errs) > 0 {
			all = append(all, errs...)
		}
	}
	return all
}

func compileFailure(err error) []errors.KavaError {
	if kerr, ok := err.(errors.KavaError); ok {
		return []errors.KavaError{kerr}
	}
	return []errors.KavaError{errors.NewCompileError(errors.Unknown, "%s", err.Error())}
}
