package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"kava/pkg/driver"
	"kava/pkg/errors"
	"kava/pkg/lexer"
	"kava/pkg/parser"
	"kava/pkg/source"
)

const version = "0.3.1"

const (
	historyFile = ".kava_history"
	promptMain  = "kava> "
	promptCont  = "....> "
)

func main() {
	exprFlag := flag.String("e", "", "Compile the given snippet and print the JavaScript")
	printFlag := flag.Bool("p", false, "Print the compiled JavaScript to stdout instead of writing a file")
	outputFlag := flag.String("o", "", "Output file (default: input file with .js extension)")
	bareFlag := flag.Bool("b", false, "Compile without the isolating closure wrapper")
	tokensFlag := flag.Bool("tokens", false, "Dump the token stream instead of compiling")
	buildFlag := flag.String("build", "", "Compile every target listed in the given kava.yml manifest")
	versionFlag := flag.Bool("version", false, "Print version and exit")

	flag.Parse()

	if *versionFlag {
		fmt.Println("kava " + version)
		return
	}

	opts := driver.CompileOptions{Bare: *bareFlag}

	if *buildFlag != "" {
		if flag.NArg() > 0 || *exprFlag != "" {
			fmt.Fprintf(os.Stderr, "Usage: kava -build <kava.yml>\n")
			os.Exit(64)
		}
		runBuild(*buildFlag, opts)
		return
	}

	if *exprFlag != "" {
		compileSnippet(*exprFlag, *tokensFlag, opts)
		return
	}

	if flag.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "Usage: kava [options] [file.kava] or kava -e \"code\"\n")
		os.Exit(64)
	}

	if flag.NArg() == 1 {
		compileFile(flag.Arg(0), *outputFlag, *printFlag, *tokensFlag, opts)
		return
	}

	runRepl()
}

// compileSnippet handles -e: compile an inline snippet and print the
// JavaScript to stdout.
func compileSnippet(code string, dumpTokens bool, opts driver.CompileOptions) {
	if dumpTokens {
		printTokens(code)
		return
	}
	js, errs := driver.CompileSource(source.NewEvalSource(code), opts)
	if len(errs) > 0 {
		errors.DisplayErrors(code, errs)
		os.Exit(70)
	}
	fmt.Println(js)
}

func compileFile(path, output string, print, dumpTokens bool, opts driver.CompileOptions) {
	if dumpTokens {
		file, err := source.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read file '%s': %s\n", path, err.Error())
			os.Exit(70)
		}
		printTokens(file.Content)
		return
	}

	if print {
		js, errs := driver.CompileFile(path, opts)
		if len(errs) > 0 {
			displayFileErrors(path, errs)
			os.Exit(70)
		}
		fmt.Println(js)
		return
	}

	if errs := driver.WriteJSFile(path, output, opts); len(errs) > 0 {
		displayFileErrors(path, errs)
		os.Exit(70)
	}
}

// runBuild compiles every manifest target, installing dependencies
// first when the manifest lists any.
func runBuild(manifestPath string, opts driver.CompileOptions) {
	manifest, err := driver.LoadManifest(manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(70)
	}
	if len(manifest.Dependencies) > 0 {
		if _, err := driver.InstallDependencies(manifest, ""); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err.Error())
			os.Exit(70)
		}
	}
	if errs := driver.BuildFromManifest(manifest, opts); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "%s\n", e.Error())
		}
		os.Exit(70)
	}
}

func displayFileErrors(path string, errs []errors.KavaError) {
	file, err := source.ReadFile(path)
	if err != nil {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "%s\n", e.Error())
		}
		return
	}
	errors.DisplayErrors(file.Content, errs)
}

func printTokens(code string) {
	l := lexer.NewLexer(code)
	for {
		tok := l.NextToken()
		fmt.Printf("%-8s %q  %d:%d\n", tok.Type, tok.Literal, tok.Line, tok.Column)
		if tok.Type == lexer.EOF {
			return
		}
	}
}

// runRepl starts the interactive loop. Each complete snippet compiles
// bare (no closure wrapper) so the JavaScript reads like the input.
func runRepl() {
	fmt.Printf("Kava %s (Ctrl+C aborts input, Ctrl+D exits)\n", version)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		code, ok := readSnippet(ln)
		if !ok {
			fmt.Println()
			return
		}
		if strings.TrimSpace(code) == "" {
			continue
		}

		js, errs := driver.CompileSource(source.NewReplSource(code), driver.CompileOptions{Bare: true})
		if len(errs) > 0 {
			errors.DisplayErrors(code, errs)
			continue
		}
		fmt.Println(js)
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
	}
}

// readSnippet accumulates lines until the buffer parses or fails with a
// hard error. Incomplete input (an open indented block) keeps reading
// under the continuation prompt.
func readSnippet(ln *liner.State) (string, bool) {
	var b strings.Builder

	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if err == io.EOF {
			return "", false
		}
		if err == liner.ErrPromptAborted {
			return "", true
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if parser.IsIncomplete(src) {
			continue
		}
		return src, true
	}
}
