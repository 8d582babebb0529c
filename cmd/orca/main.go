// Orca CLI - compile, run, inspect and serve Orca programs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/orca/compiler"
	"github.com/chazu/orca/manifest"
	"github.com/chazu/orca/nlib"
	"github.com/chazu/orca/server"
	"github.com/chazu/orca/vm"
	"github.com/chazu/orca/vm/image"
)

var version = "0.1.0"

var log = commonlog.GetLogger("orca.cli")

// Source and program file extensions.
const (
	extSource = ".orca"
	extText   = ".orcb"
	extImage  = ".orci"
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// cli carries the streams and settings shared by every subcommand.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	trace  bool
}

func realMain(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("orca", flag.ContinueOnError)
	flags.SetOutput(stderr)
	verbose := flags.Bool("v", false, "Verbose logging")
	debug := flags.Bool("vv", false, "Debug logging")
	trace := flags.Bool("trace", false, "Log every executed instruction (implies -vv)")
	flags.Usage = func() { usage(stderr, flags) }
	if err := flags.Parse(args); err != nil {
		return 2
	}

	verbosity := 0
	switch {
	case *debug || *trace:
		verbosity = 2
	case *verbose:
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	rest := flags.Args()
	if len(rest) == 0 {
		usage(stderr, flags)
		return 2
	}

	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr, trace: *trace}
	cmd, cmdArgs := rest[0], rest[1:]
	var err error
	switch cmd {
	case "run":
		err = c.cmdRun(cmdArgs)
	case "build":
		err = c.cmdBuild(cmdArgs)
	case "exec":
		err = c.cmdExec(cmdArgs)
	case "disasm":
		err = c.cmdDisasm(cmdArgs)
	case "check":
		err = c.cmdCheck(cmdArgs)
	case "serve":
		err = c.cmdServe(cmdArgs)
	case "lsp":
		err = server.NewLSP(version).Run()
	case "version":
		fmt.Fprintf(stdout, "orca %s\n%s\n", version, nlib.Banner)
	case "help":
		usage(stdout, flags)
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n", cmd)
		usage(stderr, flags)
		return 2
	}

	var usageErr *usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usageErr):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	case errors.Is(err, errReported):
		return 1
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func usage(w io.Writer, flags *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: orca [options] <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  run [file.orca]            Compile and run a source file\n")
	fmt.Fprintf(w, "  build [-o out] [-format text|image] [file.orca]\n")
	fmt.Fprintf(w, "                             Compile to text assembly or a binary image\n")
	fmt.Fprintf(w, "  exec <file.orcb|file.orci> Run a compiled program\n")
	fmt.Fprintf(w, "  disasm <file>              List the instructions of a source or program\n")
	fmt.Fprintf(w, "  check [file.orca]          Report diagnostics without running\n")
	fmt.Fprintf(w, "  serve [-addr host:port]    Start the toolchain server (Connect/gRPC)\n")
	fmt.Fprintf(w, "  lsp                        Start the language server on stdio\n")
	fmt.Fprintf(w, "  version                    Print the version\n")
	fmt.Fprintf(w, "\nWithout a file, commands use the entry of the nearest %s.\n", manifest.FileName)
	fmt.Fprintf(w, "\nOptions:\n")
	flags.SetOutput(w)
	flags.PrintDefaults()
}

// usageError marks bad command lines (exit status 2).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// errReported means the failure was already printed.
var errReported = errors.New("reported")

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// loadConfig finds the manifest governing dir, falling back to defaults
// rooted at dir, and applies environment overrides.
func loadConfig(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
		if m.Dir, err = filepath.Abs(dir); err != nil {
			return nil, err
		}
	}
	if err := m.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return m, nil
}

// configFor loads the configuration for an optional file argument and
// returns the file to use: the argument, or the manifest entry.
func configFor(args []string) (*manifest.Manifest, string, error) {
	if len(args) > 1 {
		return nil, "", &usageError{fmt.Sprintf("expected at most one file, got %d", len(args))}
	}
	if len(args) == 1 {
		m, err := loadConfig(filepath.Dir(args[0]))
		return m, args[0], err
	}
	m, err := loadConfig(".")
	if err != nil {
		return nil, "", err
	}
	return m, m.EntryPath(), nil
}

// openCache opens the configured program cache, or returns nil.
func openCache(m *manifest.Manifest) (*image.SQLiteCache, error) {
	path := m.CachePath()
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("cache directory: %w", err)
	}
	return image.OpenSQLiteCache(path)
}

// ---------------------------------------------------------------------------
// Compiling and loading
// ---------------------------------------------------------------------------

// compileFile compiles a source file, printing diagnostics to stderr.
func (c *cli) compileFile(path string, m *manifest.Manifest) (*vm.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src := string(data)
	compile := func(src string) (*vm.Program, error) {
		return compiler.Compile(src, nil)
	}

	cache, err := openCache(m)
	if err != nil {
		log.Warningf("program cache disabled: %s", err)
	}
	var p *vm.Program
	if cache != nil {
		defer cache.Close()
		var hit bool
		p, hit, err = image.Compile(cache, compiler.Toolchain(nil), src, compile)
		if hit {
			log.Infof("%s: loaded from cache", path)
		}
	} else {
		p, err = compile(src)
	}

	var diags compiler.Diagnostics
	if errors.As(err, &diags) {
		c.printDiagnostics(path, diags)
		return nil, errReported
	}
	return p, err
}

func (c *cli) printDiagnostics(path string, diags compiler.Diagnostics) {
	for _, d := range diags {
		fmt.Fprintf(c.stderr, "%s:%d: %s: %s\n", path, d.Line, d.Category, d.Message)
	}
}

// loadProgram reads a program by extension: sources are compiled, images
// decoded, anything else parsed as text assembly.
func (c *cli) loadProgram(path string, m *manifest.Manifest) (*vm.Program, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case extSource:
		return c.compileFile(path, m)
	case extImage:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return image.Unmarshal(data)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return vm.ParseText(string(data))
	}
}

// ---------------------------------------------------------------------------
// Running
// ---------------------------------------------------------------------------

// runProgram executes p with print going to stdout and read taking lines
// from stdin. Interrupts cancel the run.
func (c *cli) runProgram(p *vm.Program, m *manifest.Manifest) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	console := vm.NewConsole(c.stdout)
	machine := vm.New(
		vm.WithNatives(nlib.Natives()),
		vm.WithConsole(console),
		vm.WithMaxStack(m.VM.MaxStack),
		vm.WithTrace(m.VM.Trace || c.trace),
	)
	machine.Load(p)

	input := newInput(c.stdin)
	defer input.Close()
	go feedConsole(ctx, console, input, cancel)

	err := machine.Run(ctx)
	if cause := context.Cause(ctx); err != nil && cause != nil && !errors.Is(cause, context.Canceled) {
		return fmt.Errorf("run stopped: %w", cause)
	}
	return err
}

func (c *cli) cmdRun(args []string) error {
	m, path, err := configFor(args)
	if err != nil {
		return err
	}
	p, err := c.compileFile(path, m)
	if err != nil {
		return err
	}
	return c.runProgram(p, m)
}

func (c *cli) cmdExec(args []string) error {
	if len(args) != 1 {
		return &usageError{"exec needs exactly one program file"}
	}
	m, err := loadConfig(filepath.Dir(args[0]))
	if err != nil {
		return err
	}
	p, err := c.loadProgram(args[0], m)
	if err != nil {
		return err
	}
	return c.runProgram(p, m)
}

// ---------------------------------------------------------------------------
// Build, check, disasm
// ---------------------------------------------------------------------------

func (c *cli) cmdBuild(args []string) error {
	flags := flag.NewFlagSet("build", flag.ContinueOnError)
	flags.SetOutput(c.stderr)
	output := flags.String("o", "", "Output file (default from "+manifest.FileName+")")
	format := flags.String("format", "", "Output format: text or image")
	if err := flags.Parse(args); err != nil {
		return &usageError{err.Error()}
	}

	m, path, err := configFor(flags.Args())
	if err != nil {
		return err
	}
	if *format != "" {
		m.Build.Format = strings.ToLower(*format)
		if err := m.Validate(); err != nil {
			return &usageError{err.Error()}
		}
	}
	if len(flags.Args()) == 1 && m.Build.Output == "" {
		// Build next to the named source rather than the manifest entry.
		m.Source.Entry, _ = filepath.Abs(path)
	}
	out := m.OutputPath()
	if *output != "" {
		out = *output
	}

	p, err := c.compileFile(path, m)
	if err != nil {
		return err
	}

	var data []byte
	if m.Build.Format == manifest.FormatImage {
		if data, err = image.Marshal(p); err != nil {
			return err
		}
	} else {
		data = []byte(vm.FormatText(p) + "\n")
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return err
	}
	log.Infof("built %s (%d instructions, %s)", out, len(p.Code), m.Build.Format)
	return nil
}

func (c *cli) cmdCheck(args []string) error {
	_, path, err := configFor(args)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	diags := compiler.Check(string(data), nil)
	if len(diags) > 0 {
		c.printDiagnostics(path, diags)
		return errReported
	}
	fmt.Fprintf(c.stdout, "%s: ok\n", path)
	return nil
}

// cmdDisasm lists a program with addresses. Sources are shown unlinked so
// jump flags stay visible; -linked shows the final code.
func (c *cli) cmdDisasm(args []string) error {
	flags := flag.NewFlagSet("disasm", flag.ContinueOnError)
	flags.SetOutput(c.stderr)
	linked := flags.Bool("linked", false, "Show linked code for sources")
	if err := flags.Parse(args); err != nil {
		return &usageError{err.Error()}
	}
	if flags.NArg() != 1 {
		return &usageError{"disasm needs exactly one file"}
	}
	path := flags.Arg(0)

	var (
		heapBase int
		code     []vm.Instruction
	)
	if strings.ToLower(filepath.Ext(path)) == extSource && !*linked {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		unit, err := compiler.CompileUnit(string(data), nil)
		var diags compiler.Diagnostics
		if errors.As(err, &diags) {
			c.printDiagnostics(path, diags)
			return errReported
		}
		if err != nil {
			return err
		}
		heapBase, code = unit.Symbols.AvailableAddress(), unit.Listing
	} else {
		m, err := loadConfig(filepath.Dir(path))
		if err != nil {
			return err
		}
		p, err := c.loadProgram(path, m)
		if err != nil {
			return err
		}
		heapBase, code = p.HeapBase, p.Code
	}

	fmt.Fprintf(c.stdout, "; heap base %d, %d instructions\n", heapBase, len(code))
	for i, in := range code {
		fmt.Fprintf(c.stdout, "%04d  %s\n", i, in)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Serve
// ---------------------------------------------------------------------------

func (c *cli) cmdServe(args []string) error {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	flags.SetOutput(c.stderr)
	addr := flags.String("addr", "", "Listen address (default from "+manifest.FileName+")")
	if err := flags.Parse(args); err != nil {
		return &usageError{err.Error()}
	}

	m, err := loadConfig(".")
	if err != nil {
		return err
	}
	if *addr != "" {
		m.Server.Addr = *addr
	}

	opts := []server.ServerOption{server.WithMaxStack(m.VM.MaxStack)}
	cache, err := openCache(m)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
		opts = append(opts, server.WithCache(cache))
	}

	srv := server.New(opts...)
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		srv.Stop()
	}()
	return srv.ListenAndServe(m.Server.Addr)
}
