package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/orca/compiler"
	"github.com/chazu/orca/manifest"
	"github.com/chazu/orca/nlib"
	"github.com/chazu/orca/vm"
	"github.com/chazu/orca/vm/image"
)

// Procedure paths served by ToolchainService.
const (
	ToolchainServiceName = "orca.v1.ToolchainService"

	CompileProcedure     = "/" + ToolchainServiceName + "/Compile"
	CheckProcedure       = "/" + ToolchainServiceName + "/Check"
	RunProcedure         = "/" + ToolchainServiceName + "/Run"
	DisassembleProcedure = "/" + ToolchainServiceName + "/Disassemble"
)

// DefaultRunTimeout bounds a Run request that sets no timeoutMs.
const DefaultRunTimeout = 10 * time.Second

// errInputExhausted cancels a run that reads past its supplied input.
var errInputExhausted = errors.New("program read past the supplied input")

// ToolchainService exposes compile, check, run and disassemble over
// Connect. Messages are google.protobuf.Struct values, so the service
// works with both the JSON and binary codecs without generated code.
//
// Request fields:
//
//	Compile:     source, format ("text" | "image")
//	Check:       source
//	Run:         source, input (list of lines), timeoutMs
//	Disassemble: source | image (base64) | text
type ToolchainService struct {
	worker   *Worker
	cache    image.Cache
	runs     *RunRegistry
	lib      *nlib.Library
	maxStack int
	timeout  time.Duration
}

// NewToolchainService creates the service. Compiles go through worker and
// share cache.
func NewToolchainService(worker *Worker, cache image.Cache, runs *RunRegistry, maxStack int) *ToolchainService {
	return &ToolchainService{
		worker:   worker,
		cache:    cache,
		runs:     runs,
		lib:      nlib.Standard(),
		maxStack: maxStack,
		timeout:  DefaultRunTimeout,
	}
}

// Handlers returns the procedure path and handler of every method.
func (s *ToolchainService) Handlers(opts ...connect.HandlerOption) map[string]http.Handler {
	return map[string]http.Handler{
		CompileProcedure:     connect.NewUnaryHandler(CompileProcedure, s.Compile, opts...),
		CheckProcedure:       connect.NewUnaryHandler(CheckProcedure, s.Check, opts...),
		RunProcedure:         connect.NewUnaryHandler(RunProcedure, s.Run, opts...),
		DisassembleProcedure: connect.NewUnaryHandler(DisassembleProcedure, s.Disassemble, opts...),
	}
}

// ---------------------------------------------------------------------------
// Compile
// ---------------------------------------------------------------------------

// compiled is the worker result of one cached compile.
type compiled struct {
	program *vm.Program
	hit     bool
	diags   compiler.Diagnostics
}

// compile compiles src through the cache on the worker goroutine. Sources
// with diagnostics return them and no program.
func (s *ToolchainService) compile(src string) (*compiled, error) {
	result, err := s.worker.Do(func() (any, error) {
		p, hit, err := image.Compile(s.cache, compiler.Toolchain(s.lib), src, func(src string) (*vm.Program, error) {
			return compiler.Compile(src, s.lib)
		})
		var diags compiler.Diagnostics
		if errors.As(err, &diags) {
			return &compiled{diags: diags}, nil
		}
		if err != nil {
			return nil, err
		}
		return &compiled{program: p, hit: hit}, nil
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return result.(*compiled), nil
}

// Compile compiles source to the text format or a base64 CBOR image.
func (s *ToolchainService) Compile(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	src, err := sourceField(req.Msg)
	if err != nil {
		return nil, err
	}
	format := stringField(req.Msg, "format")
	if format == "" {
		format = manifest.FormatText
	}
	if format != manifest.FormatText && format != manifest.FormatImage {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("format must be %q or %q, got %q", manifest.FormatText, manifest.FormatImage, format))
	}

	c, err := s.compile(src)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		"success":     c.program != nil,
		"diagnostics": diagnosticList(c.diags),
	}
	if c.program != nil {
		fields["cached"] = c.hit
		fields["heapBase"] = c.program.HeapBase
		fields["instructions"] = len(c.program.Code)
		if format == manifest.FormatImage {
			data, err := image.Marshal(c.program)
			if err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			fields["image"] = base64.StdEncoding.EncodeToString(data)
		} else {
			fields["text"] = vm.FormatText(c.program)
		}
	}
	return response(fields)
}

// Check returns the diagnostics of source without caching anything.
func (s *ToolchainService) Check(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	src, err := sourceField(req.Msg)
	if err != nil {
		return nil, err
	}
	result, err := s.worker.Do(func() (any, error) {
		return compiler.Check(src, s.lib), nil
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	diags := result.(compiler.Diagnostics)
	return response(map[string]any{
		"success":     len(diags) == 0,
		"diagnostics": diagnosticList(diags),
	})
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run compiles and executes source on a fresh machine. Each read consumes
// the next line of input; reading past the end fails the run.
func (s *ToolchainService) Run(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	src, err := sourceField(req.Msg)
	if err != nil {
		return nil, err
	}
	input, err := stringList(req.Msg, "input")
	if err != nil {
		return nil, err
	}
	timeout := s.timeout
	if ms := numberField(req.Msg, "timeoutMs"); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	c, err := s.compile(src)
	if err != nil {
		return nil, err
	}
	if c.program == nil {
		return response(map[string]any{
			"success":     false,
			"diagnostics": diagnosticList(c.diags),
		})
	}

	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()
	ctx, cancel := context.WithCancelCause(ctx)
	id := s.runs.Start(cancel)
	defer s.runs.Finish(id)

	console := vm.NewConsole(nil)
	m := vm.New(
		vm.WithNatives(nlib.Natives()),
		vm.WithConsole(console),
		vm.WithMaxStack(s.maxStack),
	)
	m.Load(c.program)

	go feedInput(ctx, console, input, cancel)
	runErr := m.Run(ctx)

	fields := map[string]any{
		"runId":  id,
		"output": toAnyList(console.Lines()),
		"steps":  float64(m.Steps()),
		"cached": c.hit,
	}
	if runErr == nil {
		fields["success"] = true
		return response(fields)
	}

	fields["success"] = false
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, errInputExhausted):
		fields["fault"] = cause.Error()
	case errors.Is(cause, context.DeadlineExceeded):
		return nil, connect.NewError(connect.CodeDeadlineExceeded,
			fmt.Errorf("run %s exceeded %s", id, timeout))
	case errors.Is(cause, errRunStopped):
		return nil, connect.NewError(connect.CodeAborted, fmt.Errorf("run %s: %w", id, cause))
	case cause != nil:
		return nil, connect.NewError(connect.CodeCanceled, cause)
	default:
		fields["fault"] = runErr.Error()
	}
	return response(fields)
}

// feedInput submits one input line each time the machine waits for input
// and cancels the run when the lines run out.
func feedInput(ctx context.Context, console *vm.Console, input []string, cancel context.CancelCauseFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-console.Pending():
			if len(input) == 0 {
				cancel(errInputExhausted)
				return
			}
			console.Submit(input[0])
			input = input[1:]
		}
	}
}

// ---------------------------------------------------------------------------
// Disassemble
// ---------------------------------------------------------------------------

// Disassemble lists the instructions of a program given as source, a
// base64 image, or text assembly. Source listings are unlinked, so jump
// targets still show as FLG definitions and %n references.
func (s *ToolchainService) Disassemble(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var (
		heapBase int
		code     []vm.Instruction
	)
	switch {
	case hasField(req.Msg, "source"):
		src := stringField(req.Msg, "source")
		result, err := s.worker.Do(func() (any, error) {
			return compiler.CompileUnit(src, s.lib)
		})
		var diags compiler.Diagnostics
		if err != nil && !errors.As(err, &diags) {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		unit := result.(*compiler.Unit)
		if len(unit.Diagnostics) > 0 {
			return response(map[string]any{
				"success":     false,
				"diagnostics": diagnosticList(unit.Diagnostics),
			})
		}
		heapBase = unit.Symbols.AvailableAddress()
		code = unit.Listing
	case hasField(req.Msg, "image"):
		data, err := base64.StdEncoding.DecodeString(stringField(req.Msg, "image"))
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("image: %w", err))
		}
		p, err := image.Unmarshal(data)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		heapBase, code = p.HeapBase, p.Code
	case hasField(req.Msg, "text"):
		p, err := vm.ParseText(stringField(req.Msg, "text"))
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		heapBase, code = p.HeapBase, p.Code
	default:
		return nil, connect.NewError(connect.CodeInvalidArgument,
			errors.New("one of source, image or text is required"))
	}

	return response(map[string]any{
		"success":      true,
		"heapBase":     heapBase,
		"instructions": toAnyList(strings.Split(vm.FormatListing(code), "\n")),
	})
}

// ---------------------------------------------------------------------------
// Struct helpers
// ---------------------------------------------------------------------------

func hasField(msg *structpb.Struct, name string) bool {
	_, ok := msg.GetFields()[name]
	return ok
}

func stringField(msg *structpb.Struct, name string) string {
	return msg.GetFields()[name].GetStringValue()
}

func numberField(msg *structpb.Struct, name string) float64 {
	return msg.GetFields()[name].GetNumberValue()
}

// sourceField returns the required source field.
func sourceField(msg *structpb.Struct) (string, error) {
	v, ok := msg.GetFields()["source"]
	if !ok {
		return "", connect.NewError(connect.CodeInvalidArgument, errors.New("source is required"))
	}
	if _, isString := v.GetKind().(*structpb.Value_StringValue); !isString {
		return "", connect.NewError(connect.CodeInvalidArgument, errors.New("source must be a string"))
	}
	return v.GetStringValue(), nil
}

// stringList reads an optional list of strings.
func stringList(msg *structpb.Struct, name string) ([]string, error) {
	v, ok := msg.GetFields()[name]
	if !ok {
		return nil, nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s must be a list", name))
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		s, isString := item.GetKind().(*structpb.Value_StringValue)
		if !isString {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%s must hold strings", name))
		}
		out = append(out, s.StringValue)
	}
	return out, nil
}

func diagnosticList(diags compiler.Diagnostics) []any {
	out := make([]any, len(diags))
	for i, d := range diags {
		out[i] = map[string]any{
			"category": d.Category,
			"message":  d.Message,
			"line":     d.Line,
		}
	}
	return out
}

func toAnyList(lines []string) []any {
	out := make([]any, len(lines))
	for i, l := range lines {
		out[i] = l
	}
	return out
}

func response(fields map[string]any) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}
