package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/orca/vm"
	"github.com/chazu/orca/vm/image"
)

// ---------------------------------------------------------------------------
// Test infrastructure: an httptest server and one Connect client per
// procedure.
// ---------------------------------------------------------------------------

type testEnv struct {
	server *OrcaServer
	http   *httptest.Server
	cache  *image.MemoryCache
}

func newTestEnv(t *testing.T, opts ...ServerOption) *testEnv {
	t.Helper()
	cache := image.NewMemoryCache()
	s := New(append([]ServerOption{WithCache(cache)}, opts...)...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return &testEnv{server: s, http: ts, cache: cache}
}

func (e *testEnv) call(t *testing.T, procedure string, fields map[string]any) (*structpb.Struct, error) {
	t.Helper()
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	client := connect.NewClient[structpb.Struct, structpb.Struct](e.http.Client(), e.http.URL+procedure)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (e *testEnv) mustCall(t *testing.T, procedure string, fields map[string]any) map[string]any {
	t.Helper()
	msg, err := e.call(t, procedure, fields)
	if err != nil {
		t.Fatalf("%s failed: %v", procedure, err)
	}
	return msg.AsMap()
}

func outputOf(t *testing.T, resp map[string]any) []string {
	t.Helper()
	raw, _ := resp["output"].([]any)
	out := make([]string, len(raw))
	for i, line := range raw {
		out[i] = line.(string)
	}
	return out
}

// ---------------------------------------------------------------------------
// Compile
// ---------------------------------------------------------------------------

func TestCompile_Text(t *testing.T) {
	env := newTestEnv(t)
	resp := env.mustCall(t, CompileProcedure, map[string]any{"source": "print(1 + 2);"})

	if resp["success"] != true {
		t.Fatalf("success = %v, diagnostics %v", resp["success"], resp["diagnostics"])
	}
	p, err := vm.ParseText(resp["text"].(string))
	if err != nil {
		t.Fatalf("returned text does not parse: %v", err)
	}
	if float64(p.HeapBase) != resp["heapBase"] {
		t.Errorf("heapBase = %v, text header %d", resp["heapBase"], p.HeapBase)
	}
	if float64(len(p.Code)) != resp["instructions"] {
		t.Errorf("instructions = %v, text has %d", resp["instructions"], len(p.Code))
	}
	if resp["cached"] != false {
		t.Error("first compile reported a cache hit")
	}
}

func TestCompile_CachesPrograms(t *testing.T) {
	env := newTestEnv(t)
	src := map[string]any{"source": "var a:number = 4; print(a);"}

	env.mustCall(t, CompileProcedure, src)
	resp := env.mustCall(t, CompileProcedure, src)
	if resp["cached"] != true {
		t.Error("second compile of the same source missed the cache")
	}
	if n, _ := env.cache.Len(); n != 1 {
		t.Errorf("cache holds %d programs, want 1", n)
	}
}

func TestCompile_Image(t *testing.T) {
	env := newTestEnv(t)
	resp := env.mustCall(t, CompileProcedure, map[string]any{
		"source": "print(\"hi\");",
		"format": "image",
	})
	data, err := base64.StdEncoding.DecodeString(resp["image"].(string))
	if err != nil {
		t.Fatalf("image is not base64: %v", err)
	}
	p, err := image.Unmarshal(data)
	if err != nil {
		t.Fatalf("image does not decode: %v", err)
	}
	if _, hasText := resp["text"]; hasText {
		t.Error("image compile also returned text")
	}
	if float64(p.HeapBase) != resp["heapBase"] {
		t.Errorf("heapBase = %v, image has %d", resp["heapBase"], p.HeapBase)
	}
}

func TestCompile_Diagnostics(t *testing.T) {
	env := newTestEnv(t)
	resp := env.mustCall(t, CompileProcedure, map[string]any{"source": "print(x);"})
	if resp["success"] != false {
		t.Fatal("compile of an undefined name succeeded")
	}
	if _, hasText := resp["text"]; hasText {
		t.Error("failed compile returned a program")
	}
	diags := resp["diagnostics"].([]any)
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	d := diags[0].(map[string]any)
	if d["category"] != "Reference error" || d["line"] != float64(1) {
		t.Errorf("diagnostic = %v", d)
	}
	if n, _ := env.cache.Len(); n != 0 {
		t.Errorf("failed compile was cached")
	}
}

func TestCompile_InvalidArguments(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"missing source", map[string]any{}},
		{"numeric source", map[string]any{"source": 3}},
		{"unknown format", map[string]any{"source": "print(1);", "format": "zip"}},
	}
	for _, tt := range tests {
		_, err := env.call(t, CompileProcedure, tt.fields)
		if connect.CodeOf(err) != connect.CodeInvalidArgument {
			t.Errorf("%s: code = %v, want invalid_argument (%v)", tt.name, connect.CodeOf(err), err)
		}
	}
}

// ---------------------------------------------------------------------------
// Check
// ---------------------------------------------------------------------------

func TestCheck(t *testing.T) {
	env := newTestEnv(t)

	ok := env.mustCall(t, CheckProcedure, map[string]any{"source": "print(1);"})
	if ok["success"] != true || len(ok["diagnostics"].([]any)) != 0 {
		t.Errorf("clean check = %v", ok)
	}

	bad := env.mustCall(t, CheckProcedure, map[string]any{
		"source": "var a:array = [1];\nprint(a + \"x\");\nprint(y);",
	})
	diags := bad["diagnostics"].([]any)
	if bad["success"] != false || len(diags) != 2 {
		t.Fatalf("check = %v, want 2 diagnostics", bad)
	}
	if got := diags[0].(map[string]any)["category"]; got != "Type error" {
		t.Errorf("first category = %v, want Type error", got)
	}
	if got := diags[1].(map[string]any)["line"]; got != float64(3) {
		t.Errorf("second line = %v, want 3", got)
	}
	if n, _ := env.cache.Len(); n != 0 {
		t.Error("check populated the cache")
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun(t *testing.T) {
	env := newTestEnv(t)
	resp := env.mustCall(t, RunProcedure, map[string]any{
		"source": "var a:number = 2; var b:number = 3; a = a + b; print(a);",
	})
	if resp["success"] != true {
		t.Fatalf("run failed: %v", resp)
	}
	if got := outputOf(t, resp); len(got) != 1 || got[0] != "5" {
		t.Errorf("output = %v, want [5]", got)
	}
	if _, err := uuid.Parse(resp["runId"].(string)); err != nil {
		t.Errorf("runId %q is not a uuid: %v", resp["runId"], err)
	}
	if resp["steps"].(float64) <= 0 {
		t.Error("steps not reported")
	}
	if len(env.server.runs.Active()) != 0 {
		t.Error("finished run is still registered")
	}
}

func TestRun_Input(t *testing.T) {
	env := newTestEnv(t)
	resp := env.mustCall(t, RunProcedure, map[string]any{
		"source": "var a:string = read(); var b:string = read(); print(b + a);",
		"input":  []any{"x", "y"},
	})
	if got := outputOf(t, resp); len(got) != 1 || got[0] != "yx" {
		t.Errorf("output = %v, want [yx]", got)
	}
}

func TestRun_InputExhausted(t *testing.T) {
	env := newTestEnv(t)
	resp := env.mustCall(t, RunProcedure, map[string]any{
		"source": "print(\"before\"); print(read());",
	})
	if resp["success"] != false {
		t.Fatal("reading without input succeeded")
	}
	if !strings.Contains(resp["fault"].(string), "supplied input") {
		t.Errorf("fault = %v", resp["fault"])
	}
	if got := outputOf(t, resp); len(got) != 1 || got[0] != "before" {
		t.Errorf("output = %v, want [before]", got)
	}
}

func TestRun_Fault(t *testing.T) {
	env := newTestEnv(t)
	resp := env.mustCall(t, RunProcedure, map[string]any{
		"source": "var a:array = [1, 2]; print(a[0]); print(a[5]);",
	})
	if resp["success"] != false {
		t.Fatal("out of range read succeeded")
	}
	if !strings.Contains(resp["fault"].(string), "out of range") {
		t.Errorf("fault = %v", resp["fault"])
	}
	if got := outputOf(t, resp); len(got) != 1 || got[0] != "1" {
		t.Errorf("output = %v, want [1]", got)
	}
}

func TestRun_Diagnostics(t *testing.T) {
	env := newTestEnv(t)
	resp := env.mustCall(t, RunProcedure, map[string]any{"source": "print(x);"})
	if resp["success"] != false || len(resp["diagnostics"].([]any)) != 1 {
		t.Errorf("run = %v, want one diagnostic", resp)
	}
	if _, ran := resp["runId"]; ran {
		t.Error("a program with diagnostics was run")
	}
}

func TestRun_Timeout(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.call(t, RunProcedure, map[string]any{
		"source":    "while (true) { }",
		"timeoutMs": 50,
	})
	if connect.CodeOf(err) != connect.CodeDeadlineExceeded {
		t.Errorf("code = %v, want deadline_exceeded (%v)", connect.CodeOf(err), err)
	}
}

func TestRun_DefaultTimeoutOption(t *testing.T) {
	env := newTestEnv(t, WithRunTimeout(50*time.Millisecond))
	_, err := env.call(t, RunProcedure, map[string]any{"source": "while (true) { }"})
	if connect.CodeOf(err) != connect.CodeDeadlineExceeded {
		t.Errorf("code = %v, want deadline_exceeded (%v)", connect.CodeOf(err), err)
	}
}

func TestRun_BadInput(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.call(t, RunProcedure, map[string]any{
		"source": "print(read());",
		"input":  []any{1},
	})
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("code = %v, want invalid_argument", connect.CodeOf(err))
	}
}

// ---------------------------------------------------------------------------
// Disassemble
// ---------------------------------------------------------------------------

func TestDisassemble_Source(t *testing.T) {
	env := newTestEnv(t)
	resp := env.mustCall(t, DisassembleProcedure, map[string]any{
		"source": "var i:number = 0; while (i < 2) { i++; }",
	})
	var hasFlag bool
	for _, line := range resp["instructions"].([]any) {
		if strings.HasPrefix(line.(string), "FLG %") {
			hasFlag = true
		}
	}
	if !hasFlag {
		t.Errorf("source listing should be unlinked, got %v", resp["instructions"])
	}
}

func TestDisassemble_ImageAndText(t *testing.T) {
	env := newTestEnv(t)
	compiled := env.mustCall(t, CompileProcedure, map[string]any{"source": "print(7);", "format": "image"})
	fromImage := env.mustCall(t, DisassembleProcedure, map[string]any{"image": compiled["image"]})

	text := env.mustCall(t, CompileProcedure, map[string]any{"source": "print(7);"})["text"].(string)
	fromText := env.mustCall(t, DisassembleProcedure, map[string]any{"text": text})

	a, _ := json.Marshal(fromImage["instructions"])
	b, _ := json.Marshal(fromText["instructions"])
	if string(a) != string(b) {
		t.Errorf("image listing %s differs from text listing %s", a, b)
	}
	if fromImage["heapBase"] != fromText["heapBase"] {
		t.Errorf("heap bases differ: %v vs %v", fromImage["heapBase"], fromText["heapBase"])
	}
	last := fromText["instructions"].([]any)
	if last[len(last)-1] != "END" {
		t.Errorf("listing should end with END, got %v", last[len(last)-1])
	}
}

func TestDisassemble_Rejects(t *testing.T) {
	env := newTestEnv(t)
	tests := []map[string]any{
		{},
		{"image": "!!!"},
		{"image": base64.StdEncoding.EncodeToString([]byte("not an image"))},
		{"text": "NOP 1\n"},
	}
	for _, fields := range tests {
		_, err := env.call(t, DisassembleProcedure, fields)
		if connect.CodeOf(err) != connect.CodeInvalidArgument {
			t.Errorf("%v: code = %v, want invalid_argument", fields, connect.CodeOf(err))
		}
	}
}

// ---------------------------------------------------------------------------
// Wire formats
// ---------------------------------------------------------------------------

func TestConnectJSON(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Post(env.http.URL+RunProcedure, "application/json",
		strings.NewReader(`{"source": "print(\"x\" + 1);"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Success bool     `json:"success"`
		Output  []string `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || len(body.Output) != 1 || body.Output[0] != "x1" {
		t.Errorf("body = %+v, want output [x1]", body)
	}
}

func TestStopCancelsActiveRuns(t *testing.T) {
	s := New()
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	msg, _ := structpb.NewStruct(map[string]any{"source": "while (true) { }", "timeoutMs": 60000})
	client := connect.NewClient[structpb.Struct, structpb.Struct](ts.Client(), ts.URL+RunProcedure)
	done := make(chan error, 1)
	go func() {
		_, err := client.CallUnary(context.Background(), connect.NewRequest(msg))
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(s.runs.Active()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("run never started")
		}
		time.Sleep(time.Millisecond)
	}
	s.Stop()

	select {
	case err := <-done:
		if connect.CodeOf(err) != connect.CodeAborted {
			t.Errorf("code = %v, want aborted (%v)", connect.CodeOf(err), err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not cancel the run")
	}
}
