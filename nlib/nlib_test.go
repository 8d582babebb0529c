package nlib

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/chazu/orca/vm"
)

// ---------------------------------------------------------------------------
// Descriptor tests
// ---------------------------------------------------------------------------

func TestStandardClasses(t *testing.T) {
	lib := Standard()
	for _, name := range []string{"number", "string", "bool", "array", "void"} {
		if !lib.HasClass(name) {
			t.Errorf("HasClass(%q) = false", name)
		}
	}
	if lib.HasClass("object") {
		t.Error("HasClass(object) = true")
	}
}

func TestStandardInvokeCodes(t *testing.T) {
	tests := []struct {
		name   string
		params int
		ret    string
		op     vm.Opcode
		code   int
	}{
		{"print", 1, "void", vm.OpIVK, 1},
		{"read", 0, "string", vm.OpIVK, 2},
		{"info", 0, "void", vm.OpIVK, 3},
		{"exit", 0, "void", vm.OpEND, 0},
		{"abs", 1, "number", vm.OpIVK, 4},
		{"atan2", 2, "number", vm.OpIVK, 8},
		{"sqrt", 1, "number", vm.OpIVK, 16},
		{"pow", 2, "number", vm.OpIVK, 17},
		{"random", 0, "number", vm.OpIVK, 18},
	}

	lib := Standard()
	for _, tt := range tests {
		fns := lib.Lookup(tt.name)
		if len(fns) != 1 {
			t.Errorf("Lookup(%q) returned %d functions, want 1", tt.name, len(fns))
			continue
		}
		fn := fns[0]
		if len(fn.Params) != tt.params || fn.Return != tt.ret {
			t.Errorf("%s: signature = %s, want %d params returning %s", tt.name, fn.Signature(), tt.params, tt.ret)
		}
		if len(fn.Invoke) != 1 || fn.Invoke[0].Op != tt.op {
			t.Errorf("%s: invoke = %v, want single %s", tt.name, fn.Invoke, tt.op)
			continue
		}
		if tt.op == vm.OpIVK && fn.Invoke[0].Addr != tt.code {
			t.Errorf("%s: invoke code = %d, want %d", tt.name, fn.Invoke[0].Addr, tt.code)
		}
	}
}

func TestEveryInvokeImplemented(t *testing.T) {
	table := Natives()
	for _, fn := range Standard().Functions {
		for _, in := range fn.Invoke {
			if in.Op != vm.OpIVK {
				continue
			}
			if _, ok := table[in.Addr]; !ok {
				t.Errorf("%s: invoke code %d has no implementation", fn.Name, in.Addr)
			}
		}
	}
	if _, ok := table[InvokeLoopCounter]; !ok {
		t.Error("loop counter code 27 not implemented")
	}
}

func TestSignature(t *testing.T) {
	fn := Standard().Lookup("pow")[0]
	if got := fn.Signature(); got != "pow(arg0:number, arg1:number) -> number" {
		t.Errorf("Signature() = %q", got)
	}
}

func TestFingerprint(t *testing.T) {
	fp := Standard().Fingerprint()
	if len(fp) != 16 || Standard().Fingerprint() != fp {
		t.Fatalf("Fingerprint() = %q, want 16 stable hex digits", fp)
	}

	changed := Standard()
	changed.Functions[0].Invoke = []vm.Instruction{vm.Inst(vm.OpEND)}
	if changed.Fingerprint() == fp {
		t.Error("changing an invoke sequence kept the fingerprint")
	}

	fewer := Standard()
	fewer.Classes = fewer.Classes[1:]
	if fewer.Fingerprint() == fp {
		t.Error("dropping a class kept the fingerprint")
	}
}

// ---------------------------------------------------------------------------
// Execution tests
// ---------------------------------------------------------------------------

func run(t *testing.T, src string, opts ...Option) *vm.Machine {
	t.Helper()
	p, err := vm.ParseText(src)
	if err != nil {
		t.Fatalf("ParseText failed: %v", err)
	}
	m := vm.New(vm.WithNatives(Natives(opts...)))
	m.Load(p)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return m
}

func TestNativeMath(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"abs", "0\nPSH -4\nIVK 4\nIVK 1\nEND", "4"},
		{"ceil", "0\nPSH 1.2\nIVK 9\nIVK 1\nEND", "2"},
		{"floor", "0\nPSH 1.8\nIVK 10\nIVK 1\nEND", "1"},
		{"round", "0\nPSH 2.5\nIVK 11\nIVK 1\nEND", "2"},
		{"sqrt", "0\nPSH 81\nIVK 16\nIVK 1\nEND", "9"},
		{"sqrt of string", "0\nPSH 16s\nIVK 16\nIVK 1\nEND", "4"},
		// first argument on top: pow(2, 10)
		{"pow", "0\nPSH 10\nPSH 2\nIVK 17\nIVK 1\nEND", "1024"},
		// atan2(0, 1)
		{"atan2", "0\nPSH 1\nPSH 0\nIVK 8\nIVK 1\nEND", "0"},
		{"info", "0\nIVK 3\nEND", Banner},
	}
	for _, tt := range tests {
		m := run(t, tt.src)
		if got := m.Console().Output(); got != tt.want {
			t.Errorf("%s: output = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNativeRandom(t *testing.T) {
	m := run(t, "0\nIVK 18\nPOP 0\nEND", WithRand(rand.New(rand.NewPCG(1, 2))))
	v := m.Register(0)
	if !v.IsNumber() || v.Float64() < 0 || v.Float64() > float64(1<<31-1) {
		t.Errorf("random() = %v, want non-negative 31-bit number", v)
	}
}

func TestNativeLoopCounter(t *testing.T) {
	m := run(t, "1\nSAL 0\nPSH 4\nPSH 0\nSTO\nPSH 0\nIVK 27\nPSH 0\nIVK 27\nPSM 0\nIVK 1\nEND")
	if got := m.Console().Output(); got != "6" {
		t.Errorf("counter = %q, want 6", got)
	}
}

func TestNativeBadArgument(t *testing.T) {
	p, _ := vm.ParseText("0\nPSH xs\nIVK 16\nEND")
	m := vm.New(vm.WithNatives(Natives()))
	m.Load(p)
	err := m.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "cannot convert") {
		t.Errorf("Run error = %v, want conversion fault", err)
	}
}
