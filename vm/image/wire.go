// Package image stores linked programs in a binary form and caches compiled
// programs by the content hash of their source.
package image

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/orca/vm"
)

// Magic identifies an Orca program image.
const Magic = "ORCA"

// Version is the image format version written by Marshal.
const Version = 1

// Image errors.
var (
	ErrBadMagic   = errors.New("image: not an orca program image")
	ErrBadVersion = errors.New("image: unsupported image version")
	ErrBadOpcode  = errors.New("image: unknown opcode")
)

// header precedes the code in every image.
type header struct {
	Magic   string `cbor:"1,keyasint"`
	Version int    `cbor:"2,keyasint"`
}

// operand is the tagged wire form of vm.Operand.
type operand struct {
	Kind uint8   `cbor:"1,keyasint"`
	Num  float64 `cbor:"2,keyasint,omitempty"`
	Str  string  `cbor:"3,keyasint,omitempty"`
}

type instruction struct {
	Op  uint8    `cbor:"1,keyasint"`
	Arg *operand `cbor:"2,keyasint,omitempty"`
}

type wireImage struct {
	Header   header        `cbor:"1,keyasint"`
	HeapBase int           `cbor:"2,keyasint"`
	Code     []instruction `cbor:"3,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal encodes p as canonical CBOR. Equal programs always encode to the
// same bytes.
func Marshal(p *vm.Program) ([]byte, error) {
	w := wireImage{
		Header:   header{Magic: Magic, Version: Version},
		HeapBase: p.HeapBase,
		Code:     make([]instruction, len(p.Code)),
	}
	for i, in := range p.Code {
		w.Code[i] = instruction{Op: uint8(in.Op)}
		if in.Arg.Kind != vm.OperandNone {
			w.Code[i].Arg = &operand{Kind: uint8(in.Arg.Kind), Num: in.Arg.Num, Str: in.Arg.Str}
		}
	}
	data, err := cborEncMode.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("image: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal decodes an image produced by Marshal.
func Unmarshal(data []byte) (*vm.Program, error) {
	var w wireImage
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if w.Header.Magic != Magic {
		return nil, ErrBadMagic
	}
	if w.Header.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, w.Header.Version)
	}

	p := &vm.Program{HeapBase: w.HeapBase, Code: make([]vm.Instruction, len(w.Code))}
	for i, in := range w.Code {
		op := vm.Opcode(in.Op)
		if _, ok := vm.LookupMnemonic(op.Name()); !ok {
			return nil, fmt.Errorf("%w %d at %d", ErrBadOpcode, in.Op, i)
		}
		if in.Arg == nil {
			p.Code[i] = vm.Inst(op)
			continue
		}
		var arg vm.Operand
		switch vm.OperandKind(in.Arg.Kind) {
		case vm.OperandInt:
			arg = vm.IntArg(int(in.Arg.Num))
		case vm.OperandNumber:
			arg = vm.NumArg(in.Arg.Num)
		case vm.OperandString:
			arg = vm.StrArg(in.Arg.Str)
		case vm.OperandFlag:
			arg = vm.FlagArg(int(in.Arg.Num))
		default:
			return nil, fmt.Errorf("image: unknown operand kind %d at %d", in.Arg.Kind, i)
		}
		p.Code[i] = vm.InstArg(op, arg)
	}
	return p, nil
}
