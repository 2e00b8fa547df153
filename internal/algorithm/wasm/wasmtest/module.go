// Package wasmtest assembles minimal algorithm modules for tests. Every
// function returns a constant, so a module answers every bar the same way.
package wasmtest

import (
	"bytes"
	"slices"
)

const (
	infoOffset     = 1024
	initOffset     = 3072
	responseOffset = 5120
	heapOffset     = 16384
)

// OnBar selects what argo_algorithm_on_bar does.
type OnBar int

const (
	// OnBarRespond returns Response.
	OnBarRespond OnBar = iota
	// OnBarTrap executes unreachable.
	OnBarTrap
	// OnBarSpin never returns.
	OnBarSpin
)

// Module describes the module to build. The zero value is a valid module
// reporting API version 0.
type Module struct {
	APIVersion int32
	// Info is the JSON returned by argo_algorithm_info.
	Info string
	// InitError is returned by argo_algorithm_init. Empty accepts the parameters.
	InitError string
	// Response is the JSON returned by argo_algorithm_on_bar.
	Response string
	OnBar    OnBar
	// Omit lists exports to leave out, including "memory".
	Omit []string
}

const (
	valI32 = 0x7f
	valI64 = 0x7e

	opEnd         = 0x0b
	opUnreachable = 0x00
	opLoop        = 0x03
	opBr          = 0x0c
	opI32Const    = 0x41
	opI64Const    = 0x42
	blockEmpty    = 0x40
)

// Bytes encodes the module in the WebAssembly binary format.
func (m Module) Bytes() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	// types: 0 (i32)->i32, 1 (i32)->(), 2 ()->i32, 3 ()->i64, 4 (i32,i32)->i64
	writeSection(&out, 1, vector(
		funcType([]byte{valI32}, []byte{valI32}),
		funcType([]byte{valI32}, nil),
		funcType(nil, []byte{valI32}),
		funcType(nil, []byte{valI64}),
		funcType([]byte{valI32, valI32}, []byte{valI64}),
	))

	// malloc, free, api_version, info, init, on_bar
	writeSection(&out, 3, vector([]byte{0}, []byte{1}, []byte{2}, []byte{3}, []byte{4}, []byte{4}))

	// one page of memory
	writeSection(&out, 5, vector([]byte{0x00, 0x01}))

	exports := [][]byte{}
	for i, name := range []string{
		"malloc", "free", "argo_algorithm_api_version", "argo_algorithm_info",
		"argo_algorithm_init", "argo_algorithm_on_bar",
	} {
		if !slices.Contains(m.Omit, name) {
			exports = append(exports, export(name, 0x00, uint32(i)))
		}
	}

	if !slices.Contains(m.Omit, "memory") {
		exports = append(exports, export("memory", 0x02, 0))
	}

	writeSection(&out, 7, vector(exports...))

	writeSection(&out, 10, vector(
		body(opI32Const, sleb(heapOffset)),
		body(),
		body(opI32Const, sleb(int64(m.APIVersion))),
		body(opI64Const, sleb(packed(infoOffset, m.Info))),
		body(opI64Const, sleb(packed(initOffset, m.InitError))),
		m.onBarBody(),
	))

	writeSection(&out, 11, vector(
		data(infoOffset, m.Info),
		data(initOffset, m.InitError),
		data(responseOffset, m.Response),
	))

	return out.Bytes()
}

func (m Module) onBarBody() []byte {
	switch m.OnBar {
	case OnBarTrap:
		return body(opUnreachable)
	case OnBarSpin:
		return body(opLoop, blockEmpty, opBr, 0x00, opEnd, opUnreachable)
	default:
		return body(opI64Const, sleb(packed(responseOffset, m.Response)))
	}
}

func packed(offset uint32, s string) int64 {
	if s == "" {
		return 0
	}

	return int64(offset)<<32 | int64(len(s))
}

func funcType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint64(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint64(len(results)))...)

	return append(out, results...)
}

func export(name string, kind byte, index uint32) []byte {
	out := uleb(uint64(len(name)))
	out = append(out, name...)
	out = append(out, kind)

	return append(out, uleb(uint64(index))...)
}

// body builds a function body without locals from instruction bytes.
func body(code ...any) []byte {
	expr := []byte{0x00}

	for _, c := range code {
		switch v := c.(type) {
		case int:
			expr = append(expr, byte(v))
		case []byte:
			expr = append(expr, v...)
		}
	}

	expr = append(expr, opEnd)

	return append(uleb(uint64(len(expr))), expr...)
}

func data(offset uint32, s string) []byte {
	out := []byte{0x00, opI32Const}
	out = append(out, sleb(int64(offset))...)
	out = append(out, opEnd)
	out = append(out, uleb(uint64(len(s)))...)

	return append(out, s...)
}

func vector(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}

	return out
}

func writeSection(out *bytes.Buffer, id byte, content []byte) {
	out.WriteByte(id)
	out.Write(uleb(uint64(len(content))))
	out.Write(content)
}

func uleb(v uint64) []byte {
	var out []byte

	for {
		b := byte(v & 0x7f)
		v >>= 7

		if v != 0 {
			out = append(out, b|0x80)

			continue
		}

		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte

	for {
		b := byte(v & 0x7f)
		v >>= 7

		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if done {
			return append(out, b)
		}

		out = append(out, b|0x80)
	}
}
