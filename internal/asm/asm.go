// Package asm assembles the short, straight-line x86-64 machine-code blobs
// the replacers inject into a traced process: sequences of raw syscalls
// chained together and terminated by an int3 trap the ptrace engine waits
// on. No assembler library in the example corpus covers hand-written
// syscall trampolines at this level, so the encodings are written directly
// as byte sequences, the way a debugger or an exec shim would.
package asm

import "encoding/binary"

// Builder accumulates machine code for one run_codes invocation.
type Builder struct {
	code []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Len reports the number of bytes assembled so far.
func (b *Builder) Len() int { return len(b.code) }

// Bytes returns the assembled code.
func (b *Builder) Bytes() []byte { return b.code }

func (b *Builder) emit(bs ...byte) { b.code = append(b.code, bs...) }

// movImm64 loads a 64-bit immediate into the given register encoding using
// REX.W + B8+r moviq, the standard way to materialize a pointer or syscall
// argument that doesn't fit a 32-bit immediate.
func (b *Builder) movImm64(rexB byte, reg byte, val uint64) {
	b.emit(0x48|rexB, 0xB8+reg)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	b.emit(buf[:]...)
}

// Register encodings for the System V AMD64 syscall argument registers.
const (
	regRax = 0
	regRdi = 7
	regRsi = 6
	regRdx = 2
	regR10 = 2 // with REX.B set, encodes r10
	regR8  = 0 // with REX.B set, encodes r8
	regR9  = 1 // with REX.B set, encodes r9
)

// MovRax loads the syscall number into rax.
func (b *Builder) MovRax(v uint64) { b.movImm64(0, regRax, v) }

// MovRdi loads the first syscall argument.
func (b *Builder) MovRdi(v uint64) { b.movImm64(0, regRdi, v) }

// MovRsi loads the second syscall argument.
func (b *Builder) MovRsi(v uint64) { b.movImm64(0, regRsi, v) }

// MovRdx loads the third syscall argument.
func (b *Builder) MovRdx(v uint64) { b.movImm64(0, regRdx, v) }

// MovR10 loads the fourth syscall argument (REX.B set to reach r8-r15).
func (b *Builder) MovR10(v uint64) { b.movImm64(1, regR10, v) }

// MovR8 loads the fifth syscall argument.
func (b *Builder) MovR8(v uint64) { b.movImm64(1, regR8, v) }

// MovR9 loads the sixth syscall argument.
func (b *Builder) MovR9(v uint64) { b.movImm64(1, regR9, v) }

// Syscall emits the two-byte `syscall` instruction.
func (b *Builder) Syscall() { b.emit(0x0F, 0x05) }

// MovR8FromRax emits `mov r8, rax`, letting a generated blob carry a
// syscall's return value (e.g. an fd from open) into a later syscall's
// fifth argument register without a round trip back into Go.
func (b *Builder) MovR8FromRax() { b.emit(0x49, 0x89, 0xC0) }

// MovRdiFromR8 emits `mov rdi, r8`, carrying a value parked in r8 into the
// first syscall argument register (e.g. closing an fd stashed there
// earlier in the same blob).
func (b *Builder) MovRdiFromR8() { b.emit(0x4C, 0x89, 0xC7) }

// Int3 emits the one-byte breakpoint trap the ptrace engine waits on to
// learn the injected code has finished.
func (b *Builder) Int3() { b.emit(0xCC) }

// Syscall6 appends a full six-argument syscall sequence: load nr and up to
// six arguments, emit `syscall`. Unused trailing arguments may be zero;
// callers that need fewer arguments should pass zero and rely on the
// callee ignoring them, matching how the Linux syscall ABI already treats
// unused registers.
func (b *Builder) Syscall6(nr uint64, a1, a2, a3, a4, a5, a6 uint64) {
	b.MovRax(nr)
	b.MovRdi(a1)
	b.MovRsi(a2)
	b.MovRdx(a3)
	b.MovR10(a4)
	b.MovR8(a5)
	b.MovR9(a6)
	b.Syscall()
}

// Syscall3 appends a three-argument syscall sequence.
func (b *Builder) Syscall3(nr uint64, a1, a2, a3 uint64) {
	b.Syscall6(nr, a1, a2, a3, 0, 0, 0)
}

// Syscall2 appends a two-argument syscall sequence.
func (b *Builder) Syscall2(nr uint64, a1, a2 uint64) {
	b.Syscall6(nr, a1, a2, 0, 0, 0, 0)
}

// Syscall1 appends a one-argument syscall sequence.
func (b *Builder) Syscall1(nr uint64, a1 uint64) {
	b.Syscall6(nr, a1, 0, 0, 0, 0, 0)
}
