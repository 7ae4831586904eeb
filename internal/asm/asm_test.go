package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyscall1EndsWithSyscallInstruction(t *testing.T) {
	b := NewBuilder()
	b.Syscall1(60, 0) // exit(0)
	b.Int3()

	code := b.Bytes()
	require.True(t, len(code) >= 3)
	// syscall (0x0F 0x05) immediately precedes the trailing int3 (0xCC).
	assert.Equal(t, []byte{0x0F, 0x05, 0xCC}, code[len(code)-3:])
}

func TestMovImm64EncodesRexWAndOpcode(t *testing.T) {
	b := NewBuilder()
	b.MovRax(42)

	code := b.Bytes()
	require.Len(t, code, 10)
	assert.Equal(t, byte(0x48), code[0], "REX.W prefix")
	assert.Equal(t, byte(0xB8), code[1], "mov rax, imm64 opcode")
}

func TestBuilderLenMatchesBytes(t *testing.T) {
	b := NewBuilder()
	b.Syscall3(0, 1, 2, 3)
	b.Int3()
	assert.Equal(t, len(b.Bytes()), b.Len())
}
