package ir

import "strings"

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Block is an ordered sequence of instructions terminated by exactly one of: unconditional
// branch, conditional branch, switch, or return (data model invariant 1).
type Block struct {
	f            *Function
	id           int
	instructions []*Instruction
	seq          int
}

// ---------------------
// ----- Functions -----
// ---------------------

// ID returns b's unique id within its owning Function.
func (b *Block) ID() int {
	return b.id
}

// Name returns b's textual label, e.g. "b3".
func (b *Block) Name() string {
	return "b" + itoa(b.id)
}

// Terminated reports whether b already has a terminator appended.
func (b *Block) Terminated() bool {
	return len(b.instructions) > 0 && b.instructions[len(b.instructions)-1].Op.IsTerminator()
}

// Instructions returns b's instructions in order, the last of which is its terminator once set.
func (b *Block) Instructions() []*Instruction {
	return b.instructions
}

// append appends inst to b, assigning it a block-local id. Appending after a terminator is a
// programmer error (invariant 1) and panics, mirroring the teacher's panic-on-invalid-operand
// idiom for IR builder misuse.
func (b *Block) append(inst *Instruction) *Instruction {
	if b.Terminated() {
		panic("append: block " + b.Name() + " already terminated")
	}
	inst.id = b.seq
	b.seq++
	b.instructions = append(b.instructions, inst)
	return inst
}

// String renders b as a labeled sequence of instruction lines.
func (b *Block) String() string {
	sb := strings.Builder{}
	sb.WriteString(b.Name())
	sb.WriteString(":\n")
	for _, inst := range b.instructions {
		sb.WriteRune('\t')
		sb.WriteString(inst.String())
		sb.WriteRune('\n')
	}
	return sb.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
