package solver

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

const (
	ISAGeneric = "generic"
	ISASSE     = "sse"
	ISAAVX2    = "avx2"
	ISAAVX512  = "avx512"
)

// ISAAvailable reports whether the running CPU offers isa.
func ISAAvailable(isa string) bool {
	switch isa {
	case ISAGeneric:
		return true
	case ISASSE:
		return cpu.X86.HasSSE41
	case ISAAVX2:
		return cpu.X86.HasAVX2 && cpu.X86.HasFMA
	case ISAAVX512:
		return cpu.X86.HasAVX512F
	default:
		return false
	}
}

// ResolveISA returns isa when available and ISAGeneric otherwise.
func ResolveISA(isa string) string {
	if ISAAvailable(isa) {
		return isa
	}
	return ISAGeneric
}

// ISAVariants lists the labelled variants for this architecture.
func ISAVariants() []string {
	if runtime.GOARCH != "amd64" {
		return nil
	}
	return []string{ISASSE, ISAAVX2, ISAAVX512}
}
