package lanes

import (
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-vecmath/cpu"
)

var registeredNames = []string{"generic", "swar"}

func randomGroup(rng *rand.Rand) Group {
	var g Group
	for i := range g {
		switch rng.Intn(6) {
		case 0:
			g[i] = 0
		case 1:
			g[i] = LimbMask
		case 2:
			g[i] = SignBit
		default:
			g[i] = rng.Uint32() & LimbMask
		}
	}
	return g
}

func randomCarry(rng *rand.Rand) Group {
	var g Group
	for i := range g {
		g[i] = uint32(rng.Intn(2))
	}
	return g
}

// supportedBackends lists the registered backends this CPU can run, generic excluded.
func supportedBackends(t *testing.T) []OpEntry {
	t.Helper()
	var out []OpEntry
	for _, entry := range Runnable() {
		if entry.Name != "generic" {
			out = append(out, entry)
		}
	}
	if len(out) == 0 {
		t.Fatal("no accelerated backend registered")
	}
	return out
}

// TestBackends_GenericEquivalence verifies every runnable backend matches the per-lane one.
func TestBackends_GenericEquivalence(t *testing.T) {
	for _, entry := range supportedBackends(t) {
		ops := entry.Ops
		t.Run(entry.Name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))

			for n := 0; n < 2000; n++ {
				a := randomGroup(rng)
				b := randomGroup(rng)
				c := randomCarry(rng)
				m := Mask(rng.Intn(256))
				threshold := rng.Uint32() & MagnitudeMask
				switch n % 7 {
				case 0:
					threshold = 0
				case 1:
					threshold = MagnitudeMask
				case 2:
					threshold = MagnitudeMask + 1 + rng.Uint32()%16
				}

				var d1, d2 Group
				c1, c2 := c, c
				genericOps.AddCarry(&d1, &a, &b, &c1)
				ops.AddCarry(&d2, &a, &b, &c2)
				if d1 != d2 || c1 != c2 {
					t.Fatalf("case %d: AddCarry mismatch: generic=%v/%v got=%v/%v", n, d1, c1, d2, c2)
				}

				c1, c2 = c, c
				genericOps.IncrementCarry(&d1, &a, &c1)
				ops.IncrementCarry(&d2, &a, &c2)
				if d1 != d2 || c1 != c2 {
					t.Fatalf("case %d: IncrementCarry mismatch", n)
				}

				genericOps.Complement(&d1, &a)
				ops.Complement(&d2, &a)
				if d1 != d2 {
					t.Fatalf("case %d: Complement mismatch", n)
				}

				if g, s := genericOps.SignMask(&a), ops.SignMask(&a); g != s {
					t.Fatalf("case %d: SignMask mismatch: generic=%08b got=%08b", n, g, s)
				}

				genericOps.Blend(&d1, &a, &b, m)
				ops.Blend(&d2, &a, &b, m)
				if d1 != d2 {
					t.Fatalf("case %d: Blend mismatch under %08b", n, m)
				}

				if g, s := genericOps.CompareGE(&a, threshold), ops.CompareGE(&a, threshold); g != s {
					t.Fatalf("case %d: CompareGE mismatch for threshold %#x: generic=%08b got=%08b", n, threshold, g, s)
				}
			}
		})
	}
}

func TestAddCarry_PropagatesOnlyWithinLane(t *testing.T) {
	a := Group{LimbMask, 0, LimbMask, 1, 0, 0, LimbMask, 5}
	b := Group{1, 0, LimbMask, 1, 0, 0, 0, 5}
	carry := Group{0, 1, 1, 0, 0, 0, 1, 0}

	for _, entry := range append(supportedBackends(t), OpEntry{Name: "generic", Ops: genericOps}) {
		t.Run(entry.Name, func(t *testing.T) {
			var dst Group
			c := carry
			entry.Ops.AddCarry(&dst, &a, &b, &c)

			wantDst := Group{0, 1, LimbMask, 2, 0, 0, 0, 10}
			wantCarry := Group{1, 0, 1, 0, 0, 0, 1, 0}
			if dst != wantDst {
				t.Errorf("dst = %v, want %v", dst, wantDst)
			}
			if c != wantCarry {
				t.Errorf("carry = %v, want %v", c, wantCarry)
			}
		})
	}
}

func TestCompareGE_SignBitCountsAsEscaped(t *testing.T) {
	src := Group{SignBit, SignBit | 3, 4, 3, 0, MagnitudeMask, 0, 0}
	want := Mask(0b00100111)

	for _, entry := range append(supportedBackends(t), OpEntry{Name: "generic", Ops: genericOps}) {
		if got := entry.Ops.CompareGE(&src, 4); got != want {
			t.Errorf("%s CompareGE = %08b, want %08b", entry.Name, got, want)
		}
	}
}

func TestMulAccumulate_SplitsProduct(t *testing.T) {
	var lo, hi Wide
	a := Wide{uint64(LimbMask), 2, 0, 1 << 30}
	b := Wide{uint64(LimbMask), 3, 9, 4}

	mulAccumulateGeneric(&lo, &hi, &a, &b, false)

	for i := 0; i < HalfWidth; i++ {
		p := a[i] * b[i]
		if lo[i] != p&wideLimbMask || hi[i] != p>>31 {
			t.Errorf("lane %d: lo=%d hi=%d, want lo=%d hi=%d", i, lo[i], hi[i], p&wideLimbMask, p>>31)
		}
	}

	lo, hi = Wide{}, Wide{}
	mulAccumulateGeneric(&lo, &hi, &a, &b, true)
	for i := 0; i < HalfWidth; i++ {
		p := 2 * a[i] * b[i]
		if lo[i] != p&wideLimbMask || hi[i] != p>>31 {
			t.Errorf("doubled lane %d mismatch", i)
		}
	}
}

func TestShiftCombine_TakesTopBitsOfLowWord(t *testing.T) {
	hi := Wide{1, 0, wideLimbMask, 0x12345}
	lo := Wide{wideLimbMask, 1 << 30, 0, 0x40000000 | 0x3F}

	for _, shift := range []uint{1, 2, 8} {
		var dst Wide
		shiftCombineGeneric(&dst, &hi, &lo, shift)
		for i := 0; i < HalfWidth; i++ {
			full := hi[i]<<BitsPerLimb | lo[i]
			want := (full >> (BitsPerLimb - shift)) & wideLimbMask
			if dst[i] != want {
				t.Errorf("shift %d lane %d: got %#x, want %#x", shift, i, dst[i], want)
			}
		}
	}
}

func TestNarrow_WritesOneHalf(t *testing.T) {
	var dst Group
	src := Wide{1, 2, 3, uint64(LimbMask)}

	narrowGeneric(&dst, &src, 1)
	want := Group{0, 0, 0, 0, 1, 2, 3, LimbMask}
	if dst != want {
		t.Errorf("dst = %v, want %v", dst, want)
	}

	narrowGeneric(&dst, &src, 0)
	want = Group{1, 2, 3, LimbMask, 1, 2, 3, LimbMask}
	if dst != want {
		t.Errorf("dst = %v, want %v", dst, want)
	}
}

func TestOverflow_FlagsCarryAndLostTopBits(t *testing.T) {
	carry := Wide{0, 1, 0, 0}
	top := Wide{1 << 29, 0, 1 << 30, 5}

	// shift 1 keeps bits below 30, shift 2 keeps bits below 29.
	if got, want := overflowGeneric(&carry, &top, 1), Mask(0b0110); got != want {
		t.Errorf("shift 1: got %04b, want %04b", got, want)
	}
	if got, want := overflowGeneric(&carry, &top, 2), Mask(0b0111); got != want {
		t.Errorf("shift 2: got %04b, want %04b", got, want)
	}
}

func TestMask_Helpers(t *testing.T) {
	if MaskOf(0) != 0 || MaskOf(3) != 0b111 || MaskOf(8) != AllLanes || MaskOf(12) != AllLanes {
		t.Error("MaskOf returned unexpected masks")
	}
	m := Mask(0b10110001)
	if m.Count() != 4 {
		t.Errorf("Count = %d, want 4", m.Count())
	}
	if m.Half(0) != 0b0001 || m.Half(1) != 0b1011 {
		t.Errorf("Half = %04b/%04b", m.Half(0), m.Half(1))
	}
	if !AllLanes.All() || m.All() {
		t.Error("All reported the wrong value")
	}
}

func TestRegistryLookupPrefersHigherPriority(t *testing.T) {
	reg := &OpRegistry{}
	reg.Register(OpEntry{Name: "generic", SIMDLevel: cpu.SIMDNone, Priority: 0, Baseline: true})
	reg.Register(OpEntry{Name: "swar", SIMDLevel: cpu.SIMDNone, Priority: 10})
	reg.Register(OpEntry{Name: "avx2", SIMDLevel: cpu.SIMDAVX2, Priority: 20})

	entry := reg.Lookup(cpu.Features{HasSSE2: true, HasAVX2: true})
	if entry == nil || entry.Name != "avx2" {
		t.Fatalf("expected avx2, got %#v", entry)
	}

	entry = reg.Lookup(cpu.Features{HasSSE2: true})
	if entry == nil || entry.Name != "swar" {
		t.Fatalf("expected swar, got %#v", entry)
	}
}

func TestRegistryLookupForceGeneric(t *testing.T) {
	reg := &OpRegistry{}
	reg.Register(OpEntry{Name: "swar", SIMDLevel: cpu.SIMDNone, Priority: 10})
	reg.Register(OpEntry{Name: "generic", SIMDLevel: cpu.SIMDNone, Priority: 0, Baseline: true})

	entry := reg.Lookup(cpu.Features{HasAVX2: true, ForceGeneric: true})
	if entry == nil || entry.Name != "generic" {
		t.Fatalf("expected generic with ForceGeneric, got %#v", entry)
	}
}

func TestGlobalRegistry_HasBackends(t *testing.T) {
	for _, name := range registeredNames {
		if _, err := Global.Get(name); err != nil {
			t.Errorf("backend %s not registered: %v", name, err)
		}
	}
	if _, err := Global.Get("nope"); err == nil {
		t.Error("expected error for unknown backend")
	}

	entry, err := Resolve("auto")
	if err != nil || entry == nil {
		t.Fatalf("Resolve(auto) = %v, %v", entry, err)
	}
}
