//go:build amd64 && !purego

package lanes

import (
	"testing"

	"github.com/cwbudde/algo-vecmath/cpu"
)

func init() {
	registeredNames = append(registeredNames, "avx2")
}

func TestAVX2_Active(t *testing.T) {
	features := cpu.DetectFeatures()
	if !features.HasAVX2 || features.ForceGeneric {
		t.Skip("AVX2 not available")
	}
	entry := Global.Lookup(features)
	if entry == nil || entry.Name != "avx2" {
		t.Fatalf("expected avx2 to win lookup, got %#v", entry)
	}
}

func TestAVX2_BlendAliasedDestination(t *testing.T) {
	if !cpu.DetectFeatures().HasAVX2 {
		t.Skip("AVX2 not available")
	}
	a := Group{1, 2, 3, 4, 5, 6, 7, 8}
	b := Group{10, 20, 30, 40, 50, 60, 70, 80}
	blendAVX2(&a, &a, &b, 0b10000101)

	want := Group{10, 2, 30, 4, 5, 6, 7, 80}
	if a != want {
		t.Errorf("got %v, want %v", a, want)
	}
}

func TestResolve_RejectsUnsupportedBackend(t *testing.T) {
	cpu.SetForcedFeatures(cpu.Features{Architecture: "amd64", HasSSE2: true})
	defer cpu.ResetDetection()

	if _, err := Resolve("avx2"); err == nil {
		t.Fatal("expected avx2 to be rejected without AVX2")
	}
	if entry, err := Resolve("swar"); err != nil || entry.Name != "swar" {
		t.Fatalf("Resolve(swar) = %v, %v", entry, err)
	}
}
