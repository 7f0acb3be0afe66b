package lanes

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/cwbudde/algo-vecmath/cpu"
	xcpu "golang.org/x/sys/cpu"
)

var (
	activeOnce  sync.Once
	activeEntry *OpEntry
)

// Active returns the backend selected for this process. The choice is made once
// from the detected CPU features.
func Active() *OpEntry {
	activeOnce.Do(func() {
		features := cpu.DetectFeatures()
		activeEntry = Global.Lookup(features)
		if activeEntry == nil {
			// Lookup only fails on an empty registry.
			activeEntry = &OpEntry{Name: "generic", Baseline: true, Ops: genericOps}
		}
		slog.Debug("Lane backend selected",
			"backend", activeEntry.Name,
			"arch", features.Architecture,
			"avx2", features.HasAVX2,
			"force_generic", features.ForceGeneric,
		)
	})
	return activeEntry
}

// Resolve returns the backend named name, or Active when name is empty or "auto".
func Resolve(name string) (*OpEntry, error) {
	if name == "" || name == "auto" {
		return Active(), nil
	}
	entry, err := Global.Get(name)
	if err != nil {
		return nil, err
	}
	if !supports(cpu.DetectFeatures(), entry.SIMDLevel) {
		return nil, fmt.Errorf("lane backend %q needs %s, not available on this CPU", name, entry.SIMDLevel)
	}
	return entry, nil
}

// Runnable returns the registered backends the host CPU can execute, highest priority first.
func Runnable() []OpEntry {
	features := cpu.DetectFeatures()
	var out []OpEntry
	for _, entry := range Global.ListEntries() {
		if supports(features, entry.SIMDLevel) {
			out = append(out, entry)
		}
	}
	return out
}

// CPUInfo describes the host features relevant to backend selection.
type CPUInfo struct {
	Architecture string `json:"architecture"`
	HasSSE2      bool   `json:"hasSSE2"`
	HasAVX2      bool   `json:"hasAVX2"`
	HasBMI2      bool   `json:"hasBMI2"`
	HasASIMD     bool   `json:"hasASIMD"`
}

// DescribeCPU reports the feature bits seen by golang.org/x/sys/cpu.
func DescribeCPU() CPUInfo {
	return CPUInfo{
		Architecture: runtime.GOARCH,
		HasSSE2:      xcpu.X86.HasSSE2,
		HasAVX2:      xcpu.X86.HasAVX2,
		HasBMI2:      xcpu.X86.HasBMI2,
		HasASIMD:     xcpu.ARM64.HasASIMD,
	}
}
