package engine

import (
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/cwbudde/msetgen/internal/fixed"
)

func testFormat(t *testing.T, limbs int) fixed.Format {
	t.Helper()
	f, err := fixed.NewFormat(fixed.DefaultBitsBeforeBP, limbs)
	if err != nil {
		t.Fatalf("NewFormat failed: %v", err)
	}
	return f
}

func rv(t *testing.T, s string) fixed.RValue {
	t.Helper()
	v, err := fixed.ParseRValue(s, 120, 0)
	if err != nil {
		t.Fatalf("ParseRValue(%q) failed: %v", s, err)
	}
	return v
}

func testRequest(t *testing.T, x, y, delta string, width, height int, target uint32, limbs int) *Request {
	t.Helper()
	return &Request{
		BlockPosition:    NewBlockPosition(0, 0),
		PositionX:        rv(t, x),
		PositionY:        rv(t, y),
		Delta:            rv(t, delta),
		Width:            width,
		Height:           height,
		TargetIterations: target,
		Threshold:        4,
		LimbCount:        limbs,
	}
}

func generate(t *testing.T, variant Variant, req *Request, opts ...Option) (*Buffers, *Response) {
	t.Helper()
	gen, err := New(variant, testFormat(t, req.LimbCount), req.Width, opts...)
	if err != nil {
		t.Fatalf("New(%s) failed: %v", variant, err)
	}
	out := NewBuffers(req.Width, req.Height)
	resp, err := gen.GenerateSection(req, out)
	if err != nil {
		t.Fatalf("GenerateSection failed: %v", err)
	}
	return out, resp
}

func TestOriginReachesTarget(t *testing.T) {
	for _, variant := range []Variant{BreadthFirst, DepthFirst} {
		t.Run(string(variant), func(t *testing.T) {
			req := testRequest(t, "0", "0", "0", 12, 2, 37, 2)
			out, resp := generate(t, variant, req)

			for i := range out.Counts {
				if out.Counts[i] != 37 {
					t.Errorf("count[%d] = %d, want 37", i, out.Counts[i])
				}
				if out.HasEscaped[i] {
					t.Errorf("point %d escaped", i)
				}
			}
			if !resp.RequestCompleted || resp.AllRowsHaveEscaped {
				t.Errorf("Unexpected response flags: %+v", resp)
			}
			if !reflect.DeepEqual(resp.RowHasEscaped, []bool{false}) {
				t.Errorf("RowHasEscaped = %v, want [false]", resp.RowHasEscaped)
			}
		})
	}
}

func TestTwoEscapesImmediately(t *testing.T) {
	for _, target := range []uint32{1, 10, 1000} {
		req := testRequest(t, "2", "0", "0", 8, 1, target, 3)
		out, resp := generate(t, BreadthFirst, req)

		for i := range out.Counts {
			if !out.HasEscaped[i] {
				t.Errorf("target %d: point %d did not escape", target, i)
			}
			if out.Counts[i] < 1 || out.Counts[i] > 2 {
				t.Errorf("target %d: count[%d] = %d, want 1 or 2", target, i, out.Counts[i])
			}
		}
		if !resp.AllRowsHaveEscaped {
			t.Errorf("target %d: expected every row escaped", target)
		}
	}
}

func TestInPlayShrinksToZero(t *testing.T) {
	var history [][]int
	observer := func(row, iteration, inPlay int) {
		for len(history) <= row {
			history = append(history, nil)
		}
		history[row] = append(history[row], inPlay)
	}

	req := testRequest(t, "-2", "-1", "1/16", 40, 6, 60, 2)
	generate(t, BreadthFirst, req, WithRowObserver(observer))

	if len(history) != req.Height {
		t.Fatalf("observed %d rows, want %d", len(history), req.Height)
	}
	for row, sizes := range history {
		for i := 1; i < len(sizes); i++ {
			if sizes[i] > sizes[i-1] {
				t.Fatalf("row %d: in-play grew from %d to %d", row, sizes[i-1], sizes[i])
			}
		}
		if sizes[len(sizes)-1] != 0 {
			t.Errorf("row %d: in-play ended at %d", row, sizes[len(sizes)-1])
		}
	}
}

func TestDeterministic(t *testing.T) {
	req := testRequest(t, "-0.75", "0.1", "1/512", 24, 4, 200, 3)

	a, ra := generate(t, BreadthFirst, req)
	b, rb := generate(t, BreadthFirst, req)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("Two runs of the same request differ")
	}
	if ra.OpCounts != rb.OpCounts {
		t.Errorf("Op counts differ: %+v vs %+v", ra.OpCounts, rb.OpCounts)
	}
}

func TestBackendsAgree(t *testing.T) {
	req := testRequest(t, "-1.5", "-0.5", "1/32", 32, 3, 80, 2)

	a, _ := generate(t, BreadthFirst, req, WithBackend("generic"))
	b, _ := generate(t, BreadthFirst, req, WithBackend("swar"))
	if !reflect.DeepEqual(a, b) {
		t.Fatal("generic and swar backends disagree")
	}
}

func TestVariantsAgree(t *testing.T) {
	req := testRequest(t, "-2", "-1.25", "1/16", 36, 5, 120, 2)

	bf, bresp := generate(t, BreadthFirst, req)
	df, dresp := generate(t, DepthFirst, req)

	if !reflect.DeepEqual(bf, df) {
		t.Fatal("breadth-first and depth-first outputs differ")
	}
	if !reflect.DeepEqual(bresp.RowHasEscaped, dresp.RowHasEscaped) {
		t.Errorf("row flags differ: %v vs %v", bresp.RowHasEscaped, dresp.RowHasEscaped)
	}
	if dresp.ZValues == nil {
		t.Fatal("depth-first response has no z values")
	}
	if bresp.OpCounts.UsedCalcs != dresp.OpCounts.UsedCalcs {
		t.Errorf("used calcs differ: %d vs %d", bresp.OpCounts.UsedCalcs, dresp.OpCounts.UsedCalcs)
	}
}

func TestMatchesScalarReference(t *testing.T) {
	req := testRequest(t, "-0.8", "0.15", "1/64", 9, 2, 150, 2)
	out, _ := generate(t, BreadthFirst, req)

	f := testFormat(t, 2)
	m, err := fixed.NewScalarMath(f, req.Threshold)
	if err != nil {
		t.Fatalf("NewScalarMath failed: %v", err)
	}
	cx, _ := fixed.FromRValue(req.PositionX, f)
	cy, _ := fixed.FromRValue(req.PositionY, f)
	delta, _ := fixed.FromRValue(req.Delta, f)
	offsets, err := BuildSamplePointOffsets(delta, req.Width, m)
	if err != nil {
		t.Fatalf("BuildSamplePointOffsets failed: %v", err)
	}

	for row := 0; row < req.Height; row++ {
		ci, _ := m.Add(cy, offsets[row])
		for col := 0; col < req.Width; col++ {
			cr, _ := m.Add(cx, offsets[col])
			count, escaped := scalarEscape(t, m, cr, ci, req.TargetIterations)

			i := row*req.Width + col
			if out.Counts[i] != count || out.HasEscaped[i] != escaped {
				t.Errorf("point (%d, %d): got (%d, %v), want (%d, %v)", col, row, out.Counts[i], out.HasEscaped[i], count, escaped)
			}
		}
	}
}

// scalarEscape runs one point through the same recurrence with the scalar kernel.
func scalarEscape(t *testing.T, m *fixed.ScalarMath, cr, ci fixed.Value, target uint32) (uint32, bool) {
	t.Helper()
	zr, zi := cr, ci
	var count uint32
	for {
		count++
		zr2, _ := m.Square(zr)
		zi2, _ := m.Square(zi)
		sum, _ := m.Add(zr2, zi2)
		if m.IsGreaterOrEqThanThreshold(sum) {
			return count, true
		}
		if count >= target {
			return count, false
		}

		s, _ := m.Add(zr, zi)
		s2, _ := m.Square(s)
		s2, _ = m.Sub(s2, zr2)
		s2, _ = m.Sub(s2, zi2)
		zi, _ = m.Add(s2, ci)
		d, _ := m.Sub(zr2, zi2)
		zr, _ = m.Add(d, cr)
	}
}

func TestResumeMatchesDirectRun(t *testing.T) {
	req := testRequest(t, "-1.9", "-0.9", "1/20", 20, 4, 30, 2)
	direct := *req
	direct.TargetIterations = 250

	gen, err := NewDepthFirstGenerator(testFormat(t, 2), req.Width)
	if err != nil {
		t.Fatalf("NewDepthFirstGenerator failed: %v", err)
	}

	out := NewBuffers(req.Width, req.Height)
	first, err := gen.GenerateSection(req, out)
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	next, err := Resume(req, first.ZValues, 250)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	resumed, err := gen.GenerateSection(next, out)
	if err != nil {
		t.Fatalf("resumed pass failed: %v", err)
	}

	want := NewBuffers(req.Width, req.Height)
	wantResp, err := gen.GenerateSection(&direct, want)
	if err != nil {
		t.Fatalf("direct pass failed: %v", err)
	}

	if !reflect.DeepEqual(out, want) {
		t.Fatal("deepened section differs from a direct run")
	}
	if !reflect.DeepEqual(resumed.ZValues, wantResp.ZValues) {
		t.Error("deepened z values differ from a direct run")
	}
	if resumed.OpCounts.UsedCalcs >= wantResp.OpCounts.UsedCalcs {
		t.Errorf("resume did %d calcs, direct run %d", resumed.OpCounts.UsedCalcs, wantResp.OpCounts.UsedCalcs)
	}

	if _, err := Resume(req, first.ZValues, 10); err == nil {
		t.Error("Expected error when lowering the target")
	}
}

func TestBreadthFirstRejectsResume(t *testing.T) {
	req := testRequest(t, "0", "0", "1/8", 8, 1, 10, 2)
	req.ZValues = NewZValues(2, 8, 1)

	gen, _ := NewBreadthFirstGenerator(testFormat(t, 2), 8)
	if _, err := gen.GenerateSection(req, NewBuffers(8, 1)); !errors.Is(err, ErrResumeNotSupported) {
		t.Errorf("error = %v, want ErrResumeNotSupported", err)
	}
}

func TestSkipPolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy SkipPolicy
		block  BlockPosition
		x, y   string
		skip   bool
	}{
		{"none", SkipNone, NewBlockPosition(9, 9), "0.5", "0.5", false},
		{"positive quadrant", SkipPositiveBlocks, NewBlockPosition(0, 0), "0.25", "0", true},
		{"negative x", SkipPositiveBlocks, NewBlockPosition(0, 0), "-0.25", "0.5", false},
		{"far from real axis", SkipLowDetailBlocks, NewBlockPosition(0, -2), "-1", "-1", true},
		{"far from imaginary axis", SkipLowDetailBlocks, NewBlockPosition(4, 0), "-1", "-1", true},
		{"near origin", SkipLowDetailBlocks, NewBlockPosition(-3, 1), "-1", "-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest(t, tt.x, tt.y, "1/8", 8, 2, 20, 2)
			req.BlockPosition = tt.block

			gen, _ := NewBreadthFirstGenerator(testFormat(t, 2), 8, WithSkipPolicy(tt.policy))
			out := NewBuffers(8, 2)
			out.Counts[0] = 99

			resp, err := gen.GenerateSection(req, out)
			if err != nil {
				t.Fatalf("GenerateSection failed: %v", err)
			}
			if resp.Skipped != tt.skip || resp.RequestCompleted == tt.skip {
				t.Errorf("skipped = %v, completed = %v, want skipped %v", resp.Skipped, resp.RequestCompleted, tt.skip)
			}
			if tt.skip && out.Counts[0] != 99 {
				t.Error("Skipped section modified the output buffers")
			}
		})
	}
}

func TestParseSkipPolicy(t *testing.T) {
	for _, p := range []SkipPolicy{SkipNone, SkipPositiveBlocks, SkipLowDetailBlocks} {
		got, err := ParseSkipPolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParseSkipPolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParseSkipPolicy("sometimes"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestRequestValidation(t *testing.T) {
	gen, _ := NewBreadthFirstGenerator(testFormat(t, 2), 8)

	req := testRequest(t, "0", "0", "1/8", 8, 1, 10, 3)
	if _, err := gen.GenerateSection(req, NewBuffers(8, 1)); !errors.Is(err, fixed.ErrFormatMismatch) {
		t.Errorf("limb mismatch error = %v, want ErrFormatMismatch", err)
	}

	req = testRequest(t, "0", "0", "1/8", 8, 1, 10, 2)
	req.Threshold = 200
	if _, err := gen.GenerateSection(req, NewBuffers(8, 1)); !errors.Is(err, fixed.ErrValueTooLarge) {
		t.Errorf("threshold error = %v, want ErrValueTooLarge", err)
	}

	req = testRequest(t, "0", "0", "1/8", 8, 2, 10, 2)
	if _, err := gen.GenerateSection(req, NewBuffers(8, 1)); err == nil {
		t.Error("Expected error for short output buffers")
	}

	req = testRequest(t, "300", "0", "1/8", 8, 1, 10, 2)
	if _, err := gen.GenerateSection(req, NewBuffers(8, 1)); !errors.Is(err, fixed.ErrValueTooLarge) {
		t.Errorf("position error = %v, want ErrValueTooLarge", err)
	}
}

func TestSamplePoints(t *testing.T) {
	f := testFormat(t, 2)
	m, _ := fixed.NewScalarMath(f, 4)
	delta, _ := fixed.FromRat(big.NewRat(3, 64), f, 0)
	start, _ := fixed.FromRat(big.NewRat(-1, 2), f, 0)

	cache := NewSamplePointCache()
	offsets, err := cache.Offsets(delta, 10, m)
	if err != nil {
		t.Fatalf("Offsets failed: %v", err)
	}
	again, _ := cache.Offsets(delta, 10, m)
	if &offsets[0] != &again[0] || cache.Len() != 1 {
		t.Error("Expected the second lookup to hit the cache")
	}

	points, err := BuildSamplePoints(start, offsets, m)
	if err != nil {
		t.Fatalf("BuildSamplePoints failed: %v", err)
	}
	for i, p := range points {
		want := new(big.Rat).Add(big.NewRat(-1, 2), big.NewRat(int64(3*i), 64))
		if p.Rat().Cmp(want) != 0 {
			t.Errorf("point %d = %s, want %s", i, p.Rat().RatString(), want.RatString())
		}
	}

	if _, err := BuildSamplePointOffsets(delta, 0, m); err == nil {
		t.Error("Expected error for empty extent")
	}
}

func TestCompressFlags(t *testing.T) {
	tests := []struct {
		in, want []bool
	}{
		{[]bool{true, true, true}, []bool{true}},
		{[]bool{false, false}, []bool{false}},
		{[]bool{true, false, true}, []bool{true, false, true}},
		{nil, []bool{false}},
	}
	for _, tt := range tests {
		if got := CompressFlags(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("CompressFlags(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if got := ExpandFlags([]bool{true}, 3); !reflect.DeepEqual(got, []bool{true, true, true}) {
		t.Errorf("ExpandFlags = %v", got)
	}
}

func TestEscapeVelocity(t *testing.T) {
	tests := []struct {
		sumSq float64
		want  uint32
	}{
		{0.5, 0},
		{4, VelocityScale - 1},
		{16, 0},
		{1e300, 0},
	}
	for _, tt := range tests {
		if got := EscapeVelocity(tt.sumSq); got != tt.want {
			t.Errorf("EscapeVelocity(%v) = %d, want %d", tt.sumSq, got, tt.want)
		}
	}

	if v := EscapeVelocity(8); v == 0 || v >= VelocityScale {
		t.Errorf("EscapeVelocity(8) = %d, want inside (0, %d)", v, VelocityScale)
	}
}
