package parse

import (
	"bufio"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	lverrors "layerview/pkg/errors"
	"layerview/pkg/model"
)

const twoLayers = `; two layer sample
M83
G0 Z0.2
G91
G1 X10 E0.025
G1 Y10 E0.025
G1 X-10 E0.025
G1 Y-10 E0.025
G90
G0 Z0.4
G91
G1 X10 E0.025
G1 Y10 E0.025
`

func parseString(t *testing.T, src string, opts Options) (*Result, error) {
	t.Helper()
	return Parse(context.Background(), strings.NewReader(src), opts, nil)
}

func TestTwoLayerSample(t *testing.T) {
	res, err := parseString(t, twoLayers, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := res.Model
	if m.LayerCount() != 2 {
		t.Fatalf("got %d layers, want 2", m.LayerCount())
	}
	want := []struct{ z, thickness float64 }{{0.2, 0.2}, {0.4, 0.2}}
	for i, w := range want {
		l := m.Layers[i]
		if math.Abs(l.Z-w.z) > 1e-9 || math.Abs(l.Thickness-w.thickness) > 1e-9 {
			t.Errorf("layer %d: Z=%v thickness=%v, want %v/%v", i, l.Z, l.Thickness, w.z, w.thickness)
		}
	}
	first := m.Layers[0]
	if len(first.Segments) != 4 || first.CountKind(model.Print) != 4 {
		t.Errorf("layer 0 has %d segments (%d print), want 4 print", len(first.Segments), first.CountKind(model.Print))
	}
	for _, s := range m.Layers[1].Segments {
		if s.Line == 10 {
			t.Error("G0 Z0.4 transition placed in layer 1")
		}
	}
	if m.Stats.Transitions != 2 {
		t.Errorf("transitions = %d, want 2", m.Stats.Transitions)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", res.Warnings)
	}
}

func TestNoMotionIsEmptyModel(t *testing.T) {
	res, err := parseString(t, "G28\nM104 S200\n", DefaultOptions())
	if !lverrors.Is(err, lverrors.ErrModelEmpty) {
		t.Fatalf("err = %v, want MODEL_EMPTY", err)
	}
	if res == nil || res.Model != nil {
		t.Fatalf("want a result without model, got %+v", res)
	}
}

func TestRepeatedAbsoluteTarget(t *testing.T) {
	res, err := parseString(t, "G90\nG1 X10 Y0\nG1 X10 Y0\n", DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	m := res.Model
	segs := m.Layers[0].Segments
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	second := segs[1]
	if second.Start != second.End || second.Kind != model.Travel || second.Length() != 0 {
		t.Errorf("second segment = %+v, want zero-length travel", second)
	}
	wantBox := model.Box{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{10, 0, 0}}
	if m.Bounds != wantBox {
		t.Errorf("bounds = %+v, want %+v", m.Bounds, wantBox)
	}
}

func TestRelativeAndAbsoluteResolution(t *testing.T) {
	src := "G1 X5 Y5 Z0.3 E1\nG91\nG1 X1 Y-2 E0.5\nG1 X1\nG90\nG1 Y20 E2\n"
	res, err := parseString(t, src, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	segs := res.Model.Layers[0].Segments
	want := []mgl64.Vec3{{6, 3, 0.3}, {7, 3, 0.3}, {7, 20, 0.3}}
	if len(segs) != len(want) {
		t.Fatalf("got %d segments, want %d", len(segs), len(want))
	}
	for i, w := range want {
		if !segs[i].End.ApproxEqual(w) {
			t.Errorf("segment %d ends at %v, want %v", i, segs[i].End, w)
		}
	}
	// E is absolute throughout: 1 -> 0.5 is a retraction, 0.5 -> 2 prints.
	if segs[0].Kind != model.Travel || segs[2].Kind != model.Print {
		t.Errorf("kinds = %v %v, want travel print", segs[0].Kind, segs[2].Kind)
	}
}

func TestDeterministic(t *testing.T) {
	a, err := parseString(t, twoLayers, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, err := parseString(t, twoLayers, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Model, b.Model) {
		t.Error("two passes over the same input differ")
	}
}

func TestArcExpansion(t *testing.T) {
	src := "M83\nG1 X10 Y0 Z0.2 F1200\nG2 X10 Y0 I-10 J0 E5\n"
	res, err := parseString(t, src, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	segs := res.Model.Layers[0].Segments
	if len(segs) < 20 {
		t.Fatalf("full circle expanded into %d segments", len(segs))
	}
	total := 0.0
	for _, s := range segs {
		if s.Kind != model.Print || s.Line != 3 || s.Feedrate != 1200 {
			t.Fatalf("chord %+v not a print of line 3 at F1200", s)
		}
		total += s.Extrusion
	}
	if math.Abs(total-5) > 1e-9 {
		t.Errorf("chord extrusion sums to %v, want 5", total)
	}
	if last := segs[len(segs)-1].End; last != (mgl64.Vec3{10, 0, 0.2}) {
		t.Errorf("arc ends at %v", last)
	}
}

func TestWarningsAreCollected(t *testing.T) {
	src := strings.Join([]string{
		"G1 X1 Y1 E1",
		"X10 Y10",
		"G1 X2 Q5",
		"G2 X5 Y5 E2",
		"G1 F0",
		"G1 X3 Y3 E3",
	}, "\n")
	res, err := parseString(t, src, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	wantCodes := []lverrors.Code{
		lverrors.ErrGCodeParse,
		lverrors.ErrGCodeInvalidParam,
		lverrors.ErrGeometryArc,
		lverrors.ErrGCodeInvalidParam,
	}
	if len(res.Warnings) != len(wantCodes) || res.WarningCount != len(wantCodes) {
		t.Fatalf("warnings = %+v", res.Warnings)
	}
	for i, w := range res.Warnings {
		if w.Code != wantCodes[i] || w.Line != i+2 {
			t.Errorf("warning %d = line %d %s, want line %d %s", i, w.Line, w.Code, i+2, wantCodes[i])
		}
		if w.Raw == "" || w.Message() == "" {
			t.Errorf("warning %d lacks raw text or message", i)
		}
	}
	if n := res.Model.SegmentCount(); n != 2 {
		t.Errorf("segments = %d, want 2", n)
	}
}

func TestOverlongLineIsSkipped(t *testing.T) {
	src := "G1 Z0.2\nG1 X10 E1\n;" + strings.Repeat("x", 2<<20) + "\nG1 X20 E2\n"
	res, err := parseString(t, src, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Line != 3 || res.Warnings[0].Code != lverrors.ErrGCodeLineTooLong {
		t.Fatalf("warnings = %+v", res.Warnings)
	}
	if len(res.Warnings[0].Raw) > 80 {
		t.Errorf("warning keeps %d bytes of raw text", len(res.Warnings[0].Raw))
	}
	m := res.Model
	if m.Stats.Lines != 4 || m.LayerCount() != 1 || m.SegmentCount() != 2 {
		t.Errorf("lines=%d layers=%d segments=%d, want 4/1/2", m.Stats.Lines, m.LayerCount(), m.SegmentCount())
	}
	if last := m.Layers[0].Segments[1]; last.Line != 4 || last.End.X() != 20 {
		t.Errorf("last segment = %+v", last)
	}
}

func TestLineReader(t *testing.T) {
	lr := lineReader{
		br:  bufio.NewReaderSize(strings.NewReader("abcdefgh\nabcdefghij\r\n\nxy"), 16),
		max: 8,
	}
	want := []struct {
		line    string
		dropped int
		err     error
	}{
		{"abcdefgh", 0, nil},
		{"abcdefgh", 3, nil},
		{"", 0, nil},
		{"xy", 0, io.EOF},
	}
	for i, w := range want {
		line, dropped, err := lr.next()
		if string(line) != w.line || dropped != w.dropped || err != w.err {
			t.Errorf("line %d = %q, %d, %v; want %q, %d, %v", i, line, dropped, err, w.line, w.dropped, w.err)
		}
	}
}

func TestWarningCap(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxWarnings = 2
	src := "G1 X1 E1\n" + strings.Repeat("X1\n", 5)
	res, err := parseString(t, src, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 2 || res.WarningCount != 5 {
		t.Errorf("kept %d of %d warnings, want 2 of 5", len(res.Warnings), res.WarningCount)
	}
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Parse(ctx, strings.NewReader(twoLayers), DefaultOptions(), nil)
	if !lverrors.IsCancelled(err) {
		t.Fatalf("err = %v, want LOAD_CANCELLED", err)
	}
	if res != nil {
		t.Error("cancelled pass returned a result")
	}
}

func TestCancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := strings.Repeat("G1 X1 E1\nG1 X0 E2\n", progressEvery)
	calls := 0
	_, err := Parse(ctx, strings.NewReader(src), DefaultOptions(), func(Progress) {
		calls++
		cancel()
	})
	if !lverrors.IsCancelled(err) {
		t.Fatalf("err = %v, want LOAD_CANCELLED", err)
	}
	if calls != 1 {
		t.Errorf("progress called %d times after cancellation", calls)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.gcode")
	if err := os.WriteFile(path, []byte(twoLayers), 0o644); err != nil {
		t.Fatal(err)
	}
	var last Progress
	res, err := File(context.Background(), path, DefaultOptions(), func(p Progress) { last = p })
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if res.Model.LayerCount() != 2 {
		t.Errorf("layers = %d", res.Model.LayerCount())
	}
	if last.Fraction() != 1 || last.Lines != 13 {
		t.Errorf("final progress = %+v", last)
	}
	if res.Model.Stats.Lines != 13 {
		t.Errorf("stats lines = %d", res.Model.Stats.Lines)
	}
}

func TestFileMissing(t *testing.T) {
	_, err := File(context.Background(), filepath.Join(t.TempDir(), "nope.gcode"), DefaultOptions(), nil)
	if !lverrors.Is(err, lverrors.ErrIORead) {
		t.Fatalf("err = %v, want IO_READ", err)
	}
}
