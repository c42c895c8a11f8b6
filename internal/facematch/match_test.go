package facematch

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/kozaktomas/class-attendance/internal/database"
)

// vecAt returns a 4-dim vector offset from the origin by d along the first axis.
func vecAt(d float32) []float32 {
	return []float32{d, 0, 0, 0}
}

func TestMatch(t *testing.T) {
	origin := vecAt(0)

	tests := []struct {
		name      string
		gallery   []Candidate
		wantKnown bool
		wantRoll  string
		wantDist  float64
	}{
		{
			name:      "empty gallery",
			gallery:   nil,
			wantKnown: false,
			wantDist:  math.Inf(1),
		},
		{
			name:      "close face is identified",
			gallery:   []Candidate{{RollNo: "1", Name: "Alice", Embedding: vecAt(0.3)}},
			wantKnown: true,
			wantRoll:  "1",
			wantDist:  0.3,
		},
		{
			name:      "distant face is unknown",
			gallery:   []Candidate{{RollNo: "1", Name: "Alice", Embedding: vecAt(0.8)}},
			wantKnown: false,
			wantDist:  0.8,
		},
		{
			name:      "exactly at tolerance is unknown",
			gallery:   []Candidate{{RollNo: "1", Name: "Alice", Embedding: vecAt(0.6)}},
			wantKnown: false,
			wantDist:  0.6,
		},
		{
			name: "nearest wins among several within tolerance",
			gallery: []Candidate{
				{RollNo: "1", Name: "Alice", Embedding: vecAt(0.5)},
				{RollNo: "2", Name: "Bob", Embedding: vecAt(0.2)},
				{RollNo: "3", Name: "Carol", Embedding: vecAt(0.4)},
			},
			wantKnown: true,
			wantRoll:  "2",
			wantDist:  0.2,
		},
		{
			name: "tie goes to lowest index",
			gallery: []Candidate{
				{RollNo: "1", Name: "Alice", Embedding: vecAt(0.9)},
				{RollNo: "2", Name: "Bob", Embedding: vecAt(0.3)},
				{RollNo: "3", Name: "Carol", Embedding: vecAt(-0.3)},
			},
			wantKnown: true,
			wantRoll:  "2",
			wantDist:  0.3,
		},
		{
			name: "nearest beyond tolerance is unknown even with others further away",
			gallery: []Candidate{
				{RollNo: "1", Name: "Alice", Embedding: vecAt(0.7)},
				{RollNo: "2", Name: "Bob", Embedding: vecAt(1.5)},
			},
			wantKnown: false,
			wantDist:  0.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(origin, tt.gallery, 0.6)
			if err != nil {
				t.Fatalf("Match returned error: %v", err)
			}
			if got.Known != tt.wantKnown {
				t.Fatalf("Known = %v, want %v (result %+v)", got.Known, tt.wantKnown, got)
			}
			if got.Known && got.RollNo != tt.wantRoll {
				t.Errorf("RollNo = %q, want %q", got.RollNo, tt.wantRoll)
			}
			if !got.Known && got.Name != "Unknown" {
				t.Errorf("Name = %q, want Unknown", got.Name)
			}
			if math.IsInf(tt.wantDist, 1) {
				if !math.IsInf(got.Distance, 1) {
					t.Errorf("Distance = %v, want +Inf", got.Distance)
				}
			} else if math.Abs(got.Distance-tt.wantDist) > 1e-6 {
				t.Errorf("Distance = %v, want %v", got.Distance, tt.wantDist)
			}
		})
	}
}

func TestMatch_Errors(t *testing.T) {
	gallery := []Candidate{{RollNo: "1", Name: "Alice", Embedding: vecAt(0.1)}}

	if _, err := Match(nil, gallery, 0.6); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
	if _, err := Match([]float32{1, 2}, gallery, 0.6); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestMatch_DoesNotMutateGallery(t *testing.T) {
	gallery := []Candidate{{RollNo: "1", Name: "Alice", Embedding: vecAt(0.1)}}
	if _, err := Match(vecAt(0), gallery, 0.6); err != nil {
		t.Fatal(err)
	}
	if gallery[0].Embedding[0] != 0.1 || gallery[0].Name != "Alice" {
		t.Errorf("gallery mutated: %+v", gallery[0])
	}
}

type fakeGallery struct {
	students []database.Student
	revision uint64
	loads    int
	err      error
}

func (g *fakeGallery) Revision() uint64 { return g.revision }

func (g *fakeGallery) Students(ctx context.Context) ([]database.Student, error) {
	g.loads++
	if g.err != nil {
		return nil, g.err
	}
	return g.students, nil
}

func TestLinearMatcher_CachesByRevision(t *testing.T) {
	g := &fakeGallery{
		students: []database.Student{{RollNo: "1", Name: "Alice", Embedding: vecAt(0.1)}},
		revision: 1,
	}
	m := NewLinearMatcher(g, Options{Tolerance: 0.6, UnknownLabel: "Stranger"})
	ctx := context.Background()

	r, err := m.Match(ctx, vecAt(0))
	if err != nil || !r.Known || r.RollNo != "1" {
		t.Fatalf("Match = %+v, %v", r, err)
	}
	_, _ = m.Match(ctx, vecAt(0))
	if g.loads != 1 {
		t.Errorf("expected 1 gallery load, got %d", g.loads)
	}

	g.students = []database.Student{{RollNo: "2", Name: "Bob", Embedding: vecAt(5)}}
	g.revision = 2
	r, err = m.Match(ctx, vecAt(0))
	if err != nil {
		t.Fatal(err)
	}
	if r.Known || r.Name != "Stranger" {
		t.Errorf("expected custom unknown label after reload, got %+v", r)
	}
	if g.loads != 2 {
		t.Errorf("expected reload after revision change, got %d loads", g.loads)
	}
}

func TestLinearMatcher_GalleryError(t *testing.T) {
	m := NewLinearMatcher(&fakeGallery{err: errors.New("boom")}, Options{})
	if _, err := m.Match(context.Background(), vecAt(0)); err == nil {
		t.Error("expected error from gallery")
	}
}

func TestIndexMatcher_AgreesWithLinearScan(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	const dim = 16

	randomVec := func(scale float32) []float32 {
		v := make([]float32, dim)
		for i := range v {
			v[i] = (rng.Float32()*2 - 1) * scale
		}
		return v
	}

	students := make([]database.Student, 30)
	for i := range students {
		students[i] = database.Student{
			RollNo:    string(rune('A' + i)),
			Name:      "Student " + string(rune('A'+i)),
			Embedding: randomVec(1),
		}
	}
	g := &fakeGallery{students: students, revision: 1}
	indexed := NewIndexMatcher(g, Options{Tolerance: 0.6})
	gallery := CandidatesFromStudents(students)
	ctx := context.Background()

	for i := range students {
		// Perturb an enrolled face slightly; both strategies must find its owner.
		q := append([]float32(nil), students[i].Embedding...)
		q[0] += 0.05

		want, err := Match(q, gallery, 0.6)
		if err != nil {
			t.Fatal(err)
		}
		got, err := indexed.Match(ctx, q)
		if err != nil {
			t.Fatal(err)
		}
		if got.Known != want.Known || got.RollNo != want.RollNo {
			t.Errorf("query %d: index %+v, linear %+v", i, got, want)
		}
	}

	far := randomVec(50)
	got, err := indexed.Match(ctx, far)
	if err != nil {
		t.Fatal(err)
	}
	if got.Known {
		t.Errorf("expected unknown for far query, got %+v", got)
	}
}

func TestIndexMatcher_EmptyAndMismatch(t *testing.T) {
	ctx := context.Background()

	empty := NewIndexMatcher(&fakeGallery{}, Options{})
	r, err := empty.Match(ctx, vecAt(0))
	if err != nil || r.Known || r.Name != "Unknown" {
		t.Errorf("empty gallery Match = %+v, %v", r, err)
	}

	g := &fakeGallery{students: []database.Student{{RollNo: "1", Name: "A", Embedding: vecAt(0)}}, revision: 1}
	m := NewIndexMatcher(g, Options{})
	if _, err := m.Match(ctx, []float32{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := m.Match(ctx, nil); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("expected ErrEmptyEmbedding, got %v", err)
	}
}

func TestNewMatcher(t *testing.T) {
	g := &fakeGallery{}
	if _, ok := NewMatcher("hnsw", g, Options{}).(*IndexMatcher); !ok {
		t.Error("expected IndexMatcher for hnsw")
	}
	if _, ok := NewMatcher("linear", g, Options{}).(*LinearMatcher); !ok {
		t.Error("expected LinearMatcher for linear")
	}
}
