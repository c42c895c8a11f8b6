package facematch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/kozaktomas/class-attendance/internal/constants"
	"github.com/kozaktomas/class-attendance/internal/database"
)

var (
	// ErrEmptyEmbedding is returned when the query embedding has no values.
	ErrEmptyEmbedding = errors.New("empty face embedding")
	// ErrDimensionMismatch is returned when the query and gallery dimensions differ.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Match finds the identity of a face embedding in the gallery.
//
// Every candidate is compared by Euclidean distance. The nearest candidate
// wins, ties going to the lowest gallery position, and it is accepted only
// when its distance is strictly below tolerance. Anything else, including an
// empty gallery, is Unknown.
func Match(query []float32, gallery []Candidate, tolerance float64) (Result, error) {
	if len(query) == 0 {
		return Result{}, ErrEmptyEmbedding
	}

	unknown := Result{Name: constants.UnknownLabel, Distance: math.Inf(1)}
	if len(gallery) == 0 {
		return unknown, nil
	}

	best := -1
	bestDistance := math.Inf(1)
	for i := range gallery {
		if len(gallery[i].Embedding) != len(query) {
			return Result{}, fmt.Errorf("%w: query %d, %s has %d",
				ErrDimensionMismatch, len(query), gallery[i].RollNo, len(gallery[i].Embedding))
		}
		d := database.EuclideanDistance(query, gallery[i].Embedding)
		if d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	if best < 0 || bestDistance >= tolerance {
		unknown.Distance = bestDistance
		return unknown, nil
	}
	return Result{
		Known:    true,
		Name:     gallery[best].Name,
		RollNo:   gallery[best].RollNo,
		Distance: bestDistance,
	}, nil
}

// Gallery supplies the enrolled students a matcher searches. Revision
// changes whenever the set of students or their embeddings change.
type Gallery interface {
	Revision() uint64
	Students(ctx context.Context) ([]database.Student, error)
}

// Matcher resolves one face embedding to an identity.
type Matcher interface {
	Match(ctx context.Context, embedding []float32) (Result, error)
}

// Options configures a matcher.
type Options struct {
	Tolerance    float64
	UnknownLabel string
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = constants.DefaultMatchTolerance
	}
	if o.UnknownLabel == "" {
		o.UnknownLabel = constants.UnknownLabel
	}
	return o
}

func (o Options) label(r Result) Result {
	if !r.Known {
		r.Name = o.UnknownLabel
	}
	return r
}

// LinearMatcher compares the query against every enrolled student.
type LinearMatcher struct {
	gallery Gallery
	opts    Options

	mu         sync.Mutex
	revision   uint64
	loaded     bool
	candidates []Candidate
}

// NewLinearMatcher creates an exact matcher over the gallery.
func NewLinearMatcher(gallery Gallery, opts Options) *LinearMatcher {
	return &LinearMatcher{gallery: gallery, opts: opts.withDefaults()}
}

// Match implements Matcher.
func (m *LinearMatcher) Match(ctx context.Context, embedding []float32) (Result, error) {
	candidates, err := m.refresh(ctx)
	if err != nil {
		return Result{}, err
	}
	r, err := Match(embedding, candidates, m.opts.Tolerance)
	if err != nil {
		return Result{}, err
	}
	return m.opts.label(r), nil
}

func (m *LinearMatcher) refresh(ctx context.Context) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	revision := m.gallery.Revision()
	if m.loaded && revision == m.revision {
		return m.candidates, nil
	}
	students, err := m.gallery.Students(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}
	m.candidates = CandidatesFromStudents(students)
	m.revision = revision
	m.loaded = true
	return m.candidates, nil
}

// CandidatesFromStudents builds a gallery in enrollment order.
func CandidatesFromStudents(students []database.Student) []Candidate {
	out := make([]Candidate, 0, len(students))
	for i := range students {
		out = append(out, Candidate{
			RollNo:    students[i].RollNo,
			Name:      students[i].Name,
			Embedding: students[i].Embedding,
		})
	}
	return out
}

// IndexMatcher searches an HNSW index and applies the tolerance to the
// exact distances of the returned neighbours. Results equal Match as long
// as the index recalls the true nearest student.
type IndexMatcher struct {
	gallery Gallery
	opts    Options
	k       int

	mu       sync.Mutex
	revision uint64
	loaded   bool
	index    *database.StudentIndex
}

// NewIndexMatcher creates an approximate matcher over the gallery.
func NewIndexMatcher(gallery Gallery, opts Options) *IndexMatcher {
	return &IndexMatcher{
		gallery: gallery,
		opts:    opts.withDefaults(),
		k:       constants.IndexCandidateCount,
		index:   database.NewStudentIndex(),
	}
}

// Match implements Matcher.
func (m *IndexMatcher) Match(ctx context.Context, embedding []float32) (Result, error) {
	if len(embedding) == 0 {
		return Result{}, ErrEmptyEmbedding
	}
	if err := m.refresh(ctx); err != nil {
		return Result{}, err
	}

	unknown := Result{Name: m.opts.UnknownLabel, Distance: math.Inf(1)}
	if m.index.Count() == 0 {
		return unknown, nil
	}
	if dim := m.index.Dim(); dim != len(embedding) {
		return Result{}, fmt.Errorf("%w: query %d, gallery %d", ErrDimensionMismatch, len(embedding), dim)
	}

	hits, err := m.index.Search(embedding, m.k)
	if err != nil {
		return Result{}, fmt.Errorf("search index: %w", err)
	}
	if len(hits) == 0 {
		return unknown, nil
	}

	best := hits[0]
	if best.Distance >= m.opts.Tolerance {
		unknown.Distance = best.Distance
		return unknown, nil
	}
	return Result{
		Known:    true,
		Name:     best.Student.Name,
		RollNo:   best.Student.RollNo,
		Distance: best.Distance,
	}, nil
}

func (m *IndexMatcher) refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	revision := m.gallery.Revision()
	if m.loaded && revision == m.revision {
		return nil
	}
	students, err := m.gallery.Students(ctx)
	if err != nil {
		return fmt.Errorf("load gallery: %w", err)
	}
	if err := m.index.Build(students); err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	m.revision = revision
	m.loaded = true
	return nil
}

// NewMatcher returns the matcher selected by kind: "hnsw" or anything else for linear.
func NewMatcher(kind string, gallery Gallery, opts Options) Matcher {
	if kind == "hnsw" {
		return NewIndexMatcher(gallery, opts)
	}
	return NewLinearMatcher(gallery, opts)
}
