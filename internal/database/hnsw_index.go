package database

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/coder/hnsw"
)

// IndexHit is a student returned by an index search with its exact distance.
type IndexHit struct {
	Student  *Student
	Position int // enrollment position, used to break distance ties
	Distance float64
}

// StudentIndex wraps an HNSW graph over student embeddings keyed by roll number.
type StudentIndex struct {
	graph    *hnsw.Graph[string]
	students map[string]*Student
	position map[string]int
	dim      int
	mu       sync.RWMutex
}

// NewStudentIndex creates a new empty index.
func NewStudentIndex() *StudentIndex {
	return &StudentIndex{
		students: make(map[string]*Student),
		position: make(map[string]int),
	}
}

// Build replaces the index contents with the given students.
func (x *StudentIndex) Build(students []Student) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.students = make(map[string]*Student, len(students))
	x.position = make(map[string]int, len(students))
	x.graph = nil
	x.dim = 0

	if len(students) == 0 {
		return nil
	}

	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance

	for i := range students {
		s := students[i].Clone()
		if len(s.Embedding) == 0 {
			continue
		}
		if x.dim == 0 {
			x.dim = len(s.Embedding)
		} else if len(s.Embedding) != x.dim {
			return errors.New("embedding dimensions differ within index")
		}
		g.Add(hnsw.MakeNode(s.RollNo, s.Embedding))
		x.students[s.RollNo] = &s
		x.position[s.RollNo] = i
	}

	x.graph = g
	return nil
}

// Search finds up to k nearest students to the query embedding.
// Hits are ordered by exact Euclidean distance, ties by enrollment position.
func (x *StudentIndex) Search(query []float32, k int) ([]IndexHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || len(x.students) == 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, errors.New("query dimension does not match index")
	}

	neighbors := x.graph.Search(query, k)

	hits := make([]IndexHit, 0, len(neighbors))
	for _, n := range neighbors {
		s, ok := x.students[n.Key]
		if !ok {
			continue
		}
		// Recompute the distance from the stored embedding so callers get exact values.
		hits = append(hits, IndexHit{
			Student:  s,
			Position: x.position[n.Key],
			Distance: EuclideanDistance(query, s.Embedding),
		})
	}

	slices.SortStableFunc(hits, func(a, b IndexHit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return hits, nil
}

// Count returns the number of indexed students.
func (x *StudentIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.students)
}

// Dim returns the embedding dimension of the index, 0 when empty.
func (x *StudentIndex) Dim() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}
