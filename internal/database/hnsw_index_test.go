package database

import (
	"testing"
)

func indexStudents() []Student {
	return []Student{
		{RollNo: "1", Name: "Alice", Embedding: []float32{0, 0, 0}},
		{RollNo: "2", Name: "Bob", Embedding: []float32{1, 0, 0}},
		{RollNo: "3", Name: "Carol", Embedding: []float32{0, 1, 0}},
		{RollNo: "4", Name: "Dave", Embedding: []float32{5, 5, 5}},
	}
}

func TestStudentIndex_Search(t *testing.T) {
	idx := NewStudentIndex()
	if err := idx.Build(indexStudents()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if idx.Count() != 4 {
		t.Fatalf("expected 4 indexed students, got %d", idx.Count())
	}
	if idx.Dim() != 3 {
		t.Errorf("expected dim 3, got %d", idx.Dim())
	}

	hits, err := idx.Search([]float32{0.9, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits")
	}
	if hits[0].Student.RollNo != "2" {
		t.Errorf("expected nearest student '2', got '%s'", hits[0].Student.RollNo)
	}
	if d := hits[0].Distance; d < 0.099 || d > 0.101 {
		t.Errorf("expected exact distance 0.1, got %v", d)
	}
}

func TestStudentIndex_TieBreaksByPosition(t *testing.T) {
	idx := NewStudentIndex()
	students := []Student{
		{RollNo: "b", Embedding: []float32{1, 0}},
		{RollNo: "a", Embedding: []float32{-1, 0}},
	}
	if err := idx.Build(students); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	hits, err := idx.Search([]float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Student.RollNo != "b" {
		t.Errorf("expected first-enrolled student on tie, got '%s'", hits[0].Student.RollNo)
	}
}

func TestStudentIndex_Empty(t *testing.T) {
	idx := NewStudentIndex()
	if err := idx.Build(nil); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	hits, err := idx.Search([]float32{1}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestStudentIndex_DimensionErrors(t *testing.T) {
	idx := NewStudentIndex()
	err := idx.Build([]Student{
		{RollNo: "1", Embedding: []float32{1, 2}},
		{RollNo: "2", Embedding: []float32{1, 2, 3}},
	})
	if err == nil {
		t.Error("expected error for mixed dimensions")
	}

	if err := idx.Build(indexStudents()); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := idx.Search([]float32{1, 2}, 1); err == nil {
		t.Error("expected error for query dimension mismatch")
	}
}
