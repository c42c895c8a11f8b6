package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/class-attendance/internal/database"
)

func TestStudentStore_MissingFileIsEmpty(t *testing.T) {
	store, err := OpenStudentStore(filepath.Join(t.TempDir(), "students.cbor"), nil)
	if err != nil {
		t.Fatalf("OpenStudentStore failed: %v", err)
	}
	n, _ := store.CountStudents(context.Background())
	if n != 0 {
		t.Errorf("expected empty store, got %d students", n)
	}
}

func TestStudentStore_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "students.cbor")
	if err := os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := OpenStudentStore(path, nil)
	if err != nil {
		t.Fatalf("OpenStudentStore failed: %v", err)
	}
	n, _ := store.CountStudents(context.Background())
	if n != 0 {
		t.Errorf("expected empty store, got %d students", n)
	}
	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Errorf("expected corrupt file moved aside: %v", err)
	}
}

func TestStudentStore_PersistsInEnrollmentOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "students.cbor")

	store, err := OpenStudentStore(path, nil)
	if err != nil {
		t.Fatalf("OpenStudentStore failed: %v", err)
	}
	for _, s := range []database.Student{
		{RollNo: "3", Name: "Carol", Subjects: []string{"Math"}, Embedding: []float32{3, 3}},
		{RollNo: "1", Name: "Alice", Subjects: []string{"Math", "Physics"}, Embedding: []float32{1, 1}},
		{RollNo: "2", Name: "Bob", Subjects: []string{"Physics"}, Embedding: []float32{2, 2}},
	} {
		if err := store.SaveStudent(ctx, s); err != nil {
			t.Fatalf("SaveStudent(%s) failed: %v", s.RollNo, err)
		}
	}

	// Overwrite keeps position.
	if err := store.SaveStudent(ctx, database.Student{RollNo: "1", Name: "Alice B", Embedding: []float32{9, 9}}); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	reopened, err := OpenStudentStore(path, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	students, _ := reopened.ListStudents(ctx)

	wantOrder := []string{"3", "1", "2"}
	if len(students) != len(wantOrder) {
		t.Fatalf("expected %d students, got %d", len(wantOrder), len(students))
	}
	for i, roll := range wantOrder {
		if students[i].RollNo != roll {
			t.Errorf("position %d: expected roll '%s', got '%s'", i, roll, students[i].RollNo)
		}
	}
	if students[1].Name != "Alice B" || students[1].Embedding[0] != 9 {
		t.Errorf("overwrite not persisted: %+v", students[1])
	}
	if len(students[0].Embedding) != 2 {
		t.Errorf("embedding lost on reload: %+v", students[0])
	}
}

func TestStudentStore_Delete(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "students.cbor")
	store, _ := OpenStudentStore(path, nil)

	for _, roll := range []string{"1", "2", "3"} {
		_ = store.SaveStudent(ctx, database.Student{RollNo: roll, Name: "S" + roll, Embedding: []float32{1}})
	}

	ok, err := store.DeleteStudent(ctx, "2")
	if err != nil || !ok {
		t.Fatalf("DeleteStudent = %v, %v", ok, err)
	}
	ok, err = store.DeleteStudent(ctx, "42")
	if err != nil || ok {
		t.Errorf("DeleteStudent(unknown) = %v, %v; want false, nil", ok, err)
	}

	reopened, _ := OpenStudentStore(path, nil)
	students, _ := reopened.ListStudents(ctx)
	if len(students) != 2 || students[0].RollNo != "1" || students[1].RollNo != "3" {
		t.Errorf("unexpected students after delete: %+v", students)
	}
	if got, _ := reopened.GetStudent(ctx, "2"); got != nil {
		t.Errorf("deleted student still present: %+v", got)
	}
}

func TestStudentStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store, _ := OpenStudentStore(filepath.Join(t.TempDir(), "students.cbor"), nil)
	_ = store.SaveStudent(ctx, database.Student{RollNo: "1", Name: "A", Embedding: []float32{1, 2}})

	got, _ := store.GetStudent(ctx, "1")
	got.Embedding[0] = 100

	again, _ := store.GetStudent(ctx, "1")
	if again.Embedding[0] != 1 {
		t.Errorf("store state mutated through returned student")
	}
}
