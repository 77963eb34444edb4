package course

import (
	"bytes"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/volatiletech/null/v8"
)

// diff renders a unified diff for readable byte-contract failures.
func diff(t *testing.T, want, got string) string {
	t.Helper()
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	if err != nil {
		t.Fatalf("GetUnifiedDiffString() failed: %v", err)
	}
	return out
}

// The CSV layout is a contract surface: identical input must produce
// identical bytes, CRLF line endings and no trailing blank row included.
func TestGradeTable_WriteCSV(t *testing.T) {
	table := GradeTable{
		Columns: []Assignment{
			{ID: 1, Title: "Essay"},
			{ID: 2, Title: "Quiz"},
		},
		Rows: []GradeRow{
			{Login: "ben@test.cd", Name: "Ben", Grades: []null.Int{null.IntFrom(8), {}}},
			{Login: "eva@test.cd", Name: "Eva", Grades: []null.Int{null.IntFrom(10), null.IntFrom(7)}},
			{Login: "tom@test.cd", Name: "Tom", Grades: []null.Int{{}, {}}},
		},
	}

	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV() failed: %v", err)
	}

	want := "Login,Public Name,Essay,Quiz\r\n" +
		"ben@test.cd,Ben,8,\r\n" +
		"eva@test.cd,Eva,10,7\r\n" +
		"tom@test.cd,Tom,,\r\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteCSV() mismatch:\n%s", diff(t, want, got))
	}
}

func TestGradeTable_WriteCSV_empty(t *testing.T) {
	var buf bytes.Buffer
	if err := (GradeTable{}).WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV() failed: %v", err)
	}
	if got := buf.String(); got != "Login,Public Name\r\n" {
		t.Errorf("WriteCSV() = %q", got)
	}
}

// Titles containing the separator or quotes must round-trip quoted.
func TestGradeTable_WriteCSV_quoting(t *testing.T) {
	table := GradeTable{
		Columns: []Assignment{{ID: 1, Title: `Lab, part "A"`}},
		Rows:    []GradeRow{{Login: "ben@test.cd", Name: "Ben, Jr.", Grades: []null.Int{null.IntFrom(9)}}},
	}

	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV() failed: %v", err)
	}
	want := "Login,Public Name,\"Lab, part \"\"A\"\"\"\r\n" +
		"ben@test.cd,\"Ben, Jr.\",9\r\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteCSV() mismatch:\n%s", diff(t, want, got))
	}
}
