package course

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

type (
	// GradeTable is the grade matrix of a course: one row per student,
	// one column per assignment, in the order the caller asked for.
	GradeTable struct {
		Columns []Assignment
		Rows    []GradeRow
	}

	GradeRow struct {
		Login  string
		Name   string
		Grades []null.Int
	}
)

// GradeTable assembles the grade matrix. Teachers and admins see every
// enrolled student; a parent sees only their own children. Assignment
// ids select and order the columns; none means all assignments in
// course order.
func (svc *Service) GradeTable(ctx context.Context, courseID, requester string, rawAssIDs []string) (GradeTable, error) {
	if err := svc.guard.CourseExists(ctx, courseID); err != nil {
		return GradeTable{}, err
	}

	isTeacher, err := Check(svc.guard.TeacherAccess(ctx, requester, courseID))
	if err != nil {
		return GradeTable{}, err
	}

	var students []Member
	if isTeacher {
		if students, err = svc.repo.QueryStudents(ctx, courseID); err != nil {
			return GradeTable{}, pkgerrors.Wrap(err, "querying students")
		}
	} else {
		if err = svc.guard.ParentAccess(ctx, requester, courseID); err != nil {
			return GradeTable{}, err
		}
		if students, err = svc.repo.QueryParentChildren(ctx, courseID, requester); err != nil {
			return GradeTable{}, pkgerrors.Wrap(err, "querying children")
		}
	}

	columns, err := svc.gradeColumns(ctx, courseID, rawAssIDs)
	if err != nil {
		return GradeTable{}, err
	}

	logins := make([]string, len(students))
	for i, s := range students {
		logins[i] = s.Login
	}
	assIDs := make([]int, len(columns))
	for i, a := range columns {
		assIDs[i] = a.ID
	}

	cells, err := svc.repo.QueryGrades(ctx, courseID, logins, assIDs)
	if err != nil {
		return GradeTable{}, pkgerrors.Wrap(err, "querying grades")
	}
	byCell := make(map[string]map[int]null.Int, len(logins))
	for _, c := range cells {
		if byCell[c.Student] == nil {
			byCell[c.Student] = make(map[int]null.Int, len(assIDs))
		}
		byCell[c.Student][c.AssignmentID] = c.Grade
	}

	table := GradeTable{Columns: columns, Rows: make([]GradeRow, len(students))}
	for i, s := range students {
		row := GradeRow{Login: s.Login, Name: s.Name, Grades: make([]null.Int, len(columns))}
		for j, a := range columns {
			row.Grades[j] = byCell[s.Login][a.ID]
		}
		table.Rows[i] = row
	}
	return table, nil
}

func (svc *Service) gradeColumns(ctx context.Context, courseID string, rawAssIDs []string) ([]Assignment, error) {
	if len(rawAssIDs) == 0 {
		columns, err := svc.repo.ListAssignments(ctx, courseID)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "listing assignments")
		}
		return columns, nil
	}
	columns := make([]Assignment, 0, len(rawAssIDs))
	for _, raw := range rawAssIDs {
		assID, err := svc.guard.AssignmentExists(ctx, courseID, raw)
		if err != nil {
			return nil, err
		}
		ass, err := svc.repo.GetAssignment(ctx, courseID, assID)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "getting assignment")
		}
		columns = append(columns, ass)
	}
	return columns, nil
}

// WriteCSV renders the table with CRLF-terminated records and no
// trailing blank row. The header is Login, Public Name, then one column
// per assignment title; a missing grade is an empty cell. This layout
// is a contract surface: identical input must produce identical bytes.
func (t GradeTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	header := make([]string, 0, len(t.Columns)+2)
	header = append(header, "Login", "Public Name")
	for _, a := range t.Columns {
		header = append(header, a.Title)
	}
	if err := cw.Write(header); err != nil {
		return pkgerrors.Wrap(err, "writing csv header")
	}

	record := make([]string, len(header))
	for _, row := range t.Rows {
		record[0] = row.Login
		record[1] = row.Name
		for j, g := range row.Grades {
			if g.Valid {
				record[j+2] = strconv.Itoa(g.Int)
			} else {
				record[j+2] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return pkgerrors.Wrap(err, "writing csv record")
		}
	}
	cw.Flush()
	return pkgerrors.Wrap(cw.Error(), "flushing csv")
}
