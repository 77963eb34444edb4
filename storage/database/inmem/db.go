// Package inmemdb provides in-memory repository implementations with
// the same sentinel and cascade semantics as the SQL ones. Used in
// tests and for running the API without a database.
package inmemdb

import (
	"strconv"
	"sync"
	"time"

	"github.com/trezcool/edhub/core/account"
	"github.com/trezcool/edhub/core/course"
)

type (
	DB struct {
		mutex sync.RWMutex

		accounts map[string]*account.Account
		courses  map[string]*courseRow
		files    map[string][]byte
		logs     []logRow

		courseSeq int
		itemSeq   int
		fileSeq   int
	}

	courseRow struct {
		course      course.Course
		teachers    map[string]bool
		students    map[string]bool
		parents     map[string]map[string]bool // parent -> children
		materials   map[int]*course.Material
		assignments map[int]*course.Assignment
		submissions map[subKey]*course.Submission
		attachments map[string]*attachmentRow // by file id
	}

	subKey struct {
		assID   int
		student string
	}

	attachmentRow struct {
		owner course.AttachmentOwner
		meta  course.Attachment
	}

	logRow struct {
		at  time.Time
		tag string
		msg string
	}
)

func NewDB() *DB {
	return &DB{
		accounts: make(map[string]*account.Account),
		courses:  make(map[string]*courseRow),
		files:    make(map[string][]byte),
	}
}

func (db *DB) newCourseID() string {
	db.courseSeq++
	return "course-" + strconv.Itoa(db.courseSeq)
}

func (db *DB) newItemID() int {
	db.itemSeq++
	return db.itemSeq
}

func (db *DB) newFileID() string {
	db.fileSeq++
	return "file-" + strconv.Itoa(db.fileSeq)
}

// deleteCourse drops the course row and its file blobs. Caller holds
// the write lock.
func (db *DB) deleteCourse(courseID string) {
	crs, ok := db.courses[courseID]
	if !ok {
		return
	}
	for fileID := range crs.attachments {
		delete(db.files, fileID)
	}
	delete(db.courses, courseID)
}

// deleteAttachments drops every attachment of one owner with its blob.
// Caller holds the write lock.
func (crs *courseRow) deleteAttachments(db *DB, owner course.AttachmentOwner) {
	for fileID, att := range crs.attachments {
		if att.owner == owner {
			delete(crs.attachments, fileID)
			delete(db.files, fileID)
		}
	}
}

// detachStudent drops a student's membership with their parent links,
// submissions and submission attachments. Caller holds the write lock.
func (crs *courseRow) detachStudent(db *DB, login string) {
	delete(crs.students, login)
	for parent := range crs.parents {
		delete(crs.parents[parent], login)
		if len(crs.parents[parent]) == 0 {
			delete(crs.parents, parent)
		}
	}
	for key := range crs.submissions {
		if key.student == login {
			delete(crs.submissions, key)
		}
	}
	for fileID, att := range crs.attachments {
		if att.owner.Kind == course.OwnerSubmission && att.owner.Student == login {
			delete(crs.attachments, fileID)
			delete(db.files, fileID)
		}
	}
}
