package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/edhub/core/course"
)

type courseRepository struct {
	db *DB
}

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

// courses

func (repo *courseRepository) CourseExists(ctx context.Context, courseID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.courses[courseID]
	return ok, nil
}

func (repo *courseRepository) CreateCourse(ctx context.Context, title, teacher string) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs := &courseRow{
		course: course.Course{
			ID:        repo.db.newCourseID(),
			Title:     title,
			CreatedAt: time.Now().UTC(),
		},
		teachers:    map[string]bool{teacher: true},
		students:    make(map[string]bool),
		parents:     make(map[string]map[string]bool),
		materials:   make(map[int]*course.Material),
		assignments: make(map[int]*course.Assignment),
		submissions: make(map[subKey]*course.Submission),
		attachments: make(map[string]*attachmentRow),
	}
	repo.db.courses[crs.course.ID] = crs
	return crs.course, nil
}

func (repo *courseRepository) RemoveCourse(ctx context.Context, courseID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.deleteCourse(courseID)
	return nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, courseID string) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	out := crs.course
	out.NumStudents = len(crs.students)
	return out, nil
}

func (repo *courseRepository) GetFeed(ctx context.Context, courseID string) ([]course.FeedItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	feed := make([]course.FeedItem, 0, len(crs.materials)+len(crs.assignments))
	for _, mat := range crs.materials {
		feed = append(feed, course.FeedItem{
			CourseID: courseID, ID: mat.ID, Type: course.PostMaterial,
			Title: mat.Title, CreatedAt: mat.CreatedAt, Author: mat.Author,
		})
	}
	for _, ass := range crs.assignments {
		feed = append(feed, course.FeedItem{
			CourseID: courseID, ID: ass.ID, Type: course.PostAssignment,
			Title: ass.Title, CreatedAt: ass.CreatedAt, Author: ass.Author,
		})
	}
	sort.Slice(feed, func(i, j int) bool {
		if feed[i].CreatedAt.Equal(feed[j].CreatedAt) {
			return feed[i].ID > feed[j].ID
		}
		return feed[i].CreatedAt.After(feed[j].CreatedAt)
	})
	return feed, nil
}

func (repo *courseRepository) AvailableCourses(ctx context.Context, login string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]string, 0)
	for id, crs := range repo.db.courses {
		if crs.teachers[login] || crs.students[login] || len(crs.parents[login]) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// memberships

func (repo *courseRepository) IsTeacher(ctx context.Context, login, courseID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	return ok && crs.teachers[login], nil
}

func (repo *courseRepository) IsStudent(ctx context.Context, login, courseID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	return ok && crs.students[login], nil
}

func (repo *courseRepository) IsParent(ctx context.Context, login, courseID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	return ok && len(crs.parents[login]) > 0, nil
}

func (repo *courseRepository) IsParentOfStudent(ctx context.Context, parent, student, courseID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	return ok && crs.parents[parent][student], nil
}

func (repo *courseRepository) AddTeacher(ctx context.Context, login, courseID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.ErrNotFound
	}
	if crs.teachers[login] {
		return course.ErrDuplicate
	}
	crs.teachers[login] = true
	return nil
}

func (repo *courseRepository) RemoveTeacher(ctx context.Context, login, courseID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if crs, ok := repo.db.courses[courseID]; ok {
		delete(crs.teachers, login)
	}
	return nil
}

func (repo *courseRepository) CountTeachers(ctx context.Context, courseID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return 0, nil
	}
	return len(crs.teachers), nil
}

func (repo *courseRepository) AddStudent(ctx context.Context, login, courseID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.ErrNotFound
	}
	if crs.students[login] {
		return course.ErrDuplicate
	}
	crs.students[login] = true
	return nil
}

func (repo *courseRepository) RemoveStudent(ctx context.Context, login, courseID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if crs, ok := repo.db.courses[courseID]; ok {
		crs.detachStudent(repo.db, login)
	}
	return nil
}

func (repo *courseRepository) AddParent(ctx context.Context, parent, student, courseID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.ErrNotFound
	}
	if crs.parents[parent][student] {
		return course.ErrDuplicate
	}
	if crs.parents[parent] == nil {
		crs.parents[parent] = make(map[string]bool)
	}
	crs.parents[parent][student] = true
	return nil
}

func (repo *courseRepository) RemoveParent(ctx context.Context, parent, student, courseID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if crs, ok := repo.db.courses[courseID]; ok {
		delete(crs.parents[parent], student)
		if len(crs.parents[parent]) == 0 {
			delete(crs.parents, parent)
		}
	}
	return nil
}

func (repo *courseRepository) QueryTeachers(ctx context.Context, courseID string) ([]course.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	return repo.members(crs.teachers), nil
}

func (repo *courseRepository) QueryStudents(ctx context.Context, courseID string) ([]course.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	return repo.members(crs.students), nil
}

func (repo *courseRepository) QueryStudentParents(ctx context.Context, courseID, student string) ([]course.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	parents := make(map[string]bool)
	for parent, children := range crs.parents {
		if children[student] {
			parents[parent] = true
		}
	}
	return repo.members(parents), nil
}

func (repo *courseRepository) QueryParentChildren(ctx context.Context, courseID, parent string) ([]course.Member, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	return repo.members(crs.parents[parent]), nil
}

// members resolves logins to roster entries, sorted by login. Caller
// holds at least the read lock.
func (repo *courseRepository) members(logins map[string]bool) []course.Member {
	members := make([]course.Member, 0, len(logins))
	for login := range logins {
		m := course.Member{Login: login}
		if acct, ok := repo.db.accounts[login]; ok {
			m.Name = acct.Name
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Login < members[j].Login })
	return members
}

// materials & assignments

func (repo *courseRepository) MaterialExists(ctx context.Context, courseID string, matID int) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return false, nil
	}
	_, ok = crs.materials[matID]
	return ok, nil
}

func (repo *courseRepository) AssignmentExists(ctx context.Context, courseID string, assID int) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return false, nil
	}
	_, ok = crs.assignments[assID]
	return ok, nil
}

func (repo *courseRepository) CreateMaterial(ctx context.Context, courseID, title, description, author string) (course.Material, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.Material{}, course.ErrNotFound
	}
	mat := &course.Material{
		CourseID:    courseID,
		ID:          repo.db.newItemID(),
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		Author:      null.StringFrom(author),
	}
	crs.materials[mat.ID] = mat
	return *mat, nil
}

func (repo *courseRepository) RemoveMaterial(ctx context.Context, courseID string, matID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.ErrNotFound
	}
	delete(crs.materials, matID)
	crs.deleteAttachments(repo.db, course.MaterialOwner(courseID, matID))
	return nil
}

func (repo *courseRepository) GetMaterial(ctx context.Context, courseID string, matID int) (course.Material, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.Material{}, course.ErrNotFound
	}
	mat, ok := crs.materials[matID]
	if !ok {
		return course.Material{}, course.ErrNotFound
	}
	return *mat, nil
}

func (repo *courseRepository) CreateAssignment(ctx context.Context, courseID, title, description, author string) (course.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.Assignment{}, course.ErrNotFound
	}
	ass := &course.Assignment{
		CourseID:    courseID,
		ID:          repo.db.newItemID(),
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UTC(),
		Author:      null.StringFrom(author),
	}
	crs.assignments[ass.ID] = ass
	return *ass, nil
}

func (repo *courseRepository) RemoveAssignment(ctx context.Context, courseID string, assID int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.ErrNotFound
	}
	delete(crs.assignments, assID)
	for key := range crs.submissions {
		if key.assID == assID {
			delete(crs.submissions, key)
		}
	}
	for fileID, att := range crs.attachments {
		if att.owner.ItemID == assID &&
			(att.owner.Kind == course.OwnerAssignment || att.owner.Kind == course.OwnerSubmission) {
			delete(crs.attachments, fileID)
			delete(repo.db.files, fileID)
		}
	}
	return nil
}

func (repo *courseRepository) GetAssignment(ctx context.Context, courseID string, assID int) (course.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.Assignment{}, course.ErrNotFound
	}
	ass, ok := crs.assignments[assID]
	if !ok {
		return course.Assignment{}, course.ErrNotFound
	}
	return *ass, nil
}

func (repo *courseRepository) ListAssignments(ctx context.Context, courseID string) ([]course.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	asses := make([]course.Assignment, 0, len(crs.assignments))
	for _, ass := range crs.assignments {
		asses = append(asses, *ass)
	}
	sort.Slice(asses, func(i, j int) bool { return asses[i].ID < asses[j].ID })
	return asses, nil
}

// submissions

func (repo *courseRepository) SubmissionExists(ctx context.Context, courseID string, assID int, student string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return false, nil
	}
	_, ok = crs.submissions[subKey{assID: assID, student: student}]
	return ok, nil
}

func (repo *courseRepository) CreateSubmission(ctx context.Context, courseID string, assID int, student, comment string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return course.ErrNotFound
	}
	key := subKey{assID: assID, student: student}
	if _, ok = crs.submissions[key]; ok {
		return course.ErrDuplicate
	}
	now := time.Now().UTC()
	crs.submissions[key] = &course.Submission{
		CourseID:     courseID,
		AssignmentID: assID,
		Student:      student,
		Comment:      comment,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	return nil
}

func (repo *courseRepository) UpdateSubmissionComment(ctx context.Context, courseID string, assID int, student, comment string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sub, err := repo.getSubmission(courseID, assID, student)
	if err != nil {
		return err
	}
	sub.Comment = comment
	sub.ModifiedAt = time.Now().UTC()
	return nil
}

func (repo *courseRepository) GetSubmission(ctx context.Context, courseID string, assID int, student string) (course.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sub, err := repo.getSubmission(courseID, assID, student)
	if err != nil {
		return course.Submission{}, err
	}
	out := *sub
	if acct, ok := repo.db.accounts[student]; ok {
		out.StudentName = acct.Name
	}
	return out, nil
}

// getSubmission looks up the live submission row. Caller holds a lock.
func (repo *courseRepository) getSubmission(courseID string, assID int, student string) (*course.Submission, error) {
	crs, ok := repo.db.courses[courseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	sub, ok := crs.submissions[subKey{assID: assID, student: student}]
	if !ok {
		return nil, course.ErrNotFound
	}
	return sub, nil
}

func (repo *courseRepository) QuerySubmissions(ctx context.Context, courseID string, assID int) ([]course.Submission, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	subs := make([]course.Submission, 0)
	for key, sub := range crs.submissions {
		if key.assID != assID {
			continue
		}
		out := *sub
		if acct, ok := repo.db.accounts[key.student]; ok {
			out.StudentName = acct.Name
		}
		subs = append(subs, out)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Student < subs[j].Student })
	return subs, nil
}

func (repo *courseRepository) GradeSubmission(ctx context.Context, courseID string, assID int, student string, grade int, grader string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sub, err := repo.getSubmission(courseID, assID, student)
	if err != nil {
		return err
	}
	// modified_at stays the student's last edit time so a grade older
	// than the work remains detectable
	sub.Grade = null.IntFrom(grade)
	sub.GradedBy = null.StringFrom(grader)
	return nil
}

func (repo *courseRepository) QueryGrades(ctx context.Context, courseID string, students []string, assignments []int) ([]course.GradeCell, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[courseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	wantStudent := toSet(students)
	wantAss := make(map[int]bool, len(assignments))
	for _, id := range assignments {
		wantAss[id] = true
	}

	cells := make([]course.GradeCell, 0)
	for key, sub := range crs.submissions {
		if len(students) > 0 && !wantStudent[key.student] {
			continue
		}
		if len(assignments) > 0 && !wantAss[key.assID] {
			continue
		}
		cells = append(cells, course.GradeCell{Student: key.student, AssignmentID: key.assID, Grade: sub.Grade})
	}
	return cells, nil
}

// attachments

func (repo *courseRepository) FileExists(ctx context.Context, fileID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.files[fileID]
	return ok, nil
}

func (repo *courseRepository) AddAttachment(ctx context.Context, owner course.AttachmentOwner, filename string, content []byte) (course.Attachment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[owner.CourseID]
	if !ok {
		return course.Attachment{}, course.ErrNotFound
	}
	att := course.Attachment{
		FileID:     repo.db.newFileID(),
		Filename:   filename,
		UploadedAt: time.Now().UTC(),
	}
	repo.db.files[att.FileID] = content
	crs.attachments[att.FileID] = &attachmentRow{owner: owner, meta: att}
	return att, nil
}

func (repo *courseRepository) QueryAttachments(ctx context.Context, owner course.AttachmentOwner) ([]course.Attachment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[owner.CourseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	atts := make([]course.Attachment, 0)
	for _, att := range crs.attachments {
		if att.owner == owner {
			atts = append(atts, att.meta)
		}
	}
	// upload order, file id as the tie-breaker, same as the SQL repo
	sort.Slice(atts, func(i, j int) bool {
		if !atts[i].UploadedAt.Equal(atts[j].UploadedAt) {
			return atts[i].UploadedAt.Before(atts[j].UploadedAt)
		}
		return atts[i].FileID < atts[j].FileID
	})
	return atts, nil
}

func (repo *courseRepository) GetAttachment(ctx context.Context, owner course.AttachmentOwner, fileID string) (course.Attachment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	crs, ok := repo.db.courses[owner.CourseID]
	if !ok {
		return course.Attachment{}, course.ErrNotFound
	}
	att, ok := crs.attachments[fileID]
	if !ok || att.owner != owner {
		return course.Attachment{}, course.ErrNotFound
	}
	return att.meta, nil
}

func (repo *courseRepository) GetFileContent(ctx context.Context, fileID string) ([]byte, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	content, ok := repo.db.files[fileID]
	if !ok {
		return nil, course.ErrNotFound
	}
	return content, nil
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}
