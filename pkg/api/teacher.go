package api

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strconv"

	"github.com/a-essam23/go-classroom/pkg/httpclient"
)

// Teacher covers /teacher: classes, courses, exams, questions, scores and
// question banks.
type Teacher struct {
	d Doer

	Classes       Resource
	Courses       Resource
	Exams         Resource
	Questions     Resource
	Scores        Resource
	QuestionBanks Resource
	MCQQuestions  Resource
}

func newTeacher(d Doer) *Teacher {
	return &Teacher{
		d:             d,
		Classes:       Resource{d: d, path: "teacher/classes"},
		Courses:       Resource{d: d, path: "teacher/courses"},
		Exams:         Resource{d: d, path: "teacher/exams"},
		Questions:     Resource{d: d, path: "teacher/questions"},
		Scores:        Resource{d: d, path: "teacher/scores"},
		QuestionBanks: Resource{d: d, path: "teacher/question-banks"},
		MCQQuestions:  Resource{d: d, path: "teacher/mcq-questions"},
	}
}

func (t *Teacher) AddStudentsToClass(ctx context.Context, classID int64, studentIDs []int64) (json.RawMessage, error) {
	return data(ctx, t.d, post, "teacher/classes/"+itoa(classID), map[string]any{"student_ids": studentIDs}, nil)
}

func (t *Teacher) RemoveStudentFromClass(ctx context.Context, classID, studentID int64) (Status, error) {
	return status(ctx, t.d, del, "teacher/classes/"+itoa(classID)+"/students/"+itoa(studentID), nil)
}

// Students lists students, optionally filtered by name and excluding the
// members of one class.
func (t *Teacher) Students(ctx context.Context, search string, excludeClassID int64) (json.RawMessage, error) {
	q := query("search", search)
	if excludeClassID > 0 {
		q.Set("exclude_class_id", itoa(excludeClassID))
	}
	return data(ctx, t.d, get, "teacher/students", nil, opts(q))
}

func (t *Teacher) SetCourseClasses(ctx context.Context, courseID int64, classIDs []int64) (json.RawMessage, error) {
	return data(ctx, t.d, post, "teacher/courses/"+itoa(courseID)+"/classes", map[string]any{"class_ids": classIDs}, nil)
}

type PublishExam struct {
	ClassIDs    []int64 `json:"class_ids"`
	PublishType string  `json:"publish_type"` // "immediate" or "scheduled"
	ScheduledAt string  `json:"scheduled_publish_time,omitempty"`
	StudentIDs  []int64 `json:"student_ids,omitempty"`
}

func (t *Teacher) PublishExam(ctx context.Context, examID int64, in PublishExam) (json.RawMessage, error) {
	return data(ctx, t.d, post, "teacher/exams/"+itoa(examID)+"/publish", in, nil)
}

// ImportScores uploads a spreadsheet. A 207 reply means some rows failed and
// is returned as a normal response.
func (t *Teacher) ImportScores(ctx context.Context, name string, content io.Reader) (*httpclient.Response, error) {
	return t.d.Send(ctx, post, "teacher/scores/import", nil, &httpclient.RequestOptions{
		Files: []httpclient.File{{Field: "file", Name: name, Content: content}},
	})
}

// ScoreTemplate downloads the empty import spreadsheet.
func (t *Teacher) ScoreTemplate(ctx context.Context) ([]byte, error) {
	return download(ctx, t.d, get, "teacher/scores/export", nil, opts(url.Values{"template": {"true"}}))
}

type ScoreFilter struct {
	ClassID   int64
	ExamID    int64
	StartDate string
	EndDate   string
}

func (f ScoreFilter) values() url.Values {
	q := query("start_date", f.StartDate, "end_date", f.EndDate)
	if f.ClassID > 0 {
		q.Set("class_id", strconv.FormatInt(f.ClassID, 10))
	}
	if f.ExamID > 0 {
		q.Set("exam_id", strconv.FormatInt(f.ExamID, 10))
	}
	return q
}

// ExportScores downloads the matching scores as a spreadsheet.
func (t *Teacher) ExportScores(ctx context.Context, f ScoreFilter) ([]byte, error) {
	return download(ctx, t.d, get, "teacher/scores/export", nil, opts(f.values()))
}

func (t *Teacher) ScoreAnalysis(ctx context.Context, f ScoreFilter) (json.RawMessage, error) {
	return data(ctx, t.d, get, "teacher/scores/analysis", nil, opts(f.values()))
}
