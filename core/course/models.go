package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core"
)

// Content item types
const (
	ItemVideo  = "video"
	ItemPDF    = "pdf"
	ItemModule = "module"
)

var ItemTypes = []string{ItemVideo, ItemPDF, ItemModule}

type (
	ContentItem struct {
		ID    string           `json:"id"`
		Type  string           `json:"type"`
		Title string           `json:"title"`
		URL   string           `json:"url,omitempty"`
		Body  string           `json:"body,omitempty"`
		Blob  *core.BlobHandle `json:"blob,omitempty"`
	}

	Section struct {
		ID    string        `json:"id"`
		Title string        `json:"title"`
		Items []ContentItem `json:"items"`
	}

	Assignment struct {
		Title   string    `json:"title"`
		DueDate time.Time `json:"due_date"`
	}

	Exam struct {
		Title string    `json:"title"`
		Date  time.Time `json:"date"`
	}

	Course struct {
		ID          string                `json:"id"`
		Title       string                `json:"title"`
		Code        string                `json:"code"`
		Description string                `json:"description"`
		CreditHours int                   `json:"credit_hours"`
		Sections    []Section             `json:"sections"`
		Assignments map[string]Assignment `json:"assignments"`
		Exams       map[string]Exam       `json:"exams"`
		TermID      null.String           `json:"term_id"`
		CreatedAt   time.Time             `json:"created_at"`
		UpdatedAt   time.Time             `json:"updated_at"`
	}

	AcademicTerm struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		Year      int       `json:"year"`
		Type      string    `json:"type"`
		StartDate time.Time `json:"start_date"`
		EndDate   time.Time `json:"end_date"`
		CreatedAt time.Time `json:"created_at"`
	}
)

// normalize replaces nil collections with empty ones.
func (c *Course) normalize() {
	if c.Sections == nil {
		c.Sections = []Section{}
	}
	for i := range c.Sections {
		if c.Sections[i].Items == nil {
			c.Sections[i].Items = []ContentItem{}
		}
	}
	if c.Assignments == nil {
		c.Assignments = map[string]Assignment{}
	}
	if c.Exams == nil {
		c.Exams = map[string]Exam{}
	}
}

// ModuleIDs returns the ids of the items of type module, in course order.
func (c Course) ModuleIDs() []string {
	ids := make([]string, 0)
	for _, s := range c.Sections {
		for _, item := range s.Items {
			if item.Type == ItemModule {
				ids = append(ids, item.ID)
			}
		}
	}
	return ids
}

func (c Course) ModuleCount() int { return len(c.ModuleIDs()) }

func (c Course) HasModule(id string) bool {
	for _, mid := range c.ModuleIDs() {
		if mid == id {
			return true
		}
	}
	return false
}

func (c Course) sectionIndex(id string) int {
	for i, s := range c.Sections {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Summary is the catalog view of the course: the content outline without the content itself.
func (c Course) Summary() Course {
	sum := c
	sum.Sections = make([]Section, len(c.Sections))
	for i, s := range c.Sections {
		items := make([]ContentItem, len(s.Items))
		for j, item := range s.Items {
			items[j] = ContentItem{ID: item.ID, Type: item.Type, Title: item.Title}
		}
		sum.Sections[i] = Section{ID: s.ID, Title: s.Title, Items: items}
	}
	return sum
}

// UpcomingAssignments counts the assignments due after now.
func (c Course) UpcomingAssignments(now time.Time) int {
	var n int
	for _, a := range c.Assignments {
		if a.DueDate.After(now) {
			n++
		}
	}
	return n
}

// UpcomingExams counts the exams taking place after now.
func (c Course) UpcomingExams(now time.Time) int {
	var n int
	for _, e := range c.Exams {
		if e.Date.After(now) {
			n++
		}
	}
	return n
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string `json:"title" validate:"required,notblank"`
	Code        string `json:"code" validate:"required,notblank,max=20"`
	Description string `json:"description"`
	CreditHours *int   `json:"credit_hours" validate:"required,min=0,max=30"`
	TermID      string `json:"term_id"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Code = core.CleanString(nc.Code)
	nc.Description = core.CleanString(nc.Description)
	nc.TermID = core.CleanString(nc.TermID)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// An empty TermID detaches the course from its term.
type UpdateCourse struct {
	Title       string  `json:"title"`
	Code        string  `json:"code" validate:"omitempty,max=20"`
	Description *string `json:"description"`
	CreditHours *int    `json:"credit_hours" validate:"omitempty,min=0,max=30"`
	TermID      *string `json:"term_id"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	uc.Code = core.CleanString(uc.Code)
	if uc.Description != nil {
		desc := core.CleanString(*uc.Description)
		uc.Description = &desc
	}
	if uc.TermID != nil {
		tid := core.CleanString(*uc.TermID)
		uc.TermID = &tid
	}
	return validate.Struct(uc)
}

type NewSection struct {
	Title string `json:"title" validate:"required,notblank"`
}

func (ns *NewSection) Validate(validate *validator.Validate) error {
	ns.Title = core.CleanString(ns.Title)
	return validate.Struct(ns)
}

// NewContentItem describes a content item. URL is ignored when the content is uploaded.
type NewContentItem struct {
	Type  string `json:"type" form:"type" validate:"required,itemtype"`
	Title string `json:"title" form:"title" validate:"required,notblank"`
	URL   string `json:"url" form:"url" validate:"omitempty,url"`
	Body  string `json:"body" form:"body"`
}

func (ni *NewContentItem) Validate(validate *validator.Validate) error {
	ni.Type = core.CleanString(ni.Type, true /* lower */)
	ni.Title = core.CleanString(ni.Title)
	ni.URL = core.CleanString(ni.URL)
	return validate.Struct(ni)
}

type NewAssignment struct {
	Title   string    `json:"title" validate:"required,notblank"`
	DueDate time.Time `json:"due_date" validate:"required"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	return validate.Struct(na)
}

type NewExam struct {
	Title string    `json:"title" validate:"required,notblank"`
	Date  time.Time `json:"date" validate:"required"`
}

func (ne *NewExam) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	return validate.Struct(ne)
}

type NewTerm struct {
	Name      string    `json:"name" validate:"required,notblank"`
	Year      int       `json:"year" validate:"required,min=1900,max=9999"`
	Type      string    `json:"type" validate:"required,notblank"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

func (nt *NewTerm) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Type = core.CleanString(nt.Type, true /* lower */)
	return validate.Struct(nt)
}

type QueryFilter struct {
	Search string `query:"search"`
	TermID string `query:"term_id"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.TermID = core.CleanString(qf.TermID)
}
