package course

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core"
)

func newValidator() (*validator.Validate, func(err error) map[string]string) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate, func(err error) map[string]string {
		if err == nil {
			return nil
		}
		return core.TranslateValidationErrors(err.(validator.ValidationErrors), translator)
	}
}

func testCourse() Course {
	now := time.Now()
	return Course{
		ID:    "c1",
		Title: "Go",
		Sections: []Section{
			{ID: "s1", Title: "Week 1", Items: []ContentItem{
				{ID: "v1", Type: ItemVideo, Title: "Intro", URL: "https://videos.test/intro"},
				{ID: "m1", Type: ItemModule, Title: "Basics", Body: "package main"},
			}},
			{ID: "s2", Title: "Week 2", Items: []ContentItem{
				{ID: "p1", Type: ItemPDF, Title: "Slides", Blob: &core.BlobHandle{Key: "courses/c1/s2/p1.pdf"}},
				{ID: "m2", Type: ItemModule, Title: "Concurrency", Body: "go func() {}()"},
			}},
		},
		Assignments: map[string]Assignment{
			"a1": {Title: "Past", DueDate: now.Add(-time.Hour)},
			"a2": {Title: "Next", DueDate: now.Add(time.Hour)},
		},
		Exams: map[string]Exam{
			"e1": {Title: "Final", Date: now.Add(24 * time.Hour)},
		},
	}
}

func TestCourse_modules(t *testing.T) {
	c := testCourse()
	assert.Equal(t, []string{"m1", "m2"}, c.ModuleIDs())
	assert.Equal(t, 2, c.ModuleCount())
	assert.True(t, c.HasModule("m2"))
	assert.False(t, c.HasModule("v1"))

	empty := Course{}
	assert.Equal(t, []string{}, empty.ModuleIDs())
	assert.Equal(t, 0, empty.ModuleCount())
}

func TestCourse_Summary(t *testing.T) {
	c := testCourse()
	sum := c.Summary()

	require.Len(t, sum.Sections, 2)
	assert.Equal(t, ContentItem{ID: "m1", Type: ItemModule, Title: "Basics"}, sum.Sections[0].Items[1])
	assert.Equal(t, ContentItem{ID: "p1", Type: ItemPDF, Title: "Slides"}, sum.Sections[1].Items[0])
	// the course itself is untouched
	assert.Equal(t, "package main", c.Sections[0].Items[1].Body)
	assert.NotNil(t, c.Sections[1].Items[0].Blob)
}

func TestCourse_upcoming(t *testing.T) {
	c := testCourse()
	now := time.Now()
	assert.Equal(t, 1, c.UpcomingAssignments(now))
	assert.Equal(t, 1, c.UpcomingExams(now))
	assert.Equal(t, 0, c.UpcomingExams(now.Add(48*time.Hour)))
	assert.Equal(t, 2, c.UpcomingAssignments(now.Add(-2*time.Hour)))
}

func TestCourse_normalize(t *testing.T) {
	c := Course{Sections: []Section{{ID: "s1"}}}
	c.normalize()
	assert.NotNil(t, c.Sections[0].Items)
	assert.NotNil(t, c.Assignments)
	assert.NotNil(t, c.Exams)
}

func TestNewContentItem_Validate(t *testing.T) {
	validate, translate := newValidator()

	tests := []struct {
		name    string
		item    NewContentItem
		wantErr map[string]string
	}{
		{
			name:    "empty",
			item:    NewContentItem{},
			wantErr: map[string]string{"type": "this field is required", "title": "this field is required"},
		},
		{
			name:    "unknown type",
			item:    NewContentItem{Type: "gif", Title: "Cat"},
			wantErr: map[string]string{"type": "must be one of video, pdf or module"},
		},
		{
			name: "type is case insensitive",
			item: NewContentItem{Type: " Video ", Title: "Intro", URL: "https://videos.test/intro"},
		},
		{
			name: "module",
			item: NewContentItem{Type: ItemModule, Title: "Basics", Body: "package main"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate(validate)
			assert.Equal(t, tt.wantErr, translate(err))
		})
	}
}

func TestNewTerm_Validate(t *testing.T) {
	validate, translate := newValidator()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		term    NewTerm
		wantErr map[string]string
	}{
		{
			name:    "ends before it starts",
			term:    NewTerm{Name: "Fall", Year: 2026, Type: "semester", StartDate: start, EndDate: start.AddDate(0, 0, -1)},
			wantErr: map[string]string{"end_date": "end date must be after start date"},
		},
		{
			name:    "ends when it starts",
			term:    NewTerm{Name: "Fall", Year: 2026, Type: "semester", StartDate: start, EndDate: start},
			wantErr: map[string]string{"end_date": "end date must be after start date"},
		},
		{
			name:    "blank name",
			term:    NewTerm{Name: "   ", Year: 2026, Type: "semester", StartDate: start, EndDate: start.AddDate(0, 4, 0)},
			wantErr: map[string]string{"name": "this field is required"},
		},
		{
			name: "valid",
			term: NewTerm{Name: "Fall", Year: 2026, Type: "Semester", StartDate: start, EndDate: start.AddDate(0, 4, 0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.term.Validate(validate)
			assert.Equal(t, tt.wantErr, translate(err))
		})
	}
}
