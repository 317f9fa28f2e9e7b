package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgress_CompletionPercent(t *testing.T) {
	tests := []struct {
		name      string
		completed []string
		total     int
		want      float64
	}{
		{name: "no module", total: 0, want: 0},
		{name: "no module but completions", completed: []string{"m1"}, total: 0, want: 0},
		{name: "none completed", total: 4, want: 0},
		{name: "half", completed: []string{"m1", "m2"}, total: 4, want: 50},
		{name: "all", completed: []string{"m1", "m2"}, total: 2, want: 100},
		{name: "more than the snapshot", completed: []string{"m1", "m2", "m3"}, total: 2, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Progress{CompletedModules: tt.completed, TotalModules: tt.total}
			assert.Equal(t, tt.want, p.CompletionPercent())
			assert.Equal(t, tt.want, p.View().CompletionPercent)
		})
	}
}

func TestProgress_completeModule(t *testing.T) {
	now := time.Now()
	p := newProgress("go", []string{"m1", "m2"}, now)
	assert.True(t, p.Exists())
	assert.Equal(t, 2, p.TotalModules)
	assert.False(t, p.LastActivityAt.Valid)

	tests := []struct {
		moduleID    string
		at          time.Time
		wantChanged bool
		wantErr     error
	}{
		{moduleID: "m1", at: now, wantChanged: true},
		{moduleID: "m1", at: now.Add(time.Minute)},
		{moduleID: "m3", at: now.Add(time.Minute), wantErr: ErrModuleNotFound},
		{moduleID: "m2", at: now, wantChanged: true},
	}
	for _, tt := range tests {
		changed, err := p.completeModule(tt.moduleID, tt.at)
		assert.Equal(t, tt.wantErr, err, tt.moduleID)
		assert.Equal(t, tt.wantChanged, changed, tt.moduleID)
	}

	assert.Equal(t, []string{"m1", "m2"}, p.CompletedModules)
	assert.True(t, p.HasCompleted("m2"))
	assert.False(t, p.HasCompleted("m3"))
	assert.Equal(t, now, p.LastActivityAt.Time)
	assert.Equal(t, 100.0, p.CompletionPercent())

	assert.False(t, Progress{}.Exists())
}

func TestProgress_Tracks(t *testing.T) {
	tests := []struct {
		name     string
		p        Progress
		moduleID string
		want     bool
	}{
		{name: "in the snapshot", p: newProgress("go", []string{"m1"}, time.Now()), moduleID: "m1", want: true},
		{name: "not in the snapshot", p: newProgress("go", []string{"m1"}, time.Now()), moduleID: "m2"},
		{name: "empty snapshot", p: newProgress("go", nil, time.Now()), moduleID: "m1"},
		{name: "record without snapshot", p: Progress{TotalModules: 1}, moduleID: "m1", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Tracks(tt.moduleID))
		})
	}
}

func TestProgress_submitAssignment(t *testing.T) {
	p := newProgress("go", nil, time.Now())
	assert.Equal(t, []string{}, p.ModuleIDs)
	assert.Equal(t, 0, p.TotalModules)

	assert.True(t, p.submitAssignment("a1", time.Now()))
	assert.False(t, p.submitAssignment("a1", time.Now()))
	assert.True(t, p.submitAssignment("a2", time.Now()))
	assert.Equal(t, 2, p.AssignmentsSubmitted)
	assert.Equal(t, []string{"a1", "a2"}, p.SubmittedAssignments)
}

func TestList_Lookup(t *testing.T) {
	l := List{
		{CourseID: "go", Status: StatusActive},
		{CourseID: "rust", Status: StatusPendingApproval},
		{CourseID: "cobol", Status: "dropped"},
	}

	tests := []struct {
		courseID   string
		wantIdx    int
		wantExists bool
		wantActive bool
	}{
		{courseID: "go", wantIdx: 0, wantExists: true, wantActive: true},
		{courseID: "rust", wantIdx: 1, wantExists: true},
		{courseID: "cobol", wantIdx: 2, wantExists: true},
		{courseID: "zig", wantIdx: -1},
	}
	for _, tt := range tests {
		t.Run(tt.courseID, func(t *testing.T) {
			assert.Equal(t, tt.wantIdx, l.Find(tt.courseID))
			exists, active := l.Lookup(tt.courseID)
			assert.Equal(t, tt.wantExists, exists)
			assert.Equal(t, tt.wantActive, active)
		})
	}
}

func TestRequestResult_Message(t *testing.T) {
	tests := []struct {
		res  RequestResult
		want string
	}{
		{res: RequestResult{Created: true, Enrollment: Enrollment{Status: StatusPendingApproval}}, want: "enrollment requested"},
		{res: RequestResult{Enrollment: Enrollment{Status: StatusPendingApproval}}, want: "enrollment pending approval"},
		{res: RequestResult{Enrollment: Enrollment{Status: StatusActive}}, want: "already enrolled"},
		{res: RequestResult{Enrollment: Enrollment{Status: "dropped"}}, want: "enrollment is dropped"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.Message())
		})
	}
}
