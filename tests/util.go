package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/chuo/core/course"
	"github.com/trezcool/chuo/core/user"
)

// CreateUser saves a user straight in repo. The password is only set when pwd is not empty.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if role == "" {
		role = user.RoleStudent
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse creates a course with one section holding a module item per moduleTitles.
func CreateCourse(t *testing.T, svc course.Service, title string, moduleTitles ...string) course.Course {
	t.Helper()
	ctx := context.Background()
	hours := 3

	c, err := svc.Create(ctx, course.NewCourse{Title: title, Code: "C-" + title, CreditHours: &hours})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	if len(moduleTitles) == 0 {
		return c
	}

	c, err = svc.AddSection(ctx, c.ID, course.NewSection{Title: "Week 1"})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	sectionID := c.Sections[0].ID
	for _, mt := range moduleTitles {
		c, err = svc.AddItem(ctx, c.ID, sectionID, course.NewContentItem{Type: course.ItemModule, Title: mt, Body: mt})
		if err != nil {
			t.Fatalf("CreateCourse() failed: %v", err)
		}
	}
	return c
}
