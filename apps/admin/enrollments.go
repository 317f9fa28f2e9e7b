package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/user"
)

// listPending prints the enrollments awaiting approval, oldest request first.
func (cli *commandLine) listPending() error {
	groups, err := cli.svcs.Enrollments.PendingByUser(context.Background())
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Fprintln(cli.out, "no pending enrollment")
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER ID\tEMAIL\tCOURSE ID\tCOURSE\tREQUESTED AT")
	for _, grp := range groups {
		for _, e := range grp.Enrollments {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				grp.User.ID, grp.User.Email, e.CourseID, e.CourseTitle, e.EnrolledAt.Format(time.RFC3339))
		}
	}
	return w.Flush()
}

// approve activates the pending enrollment of a user, given by email or ID.
func (cli *commandLine) approve(userRef, courseID string) error {
	ctx := context.Background()

	var (
		usr user.User
		err error
	)
	if strings.Contains(userRef, "@") {
		usr, err = cli.svcs.Users.GetByEmail(ctx, userRef)
	} else {
		usr, err = cli.svcs.Users.GetByID(ctx, userRef)
	}
	if err != nil {
		return errors.Wrap(err, "finding user")
	}

	e, err := cli.svcs.Enrollments.Approve(ctx, usr.ID, courseID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s is now enrolled in %q\n", usr.Email, e.CourseTitle)
	return nil
}
