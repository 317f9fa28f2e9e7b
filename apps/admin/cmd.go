package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/chuo/apps/shared"
	"github.com/trezcool/chuo/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	svcs     *shared.Services
	validate *validator.Validate
	out      io.Writer

	// migrate runs a migration command; nil when the store has no schema.
	migrate func(command string, args ...string) error
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME [-role ROLE] - create or update an active user; the password is prompted")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                    - reset user's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                        - run database migrations (up, down, status, redo, version..)")
	fmt.Fprintln(cli.out, "  pending                                       - list the enrollments awaiting approval")
	fmt.Fprintln(cli.out, "  approve -user EMAIL|ID -course COURSE_ID      - approve a pending enrollment")
}

// promptPassword reads a password without echoing it. It returns errHelp when nothing was typed.
func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's name. Required for new users.")
	addUserRole := addUserCmd.String("role", user.RoleAdmin, "The user's role: student, faculty, admin or superadmin.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	approveCmd := flag.NewFlagSet("approve", flag.ContinueOnError)
	approveUser := approveCmd.String("user", "", "The learner's email or ID.")
	approveCourse := approveCmd.String("course", "", "The course ID.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, approveCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserEmail, *addUserName, *addUserRole, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.runMigrations(args[2:])

	case "pending":
		return cli.listPending()

	case "approve":
		if err := approveCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *approveUser == "" || *approveCourse == "" {
			approveCmd.Usage()
			return errHelp
		}
		return cli.approve(*approveUser, *approveCourse)

	default:
		cli.printUsage()
		return errHelp
	}
}
