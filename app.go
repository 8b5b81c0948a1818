package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"

	"github.com/okarro/taskmaster/internal/firebase"
	"github.com/okarro/taskmaster/internal/session"
	"github.com/okarro/taskmaster/internal/tasks"
)

var usageText = strings.TrimSpace(dedent.Dedent(`
	taskmaster - to-do list synced with the cloud

	Usage:
	  taskmaster login <email> <password>     sign in
	  taskmaster signup <email> <password>    create an account and sign in
	  taskmaster guest                        start an ephemeral guest session
	  taskmaster logout                       sign out and clear the local session
	  taskmaster whoami                       show the active session
	  taskmaster reset-password <email>       send a password reset email
	  taskmaster delete-account               delete the account and sign out
	  taskmaster list                         list tasks
	  taskmaster add <title> [notes] [due]    add a task (due as YYYY-MM-DD)
	  taskmaster done <id>                    mark a task completed
	  taskmaster rm <id>                      delete a task
`))

// App dispatches the command-line surface. Any operation that fails because
// no valid token could be produced routes the user back to a logged-out
// state, matching what the login screen did in the GUI.
type App struct {
	sessions *session.Manager
	tasks    *tasks.Service
	out      io.Writer
}

func NewApp(sessions *session.Manager, tasks *tasks.Service, out io.Writer) *App {
	return &App{sessions: sessions, tasks: tasks, out: out}
}

func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.out, usageText)
		return nil
	}

	cmd, rest := args[0], args[1:]
	err := a.dispatch(ctx, cmd, rest)
	if err == nil {
		return nil
	}

	if errors.Is(err, firebase.ErrNoValidToken) {
		// Unrecoverable auth failure: never leave stale authenticated state.
		if logoutErr := a.sessions.Logout(); logoutErr != nil {
			log.Warn().Err(logoutErr).Msg("failed to clear session")
		}
		fmt.Fprintln(a.out, "Your session has expired, please log in again")
		return nil
	}
	if errors.Is(err, tasks.ErrNotLoggedIn) {
		fmt.Fprintln(a.out, "You are not logged in")
		return nil
	}
	var fe *firebase.Error
	if errors.As(err, &fe) {
		fmt.Fprintln(a.out, firebase.UserMessage(err))
		return err
	}
	return err
}

func (a *App) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		if len(args) != 2 {
			return fmt.Errorf("usage: taskmaster login <email> <password>")
		}
		if err := a.sessions.Login(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Logged in as %s\n", args[0])
		return nil

	case "signup":
		if len(args) != 2 {
			return fmt.Errorf("usage: taskmaster signup <email> <password>")
		}
		if err := a.sessions.SignUp(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Account created, logged in as %s\n", args[0])
		return nil

	case "guest":
		if err := a.sessions.GuestLogin(); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Started guest session %s\n", a.sessions.Current().UserID)
		return nil

	case "logout":
		if err := a.sessions.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Logged out")
		return nil

	case "whoami":
		sess := a.sessions.Current()
		switch {
		case sess == nil:
			fmt.Fprintln(a.out, "Not logged in")
		case sess.IsGuest:
			fmt.Fprintf(a.out, "Guest session %s\n", sess.UserID)
		default:
			fmt.Fprintf(a.out, "%s (%s)\n", sess.Email, sess.UserID)
		}
		return nil

	case "reset-password":
		if len(args) != 1 {
			return fmt.Errorf("usage: taskmaster reset-password <email>")
		}
		if err := a.sessions.ResetPassword(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Password reset email sent to %s\n", args[0])
		return nil

	case "delete-account":
		if err := a.sessions.DeleteAccount(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Account deleted")
		return nil

	case "list":
		list, err := a.tasks.List(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(a.out, "No tasks")
			return nil
		}
		for _, t := range list {
			mark := " "
			if t.Completed {
				mark = "x"
			}
			line := fmt.Sprintf("[%s] %s  %s", mark, t.ID, t.Title)
			if t.DueDate != "" {
				line += "  (due " + t.DueDate + ")"
			}
			fmt.Fprintln(a.out, line)
		}
		return nil

	case "add":
		if len(args) < 1 || len(args) > 3 {
			return fmt.Errorf("usage: taskmaster add <title> [notes] [due]")
		}
		var notes, due string
		if len(args) > 1 {
			notes = args[1]
		}
		if len(args) > 2 {
			due = args[2]
		}
		task, err := a.tasks.Add(ctx, args[0], notes, due)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Added %s\n", task.ID)
		return nil

	case "done":
		if len(args) != 1 {
			return fmt.Errorf("usage: taskmaster done <id>")
		}
		if err := a.tasks.Complete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Done")
		return nil

	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: taskmaster rm <id>")
		}
		if err := a.tasks.Remove(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Removed")
		return nil

	default:
		fmt.Fprintln(a.out, usageText)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}
