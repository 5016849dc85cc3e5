package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/finhub/internal/auth"
)

type loginAction string

const (
	actionSignIn loginAction = "signin"
	actionSignUp loginAction = "signup"
	actionReset  loginAction = "reset"
)

// loginForm is the sign in / create account / forgot password form.
type loginForm struct {
	form     *huh.Form
	action   loginAction
	email    string
	password string
	pending  bool
}

func newLoginForm(theme *huh.Theme, email string) *loginForm {
	l := &loginForm{action: actionSignIn, email: email}
	l.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[loginAction]().
				Title("Welcome to FinHub").
				Options(
					huh.NewOption("Sign in", actionSignIn),
					huh.NewOption("Create account", actionSignUp),
					huh.NewOption("Forgot password", actionReset),
				).
				Value(&l.action),
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&l.email).
				Validate(func(s string) error {
					if !strings.Contains(strings.TrimSpace(s), "@") {
						return fmt.Errorf("enter a valid email address")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				Description("Not needed to reset a password").
				EchoMode(huh.EchoModePassword).
				Value(&l.password).
				Validate(func(s string) error {
					if l.action != actionReset && s == "" {
						return fmt.Errorf("password is required")
					}
					return nil
				}),
		),
	).WithTheme(theme).WithShowHelp(true)

	l.form.SubmitCmd = func() tea.Msg { return loginSubmitMsg{} }
	return l
}

// submit runs the chosen action against the provider.
func (l *loginForm) submit(ctx context.Context, p auth.Provider) tea.Cmd {
	l.pending = true
	action, email, password := l.action, strings.TrimSpace(l.email), l.password
	return func() tea.Msg {
		var err error
		switch action {
		case actionSignUp:
			err = p.SignUp(ctx, email, password)
		case actionReset:
			err = p.SendPasswordReset(ctx, email)
		default:
			_, err = p.SignIn(ctx, email, password)
		}
		return loginResultMsg{action: action, email: email, err: err}
	}
}

// resultNotice is the text shown after an action completes.
func resultNotice(msg loginResultMsg) string {
	if msg.err != nil {
		return auth.UserMessage(msg.err)
	}
	switch msg.action {
	case actionSignUp:
		return fmt.Sprintf("Verification email sent to %s. Verify it, then sign in.", msg.email)
	case actionReset:
		return fmt.Sprintf("Password reset email sent to %s.", msg.email)
	default:
		return ""
	}
}
