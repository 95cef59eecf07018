package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/social"
)

// AuthStep is a state of the login flow.
type AuthStep string

const (
	StepStart             AuthStep = "start"
	StepUsernameEntered   AuthStep = "username_entered"
	StepChallengeAnswered AuthStep = "challenge_answered"
	StepPasswordEntered   AuthStep = "password_entered"
	StepAuthenticated     AuthStep = "authenticated"
	StepFailed            AuthStep = "failed"
)

var authTransitions = map[AuthStep][]AuthStep{
	StepStart:             {StepUsernameEntered, StepFailed},
	StepUsernameEntered:   {StepChallengeAnswered, StepPasswordEntered, StepFailed},
	StepChallengeAnswered: {StepPasswordEntered, StepFailed},
	StepPasswordEntered:   {StepAuthenticated, StepFailed},
}

// authFlow walks the login form one step at a time. Every step is followed
// by a settle delay so the page can render the next field.
type authFlow struct {
	page   social.Page
	cfg    Config
	creds  Credentials
	logger *zap.Logger
	step   AuthStep
}

func (f *authFlow) advance(to AuthStep) error {
	for _, allowed := range authTransitions[f.step] {
		if allowed == to {
			f.logger.Debug("auth step", zap.String("from", string(f.step)), zap.String("to", string(to)))
			f.step = to
			return nil
		}
	}
	return fmt.Errorf("illegal auth transition %s -> %s", f.step, to)
}

func (f *authFlow) fail(reason string, err error) error {
	from := f.step
	f.step = StepFailed
	if err != nil {
		return fmt.Errorf("%w: %s (at %s): %w", social.ErrAuthentication, reason, from, err)
	}
	return fmt.Errorf("%w: %s (at %s)", social.ErrAuthentication, reason, from)
}

func (f *authFlow) run(ctx context.Context) error {
	if err := f.page.Navigate(ctx, f.cfg.LoginURL); err != nil {
		return f.fail("open login page", err)
	}
	if err := settle(ctx, f.cfg.SettleDelay); err != nil {
		return f.fail("settle", err)
	}

	if err := f.page.Fill(ctx, f.cfg.UsernameSelector, f.creds.Username, true); err != nil {
		return f.fail("enter username", err)
	}
	if err := f.advance(StepUsernameEntered); err != nil {
		return f.fail("advance", err)
	}
	if err := settle(ctx, f.cfg.SettleDelay); err != nil {
		return f.fail("settle", err)
	}

	// The platform sometimes asks for the account email before the password.
	challenged, err := f.page.Present(ctx, f.cfg.ChallengeSelector)
	if err != nil {
		return f.fail("check challenge", err)
	}
	if challenged {
		if f.creds.Email == "" {
			return f.fail("identity challenge shown but no email configured", nil)
		}
		if err := f.page.Fill(ctx, f.cfg.ChallengeSelector, f.creds.Email, true); err != nil {
			return f.fail("answer challenge", err)
		}
		if err := f.advance(StepChallengeAnswered); err != nil {
			return f.fail("advance", err)
		}
		if err := settle(ctx, f.cfg.SettleDelay); err != nil {
			return f.fail("settle", err)
		}
	}

	if err := f.page.Fill(ctx, f.cfg.PasswordSelector, f.creds.Password.Reveal(), true); err != nil {
		return f.fail("enter password", err)
	}
	if err := f.advance(StepPasswordEntered); err != nil {
		return f.fail("advance", err)
	}
	if err := settle(ctx, f.cfg.SettleDelay); err != nil {
		return f.fail("settle", err)
	}

	// A rejected password leaves the form on screen.
	stillThere, err := f.page.Present(ctx, f.cfg.PasswordSelector)
	if err != nil {
		return f.fail("verify login", err)
	}
	if stillThere {
		return f.fail("password form still present after submit", nil)
	}
	return f.advance(StepAuthenticated)
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
