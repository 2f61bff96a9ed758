package finance

import (
	"context"
	"errors"
	"fmt"

	"finsession/internal/core"
	"finsession/internal/log"
)

var ErrNoUser = errors.New("finance: user has no id")

// Bootstrap loads the persisted profile, ends the auth-loading phase and,
// when a user is signed in, runs the first refresh.
func (p *Provider) Bootstrap(ctx context.Context) {
	user := p.Restore(ctx)
	if user == nil {
		p.logger.InfoContext(ctx, "No persisted session", log.FieldOperation, log.OpStartup)
		return
	}
	p.logger.InfoContext(ctx, "Session restored", log.FieldOperation, log.OpStartup, "user_id", user.ID)
	p.RefreshData(ctx, false)
}

// Restore loads the persisted profile and ends the auth-loading phase
// without fetching anything. It returns the restored user, or nil.
func (p *Provider) Restore(ctx context.Context) *core.User {
	user := p.sessions.User(ctx)

	p.mu.Lock()
	p.user = user
	p.authLoading = false
	p.mu.Unlock()
	p.changed()

	if user == nil {
		return nil
	}
	u := *user
	return &u
}

// UpdateUserData sets the signed-in user. A non-nil user is persisted and
// triggers a refresh. A nil user logs out: persisted credentials and the
// cache are cleared, the snapshot is reset and nothing is fetched.
func (p *Provider) UpdateUserData(ctx context.Context, user *core.User) error {
	if user == nil {
		return p.logout(ctx)
	}
	if user.ID == "" {
		return ErrNoUser
	}
	if err := p.sessions.SetUser(ctx, *user); err != nil {
		return fmt.Errorf("update user data: %w", err)
	}
	u := *user
	p.mu.Lock()
	p.user = &u
	p.authLoading = false
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "User data updated", log.FieldOperation, log.OpLogin, "user_id", u.ID)
	p.RefreshData(ctx, false)
	return nil
}

func (p *Provider) logout(ctx context.Context) error {
	p.commitMu.Lock()
	p.mu.Lock()
	p.user = nil
	p.authLoading = false
	// In-flight refreshes belong to the old session.
	p.gen++
	p.catGen++
	p.snap = Snapshot{}
	p.mu.Unlock()

	var errs []error
	if err := p.sessions.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.cache.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	p.commitMu.Unlock()
	p.changed()

	if err := errors.Join(errs...); err != nil {
		p.logger.ErrorContext(ctx, "Logout incomplete", log.FieldOperation, log.OpLogout, log.FieldError, err)
		return fmt.Errorf("logout: %w", err)
	}
	p.logger.InfoContext(ctx, "Logged out", log.FieldOperation, log.OpLogout)
	return nil
}
