package zen

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/natedunn/convex-zen-sub000/store"
)

// requireAdmin loads the actor fresh on every call. A missing or banned
// actor is unauthorized; an actor without the admin role is forbidden.
func (e *Engine) requireAdmin(ctx context.Context, actorUserID string) (*store.User, error) {
	deny := func(err error) (*store.User, error) {
		e.metricInc(MetricAdminDenied)
		e.emitAudit(ctx, auditEventAdminDenied, false, auditEntry{actorID: actorUserID, err: err})
		return nil, err
	}

	if actorUserID == "" {
		return deny(ErrUnauthorized)
	}
	actor, err := e.store.GetUser(ctx, actorUserID)
	if err != nil {
		if isNotFound(err) {
			return deny(ErrUnauthorized)
		}
		return nil, storageErr(err)
	}
	if actor.BanActive(e.now()) {
		return deny(ErrUnauthorized)
	}
	if actor.Role != e.config.Admin.Role {
		return deny(ErrForbidden)
	}
	return actor, nil
}

func (e *Engine) loadTarget(ctx context.Context, userID string) (*store.User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, storageErr(err)
	}
	return user, nil
}

// AdminListUsers pages through users in creation order. Limit defaults to
// Admin.DefaultPageSize and is capped at Admin.MaxPageSize. Pass the
// returned Cursor to fetch the next page until IsDone.
func (e *Engine) AdminListUsers(ctx context.Context, actorUserID string, req ListUsersRequest) (*UserPage, error) {
	if _, err := e.requireAdmin(ctx, actorUserID); err != nil {
		return nil, err
	}

	limit := req.Limit
	switch {
	case limit <= 0:
		limit = e.config.Admin.DefaultPageSize
	case limit > e.config.Admin.MaxPageSize:
		limit = e.config.Admin.MaxPageSize
	}

	page, err := e.store.ListUsers(ctx, limit, req.Cursor)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			return nil, ErrInvalidCursor
		}
		return nil, storageErr(err)
	}
	return page, nil
}

// AdminBanUser bans a user and deletes all of their sessions in one storage
// transaction, so tokens issued before the ban stop validating immediately.
func (e *Engine) AdminBanUser(ctx context.Context, actorUserID string, req BanRequest) (*store.User, error) {
	actor, err := e.requireAdmin(ctx, actorUserID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(now) {
		return nil, ErrInvalidRequest
	}

	user, err := e.loadTarget(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	user.Banned = true
	user.BanReason = req.Reason
	user.BanExpires = req.ExpiresAt
	user.UpdatedAt = now
	n, err := e.store.BanUser(ctx, user)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, storageErr(err)
	}

	e.metricInc(MetricAdminAction)
	e.metricInc(MetricUserBanned)
	e.emitAudit(ctx, auditEventAdminBan, true, auditEntry{
		userID:  user.ID,
		actorID: actor.ID,
		metadata: map[string]string{
			"sessions_invalidated": strconv.Itoa(n),
			"permanent":            strconv.FormatBool(req.ExpiresAt.IsZero()),
		},
	})
	return user, nil
}

// AdminUnbanUser clears any ban on the user. Sessions deleted by the ban are
// not restored.
func (e *Engine) AdminUnbanUser(ctx context.Context, actorUserID, userID string) (*store.User, error) {
	actor, err := e.requireAdmin(ctx, actorUserID)
	if err != nil {
		return nil, err
	}
	user, err := e.loadTarget(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.ClearBan()
	user.UpdatedAt = e.now()
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, storageErr(err)
	}

	e.metricInc(MetricAdminAction)
	e.emitAudit(ctx, auditEventAdminUnban, true, auditEntry{userID: user.ID, actorID: actor.ID})
	return user, nil
}

// AdminSetRole replaces the user's role. An empty role is rejected.
func (e *Engine) AdminSetRole(ctx context.Context, actorUserID, userID, role string) (*store.User, error) {
	actor, err := e.requireAdmin(ctx, actorUserID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, ErrInvalidRequest
	}
	user, err := e.loadTarget(ctx, userID)
	if err != nil {
		return nil, err
	}

	previous := user.Role
	user.Role = role
	user.UpdatedAt = e.now()
	if err := e.store.UpdateUser(ctx, user); err != nil {
		return nil, storageErr(err)
	}

	e.metricInc(MetricAdminAction)
	e.emitAudit(ctx, auditEventAdminSetRole, true, auditEntry{
		userID:   user.ID,
		actorID:  actor.ID,
		metadata: map[string]string{"from": previous, "to": role},
	})
	return user, nil
}

// AdminDeleteUser deletes a user with its sessions and accounts in one
// storage transaction, then revokes any outstanding verification or reset
// code for the user's email. Deleting an unknown user fails with
// ErrUserNotFound.
func (e *Engine) AdminDeleteUser(ctx context.Context, actorUserID, userID string) error {
	actor, err := e.requireAdmin(ctx, actorUserID)
	if err != nil {
		return err
	}
	user, err := e.loadTarget(ctx, userID)
	if err != nil {
		return err
	}
	accounts, err := e.store.ListUserAccounts(ctx, user.ID)
	if err != nil {
		return storageErr(err)
	}
	providers := make([]string, 0, len(accounts))
	for _, a := range accounts {
		providers = append(providers, a.ProviderID)
	}

	if err := e.store.DeleteUser(ctx, user.ID); err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return storageErr(err)
	}

	for _, typ := range []store.VerificationType{store.VerificationEmail, store.VerificationPasswordReset} {
		if err := e.codes.Revoke(ctx, user.Email, typ); err != nil {
			e.log.Warn().Err(err).Str("user_id", user.ID).Str("type", string(typ)).Msg("revoke code after delete")
		}
	}

	e.metricInc(MetricAdminAction)
	e.metricInc(MetricUserDeleted)
	e.emitAudit(ctx, auditEventAdminDelete, true, auditEntry{
		userID:   user.ID,
		actorID:  actor.ID,
		metadata: map[string]string{"providers": strings.Join(providers, ",")},
	})
	return nil
}
