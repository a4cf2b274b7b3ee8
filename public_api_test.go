package zen_test

import (
	"context"
	"testing"

	zen "github.com/natedunn/convex-zen-sub000"
	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/natedunn/convex-zen-sub000/store/pgstore"
	"github.com/natedunn/convex-zen-sub000/store/redisstore"
)

// Guards the exported operation surface against accidental signature changes.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = zen.New
	_ = zen.DefaultConfig
	_ = zen.ShortSessionConfig

	var _ *zen.Engine
	var _ zen.Config
	var _ zen.AuditSink = zen.NoOpSink{}
	var _ zen.Mailer

	var _ store.Store = (*redisstore.Store)(nil)
	var _ store.Store = (*pgstore.Store)(nil)

	var _ error = zen.ErrInvalidCredentials
	var _ error = zen.ErrUnauthorized
	var _ error = zen.ErrForbidden
	var _ error = zen.ErrInvalidOAuthState
	var _ error = zen.ErrUserNotFound

	type ctx = context.Context

	var _ func(*zen.Engine, ctx, zen.SignUpRequest) (*zen.SignUpResult, error) = (*zen.Engine).SignUp
	var _ func(*zen.Engine, ctx, zen.SignInRequest) (*zen.SignInResult, error) = (*zen.Engine).SignIn
	var _ func(*zen.Engine, ctx, string, string) (zen.VerifyResult, error) = (*zen.Engine).VerifyEmail
	var _ func(*zen.Engine, ctx, string) (*zen.PasswordResetRequestResult, error) = (*zen.Engine).RequestPasswordReset
	var _ func(*zen.Engine, ctx, string, string, string) (zen.VerifyResult, error) = (*zen.Engine).ResetPassword
	var _ func(*zen.Engine, ctx, string) (*zen.SessionResult, error) = (*zen.Engine).ValidateSession
	var _ func(*zen.Engine, ctx, string) error = (*zen.Engine).InvalidateSession
	var _ func(*zen.Engine, ctx, string) (int, error) = (*zen.Engine).InvalidateAllSessions
	var _ func(*zen.Engine, ctx, string, string) (string, error) = (*zen.Engine).GetAuthorizationURL
	var _ func(*zen.Engine, ctx, zen.CallbackRequest) (*zen.CallbackResult, error) = (*zen.Engine).HandleCallback
	var _ func(*zen.Engine, ctx, string, zen.ListUsersRequest) (*zen.UserPage, error) = (*zen.Engine).AdminListUsers
	var _ func(*zen.Engine, ctx, string, zen.BanRequest) (*store.User, error) = (*zen.Engine).AdminBanUser
	var _ func(*zen.Engine, ctx, string, string) (*store.User, error) = (*zen.Engine).AdminUnbanUser
	var _ func(*zen.Engine, ctx, string, string, string) (*store.User, error) = (*zen.Engine).AdminSetRole
	var _ func(*zen.Engine, ctx, string, string) error = (*zen.Engine).AdminDeleteUser
	var _ func(*zen.Engine, ctx) (zen.CleanupReport, error) = (*zen.Engine).Cleanup
}
