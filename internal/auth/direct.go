package auth

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/xbook/internal/platform"
	"github.com/wolfman30/xbook/pkg/logging"
)

// DirectAuthenticator logs in with e-mail and password against the booking
// API itself.
type DirectAuthenticator struct {
	api    *platform.Client
	logger *logging.Logger
}

// Method implements Authenticator.
func (d *DirectAuthenticator) Method() Method {
	return MethodDirect
}

// Authenticate implements Authenticator.
func (d *DirectAuthenticator) Authenticate(ctx context.Context, cred Credential) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "auth.direct")
	defer span.End()
	span.SetAttributes(attribute.String("xbook.auth_method", MethodDirect.String()))

	sess, err := platform.NewSession(d.api.HTTPClient())
	if err != nil {
		return nil, &Error{Step: "session", Err: err}
	}
	defer func() {
		if err != nil {
			sess.Close()
		}
	}()

	d.logger.Info("authenticating", "method", MethodDirect.String(), "identifier", cred)

	token, err := d.api.Login(ctx, sess, cred.Identifier, cred.Secret)
	if err != nil {
		return nil, &Error{Step: "login", Err: err}
	}
	sess.SetBearer(token, d.api.Authority())

	memberID, err := resolveMember(ctx, d.api, sess)
	if err != nil {
		return nil, err
	}

	return &Result{
		Session:   sess,
		Token:     token,
		MemberID:  memberID,
		ExpiresAt: TokenExpiry(token),
	}, nil
}

func resolveMember(ctx context.Context, api *platform.Client, sess *platform.Session) (*int64, error) {
	account, err := api.Account(ctx, sess)
	if err != nil {
		return nil, &Error{Step: "account", Err: err}
	}
	return account.ID, nil
}

var _ Authenticator = (*DirectAuthenticator)(nil)
