package cognito

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	idp "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	idptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	awsv2xray "github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/xray"
	"ops-portal/internal/domain"
	"ops-portal/internal/ports"
)

var ErrAuthFailed = errors.New("authentication failed")

// AccountStore fronts the Cognito user pool: credential sign-in, session
// revocation and admin-side provisioning. Identity tokens it issues are
// verified separately by the HTTP middleware against the pool's JWKS.
type AccountStore struct {
	client     *idp.Client
	userPoolID string
	clientID   string
}

func NewAccountStore(ctx context.Context, region, userPoolID, clientID string) (*AccountStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	awsv2xray.AWSV2Instrumentor(&cfg.APIOptions)
	return &AccountStore{
		client:     idp.NewFromConfig(cfg),
		userPoolID: userPoolID,
		clientID:   clientID,
	}, nil
}

func (s *AccountStore) SignIn(ctx context.Context, username, password string) (ports.SignInResult, error) {
	if username == "" || password == "" {
		return ports.SignInResult{}, domain.ErrInvalidInput
	}
	var out *idp.InitiateAuthOutput
	err := xray.Capture(ctx, "Cognito.InitiateAuth", func(ctx context.Context) error {
		var e error
		out, e = s.client.InitiateAuth(ctx, &idp.InitiateAuthInput{
			AuthFlow: idptypes.AuthFlowTypeUserPasswordAuth,
			ClientId: aws.String(s.clientID),
			AuthParameters: map[string]string{
				"USERNAME": username,
				"PASSWORD": password,
			},
		})
		return e
	})
	if err != nil {
		var notAuth *idptypes.NotAuthorizedException
		var notFound *idptypes.UserNotFoundException
		if errors.As(err, &notAuth) || errors.As(err, &notFound) {
			return ports.SignInResult{}, ErrAuthFailed
		}
		return ports.SignInResult{}, err
	}
	if out.AuthenticationResult == nil || out.AuthenticationResult.IdToken == nil {
		// Challenge flows (MFA, forced password reset) are not part of the
		// portal's sign-in surface.
		return ports.SignInResult{}, ErrAuthFailed
	}
	return ports.SignInResult{
		IDToken:     aws.ToString(out.AuthenticationResult.IdToken),
		AccessToken: aws.ToString(out.AuthenticationResult.AccessToken),
		ExpiresIn:   out.AuthenticationResult.ExpiresIn,
	}, nil
}

func (s *AccountStore) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return domain.ErrInvalidInput
	}
	return xray.Capture(ctx, "Cognito.GlobalSignOut", func(ctx context.Context) error {
		_, err := s.client.GlobalSignOut(ctx, &idp.GlobalSignOutInput{
			AccessToken: aws.String(accessToken),
		})
		var notAuth *idptypes.NotAuthorizedException
		if errors.As(err, &notAuth) {
			// Token already revoked or expired; sign-out is idempotent.
			return nil
		}
		return err
	})
}

// Provision creates the account and returns the pool-issued identity, the
// `sub` attribute that keys the role record.
func (s *AccountStore) Provision(ctx context.Context, username, email string) (string, error) {
	if username == "" || email == "" {
		return "", domain.ErrInvalidInput
	}
	var out *idp.AdminCreateUserOutput
	err := xray.Capture(ctx, "Cognito.AdminCreateUser", func(ctx context.Context) error {
		var e error
		out, e = s.client.AdminCreateUser(ctx, &idp.AdminCreateUserInput{
			UserPoolId: aws.String(s.userPoolID),
			Username:   aws.String(username),
			UserAttributes: []idptypes.AttributeType{
				{Name: aws.String("email"), Value: aws.String(email)},
				{Name: aws.String("email_verified"), Value: aws.String("true")},
			},
		})
		return e
	})
	if err != nil {
		var exists *idptypes.UsernameExistsException
		if errors.As(err, &exists) {
			return "", domain.ErrAlreadyExists
		}
		return "", err
	}
	if out.User == nil {
		return "", errors.New("empty create user response")
	}
	for _, attr := range out.User.Attributes {
		if aws.ToString(attr.Name) == "sub" {
			return aws.ToString(attr.Value), nil
		}
	}
	return "", errors.New("created user has no sub attribute")
}
