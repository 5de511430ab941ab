package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	cognitosrp "github.com/alexrudd/cognito-srp/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	idtypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentity/types"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// IdentityProvider performs the network side of authentication.
type IdentityProvider interface {
	// Login authenticates with account identity and returns a full token set.
	Login(ctx context.Context, username, password string) (Credential, error)

	// Refresh exchanges a refresh token for new access and id tokens. The
	// returned credential may omit the refresh token.
	Refresh(ctx context.Context, refreshToken string) (Credential, error)

	// AWSCredentials exchanges an id token for temporary AWS credentials
	// from the identity pool.
	AWSCredentials(ctx context.Context, idToken string) (aws.Credentials, error)
}

// CognitoConfig identifies the vendor's Cognito pools.
type CognitoConfig struct {
	Region         string
	UserPoolID     string
	ClientID       string
	IdentityPoolID string

	// HTTPClient is used for all Cognito calls. Nil selects the SDK default.
	HTTPClient *http.Client
}

// CognitoProvider implements IdentityProvider against AWS Cognito: SRP
// login and refresh on the user pool, credentials from the identity pool.
//
// Cognito's auth endpoints are unauthenticated, so both SDK clients run
// with anonymous AWS credentials.
type CognitoProvider struct {
	cfg      CognitoConfig
	users    *cip.Client
	identity *cognitoidentity.Client

	mu         sync.Mutex
	identityID string
}

// NewCognitoProvider creates a provider for the given pools.
func NewCognitoProvider(cfg CognitoConfig) *CognitoProvider {
	users := cip.Options{
		Region:      cfg.Region,
		Credentials: aws.AnonymousCredentials{},
	}
	identity := cognitoidentity.Options{
		Region:      cfg.Region,
		Credentials: aws.AnonymousCredentials{},
	}
	if cfg.HTTPClient != nil {
		users.HTTPClient = cfg.HTTPClient
		identity.HTTPClient = cfg.HTTPClient
	}
	return &CognitoProvider{
		cfg:      cfg,
		users:    cip.New(users),
		identity: cognitoidentity.New(identity),
	}
}

// Login runs USER_SRP_AUTH followed by the PASSWORD_VERIFIER challenge.
func (p *CognitoProvider) Login(ctx context.Context, username, password string) (Credential, error) {
	csrp, err := cognitosrp.NewCognitoSRP(username, password, p.cfg.UserPoolID, p.cfg.ClientID, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("preparing srp: %w", err)
	}

	initResp, err := p.users.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeUserSrpAuth,
		ClientId:       aws.String(csrp.GetClientId()),
		AuthParameters: csrp.GetAuthParams(),
	})
	if err != nil {
		return Credential{}, fmt.Errorf("initiating srp auth: %w", classify(err))
	}
	if initResp.ChallengeName != types.ChallengeNameTypePasswordVerifier {
		return Credential{}, fmt.Errorf("unexpected challenge %q", initResp.ChallengeName)
	}

	responses, err := csrp.PasswordVerifierChallenge(initResp.ChallengeParameters, time.Now())
	if err != nil {
		return Credential{}, fmt.Errorf("computing password verifier: %w", err)
	}

	resp, err := p.users.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ChallengeName:      types.ChallengeNameTypePasswordVerifier,
		ChallengeResponses: responses,
		ClientId:           aws.String(csrp.GetClientId()),
	})
	if err != nil {
		return Credential{}, fmt.Errorf("answering password verifier: %w", classify(err))
	}
	return credentialFrom(resp.AuthenticationResult, time.Now())
}

// Refresh runs REFRESH_TOKEN_AUTH.
func (p *CognitoProvider) Refresh(ctx context.Context, refreshToken string) (Credential, error) {
	resp, err := p.users.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       types.AuthFlowTypeRefreshTokenAuth,
		ClientId:       aws.String(p.cfg.ClientID),
		AuthParameters: map[string]string{"REFRESH_TOKEN": refreshToken},
	})
	if err != nil {
		return Credential{}, fmt.Errorf("refreshing tokens: %w", classify(err))
	}
	return credentialFrom(resp.AuthenticationResult, time.Now())
}

// AWSCredentials resolves (and remembers) the identity id for the account,
// then fetches temporary credentials for it.
func (p *CognitoProvider) AWSCredentials(ctx context.Context, idToken string) (aws.Credentials, error) {
	logins := map[string]string{
		fmt.Sprintf("cognito-idp.%s.amazonaws.com/%s", p.cfg.Region, p.cfg.UserPoolID): idToken,
	}

	p.mu.Lock()
	identityID := p.identityID
	p.mu.Unlock()

	if identityID == "" {
		idResp, err := p.identity.GetId(ctx, &cognitoidentity.GetIdInput{
			IdentityPoolId: aws.String(p.cfg.IdentityPoolID),
			Logins:         logins,
		})
		if err != nil {
			return aws.Credentials{}, fmt.Errorf("resolving identity id: %w", classify(err))
		}
		identityID = aws.ToString(idResp.IdentityId)

		p.mu.Lock()
		p.identityID = identityID
		p.mu.Unlock()
	}

	resp, err := p.identity.GetCredentialsForIdentity(ctx, &cognitoidentity.GetCredentialsForIdentityInput{
		IdentityId: aws.String(identityID),
		Logins:     logins,
	})
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("fetching identity credentials: %w", classify(err))
	}
	if resp.Credentials == nil {
		return aws.Credentials{}, errors.New("identity pool returned no credentials")
	}

	c := resp.Credentials
	creds := aws.Credentials{
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretKey),
		SessionToken:    aws.ToString(c.SessionToken),
		Source:          "CognitoIdentity",
	}
	if c.Expiration != nil {
		creds.CanExpire = true
		creds.Expires = *c.Expiration
	}
	return creds, nil
}

func credentialFrom(res *types.AuthenticationResultType, now time.Time) (Credential, error) {
	if res == nil {
		return Credential{}, errors.New("no authentication result")
	}
	return Credential{
		AccessToken:  aws.ToString(res.AccessToken),
		IDToken:      aws.ToString(res.IdToken),
		RefreshToken: aws.ToString(res.RefreshToken),
		Expiry:       now.Add(time.Duration(res.ExpiresIn) * time.Second),
	}, nil
}

// classify marks rejected identities with ErrAuthentication.
func classify(err error) error {
	var notAuth *types.NotAuthorizedException
	var noUser *types.UserNotFoundException
	var idNotAuth *idtypes.NotAuthorizedException
	if errors.As(err, &notAuth) || errors.As(err, &noUser) || errors.As(err, &idNotAuth) {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return err
}
