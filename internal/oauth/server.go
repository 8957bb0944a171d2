package oauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Server is the authorization-server facade. It is constructed once at
// startup with its store and grant handlers; there is no process-wide
// registry.
type Server struct {
	store        Store
	config       Config
	codeGrant    *AuthorizationCodeGrant
	refreshGrant *RefreshTokenGrant
	logger       *zap.Logger
	nowFn        func() time.Time
}

func NewServer(store Store, config Config, logger *zap.Logger) *Server {
	config = config.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:        store,
		config:       config,
		codeGrant:    NewAuthorizationCodeGrant(store, config),
		refreshGrant: NewRefreshTokenGrant(store, config),
		logger:       logger,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Store() Store {
	return s.store
}

// ValidateAuthorizationRequest resolves the client and pins down the
// redirect URI before anything else happens at the authorization endpoint.
// Failures here must surface as direct error responses, never as redirects,
// since the redirect target itself is unverified.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req AuthorizeRequest) (Client, string, error) {
	if req.ClientID == "" {
		return Client{}, "", protocolError(ErrInvalidRequest, "client_id is required")
	}
	client, err := s.store.GetClient(ctx, req.ClientID)
	if err != nil {
		return Client{}, "", protocolError(ErrInvalidClient, "client is unknown")
	}
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = client.DefaultRedirectURI()
	}
	if !client.RedirectURIValid(redirectURI) {
		return Client{}, "", protocolError(ErrInvalidRequest, "redirect_uri is not registered for this client")
	}
	return client, redirectURI, nil
}

// Authorize issues an authorization code for a validated client and an
// authenticated user. Errors returned here are safe to relay to the
// validated redirect URI with an error parameter.
func (s *Server) Authorize(ctx context.Context, client Client, redirectURI, userID string, req AuthorizeRequest) (string, error) {
	if !client.SupportsResponseType(req.ResponseType) {
		return "", protocolError(ErrUnsupportedResponse, "response_type must be code")
	}
	if !ValidPKCEMethod(req.CodeChallengeMethod) {
		return "", protocolError(ErrInvalidRequest, ErrPKCEMethodNotSupported.Error())
	}
	if req.CodeChallengeMethod != "" && req.CodeChallenge == "" {
		return "", protocolError(ErrInvalidRequest, "code_challenge is required when a method is given")
	}
	req.RedirectURI = redirectURI
	code, err := s.codeGrant.Issue(ctx, client, userID, req)
	if err != nil {
		s.logger.Error("authorization code issuance failed",
			zap.String("client_id", client.ClientID),
			zap.Error(err))
		return "", err
	}
	s.logger.Info("authorization code issued",
		zap.String("client_id", client.ClientID),
		zap.String("user_id", userID))
	return code, nil
}

// Token authenticates the client and dispatches to the grant handler
// selected by grant_type.
func (s *Server) Token(ctx context.Context, req TokenRequest) (TokenResponse, error) {
	grantType, ok := ParseGrantType(req.GrantType)
	if !ok {
		return TokenResponse{}, protocolError(ErrUnsupportedGrantType, "grant_type is not supported")
	}
	client, err := s.authenticateClient(ctx, req)
	if err != nil {
		return TokenResponse{}, err
	}

	var response TokenResponse
	switch grantType {
	case GrantAuthorizationCode:
		response, err = s.codeGrant.Exchange(ctx, client, req)
	case GrantRefreshToken:
		response, err = s.refreshGrant.Refresh(ctx, client, req)
	}
	if err != nil {
		perr := AsError(err)
		if perr.Code == ErrServerError {
			s.logger.Error("token grant failed",
				zap.String("client_id", client.ClientID),
				zap.String("grant_type", string(grantType)),
				zap.Error(err))
		}
		return TokenResponse{}, perr
	}
	s.logger.Info("token issued",
		zap.String("client_id", client.ClientID),
		zap.String("grant_type", string(grantType)))
	return response, nil
}

func (s *Server) authenticateClient(ctx context.Context, req TokenRequest) (Client, error) {
	if req.ClientID == "" {
		return Client{}, protocolError(ErrInvalidRequest, "client_id is required")
	}
	client, err := s.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return Client{}, protocolError(ErrInvalidClient, "client credentials are invalid")
		}
		return Client{}, protocolError(ErrServerError, "failed to resolve client")
	}
	if !client.SupportsTokenAuthMethod(req.AuthMethod) {
		return Client{}, protocolError(ErrInvalidClient, "token endpoint auth method is not supported")
	}
	if !client.SecretMatches(req.ClientSecret) {
		return Client{}, protocolError(ErrInvalidClient, "client credentials are invalid")
	}
	return client, nil
}
