// Package identity determines which user a request is attributed to.
package identity

import (
	"context"
	"net/http"
	"strings"

	apikeydomain "github.com/smallbiznis/usagetrack/internal/apikey/domain"
	"github.com/smallbiznis/usagetrack/internal/auth/session"
	catalogdomain "github.com/smallbiznis/usagetrack/internal/catalog/domain"
	"github.com/smallbiznis/usagetrack/internal/config"
	"github.com/smallbiznis/usagetrack/internal/tracking/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Tokens   apikeydomain.Service
	Sessions *session.Manager      `optional:"true"`
	Store    *session.Store        `optional:"true"`
	Catalog  catalogdomain.Service `optional:"true"`
}

// Resolver gives a valid API token precedence over any session.
type Resolver struct {
	log           *zap.Logger
	tokens        apikeydomain.Service
	decoder       *Decoder
	tokenHeader   string
	sessions      *session.Manager
	store         *session.Store
	catalog       catalogdomain.Service
	trustedHeader string
}

func New(p Params) *Resolver {
	log := p.Log.Named("tracking.identity")
	decoder := NewDecoder(p.Config.APIToken.JWTSecret, p.Config.APIToken.JWTAlgorithm)
	if !decoder.Verifying() {
		log.Warn("API_TOKEN_JWT_SECRET is empty; API tokens will not be attributed")
	}
	return &Resolver{
		log:           log,
		tokens:        p.Tokens,
		decoder:       decoder,
		tokenHeader:   p.Config.APIToken.HeaderName,
		sessions:      p.Sessions,
		store:         p.Store,
		catalog:       p.Catalog,
		trustedHeader: strings.TrimSpace(p.Config.Session.TrustedHeader),
	}
}

func (r *Resolver) Resolve(ctx context.Context, req *http.Request) domain.Actor {
	if token, ok := r.tokenActor(ctx, req); ok {
		return token
	}
	if userID, ok := r.sessionUser(ctx, req); ok {
		return domain.Actor{UserID: userID, Source: domain.ActorSourceSession}
	}
	return domain.Actor{Source: domain.ActorSourceAnonymous}
}

func (r *Resolver) tokenActor(ctx context.Context, req *http.Request) (domain.Actor, bool) {
	raw := tokenFromRequest(req, r.tokenHeader)
	if raw == "" {
		return domain.Actor{}, false
	}

	jti, err := r.decoder.TokenID(raw)
	if err != nil {
		r.log.Debug("api token ignored", zap.String("reason", "decode"), zap.Error(err))
		return domain.Actor{}, false
	}

	token, err := r.tokens.Lookup(ctx, jti)
	if err != nil {
		r.log.Debug("api token ignored", zap.String("reason", "lookup"), zap.String("jti", jti), zap.Error(err))
		return domain.Actor{}, false
	}

	return domain.Actor{
		UserID:    token.UserID,
		TokenID:   token.ID,
		TokenName: token.Name,
		Source:    domain.ActorSourceToken,
	}, token.UserID != ""
}

// sessionUser checks the session cookie, then a user placed on the request
// context by the host, then the trusted user-name header.
func (r *Resolver) sessionUser(ctx context.Context, req *http.Request) (string, bool) {
	if r.sessions != nil && r.store != nil {
		if raw, ok := r.sessions.ReadToken(req); ok {
			userID, err := r.store.UserIDForToken(ctx, raw)
			if err == nil && userID != "" {
				return userID, true
			}
			r.log.Debug("session ignored", zap.Error(err))
		}
	}

	if userID, ok := session.UserFromContext(req.Context()); ok {
		return userID, true
	}

	if r.trustedHeader == "" || r.catalog == nil {
		return "", false
	}
	name := strings.TrimSpace(req.Header.Get(r.trustedHeader))
	if name == "" {
		return "", false
	}
	user, ok, err := r.catalog.UserByName(ctx, name)
	if err != nil || !ok {
		r.log.Debug("trusted user header ignored", zap.String("user_name", name), zap.Error(err))
		return "", false
	}
	return user.ID, true
}

var _ domain.Resolver = (*Resolver)(nil)
