package studio

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sharetube/studio/internal/service/guest"
)

type Claims struct {
	GuestID string `json:"guest_id"`
	jwt.RegisteredClaims
}

func (s *Service) generateJWT(guestID string) (string, error) {
	claims := Claims{
		GuestID: guestID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	if s.cfg.TokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(s.now().Add(s.cfg.TokenTTL))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parseJWT(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.GuestID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Actor is the identity a request acts as. Role is read from the guest table on every
// call, never from the token.
type Actor struct {
	GuestID string     `json:"guest_id"`
	Role    guest.Role `json:"role"`
}

// Authenticate resolves an actor token. Tokens of kicked guests stop working.
func (s *Service) Authenticate(ctx context.Context, token string) (Actor, error) {
	claims, err := s.parseJWT(token)
	if err != nil {
		s.logger.DebugContext(ctx, "rejected token", "error", err)
		return Actor{}, ErrNotAuthorized
	}

	g, err := s.guests.Get(claims.GuestID)
	if err != nil || g.Status == guest.StatusKicked {
		return Actor{}, ErrNotAuthorized
	}
	return Actor{GuestID: g.ID, Role: g.Role}, nil
}

type AuthHostResponse struct {
	GuestID   string `json:"guest_id"`
	AuthToken string `json:"auth_token"`
}

// AuthHost exchanges the server secret for a host token.
func (s *Service) AuthHost(ctx context.Context, secret string) (AuthHostResponse, error) {
	if s.cfg.Secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.Secret)) != 1 {
		s.logger.InfoContext(ctx, "host authentication failed")
		return AuthHostResponse{}, ErrNotAuthorized
	}

	hostID := s.HostID()
	token, err := s.generateJWT(hostID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue host token", "error", err)
		return AuthHostResponse{}, err
	}
	return AuthHostResponse{GuestID: hostID, AuthToken: token}, nil
}

// requireRole checks the actor's current role against the minimum allowed.
func (s *Service) requireRole(actorID string, allowed func(guest.Role) bool) (guest.Guest, error) {
	g, err := s.guests.Get(actorID)
	if err != nil || g.Status == guest.StatusKicked || !allowed(g.Role) {
		return guest.Guest{}, ErrNotAuthorized
	}
	return g, nil
}

func isHost(r guest.Role) bool {
	return r == guest.RoleHost
}

func canModerate(r guest.Role) bool {
	return r.CanModerate()
}
