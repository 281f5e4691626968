// Package middleware contains HTTP middleware functions for the archery club API.
// Middleware sits between the HTTP server and route handlers: it runs on every
// request that passes through it, which makes it the place for cross-cutting
// concerns like resolving who the caller is and request-scoped logging.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/trentd187/archery-club/internal/access"
	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/models"
)

// identityKey is the c.Locals key the resolved access.Identity is stored under.
const identityKey = "identity"

// Claims is the payload of a club bearer token. Subject is the club member id.
// Role and archer come from the member row on every request, not from the token.
type Claims struct {
	jwt.RegisteredClaims
}

// MemberLookup is the part of the store Auth needs.
type MemberLookup interface {
	GetMember(ctx context.Context, id int64) (*models.ClubMember, error)
}

// IdentityOf maps a member row to the identity the access gate understands.
func IdentityOf(m *models.ClubMember) access.Identity {
	id := access.Identity{Role: access.RoleArcher, MemberID: m.ID}
	if m.IsRecorder {
		id.Role = access.RoleRecorder
	}
	if m.ArcherID != nil {
		id.ArcherID = *m.ArcherID
	}
	return id
}

// Auth returns a Fiber middleware handler that resolves the caller:
//  1. No Authorization header: the caller is anonymous and the request continues.
//     Handlers and the access gate decide what anonymous callers may see.
//  2. A "Bearer <token>" header: the HS256 signature and expiry are verified, the
//     member named by the subject is loaded, and their identity is stored in c.Locals.
//  3. Anything else (malformed header, bad signature, unknown member) is a 401.
func Auth(secret string, members MemberLookup) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			c.Locals(identityKey, access.Anonymous)
			return c.Next()
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "invalid authorization header")
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		claims := &Claims{}
		_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil {
			Logger(c).Debug("token rejected", "error", err)
			return unauthorized(c, "invalid token")
		}

		memberID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || memberID <= 0 {
			return unauthorized(c, "token subject is not a member id")
		}

		member, err := members.GetMember(c.UserContext(), memberID)
		switch {
		case apperrors.HasKind(err, apperrors.KindNotFound):
			return unauthorized(c, "unknown member")
		case err != nil:
			Logger(c).Error("member lookup failed", "member_id", memberID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to resolve caller",
				"kind":  apperrors.KindStorage,
			})
		}

		c.Locals(identityKey, IdentityOf(member))
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": msg,
		"kind":  apperrors.KindPermissionDenied,
	})
}

// Identity returns the caller resolved by Auth, or the anonymous identity when Auth did
// not run.
func Identity(c *fiber.Ctx) access.Identity {
	if id, ok := c.Locals(identityKey).(access.Identity); ok {
		return id
	}
	return access.Anonymous
}

// IssueToken signs a bearer token for memberID that expires after ttl.
func IssueToken(secret string, memberID int64, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("issue token: empty secret")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("issue token: ttl must be positive, got %s", ttl)
	}
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(memberID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
