package api

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"library-lending/library"
)

const (
	actorKey  = "actor"
	roleAdmin = "admin"
)

// parseToken verifies an HS256 bearer token and extracts the caller. The
// subject may be encoded as a JSON number or a string.
func parseToken(header string, secret []byte) (library.Actor, error) {
	raw := strings.TrimSpace(header)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return library.Actor{}, errors.New("missing token")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return library.Actor{}, err
	}

	var id int64
	switch sub := claims["sub"].(type) {
	case float64:
		id = int64(sub)
	case string:
		if id, err = strconv.ParseInt(sub, 10, 64); err != nil {
			return library.Actor{}, fmt.Errorf("bad subject %q", sub)
		}
	default:
		return library.Actor{}, errors.New("missing subject")
	}
	if id <= 0 {
		return library.Actor{}, errors.New("missing subject")
	}
	role, _ := claims["role"].(string)
	return library.Actor{UserID: id, IsAdmin: role == roleAdmin}, nil
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	actor, err := parseToken(c.Get(fiber.HeaderAuthorization), s.secret)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized: "+err.Error())
	}
	c.Locals(actorKey, actor)
	return c.Next()
}

func (s *Server) requireAdmin(c *fiber.Ctx) error {
	if !actorOf(c).IsAdmin {
		return fiber.NewError(fiber.StatusForbidden, "admin only")
	}
	return c.Next()
}

func actorOf(c *fiber.Ctx) library.Actor {
	a, _ := c.Locals(actorKey).(library.Actor)
	return a
}
