package middleware

import (
	"errors"
	"fmt"

	"github.com/anjiri1684/seatshare/models"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const actorKey = "actor"

// Protected verifies the bearer token and stores the caller as a
// models.Actor in the request locals.
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:     []byte(secret),
		SigningMethod:  "HS256",
		ErrorHandler:   jwtError,
		SuccessHandler: storeActor,
	})
}

// ParseToken verifies a raw token outside the HTTP middleware chain, as the
// websocket handshake does.
func ParseToken(secret, tokenString string) (models.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Actor{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Actor{}, errors.New("invalid token")
	}
	return actorFromClaims(claims)
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"status": "error", "message": "Missing or malformed JWT", "data": nil})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Invalid or expired JWT", "data": nil})
}

func storeActor(c *fiber.Ctx) error {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return jwtError(c, errors.New("missing token"))
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return jwtError(c, errors.New("unexpected claims"))
	}
	actor, err := actorFromClaims(claims)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).
			JSON(fiber.Map{"status": "error", "message": err.Error(), "data": nil})
	}
	c.Locals(actorKey, actor)
	return c.Next()
}

func actorFromClaims(claims jwt.MapClaims) (models.Actor, error) {
	rawID, _ := claims["user_id"].(string)
	id, err := uuid.Parse(rawID)
	if err != nil {
		return models.Actor{}, errors.New("token carries no valid user_id")
	}
	rawRole, _ := claims["role"].(string)
	role, ok := models.ParseRole(rawRole)
	if !ok {
		return models.Actor{}, errors.New("token carries no valid role")
	}
	return models.Actor{ID: id, Role: role}, nil
}

// ActorFrom returns the caller resolved by Protected.
func ActorFrom(c *fiber.Ctx) (models.Actor, bool) {
	actor, ok := c.Locals(actorKey).(models.Actor)
	return actor, ok
}

func RoleRequired(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFrom(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}
		for _, role := range roles {
			if actor.Role == role {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Forbidden: " + string(actor.Role) + " may not access this resource",
		})
	}
}

func AdminRequired() fiber.Handler {
	return RoleRequired(models.RoleAdmin)
}
