package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "fmt"
    "net/http"
    "strconv"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/class-reservation/internal/model"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// signed with HS256 and stores the caller (subject and role claims) on the
// context, where handlers read it via Actor.  Tokens without a numeric
// subject or a known role are rejected with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
    parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
    keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            claims := jwt.MapClaims{}
            tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            actor, err := actorFromClaims(claims)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }
            SetActor(c, actor)
            return next(c)
        }
    }
}

// actorFromClaims reads sub (a decimal string or a JSON number) and role.
func actorFromClaims(claims jwt.MapClaims) (model.Actor, error) {
    var id uint64
    switch sub := claims["sub"].(type) {
    case string:
        n, err := strconv.ParseUint(sub, 10, 64)
        if err != nil {
            return model.Actor{}, fmt.Errorf("subject %q: %w", sub, err)
        }
        id = n
    case float64:
        if sub < 1 || sub != float64(uint64(sub)) {
            return model.Actor{}, fmt.Errorf("subject %v is not an id", sub)
        }
        id = uint64(sub)
    default:
        return model.Actor{}, fmt.Errorf("missing subject")
    }
    if id == 0 {
        return model.Actor{}, fmt.Errorf("zero subject")
    }
    roleClaim, _ := claims["role"].(string)
    role, err := model.ParseRole(roleClaim)
    if err != nil {
        return model.Actor{}, err
    }
    return model.Actor{Role: role, ID: id}, nil
}
