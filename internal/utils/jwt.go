package utils // package utils provides helpers for issuing access tokens

import (
    "fmt"
    "strconv"
    "time"

    "github.com/golang-jwt/jwt/v5"

    "github.com/iliyamo/class-reservation/internal/model"
)

// AccessToken represents a signed JWT access token along with its expiry.
// Tokens are normally issued by the identity service; the server's token
// command mints them for operators and local testing.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT carrying the subject (user
// id, as a decimal string), role, expiry and issued-at claims.
func NewAccessToken(secret string, userID uint64, role model.Role, ttl time.Duration) (AccessToken, error) {
    if secret == "" {
        return AccessToken{}, fmt.Errorf("empty signing secret")
    }
    if !role.Valid() {
        return AccessToken{}, fmt.Errorf("unknown role %q", role)
    }
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "sub":  strconv.FormatUint(userID, 10),
        "role": string(role),
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}
