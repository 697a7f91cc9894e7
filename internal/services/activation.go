package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/eventdesk/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
)

// ActivationTokens issues and checks account activation tokens.
//
// A token is an HS256 JWT whose "st" claim fingerprints the user's current
// password hash and activation flag. Activating the account or changing the
// password changes the fingerprint, so each token works at most once.
type ActivationTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type activationClaims struct {
	State string `json:"st"`
	jwt.RegisteredClaims
}

func NewActivationTokens(secret string, ttl time.Duration) *ActivationTokens {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &ActivationTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a token bound to the user's present state.
func (a *ActivationTokens) Issue(user types.User) (string, error) {
	now := a.now()
	claims := activationClaims{
		State: a.fingerprint(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify reports whether token is a live activation token for user.
func (a *ActivationTokens) Verify(user types.User, token string) error {
	claims := activationClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidActivation
	}
	if claims.Subject != strconv.Itoa(user.ID) {
		return ErrInvalidActivation
	}
	if !hmac.Equal([]byte(claims.State), []byte(a.fingerprint(user))) {
		return ErrInvalidActivation
	}
	return nil
}

func (a *ActivationTokens) fingerprint(user types.User) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(strconv.Itoa(user.ID)))
	mac.Write([]byte{0})
	mac.Write([]byte(user.PasswordHash))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatBool(user.IsActive)))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncodeUID renders a user id for use in an activation URL.
func EncodeUID(id int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(id)))
}

// DecodeUID reverses EncodeUID. Padded input is accepted.
func DecodeUID(uidb64 string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(uidb64, "="))
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(string(raw))
	if err != nil || id < 1 {
		return 0, errors.New("invalid uid")
	}
	return id, nil
}
