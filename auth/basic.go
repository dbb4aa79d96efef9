package auth

import (
	"encoding/base64"
	"net/http"
	"strings"
	"unicode/utf8"
)

const basicPrefix = "Basic "

// BasicAuth authenticates every request from an
// "Authorization: Basic base64(email:password)" header.
type BasicAuth struct {
	baseAuth
	users  UserStore
	hasher Hasher
}

func NewBasicAuth(cookieName string, users UserStore, hasher Hasher) *BasicAuth {
	return &BasicAuth{baseAuth: baseAuth{cookieName: cookieName}, users: users, hasher: hasher}
}

func (b *BasicAuth) CurrentUser(r *http.Request) (User, bool, error) {
	header, ok := b.AuthorizationHeader(r)
	if !ok {
		return User{}, false, nil
	}
	email, password, ok := decodeBasic(header)
	if !ok {
		return User{}, false, nil
	}
	rec, found, err := b.users.FindUser(r.Context(), ByEmail, email)
	if err != nil {
		return User{}, false, err
	}
	if !found || !b.hasher.Verify(rec.HashedPassword, password) {
		return User{}, false, nil
	}
	return rec.User(), true, nil
}

// decodeBasic extracts the credentials of a Basic header. Any malformed
// input (wrong scheme, bad base64, invalid UTF-8, no colon) reports false.
func decodeBasic(header string) (email, password string, ok bool) {
	payload, ok := strings.CutPrefix(header, basicPrefix)
	if !ok {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || !utf8.Valid(raw) {
		return "", "", false
	}
	return strings.Cut(string(raw), ":")
}
