package gateway

import (
	"crypto/subtle"
	"os"

	"github.com/soyeahso/xmlbot/internal/config"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // "token" | "password"
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the effective gateway credentials.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth merges the configured credentials with XMLBOT_GATEWAY_TOKEN
// and XMLBOT_GATEWAY_PASSWORD. Config values win.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, Token: cfg.Token, Password: cfg.Password}
	if auth.Token == "" {
		auth.Token = os.Getenv("XMLBOT_GATEWAY_TOKEN")
	}
	if auth.Password == "" {
		auth.Password = os.Getenv("XMLBOT_GATEWAY_PASSWORD")
	}

	if auth.Mode == "" {
		auth.Mode = "token"
		if auth.Password != "" {
			auth.Mode = "password"
		}
	}
	return auth
}

// Ready reports whether the selected mode has a secret to check against.
func (a ResolvedAuth) Ready() bool {
	switch a.Mode {
	case "token":
		return a.Token != ""
	case "password":
		return a.Password != ""
	}
	return false
}

// Authorize checks the provided ConnectAuth against the resolved server auth.
func Authorize(serverAuth ResolvedAuth, clientAuth *ConnectAuth) AuthResult {
	if clientAuth == nil {
		return AuthResult{Reason: "no credentials provided"}
	}

	var want, got string
	switch serverAuth.Mode {
	case "token":
		want, got = serverAuth.Token, clientAuth.Token
	case "password":
		want, got = serverAuth.Password, clientAuth.Password
	default:
		return AuthResult{Reason: "unknown auth mode: " + serverAuth.Mode}
	}

	switch {
	case want == "":
		return AuthResult{Reason: "server " + serverAuth.Mode + " not configured"}
	case got == "":
		return AuthResult{Reason: serverAuth.Mode + " required"}
	case !safeEqual(got, want):
		return AuthResult{Reason: serverAuth.Mode + "_mismatch"}
	}
	return AuthResult{OK: true, Method: serverAuth.Mode}
}

// safeEqual compares in constant time, including on length mismatch.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
