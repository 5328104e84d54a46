package client

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims are the Entra ID claims worth recording about the caller.
type accessClaims struct {
	ObjectID string `json:"oid,omitempty"`
	UPN      string `json:"upn,omitempty"`
	AppID    string `json:"appid,omitempty"`
	TenantID string `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// TokenInfo identifies who a run acts as.
type TokenInfo struct {
	Subject   string    `json:"subject,omitempty"`
	ObjectID  string    `json:"object_id,omitempty"`
	Principal string    `json:"principal,omitempty"`
	TenantID  string    `json:"tenant_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// InspectToken reads the claims of an access token without verifying its
// signature. The token is only ever sent back to the issuer's audience, so
// the claims are informational.
func InspectToken(raw string) (TokenInfo, error) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parse access token: %w", err)
	}

	info := TokenInfo{
		Subject:   claims.Subject,
		ObjectID:  claims.ObjectID,
		Principal: claims.UPN,
		TenantID:  claims.TenantID,
	}
	if info.Principal == "" {
		info.Principal = claims.AppID
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Expired reports whether the token expiry has passed at now.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}
