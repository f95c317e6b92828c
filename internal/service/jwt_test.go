package service

import (
	"errors"
	"testing"
	"time"
)

const (
	testAccessSecret  = "access-secret-for-tests-32-bytes!"
	testRefreshSecret = "refresh-secret-for-tests-32-byte!"
)

func newTestJWTService(accessExpiry, refreshExpiry time.Duration) JWTService {
	return NewJWTService(testAccessSecret, testRefreshSecret, accessExpiry, refreshExpiry)
}

// =============================================================================
// Round-trip Tests
// =============================================================================

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestJWTService(time.Hour, 24*time.Hour)

	token, err := svc.GenerateAccessToken("user-1", "john@example.com", "admin")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}

	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", claims.UserID)
	}
	if claims.Email != "john@example.com" {
		t.Errorf("Email = %q, want john@example.com", claims.Email)
	}
	if claims.Role != "admin" {
		t.Errorf("Role = %q, want admin", claims.Role)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	svc := newTestJWTService(time.Hour, 24*time.Hour)

	token, err := svc.GenerateRefreshToken("user-2")
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	claims, err := svc.ValidateRefreshToken(token)
	if err != nil {
		t.Fatalf("ValidateRefreshToken() error = %v", err)
	}
	if claims.UserID != "user-2" {
		t.Errorf("UserID = %q, want user-2", claims.UserID)
	}
}

// =============================================================================
// Failure Discrimination Tests
// =============================================================================

func TestExpiredTokenIsDistinctFromInvalid(t *testing.T) {
	svc := newTestJWTService(-time.Minute, 24*time.Hour)

	token, err := svc.GenerateAccessToken("user-1", "john@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	_, err = svc.ValidateAccessToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token error = %v, want ErrTokenExpired", err)
	}
}

func TestMalformedTokenIsInvalid(t *testing.T) {
	svc := newTestJWTService(time.Hour, 24*time.Hour)

	_, err := svc.ValidateAccessToken("not.a.jwt")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("malformed token error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenClassesAreNotInterchangeable(t *testing.T) {
	svc := newTestJWTService(time.Hour, 24*time.Hour)

	access, _ := svc.GenerateAccessToken("user-1", "john@example.com", "user")
	refresh, _ := svc.GenerateRefreshToken("user-1")

	if _, err := svc.ValidateRefreshToken(access); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("access token accepted as refresh token, err = %v", err)
	}
	if _, err := svc.ValidateAccessToken(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("refresh token accepted as access token, err = %v", err)
	}
}

func TestTamperedTokenIsInvalid(t *testing.T) {
	svc := newTestJWTService(time.Hour, 24*time.Hour)

	token, _ := svc.GenerateAccessToken("user-1", "john@example.com", "user")
	tampered := token[:len(token)-4] + "AAAA"

	if _, err := svc.ValidateAccessToken(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("tampered token error = %v, want ErrTokenInvalid", err)
	}
}

// =============================================================================
// Bearer Extraction Tests
// =============================================================================

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"well formed", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"empty header", "", ""},
		{"missing scheme", "abc.def.ghi", ""},
		{"wrong scheme", "Basic abc", ""},
		{"lowercase scheme", "bearer abc", ""},
		{"scheme only", "Bearer", ""},
		{"empty token", "Bearer ", ""},
		{"extra segments", "Bearer abc def", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractBearer(tt.header); got != tt.want {
				t.Errorf("ExtractBearer(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
