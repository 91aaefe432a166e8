package auth

import (
	"fmt"
	"strconv"
	"time"

	"claude-chat/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// GenerateJWT signs a token for the given user. The session ID is carried in
// the jti claim so that sign-out can invalidate the token server-side.
func GenerateJWT(userID int64, sessionID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"jti": sessionID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour * 24).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ValidateJWT checks the signature and expiry and returns the user and session
// IDs embedded in the token.
func ValidateJWT(tokenString string) (int64, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})

	if err != nil {
		return 0, "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, "", fmt.Errorf("invalid token")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return 0, "", fmt.Errorf("missing sub claim")
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid sub claim: %w", err)
	}

	sessionID, ok := claims["jti"].(string)
	if !ok || sessionID == "" {
		return 0, "", fmt.Errorf("missing jti claim")
	}

	return userID, sessionID, nil
}
