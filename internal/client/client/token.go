package client

import (
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDFromToken reads the user id claim without verifying the signature.
// The server verifies every request; the client only needs the id to key
// its local state.
func UserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	id, _ := claims["UserID"].(string)
	if id == "" {
		return "", common.ErrInvalidToken
	}
	return id, nil
}
