package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"checkout-service/config"
)

type Claims struct {
	UserID  int
	IsAdmin bool
}

func ParseToken(tokenString string) (Claims, error) {
	cfg := config.LoadConfig()
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	})

	if err != nil || !token.Valid {
		return Claims{}, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		out := Claims{}
		if id, ok := claims["user_id"].(float64); ok {
			out.UserID = int(id)
		}
		if admin, ok := claims["is_admin"].(bool); ok {
			out.IsAdmin = admin
		}
		return out, nil
	}

	return Claims{}, err
}

func GenerateToken(userID int, isAdmin bool) (string, error) {
	cfg := config.LoadConfig()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"is_admin": isAdmin,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(7 * 24 * time.Hour).Unix(),
	})
	return token.SignedString([]byte(cfg.JWTSecret))
}
