package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"checkout-service/utils"
)

// AuthMiddleware requires a valid bearer token and stores the claims on
// the context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing token"})
			c.Abort()
			return
		}
		c.Set("userID", claims.UserID)
		c.Set("isAdmin", claims.IsAdmin)
		c.Next()
	}
}

// OptionalAuth attaches claims when a valid token is present but lets
// guests through. Checkout routes use this: guest checkout is a first-class
// path, never an error.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c); ok {
			c.Set("userID", claims.UserID)
			c.Set("isAdmin", claims.IsAdmin)
		}
		c.Next()
	}
}

// AdminMiddleware requires an authenticated admin. Must run after
// AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAdmin, exists := c.Get("isAdmin"); !exists || isAdmin != true {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerClaims(c *gin.Context) (utils.Claims, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return utils.Claims{}, false
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == header {
		return utils.Claims{}, false
	}
	claims, err := utils.ParseToken(tokenString)
	if err != nil || claims.UserID == 0 {
		return utils.Claims{}, false
	}
	return claims, true
}
