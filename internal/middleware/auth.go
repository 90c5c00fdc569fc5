package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/techserve/support-api/internal/model"
)

const guestIDHeader = "X-Guest-ID"

// AuthMiddleware requires a valid bearer token.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		userID, role, ok := parseToken(header[7:], secret)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Set("userRole", role)
		c.Next()
	}
}

// Identity resolves who owns the cart for this request: a bearer token wins,
// otherwise the guest id from the X-Guest-ID header. A request carrying
// neither gets a fresh guest id, echoed back in the response header so the
// client can persist it. A malformed token is rejected rather than silently
// downgraded to a guest.
func Identity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			userID, role, ok := parseToken(header[7:], secret)
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.Set("userID", userID)
			c.Set("userRole", role)
			c.Next()
			return
		}

		guestID := c.GetHeader(guestIDHeader)
		if _, err := uuid.Parse(guestID); err != nil {
			guestID = uuid.NewString()
		}
		c.Header(guestIDHeader, guestID)
		c.Set("guestID", guestID)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserRole(c) != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

func parseToken(tokenString, secret string) (uuid.UUID, string, bool) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", false
	}

	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", false
	}

	role, _ := claims["role"].(string)
	return userID, role, true
}

func GetUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get("userID")
	uid, _ := id.(uuid.UUID)
	return uid
}

func GetUserRole(c *gin.Context) string {
	role, _ := c.Get("userRole")
	r, _ := role.(string)
	return r
}

// GetOwner returns the resolved cart owner for a request that went through
// the Identity middleware.
func GetOwner(c *gin.Context) model.CartOwner {
	if uid := GetUserID(c); uid != uuid.Nil {
		return model.UserOwner(uid)
	}
	guestID, _ := c.Get("guestID")
	gid, _ := guestID.(string)
	return model.GuestOwner(gid)
}
