package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sergioamr/img-api/internal/model"
	"github.com/sergioamr/img-api/pkg/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errNoToken      = errors.New("no authorization token")
	errUserNotFound = errors.New("user not found")
)

// tokenFromRequest looks for a token in the auth_token cookie, the
// Authorization header and finally the key query parameter.
func tokenFromRequest(c *gin.Context) string {
	if tok, err := c.Cookie("auth_token"); err == nil && tok != "" {
		return tok
	}

	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}

	return c.Query("key")
}

func authenticate(c *gin.Context, d *gorm.DB, tokens *security.TokenIssuer) (*model.User, error) {
	tokenStr := tokenFromRequest(c)
	if tokenStr == "" {
		return nil, errNoToken
	}

	userID, err := tokens.Parse(tokenStr)
	if err != nil {
		return nil, err
	}

	var user model.User
	err = d.
		WithContext(c.Request.Context()).
		Where("id = ?", userID).
		First(&user).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errUserNotFound
		}

		return nil, err
	}

	return &user, nil
}

// SetUser stores u on the request context the way the auth middlewares do.
func SetUser(c *gin.Context, u *model.User) {
	c.Set("user", u)
	c.Set("userID", u.ID)
	c.Set("username", u.Username)
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get("user")
	if !ok {
		return nil
	}

	u, _ := v.(*model.User)
	return u
}

// NewJWTMiddleware rejects requests without a valid token.
func NewJWTMiddleware(d *gorm.DB, tokens *security.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		user, err := authenticate(c, d, tokens)
		if err != nil {
			switch {
			case errors.Is(err, errNoToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":     "No authorization token provided",
					"requestID": requestID,
				})
			case errors.Is(err, security.ErrInvalidToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":     "Authorization token invalid",
					"requestID": requestID,
				})
			case errors.Is(err, errUserNotFound):
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error":     "User not found",
					"requestID": requestID,
				})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":     "Internal server error",
					"requestID": requestID,
				})

				zap.L().Error("Failed to check if user exists", zap.Error(err), zap.String("requestID", requestID))
			}
			return
		}

		SetUser(c, user)
		c.Next()
	}
}

// NewOptionalJWTMiddleware identifies the caller when it can and lets the
// request through anonymously otherwise.
func NewOptionalJWTMiddleware(d *gorm.DB, tokens *security.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authenticate(c, d, tokens)
		if err != nil {
			if !errors.Is(err, errNoToken) {
				zap.L().Debug("Ignoring unusable token", zap.Error(err))
			}

			c.Next()
			return
		}

		SetUser(c, user)
		c.Next()
	}
}
