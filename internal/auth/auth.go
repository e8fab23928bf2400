package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/PapaBear1981/SupplyLine-MRO-Suite-sub002/internal/config"
)

// 鉴权失败只影响单个事件/请求，不影响已建立的连接。
var (
	ErrTokenRequired = errors.New("token required")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
)

type Claims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

// GenerateAccessToken 与外围应用的 HTTP 登录流程使用同一个密钥签发令牌。
func GenerateAccessToken(userID uint, secret string, ttlMinutes int) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAccessToken 校验令牌并归类失败原因：缺失、过期、其余一律视为非法。
// 没有 uid 声明的合法令牌同样按非法处理。
func ParseAccessToken(tokenStr, secret string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrTokenRequired
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// BearerToken 从 Authorization 头或 token 查询参数提取令牌，WebSocket
// 握手无法自定义头时走查询参数。
func BearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// AuthMiddleware 保护 REST 接口，将解析出的用户 ID 注入请求上下文。
func AuthMiddleware(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := ParseAccessToken(BearerToken(c), cfg.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrorMessage(err)})
			return
		}
		c.Set("userID", claims.UserID)
		c.Next()
	}
}

func GetUserID(c *gin.Context) uint {
	if v, ok := c.Get("userID"); ok {
		if id, ok2 := v.(uint); ok2 {
			return id
		}
	}
	return 0
}

// ErrorMessage 把鉴权错误映射为对客户端可见的文案。
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrTokenRequired):
		return "Authentication required"
	case errors.Is(err, ErrTokenExpired):
		return "Token expired"
	default:
		return "Invalid token"
	}
}
