package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func newIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	secret, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("Ошибка генерации секрета: %v", err)
	}
	ti, err := NewTokenIssuer(secret, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка создания издателя: %v", err)
	}
	return ti
}

// TestIssueAndValidate тестирует полный жизненный цикл токена
func TestIssueAndValidate(t *testing.T) {
	ti := newIssuer(t)

	token, err := ti.Issue("ops", true)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Неверный формат JWT токена: %s", token)
	}

	claims, err := ti.Validate(token)
	if err != nil {
		t.Fatalf("Валидный токен определен как недействительный: %v", err)
	}
	if claims.Operator != "ops" || !claims.IsAdmin {
		t.Errorf("Неверные claims: %+v", claims)
	}
}

// TestValidateInvalidJWT тестирует валидацию недействительных токенов
func TestValidateInvalidJWT(t *testing.T) {
	ti := newIssuer(t)
	other := newIssuer(t)
	foreign, err := other.Issue("ops", true)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Operator: "ops",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, err := expired.SignedString(ti.secret)
	if err != nil {
		t.Fatalf("Ошибка подписи: %v", err)
	}

	testCases := []string{
		"invalid.token.here",
		"",
		"not.a.jwt",
		foreign,
		expiredToken,
	}
	for _, invalid := range testCases {
		if _, err := ti.Validate(invalid); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Недействительный токен '%s' прошел валидацию: %v", invalid, err)
		}
	}
}

// TestNewTokenIssuerSecrets тестирует проверку секрета
func TestNewTokenIssuerSecrets(t *testing.T) {
	if _, err := NewTokenIssuer("", 0); err != nil {
		t.Errorf("Пустой секрет должен заменяться случайным: %v", err)
	}
	if _, err := NewTokenIssuer("invalid-base64-@#$%", 0); err == nil {
		t.Error("Секрет не в base64 был принят")
	}
	if _, err := NewTokenIssuer("c2hvcnQ=", 0); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("Короткий секрет должен давать ErrWeakSecret, получено %v", err)
	}
}

// TestMiddleware тестирует цепочку RequireToken → RequireAdmin
func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ti := newIssuer(t)

	r := gin.New()
	r.GET("/admin", RequireToken(ti), RequireAdmin(), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Operator)
	})

	admin, _ := ti.Issue("root", true)
	viewer, _ := ti.Issue("guest", false)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"без заголовка", "", http.StatusUnauthorized},
		{"неверная схема", "Token " + admin, http.StatusUnauthorized},
		{"мусор", "Bearer abc", http.StatusUnauthorized},
		{"не админ", "Bearer " + viewer, http.StatusForbidden},
		{"админ", "Bearer " + admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Errorf("Ожидался статус %d, получен %d", tc.status, w.Code)
			}
			if tc.status == http.StatusOK && w.Body.String() != "root" {
				t.Errorf("Ожидался оператор root, получено %q", w.Body.String())
			}
		})
	}
}
