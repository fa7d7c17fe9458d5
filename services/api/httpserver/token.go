// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/cogment/rag-backend/version"
)

var TokenIssuer = fmt.Sprintf("rag-backend v%s", version.Version)

type TokenClaims struct {
	jwt.RegisteredClaims
}

// MakeAndSerializeToken signs a token for subject, a zero ttl creates a token that never expires.
func MakeAndSerializeToken(subject string, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("A secret is required to sign tokens")
	}
	now := time.Now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   TokenIssuer,
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseAndVerifyToken(tokenString string, secret string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
		}

		issuer, err := token.Claims.GetIssuer()
		if err != nil {
			return nil, err
		}

		if issuer != TokenIssuer {
			return nil, fmt.Errorf("Unexpected token issuer: %v", issuer)
		}

		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TokenClaims); ok {
		return claims, nil
	}
	return nil, errors.New("Unexpected token claims")
}

const authorizationHeaderKey = "Authorization"
const bearerPrefix = "Bearer "

func makeAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		header := c.GetHeader(authorizationHeaderKey)
		if !strings.HasPrefix(header, bearerPrefix) {
			_ = c.AbortWithError(
				http.StatusUnauthorized,
				fmt.Errorf("Missing bearer token in header [%s]", authorizationHeaderKey),
			)
			return
		}

		claims, err := ParseAndVerifyToken(strings.TrimPrefix(header, bearerPrefix), secret)
		if err != nil {
			_ = c.AbortWithError(
				http.StatusUnauthorized,
				fmt.Errorf("Unable to validate token from header [%s] (%w)", authorizationHeaderKey, err),
			)
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}
