package restgateway

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	jwtverifier "github.com/okta/okta-jwt-verifier-golang"
)

var toValidate = map[string]string{
	"aud": "api://default",
	"cid": os.Getenv("TIERCACHE_OKTA_CLIENT_ID"),
}

// verifyHeaderToken wraps h so it only runs once the request's bearer token
// passes verify.
func verifyHeaderToken(h func(c *gin.Context)) func(c *gin.Context) {
	return func(c *gin.Context) {
		if verify(c) {
			h(c)
		}
	}
}

// verify checks the Authorization header's bearer token against Okta,
// bypassed entirely in TIERCACHE_ENV=DEV and via a shared-secret comparison
// in TIERCACHE_ENV=QA, mirroring how a staging environment would skip the
// full OAuth2 round trip.
func verify(c *gin.Context) bool {
	if os.Getenv("TIERCACHE_ENV") == "DEV" {
		return true
	}

	token := c.Request.Header.Get("Authorization")
	if !strings.HasPrefix(token, "Bearer ") {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return false
	}
	token = strings.TrimPrefix(token, "Bearer ")

	if os.Getenv("TIERCACHE_ENV") == "QA" {
		if devToken := os.Getenv("TIERCACHE_QA_TOKEN"); token == devToken {
			return true
		}
	}

	verifierSetup := jwtverifier.JwtVerifier{
		Issuer:           "https://" + os.Getenv("TIERCACHE_OKTA_DOMAIN") + "/oauth2/default",
		ClaimsToValidate: toValidate,
	}
	verifier := verifierSetup.New()
	if _, err := verifier.VerifyAccessToken(token); err != nil {
		c.String(http.StatusForbidden, err.Error())
		return false
	}
	return true
}
