package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/zenazn/goji/web"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// authConfig holds the JWT secret and an optional file of user privileges.
// Writes are open when no secret is configured.
type authConfig struct {
	AuthFile  string `toml:"auth_file"`
	SecretKey string `toml:"secret_key"`
}

// privileges maps user names, or "*" for anyone, to "read", "write" or
// "readwrite".
type privileges map[string]string

func loadAuthFile(filename string) (privileges, error) {
	if filename == "" {
		bgrid.Infof("No authorization file found.  Any valid token may write.\n")
		return nil, nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var p privileges
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("bad authorization file %q: %v: %w", filename, err, bgrid.ErrValue)
	}
	return p, nil
}

// allows returns true if the user may make a request with the method.  An
// empty privilege list allows everyone.
func (p privileges) allows(user, httpMethod string) bool {
	if len(p) == 0 {
		return true
	}
	method := strings.ToLower(httpMethod)
	readReq := method == "get" || method == "head"
	priv, found := p[user]
	if !found {
		priv, found = p["*"]
		if !found {
			return false
		}
	}
	switch priv {
	case "readwrite":
		return true
	case "read":
		return readReq
	case "write":
		return !readReq
	default:
		bgrid.Errorf("Authorized user %q has unparsable privilege %q\n", user, priv)
		return false
	}
}

// NewToken returns an HS256 JWT carrying the user name.
func NewToken(secret, user string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user": user})
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("error with JWT signing: %v", err)
	}
	return tokenString, nil
}

// verifyToken checks an "Authorization: Bearer <token>" value and returns
// the token's user claim.
func (s *Server) verifyToken(reqToken string) (string, error) {
	if reqToken == "" {
		return "", fmt.Errorf("JWT required via Authorization in request header")
	}
	splitToken := strings.Split(reqToken, "Bearer")
	if len(splitToken) != 2 || strings.TrimSpace(splitToken[1]) == "" {
		return "", fmt.Errorf("bearer not in proper format")
	}
	token, err := jwt.Parse(strings.TrimSpace(splitToken[1]), func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("error signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("error parsing JWT: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("failed authorization")
	}
	user, ok := claims["user"].(string)
	if !ok || user == "" {
		return "", fmt.Errorf("user claim %v is not a simple string", claims["user"])
	}
	return user, nil
}

// authorized wraps a write handler.  With a secret configured the request
// needs a valid token, and the token's user is recorded in c.Env["user"].
func (s *Server) authorized(h web.HandlerFunc) web.HandlerFunc {
	return func(c web.C, w http.ResponseWriter, r *http.Request) {
		if s.readOnly {
			httpError(w, r, http.StatusForbidden, "server is read-only")
			return
		}
		if s.secret == "" {
			h(c, w, r)
			return
		}
		user, err := s.verifyToken(r.Header.Get("Authorization"))
		if err != nil {
			httpError(w, r, http.StatusUnauthorized, "%v", err)
			return
		}
		if !s.privileges.allows(user, r.Method) {
			httpError(w, r, http.StatusForbidden, "user %q is not authorized", user)
			return
		}
		if c.Env == nil {
			c.Env = make(map[interface{}]interface{})
		}
		c.Env["user"] = user
		h(c, w, r)
	}
}
