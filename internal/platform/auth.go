package platform

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// BearerClient returns an HTTP client that sends token as a bearer
// credential on every request.
func BearerClient(token string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	client := oauth2.NewClient(context.Background(), src)
	client.Timeout = timeout
	return client
}
