package termclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
)

var ErrBadPassword = errors.New("invalid password")

// Auth is a logged-in HTTP identity: a client carrying the session cookie
// and the CSRF token bound to it.
type Auth struct {
	BaseURL string
	Client  *http.Client
	Jar     http.CookieJar
	CSRF    string
}

// Login signs in with a password and fetches the session's CSRF token.
func Login(ctx context.Context, baseURL, password string) (*Auth, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	form := url.Values{"password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send login request: %w", err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther && resp.StatusCode != http.StatusFound {
		return nil, fmt.Errorf("login rejected: status=%d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); strings.Contains(loc, "/auth/login") {
		return nil, ErrBadPassword
	}

	token, err := fetchCSRF(ctx, client, baseURL)
	if err != nil {
		return nil, err
	}
	client.CheckRedirect = nil
	return &Auth{BaseURL: baseURL, Client: client, Jar: jar, CSRF: token}, nil
}

func fetchCSRF(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/auth/csrf", nil)
	if err != nil {
		return "", fmt.Errorf("create csrf request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return "", fmt.Errorf("csrf request rejected: status=%d body=%s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var out struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode csrf token: %w", err)
	}
	if out.CSRFToken == "" {
		return "", errors.New("server returned an empty csrf token")
	}
	return out.CSRFToken, nil
}

// SSE returns a server-sent-events transport for this identity.
func (a *Auth) SSE() *SSETransport {
	return &SSETransport{BaseURL: a.BaseURL, Client: a.Client, CSRF: a.CSRF}
}

// WS returns a websocket transport for this identity.
func (a *Auth) WS() *WSTransport {
	return &WSTransport{BaseURL: a.BaseURL, Jar: a.Jar, CSRF: a.CSRF}
}
