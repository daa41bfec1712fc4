package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"fitapp.dev/internal/ids"
)

type session struct {
	base   string
	client *http.Client
	cookie *http.Cookie
}

func main() {
	base := strings.TrimRight(os.Getenv("FITAPP_SMOKE_URL"), "/")
	if base == "" {
		base = "http://localhost:3500"
	}
	s := &session{base: base, client: &http.Client{Timeout: 5 * time.Second}}

	username := "smoke-" + strings.ToLower(ids.New())
	creds := map[string]string{"username": username, "password": "smoke-password"}

	s.expect(s.send(http.MethodPost, "/register", creds, ""), http.StatusCreated, "register")
	s.expect(s.send(http.MethodPost, "/register", creds, ""), http.StatusConflict, "duplicate register")

	resp := s.send(http.MethodPost, "/auth", creds, "")
	raw := s.expect(resp, http.StatusOK, "login")
	var login struct {
		AccessToken string `json:"accessToken"`
		Roles       []int  `json:"roles"`
	}
	decode(raw, "login", &login)
	for _, c := range resp.Cookies() {
		if c.Name == "jwt" {
			s.cookie = c
		}
	}
	if login.AccessToken == "" || s.cookie == nil {
		log.Fatalf("login: missing access token or refresh cookie")
	}

	s.expect(s.send(http.MethodGet, "/v1/me", nil, login.AccessToken), http.StatusOK, "me")
	s.expect(s.send(http.MethodGet, "/v1/me", nil, ""), http.StatusUnauthorized, "me without token")

	raw = s.expect(s.send(http.MethodGet, "/refresh", nil, ""), http.StatusOK, "refresh")
	var refreshed struct {
		AccessToken string `json:"accessToken"`
	}
	decode(raw, "refresh", &refreshed)
	if refreshed.AccessToken == "" {
		log.Fatalf("refresh: missing access token")
	}

	s.expect(s.send(http.MethodPost, "/logout", nil, ""), http.StatusNoContent, "logout")
	s.expect(s.send(http.MethodGet, "/refresh", nil, ""), http.StatusForbidden, "refresh after logout")
	s.expect(s.send(http.MethodPost, "/logout", nil, ""), http.StatusNoContent, "repeat logout")

	fmt.Printf("auth smoke test passed: user=%s base=%s\n", username, base)
}

// send attaches the refresh cookie by hand; the Secure flag keeps a cookie
// jar from replaying it over plain http.
func (s *session) send(method, path string, body any, bearer string) *http.Response {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: encode: %v", method, path, err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.base+path, r)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if s.cookie != nil {
		req.AddCookie(&http.Cookie{Name: s.cookie.Name, Value: s.cookie.Value})
	}
	resp, err := s.client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// expect drains and closes the body, returning it for decoding.
func (s *session) expect(resp *http.Response, want int, step string) []byte {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("%s: read body: %v", step, err)
	}
	if resp.StatusCode != want {
		log.Fatalf("%s: expected %d, got %d: %s", step, want, resp.StatusCode, raw)
	}
	return raw
}

func decode(raw []byte, step string, dst any) {
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Fatalf("%s: decode: %v", step, err)
	}
}
