package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestAuthURL(t *testing.T) {
	c := New(Config{
		AuthorizeURL: "https://idp.example.com/oauth/authorize",
		ClientID:     "spaces-app",
		RedirectURL:  "https://spaces.example.com/api/v1/oauth/callback",
	})

	raw := c.AuthURL("state-123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("client_id") != "spaces-app" {
		t.Errorf("client_id: got %q", q.Get("client_id"))
	}
	if q.Get("state") != "state-123" {
		t.Errorf("state: got %q", q.Get("state"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type: got %q", q.Get("response_type"))
	}
}

func TestExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("code") != "the-code" {
			t.Errorf("code: got %q", r.PostForm.Get("code"))
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type: got %q", r.PostForm.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-42"}`))
	}))
	defer srv.Close()

	c := New(Config{TokenURL: srv.URL, ClientID: "id", ClientSecret: "secret"})
	token, err := c.Exchange(context.Background(), "the-code")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if token != "at-42" {
		t.Errorf("token: got %q", token)
	}
}

func TestExchangeRejectsEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(Config{TokenURL: srv.URL})
	if _, err := c.Exchange(context.Background(), "code"); err == nil {
		t.Fatal("want error for missing access token")
	}
}

func TestFetchIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at-42" {
			t.Errorf("Authorization: got %q", got)
		}
		w.Write([]byte(`{"id":"hc-7","email":"ada@example.com","username":"ada","verification_status":"verified"}`))
	}))
	defer srv.Close()

	c := New(Config{UserInfoURL: srv.URL})
	id, err := c.FetchIdentity(context.Background(), "at-42")
	if err != nil {
		t.Fatalf("FetchIdentity: %v", err)
	}
	if id.ID != "hc-7" || id.Email != "ada@example.com" {
		t.Errorf("identity: %+v", id)
	}
}
