package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

const loginPage = `<html><body>
<form name="login" action="/login" method="POST">
<input type="hidden" name="sid" value="session-1"/>
<input type="hidden" name="csrf" value="token-1"/>
<input type="text" name="username"/>
<input type="password" name="password"/>
</form>
</body></html>`

func TestFormLoginCompletesFlow(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/authorize", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loginpage", http.StatusFound)
	})
	mux.HandleFunc("/loginpage", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, loginPage)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostFormValue("username") != "user@example.com" || r.PostFormValue("password") != "secret" {
			t.Errorf("credentials not submitted: %v", r.PostForm)
		}
		if r.PostFormValue("sid") != "session-1" || r.PostFormValue("csrf") != "token-1" {
			t.Errorf("hidden fields not carried over: %v", r.PostForm)
		}
		http.Redirect(w, r, "/finish", http.StatusFound)
	})
	mux.HandleFunc("/finish", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/done#access_token=access-1&id_token=id-1&refresh_token=refresh-1", http.StatusFound)
	})

	surface := &formLogin{httpClient: &http.Client{Timeout: 5 * time.Second}, log: zap.NewNop()}
	creds, err := surface.CompleteLogin(context.Background(), LoginTranscript{
		AuthorizeURL: server.URL + "/authorize",
		ClientID:     "client-id",
		Username:     "user@example.com",
		Password:     "secret",
	})
	if err != nil {
		t.Fatalf("complete login: %v", err)
	}
	if creds.AccessToken != "access-1" || creds.IDToken != "id-1" || creds.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestFormLoginRejectsUnexpectedPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html><body>maintenance</body></html>")
	}))
	defer server.Close()

	surface := &formLogin{httpClient: &http.Client{Timeout: 5 * time.Second}, log: zap.NewNop()}
	_, err := surface.CompleteLogin(context.Background(), LoginTranscript{
		AuthorizeURL: server.URL + "/authorize",
		Username:     "user@example.com",
		Password:     "secret",
	})
	if err == nil {
		t.Fatalf("expected an error for a page without the login form")
	}
}

func TestParseLoginForm(t *testing.T) {
	action, fields, ok := parseLoginForm(loginPage)
	if !ok {
		t.Fatalf("expected form to parse")
	}
	if action != "/login" {
		t.Fatalf("unexpected action: %s", action)
	}
	if fields.Get("sid") != "session-1" || fields.Get("csrf") != "token-1" {
		t.Fatalf("unexpected hidden fields: %v", fields)
	}
}

func TestParseLoginFormReorderedAttributes(t *testing.T) {
	page := `<html><body>
<form name="login" action="/login" method="POST">
<input name="sid" type="hidden" value="session-2"/>
<input value="token-2" name="csrf" type="HIDDEN"/>
<input name="username" type="text"/>
</form>
</body></html>`

	action, fields, ok := parseLoginForm(page)
	if !ok {
		t.Fatalf("expected form to parse")
	}
	if action != "/login" {
		t.Fatalf("unexpected action: %s", action)
	}
	if fields.Get("sid") != "session-2" || fields.Get("csrf") != "token-2" {
		t.Fatalf("unexpected hidden fields: %v", fields)
	}
	if _, ok := fields["username"]; ok {
		t.Fatalf("visible inputs must not be pre-filled: %v", fields)
	}
}
