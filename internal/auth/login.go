package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const (
	maxAuthorizeRedirects = 5
	maxLoginRedirects     = 10
)

// LoginTranscript carries everything the login surface needs to drive the
// vendor's interactive flow.
type LoginTranscript struct {
	AuthorizeURL string
	ClientID     string
	Username     string
	Password     string
}

// LoginSurface completes the interactive login against the vendor's login
// page. The page is server-templated and externally controlled, so
// implementations are best-effort by contract: a structural mismatch is an
// AuthError, never a crash.
type LoginSurface interface {
	CompleteLogin(ctx context.Context, transcript LoginTranscript) (Credentials, error)
}

// formLogin is the default surface: follow the authorize redirect chain to
// the login page, submit the templated form, and keep following redirects
// until a URL fragment carries the token triplet.
type formLogin struct {
	httpClient *http.Client
	log        *zap.Logger
}

var (
	formActionRe = regexp.MustCompile(`(?is)<form[^>]+action="([^"]+)"`)
	inputTagRe   = regexp.MustCompile(`(?is)<input\b[^>]*>`)
	inputAttrRe  = regexp.MustCompile(`(?is)([a-z][a-z0-9-]*)\s*=\s*"([^"]*)"`)
)

func (f *formLogin) CompleteLogin(ctx context.Context, transcript LoginTranscript) (Credentials, error) {
	if transcript.AuthorizeURL == "" {
		return Credentials{}, authErr("login", "no authorize URL configured")
	}
	if transcript.Username == "" || transcript.Password == "" {
		return Credentials{}, authErr("login", "username and password are required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return Credentials{}, AuthError{Op: "login", Err: err}
	}
	client := &http.Client{
		Timeout: f.httpClient.Timeout,
		Jar:     jar,
		// Redirects are followed by hand so every Location can be
		// inspected for the token fragment.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	pageURL, body, creds, err := f.follow(ctx, client, transcript.AuthorizeURL, maxAuthorizeRedirects)
	if err != nil {
		return Credentials{}, err
	}
	if creds != nil {
		return *creds, nil
	}

	action, fields, ok := parseLoginForm(body)
	if !ok {
		return Credentials{}, authErr("login", "login page did not match the expected form layout")
	}
	fields.Set("username", transcript.Username)
	fields.Set("password", transcript.Password)

	actionURL, err := pageURL.Parse(action)
	if err != nil {
		return Credentials{}, AuthError{Op: "login", Err: fmt.Errorf("resolve form action: %w", err)}
	}

	f.log.Debug("submitting login form", zap.String("action", actionURL.Redacted()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, actionURL.String(), strings.NewReader(fields.Encode()))
	if err != nil {
		return Credentials{}, AuthError{Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return Credentials{}, AuthError{Op: "login", Err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return Credentials{}, authErr("login", "credential submission was not redirected")
	}
	next, err := actionURL.Parse(location)
	if err != nil {
		return Credentials{}, AuthError{Op: "login", Err: err}
	}
	if creds := tokensFromFragment(next); creds != nil {
		return *creds, nil
	}

	_, _, found, err := f.follow(ctx, client, next.String(), maxLoginRedirects)
	if err != nil {
		return Credentials{}, err
	}
	if found == nil {
		return Credentials{}, authErr("login", "no token fragment within %d redirects", maxLoginRedirects)
	}
	return *found, nil
}

// follow chases a redirect chain by hand, checking every hop's URL fragment
// for tokens. It returns the final page URL and body when the chain settles
// on a non-redirect response.
func (f *formLogin) follow(ctx context.Context, client *http.Client, start string, maxHops int) (*url.URL, string, *Credentials, error) {
	current := start
	for hop := 0; hop <= maxHops; hop++ {
		u, err := url.Parse(current)
		if err != nil {
			return nil, "", nil, AuthError{Op: "login", Err: fmt.Errorf("parse redirect target: %w", err)}
		}
		if creds := tokensFromFragment(u); creds != nil {
			return u, "", creds, nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, "", nil, AuthError{Op: "login", Err: err}
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, "", nil, AuthError{Op: "login", Err: err}
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if location == "" {
				return nil, "", nil, authErr("login", "redirect without location")
			}
			next, err := u.Parse(location)
			if err != nil {
				return nil, "", nil, AuthError{Op: "login", Err: err}
			}
			current = next.String()
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, "", nil, AuthError{Op: "login", Err: err}
		}
		if resp.StatusCode >= 400 {
			return nil, "", nil, authErr("login", "login surface returned %d", resp.StatusCode)
		}
		return u, string(data), nil, nil
	}
	return nil, "", nil, authErr("login", "redirect chain exceeded %d hops", maxHops)
}

func parseLoginForm(body string) (string, url.Values, bool) {
	action := formActionRe.FindStringSubmatch(body)
	if action == nil {
		return "", nil, false
	}
	fields := url.Values{}
	// Attributes are matched individually so templated reorderings of the
	// input tags do not break the flow.
	for _, tag := range inputTagRe.FindAllString(body, -1) {
		attrs := map[string]string{}
		for _, match := range inputAttrRe.FindAllStringSubmatch(tag, -1) {
			attrs[strings.ToLower(match[1])] = match[2]
		}
		if !strings.EqualFold(attrs["type"], "hidden") {
			continue
		}
		if name, ok := attrs["name"]; ok {
			fields.Set(name, attrs["value"])
		}
	}
	return action[1], fields, true
}

// tokensFromFragment parses "#access_token=…&id_token=…&refresh_token=…"
// style fragments. All three tokens must be present.
func tokensFromFragment(u *url.URL) *Credentials {
	if u.Fragment == "" || !strings.Contains(u.Fragment, "access_token") {
		return nil
	}
	values, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return nil
	}
	creds := Credentials{
		AccessToken:  values.Get("access_token"),
		IDToken:      values.Get("id_token"),
		RefreshToken: values.Get("refresh_token"),
	}
	if creds.AccessToken == "" || creds.IDToken == "" || creds.RefreshToken == "" {
		return nil
	}
	return &creds
}
