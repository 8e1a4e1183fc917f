package http

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"gastos/internal/auth"
	"gastos/internal/log"
)

const sessionCookie = "gastos_session"

// requireUser resolves the session cookie into the request context.
// Anonymous page loads are sent to the sign-in page; API and htmx calls get
// a 401 so the client can react.
func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if c, err := r.Cookie(sessionCookie); err == nil {
			token = c.Value
		}
		u, err := s.auth.Resolve(r.Context(), token)
		if err != nil {
			if token != "" {
				s.clearSession(w)
			}
			s.unauthorized(w, r)
			return
		}

		ctx := auth.WithUser(r.Context(), u)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, u.ID))
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	switch {
	case wantsJSON(r):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": auth.ErrInvalidSession.Error()})
	case isHTMX(r):
		NewHTMXResponse().Status(http.StatusUnauthorized).Redirect("/signin").Write(w)
	default:
		target := "/signin"
		if r.Method == http.MethodGet && r.URL.Path != "/" {
			target += "?next=" + url.QueryEscape(r.URL.RequestURI())
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

func (s *Server) setSession(w http.ResponseWriter, sess auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type signInPage struct {
	Title  string
	User   *auth.User
	Next   string
	Email  string
	Name   string
	Error  string
	SignUp bool
}

// safeNext only allows local absolute paths as post sign-in targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/"
	}
	return next
}

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "signin.html", signInPage{
		Title:  "Entrar",
		Next:   safeNext(r.URL.Query().Get("next")),
		SignUp: r.URL.Query().Get("mode") == "signup",
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}
	email := sanitizeInput(r.PostForm.Get("email"))
	next := safeNext(r.PostForm.Get("next"))

	sess, err := s.auth.SignIn(r.Context(), email, r.PostForm.Get("password"))
	if err != nil {
		s.signInFailed(w, r, signInPage{Title: "Entrar", Next: next, Email: email}, err)
		return
	}
	s.setSession(w, sess)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// handleSignUp creates the account and signs it in straight away.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}
	email := sanitizeInput(r.PostForm.Get("email"))
	name := sanitizeInput(r.PostForm.Get("name"))
	password := r.PostForm.Get("password")
	page := signInPage{Title: "Crear cuenta", Next: "/", Email: email, Name: name, SignUp: true}

	if _, err := s.auth.SignUp(r.Context(), email, password, name); err != nil {
		s.signInFailed(w, r, page, err)
		return
	}
	sess, err := s.auth.SignIn(r.Context(), email, password)
	if err != nil {
		s.signInFailed(w, r, page, err)
		return
	}
	s.setSession(w, sess)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) signInFailed(w http.ResponseWriter, r *http.Request, page signInPage, err error) {
	status, msg, expected := classifyError(err)
	op := log.OpSignIn
	if page.SignUp {
		op = log.OpSignUp
	}
	if !expected {
		log.LogError(r.Context(), "Authentication failed", err, log.ErrorTypeAuth, log.ComponentAuth, op, nil)
	} else {
		log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Authentication rejected",
			log.FieldOperation, op, log.FieldError, err)
	}
	page.Error = msg
	s.render(w, r, status, "signin.html", page)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		if err := s.auth.SignOut(r.Context(), c.Value); err != nil {
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Sign-out with invalid token",
				log.FieldOperation, log.OpSignOut)
		}
	}
	s.clearSession(w)
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/signin").Write(w)
		return
	}
	http.Redirect(w, r, "/signin", http.StatusSeeOther)
}
