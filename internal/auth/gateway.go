package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"gastos/internal/cache"
	"gastos/internal/log"
)

// DefaultSessionTTL applies when Config.SessionTTL is zero.
const DefaultSessionTTL = 7 * 24 * time.Hour

const (
	maxSessions      = 1024
	subscriberBuffer = 16
)

// Session is a signed-in browser. Token is the sealed cookie value.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Event reports a sign-in state change. User is nil after a sign-out.
type Event struct {
	User *User
}

// Subscription receives every Event published after it was created.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	cancel func()
}

// Unsubscribe stops delivery and closes C.
func (s *Subscription) Unsubscribe() { s.cancel() }

type Config struct {
	SessionKey        string
	SessionSigningKey string
	SessionTTL        time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Gateway signs users up, in and out. Sessions live in memory; a restart
// signs everybody out.
type Gateway struct {
	users    UserStore
	sessions *cache.LRUCache[Session]
	sealer   *sealer
	ttl      time.Duration
	cost     int
	now      func() time.Time

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewGateway(users UserStore, cfg Config) (*Gateway, error) {
	s, err := newSealer(cfg.SessionKey, cfg.SessionSigningKey)
	if err != nil {
		return nil, err
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Gateway{
		users:    users,
		sessions: cache.NewLRUCache[Session](maxSessions, ttl),
		sealer:   s,
		ttl:      ttl,
		cost:     cost,
		now:      time.Now,
		subs:     make(map[*Subscription]struct{}),
	}, nil
}

// Sessions exposes the session cache so it can be swept by a cache.Manager.
func (g *Gateway) Sessions() cache.Cleaner { return g.sessions }

// SignUp creates an account. The id is derived from name.
func (g *Gateway) SignUp(ctx context.Context, email, password, name string) (User, error) {
	email = NormalizeEmail(email)
	name = strings.TrimSpace(name)
	switch {
	case !validEmail(email):
		return User{}, ErrInvalidEmail
	case len(password) < MinPasswordLength:
		return User{}, ErrWeakPassword
	case UserID(name) == "":
		return User{}, ErrEmptyName
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := g.users.CreateUser(ctx, User{
		ID:           UserID(name),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    g.now().UTC(),
	})
	if err != nil {
		return User{}, err
	}

	log.FromContext(ctx).WithComponent(log.ComponentAuth).InfoContext(ctx, "User signed up",
		log.FieldUserID, u.ID, log.FieldOperation, log.OpSignUp)
	return u, nil
}

// SignIn checks credentials and opens a session. Unknown emails and wrong
// passwords both return ErrInvalidCredentials.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (Session, error) {
	u, err := g.users.FindUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	id := uuid.NewString()
	token, err := g.sealer.seal([]byte(id))
	if err != nil {
		return Session{}, fmt.Errorf("seal session: %w", err)
	}
	s := Session{Token: token, UserID: u.ID, ExpiresAt: g.now().Add(g.ttl)}
	g.sessions.Set(id, s)

	log.FromContext(ctx).WithComponent(log.ComponentAuth).InfoContext(ctx, "User signed in",
		log.FieldUserID, u.ID, log.FieldOperation, log.OpSignIn)
	g.publish(Event{User: &u})
	return s, nil
}

// SignOut ends the session behind token. Unknown tokens are ignored.
func (g *Gateway) SignOut(ctx context.Context, token string) error {
	id, err := g.sealer.open(token)
	if err != nil {
		return ErrInvalidSession
	}
	s, ok := g.sessions.Take(string(id))
	if !ok {
		return nil
	}
	log.FromContext(ctx).WithComponent(log.ComponentAuth).InfoContext(ctx, "User signed out",
		log.FieldUserID, s.UserID, log.FieldOperation, log.OpSignOut)
	g.publish(Event{User: nil})
	return nil
}

// Resolve returns the user behind a session token.
func (g *Gateway) Resolve(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}
	id, err := g.sealer.open(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	s, ok := g.sessions.Get(string(id))
	if !ok {
		return nil, ErrInvalidSession
	}
	u, err := g.users.GetUser(ctx, s.UserID)
	if errors.Is(err, ErrUserNotFound) {
		g.sessions.Delete(string(id))
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	return &u, nil
}

// Users lists every account.
func (g *Gateway) Users(ctx context.Context) ([]User, error) {
	return g.users.ListUsers(ctx)
}

// Subscribe registers for sign-in and sign-out events. After Close the
// returned subscription's channel is already closed.
func (g *Gateway) Subscribe() *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch}
	var once sync.Once
	sub.cancel = func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if _, ok := g.subs[sub]; ok {
				delete(g.subs, sub)
				close(ch)
			}
		})
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		close(ch)
		return sub
	}
	g.subs[sub] = struct{}{}
	return sub
}

// publish never blocks: a subscriber whose buffer is full misses the event.
func (g *Gateway) publish(e Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for sub := range g.subs {
		select {
		case sub.ch <- e:
		default:
			log.Default().WithComponent(log.ComponentAuth).Warn("Dropped auth event for slow subscriber")
		}
	}
}

// Close ends every subscription. Sign-in keeps working but nobody is notified.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	for sub := range g.subs {
		close(sub.ch)
		delete(g.subs, sub)
	}
}
