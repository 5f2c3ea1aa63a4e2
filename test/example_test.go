package test

import (
	"context"
	"net/http"

	"github.com/penwell/authguard"
	"github.com/penwell/authguard/middleware"
	"github.com/redis/go-redis/v9"
)

// Example_newEngine demonstrates engine construction with production-style dependencies.
func Example_newEngine() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := authguard.DefaultConfig()
	cfg.ResourceLimits.Caps = map[string]int64{"draft": 50}

	engine, _ := authguard.New().
		WithConfig(cfg).
		WithSigningKey([]byte("replace-with-32-random-bytes-----")).
		WithRedis(rdb).
		Build()
	_ = engine
}

// Example_login shows a login that replaces the session behind the
// cookie the client already holds.
func Example_login() {
	var engine *authguard.Engine
	var w http.ResponseWriter
	var r *http.Request

	res, err := engine.Login(context.Background(), 42, authguard.LoginOptions{
		PreviousCookie: engine.ReadCookie(r),
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		return
	}
	engine.WriteCookie(w, res.Cookie)
}

// Example_limitResource caps draft creation per user and per day.
func Example_limitResource() {
	var engine *authguard.Engine
	var createDraft http.Handler

	mux := http.NewServeMux()
	mux.Handle("/drafts", middleware.RequireIdentity(engine)(
		middleware.LimitResource(engine, "draft", middleware.ByUserID)(createDraft),
	))
	_ = mux
}
