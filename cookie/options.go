package cookie

import (
	"net/http"
	"time"
)

// DefaultName is the cookie name used when Options.Name is empty.
const DefaultName = "authguard_session"

// Options controls how the session cookie is written to responses.
type Options struct {
	Name       string
	Path       string
	Domain     string
	MaxAge     time.Duration
	// Persistent cookies carry Max-Age/Expires. Non-persistent cookies end
	// with the browser session while the server-side record keeps its TTL.
	Persistent bool
	Secure     bool
	HTTPOnly   bool
	SameSite   http.SameSite
}

// DefaultOptions returns HttpOnly, Secure, SameSite=Lax, Path=/ cookies that
// persist for one week.
func DefaultOptions() Options {
	return Options{
		Name:       DefaultName,
		Path:       "/",
		MaxAge:     7 * 24 * time.Hour,
		Persistent: true,
		Secure:     true,
		HTTPOnly:   true,
		SameSite:   http.SameSiteLaxMode,
	}
}

func (o Options) name() string {
	if o.Name == "" {
		return DefaultName
	}
	return o.Name
}

func (o Options) base() *http.Cookie {
	path := o.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     o.name(),
		Path:     path,
		Domain:   o.Domain,
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
}

// Write sets the session cookie on w.
func (o Options) Write(w http.ResponseWriter, value string) {
	c := o.base()
	c.Value = value
	if o.Persistent && o.MaxAge > 0 {
		c.MaxAge = int(o.MaxAge / time.Second)
		c.Expires = time.Now().Add(o.MaxAge).UTC()
	}
	http.SetCookie(w, c)
}

// Clear expires the session cookie on the client.
func (o Options) Clear(w http.ResponseWriter) {
	c := o.base()
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(w, c)
}

// Read returns the raw session cookie value of r, or "" when absent.
func (o Options) Read(r *http.Request) string {
	c, err := r.Cookie(o.name())
	if err != nil {
		return ""
	}
	return c.Value
}
