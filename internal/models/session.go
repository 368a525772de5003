package models

import "strings"

// ConnectionConfig identifies an Odoo server and the credentials used
// against it. Immutable once a session is established; the user re-enters
// it to re-authenticate.
type ConnectionConfig struct {
	URL      string `json:"url"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Normalize strips a trailing slash so endpoints can be appended directly.
func (c *ConnectionConfig) Normalize() {
	c.URL = strings.TrimRight(c.URL, "/")
}

// Valid reports whether the config carries an absolute HTTP(S) base URL
// and a database name.
func (c *ConnectionConfig) Valid() bool {
	if c == nil || c.Database == "" {
		return false
	}
	return strings.HasPrefix(c.URL, "http://") || strings.HasPrefix(c.URL, "https://")
}

// Redacted returns a copy safe to expose outside the process: the
// password is stripped. The full config only ever lives in the store,
// where re-authentication needs it.
func (c ConnectionConfig) Redacted() *ConnectionConfig {
	c.Password = ""
	return &c
}

// Session holds the authentication artifacts of one Odoo session.
// At most one session is active per installation; the cookie and the
// server-side session id are kept together so partial-session states
// cannot arise.
type Session struct {
	UID    int64  `json:"uid"`
	Token  string `json:"token"`
	Cookie string `json:"cookie"`
}

// User is a read-only projection of the authenticated Odoo user.
type User struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Login       string `json:"login"`
	Email       string `json:"email"`
	CompanyID   int64  `json:"company_id"`
	CompanyName string `json:"company_name"`
}
