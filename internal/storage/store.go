package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/xelth-com/stocktakego/internal/models"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage keys. Cleared together on logout/session-expiry, except the
// connection config which is retained for re-fill on the login screen.
const (
	keyUID           = "odoo_uid"
	keySessionToken  = "odoo_session_id"
	keySessionCookie = "odoo_session_cookie"
	keyUserConfig    = "odoo_user_config"
)

// entry is one row of the key-value store.
type entry struct {
	Key   string         `gorm:"primaryKey"`
	Value datatypes.JSON `gorm:"type:json"`
}

func (entry) TableName() string { return "store_entries" }

// Store persists session artifacts in a local SQLite file surviving
// process restarts. Read/write failures are logged and treated as
// "absent": a corrupt or unavailable store must not crash startup.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the store at the given path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) set(key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("⚠️ Store: failed to encode %s: %v", key, err)
		return
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&entry{Key: key, Value: datatypes.JSON(raw)}).Error
	if err != nil {
		log.Printf("⚠️ Store: failed to write %s: %v", key, err)
	}
}

func (s *Store) get(key string, out interface{}) bool {
	var e entry
	if err := s.db.Where("key = ?", key).First(&e).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("⚠️ Store: failed to read %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(e.Value, out); err != nil {
		log.Printf("⚠️ Store: corrupt value for %s: %v", key, err)
		return false
	}
	return true
}

func (s *Store) delete(keys ...string) {
	if err := s.db.Where("key IN ?", keys).Delete(&entry{}).Error; err != nil {
		log.Printf("⚠️ Store: failed to delete keys: %v", err)
	}
}

// SetUID stores the authenticated user id.
func (s *Store) SetUID(uid int64) {
	// Stringified for parity with the wire format of the session endpoints.
	s.set(keyUID, strconv.FormatInt(uid, 10))
}

// UID returns the stored user id, if any.
func (s *Store) UID() (int64, bool) {
	var raw string
	if !s.get(keyUID, &raw) {
		return 0, false
	}
	uid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("⚠️ Store: corrupt uid %q: %v", raw, err)
		return 0, false
	}
	return uid, true
}

// SetSessionToken stores the server-side session id.
func (s *Store) SetSessionToken(token string) { s.set(keySessionToken, token) }

// SessionToken returns the stored session id, if any.
func (s *Store) SessionToken() (string, bool) {
	var token string
	ok := s.get(keySessionToken, &token)
	return token, ok && token != ""
}

// SetSessionCookie stores the HTTP session cookie. Cookies may rotate on
// any response; last write wins.
func (s *Store) SetSessionCookie(cookie string) { s.set(keySessionCookie, cookie) }

// SessionCookie returns the stored session cookie, if any.
func (s *Store) SessionCookie() (string, bool) {
	var cookie string
	ok := s.get(keySessionCookie, &cookie)
	return cookie, ok && cookie != ""
}

// SetConfig stores the last-used connection config.
func (s *Store) SetConfig(cfg *models.ConnectionConfig) { s.set(keyUserConfig, cfg) }

// Config returns the last-used connection config, if any.
func (s *Store) Config() (*models.ConnectionConfig, bool) {
	var cfg models.ConnectionConfig
	if !s.get(keyUserConfig, &cfg) {
		return nil, false
	}
	return &cfg, true
}

// Session returns the stored session aggregate. All three artifacts must
// be present; a partial session reads as absent.
func (s *Store) Session() (*models.Session, bool) {
	uid, ok := s.UID()
	if !ok {
		return nil, false
	}
	token, ok := s.SessionToken()
	if !ok {
		return nil, false
	}
	cookie, ok := s.SessionCookie()
	if !ok {
		return nil, false
	}
	return &models.Session{UID: uid, Token: token, Cookie: cookie}, true
}

// SetSession stores the full session aggregate.
func (s *Store) SetSession(sess *models.Session) {
	s.SetUID(sess.UID)
	s.SetSessionToken(sess.Token)
	s.SetSessionCookie(sess.Cookie)
}

// ClearSession removes uid, token, and cookie but keeps the last-used
// connection config for convenience re-fill.
func (s *Store) ClearSession() {
	s.delete(keyUID, keySessionToken, keySessionCookie)
}

// ClearAll removes everything, config included.
func (s *Store) ClearAll() {
	s.delete(keyUID, keySessionToken, keySessionCookie, keyUserConfig)
}
