package store

import (
	"database/sql"
	"strconv"

	"github.com/pavelanni/quizcraft/internal/model"
)

// setPref upserts a key-value pair in the prefs table.
func (s *Store) setPref(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO prefs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// getPref returns the value for a preference key.
// Returns empty string and nil error if the key is missing.
func (s *Store) getPref(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetPrefs stores all preference flags as prefs rows.
func (s *Store) SetPrefs(p model.Prefs) error {
	pairs := []struct {
		k string
		v bool
	}{
		{"sound_enabled", p.SoundEnabled},
		{"force_english", p.ForceEnglish},
	}
	for _, pair := range pairs {
		if err := s.setPref(pair.k, strconv.FormatBool(pair.v)); err != nil {
			return err
		}
	}
	return nil
}

// GetPrefs reads preference flags, falling back to defaults for keys that
// were never written.
func (s *Store) GetPrefs() (model.Prefs, error) {
	p := model.DefaultPrefs()

	sound, err := s.getPref("sound_enabled")
	if err != nil {
		return p, err
	}
	if sound != "" {
		p.SoundEnabled = sound == "true"
	}

	force, err := s.getPref("force_english")
	if err != nil {
		return p, err
	}
	if force != "" {
		p.ForceEnglish = force == "true"
	}

	return p, nil
}
