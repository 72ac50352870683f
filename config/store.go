package config

import (
	"time"

	"github.com/spf13/viper"

	liberr "github.com/nabbar/genesis-mesh/errors"
)

// Store wraps a *viper.Viper instance, giving components a narrow,
// typed surface instead of passing viper directly around.
type Store struct {
	v *viper.Viper
}

// NewStore wraps v, or a fresh viper.New() if v is nil.
func NewStore(v *viper.Viper) *Store {
	if v == nil {
		v = viper.New()
	}
	return &Store{v: v}
}

func (s *Store) String(key string) string            { return s.v.GetString(key) }
func (s *Store) Int(key string) int                  { return s.v.GetInt(key) }
func (s *Store) Bool(key string) bool                 { return s.v.GetBool(key) }
func (s *Store) Duration(key string) time.Duration    { return s.v.GetDuration(key) }
func (s *Store) StringSlice(key string) []string      { return s.v.GetStringSlice(key) }
func (s *Store) IsSet(key string) bool                { return s.v.IsSet(key) }

// SetDefault records a default value for key, used when nothing in the
// config file or environment overrides it.
func (s *Store) SetDefault(key string, value interface{}) {
	s.v.SetDefault(key, value)
}

// ReadInConfig (re)reads the bound configuration file from disk.
func (s *Store) ReadInConfig() liberr.Error {
	if err := s.v.ReadInConfig(); err != nil {
		return liberr.Wrap(liberr.KindValidation, "read configuration", err)
	}
	return nil
}

// SetConfigFile binds the store to an explicit configuration file path.
func (s *Store) SetConfigFile(path string) {
	s.v.SetConfigFile(path)
}

// BindEnv exposes viper's environment-variable binding for a key.
func (s *Store) BindEnv(key string) liberr.Error {
	if err := s.v.BindEnv(key); err != nil {
		return liberr.Wrap(liberr.KindValidation, "bind environment variable", err)
	}
	return nil
}

// Raw returns the underlying *viper.Viper, for components that need a
// capability Store does not wrap (e.g. BindPFlag against a cobra command).
func (s *Store) Raw() *viper.Viper { return s.v }
