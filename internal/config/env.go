package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	EnvUsername = "RR_USERNAME"
	EnvPassword = "RR_PASSWORD"
	EnvWebhook  = "RR_WEBHOOK"
)

// Env carries the secrets that never live in the config file.
type Env struct {
	Username string
	Password string
	Webhook  string

	present map[string]bool
}

// ReadEnv reads the RR_* variables through lookup (os.LookupEnv if nil).
func ReadEnv(lookup func(string) (string, bool)) Env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	e := Env{present: map[string]bool{}}
	for _, name := range []string{EnvUsername, EnvPassword, EnvWebhook} {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		e.present[name] = ok && v != ""
		switch name {
		case EnvUsername:
			e.Username = v
		case EnvPassword:
			e.Password = v
		case EnvWebhook:
			e.Webhook = v
		}
	}
	return e
}

func (e Env) Has(name string) bool { return e.present[name] }

// MissingEnvError lists every required variable that is unset.
type MissingEnvError struct {
	Missing []string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("environment variables missing: %s", strings.Join(e.Missing, ", "))
}

// Require checks each name independently and reports all missing ones.
func (e Env) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if !e.present[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &MissingEnvError{Missing: missing}
	}
	return nil
}
