package cli

import (
	"fmt"

	"github.com/fpang/medassist/internal/account"
	"github.com/fpang/medassist/internal/chatapi"
	"github.com/fpang/medassist/internal/config"
	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/session"
	"github.com/fpang/medassist/internal/transport"
)

// Clients bundles the API clients for one CLI invocation.
type Clients struct {
	Session *session.Session
	Account *account.Service
	Med     *medapi.Client
	Consult *chatapi.Client
}

// InitClients loads the persisted session and builds a client per backend.
// A flag-supplied language overrides the session's for this invocation.
func InitClients(cfg *config.Config, store session.Store, opts ...transport.Option) (*Clients, error) {
	sess, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session from %s: %w", cfg.SessionFile, err)
	}
	if cfg.Language != "" {
		sess.Language = cfg.Language
	}
	return &Clients{
		Session: sess,
		Account: account.New(transport.NewClient(cfg.AuthURL, opts...), store),
		Med:     medapi.New(transport.NewClient(cfg.APIURL, opts...), sess),
		Consult: chatapi.New(transport.NewClient(cfg.ChatAPIURL, opts...), sess),
	}, nil
}
