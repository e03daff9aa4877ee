// Package nats implements the broker contract natively over core NATS
// pub/sub: subscribe, queue_subscribe, and request map directly onto the
// nats.go client's own primitives rather than emulating them.
package nats

import (
	"fmt"
	"os"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"

	"github.com/messagetrigger/runtime/config"
)

// connect builds a nats.Conn from the typed connection settings, mapping
// each configured field onto the client's functional options.
func connect(cfg config.NATSConfig) (*natsgo.Conn, error) {
	var opts []natsgo.Option

	if cfg.Auth != nil {
		opt, err := authOption(cfg.Auth)
		if err != nil {
			return nil, err
		}
		if opt != nil {
			opts = append(opts, opt)
		}
	}

	if cfg.TLS != nil && *cfg.TLS {
		opts = append(opts, natsgo.Secure())
	}
	if cfg.PingIntervalMs > 0 {
		opts = append(opts, natsgo.PingInterval(time.Duration(cfg.PingIntervalMs)*time.Millisecond))
	}
	if cfg.ClientName != "" {
		opts = append(opts, natsgo.Name(cfg.ClientName))
	}
	if cfg.RootCertificate != "" {
		opts = append(opts, natsgo.RootCAs(cfg.RootCertificate))
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		opts = append(opts, natsgo.ClientCert(cfg.ClientCertFile, cfg.ClientKeyFile))
	}

	url := natsgo.DefaultURL
	if len(cfg.Addresses) > 0 {
		url = strings.Join(cfg.Addresses, ",")
	}

	conn, err := natsgo.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("trigger/nats: connect to %s: %w", url, err)
	}
	return conn, nil
}

// authOption picks the single active auth mechanism from the tagged-union
// style NATSAuth config: token, user/password, JWT (signed with NKeySeed),
// NKey, or credentials supplied as a file path or inline text.
func authOption(auth *config.NATSAuth) (natsgo.Option, error) {
	switch {
	case auth.Token != "":
		return natsgo.Token(auth.Token), nil
	case auth.User != "":
		return natsgo.UserInfo(auth.User, auth.Password), nil
	case auth.JWT != "":
		return natsgo.UserJWTAndSeed(auth.JWT, auth.NKeySeed), nil
	case auth.NKeySeed != "":
		kp, err := nkeys.FromSeed([]byte(auth.NKeySeed))
		if err != nil {
			return nil, fmt.Errorf("trigger/nats: invalid nkey seed: %w", err)
		}
		pub, err := kp.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("trigger/nats: derive nkey public key: %w", err)
		}
		return natsgo.Nkey(pub, kp.Sign), nil
	case auth.CredentialsFile != "":
		return natsgo.UserCredentials(auth.CredentialsFile), nil
	case auth.CredentialsText != "":
		path, err := writeTempCredentials(auth.CredentialsText)
		if err != nil {
			return nil, err
		}
		return natsgo.UserCredentials(path), nil
	default:
		return nil, nil
	}
}

// writeTempCredentials spills an inline .creds blob to a private temp file,
// since nats.go's credential loader only accepts a path.
func writeTempCredentials(text string) (string, error) {
	f, err := os.CreateTemp("", "trigger-nats-creds-*.creds")
	if err != nil {
		return "", fmt.Errorf("trigger/nats: write inline credentials: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return "", fmt.Errorf("trigger/nats: write inline credentials: %w", err)
	}
	return f.Name(), nil
}
