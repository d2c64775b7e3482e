package config

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

type tomlFile struct {
	Client map[string]tomlClient `toml:"client"`
}

type tomlClient struct {
	URL            string            `toml:"url"`
	Realm          string            `toml:"realm"`
	Serializer     string            `toml:"serializer"`
	DialTimeout    any               `toml:"dial_timeout"`
	GoodbyeTimeout any               `toml:"goodbye_timeout"`
	WriteQueueSize int               `toml:"write_queue_size"`
	EventQueueSize int               `toml:"event_queue_size"`
	DropEvents     bool              `toml:"drop_events_when_full"`
	Agent          string            `toml:"agent"`
	Roles          []string          `toml:"roles"`
	HelloDetails   map[string]any    `toml:"hello_details"`
	Match          string            `toml:"match"`
	StrictURIs     bool              `toml:"strict_uris"`
	Headers        map[string]string `toml:"headers"`
	Authorization  string            `toml:"authorization"`
	Auth           *tomlAuth         `toml:"auth"`
	Reconnect      *tomlReconnect    `toml:"reconnect"`
}

type tomlAuth struct {
	Method string `toml:"method"`
	AuthID string `toml:"authid"`
	Ticket string `toml:"ticket"`
}

type tomlReconnect struct {
	Enabled       *bool    `toml:"enabled"`
	InitialDelay  any      `toml:"initial_delay"`
	MaxDelay      any      `toml:"max_delay"`
	BackoffFactor *float64 `toml:"backoff_factor"`
	MaxRetries    *int     `toml:"max_retries"`
}

// LoadTOMLFile reads the clients defined in a TOML file, in name order.
func LoadTOMLFile(path string) ([]*ClientConfig, error) {
	var raw tomlFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return clientsFromTOML(raw, meta)
}

// LoadTOML reads the clients defined in TOML content.
func LoadTOML(data string) ([]*ClientConfig, error) {
	var raw tomlFile
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("load toml: %w", err)
	}
	return clientsFromTOML(raw, meta)
}

func clientsFromTOML(raw tomlFile, meta toml.MetaData) ([]*ClientConfig, error) {
	names := make([]string, 0, len(raw.Client))
	for name := range raw.Client {
		names = append(names, name)
	}
	sort.Strings(names)

	clients := make([]*ClientConfig, 0, len(names))
	for _, name := range names {
		clientConfig, err := clientFromTOML(name, raw.Client[name], meta)
		if err != nil {
			return nil, fmt.Errorf("client %s: %w", name, err)
		}
		clients = append(clients, clientConfig)
	}
	return clients, nil
}

func clientFromTOML(name string, raw tomlClient, meta toml.MetaData) (*ClientConfig, error) {
	clientConfig := &ClientConfig{
		Name:           name,
		URL:            raw.URL,
		Realm:          raw.Realm,
		Serializer:     raw.Serializer,
		WriteQueueSize: raw.WriteQueueSize,
		EventQueueSize: raw.EventQueueSize,
		DropEvents:     raw.DropEvents,
		Roles:          raw.Roles,
		HelloDetails:   raw.HelloDetails,
		Match:          raw.Match,
		StrictURIs:     raw.StrictURIs,
		Headers:        raw.Headers,
		Authorization:  raw.Authorization,
	}

	if meta.IsDefined("client", name, "agent") {
		agent := raw.Agent
		clientConfig.Agent = &agent
	}

	var err error
	if raw.DialTimeout != nil {
		if clientConfig.DialTimeout, err = durationFromAny(raw.DialTimeout); err != nil {
			return nil, fmt.Errorf("parse dial_timeout: %w", err)
		}
	}
	if raw.GoodbyeTimeout != nil {
		if clientConfig.GoodbyeTimeout, err = durationFromAny(raw.GoodbyeTimeout); err != nil {
			return nil, fmt.Errorf("parse goodbye_timeout: %w", err)
		}
	}

	if raw.Auth != nil {
		clientConfig.Auth = &AuthConfig{
			Method: raw.Auth.Method,
			AuthID: raw.Auth.AuthID,
			Ticket: raw.Auth.Ticket,
		}
	}

	if raw.Reconnect != nil {
		reconnect := defaultReconnectConfig()
		if raw.Reconnect.Enabled != nil {
			reconnect.Enabled = *raw.Reconnect.Enabled
		}
		if raw.Reconnect.BackoffFactor != nil {
			reconnect.BackoffFactor = *raw.Reconnect.BackoffFactor
		}
		if raw.Reconnect.MaxRetries != nil {
			reconnect.MaxRetries = *raw.Reconnect.MaxRetries
		}
		if raw.Reconnect.InitialDelay != nil {
			if reconnect.InitialDelay, err = durationFromAny(raw.Reconnect.InitialDelay); err != nil {
				return nil, fmt.Errorf("parse reconnect.initial_delay: %w", err)
			}
		}
		if raw.Reconnect.MaxDelay != nil {
			if reconnect.MaxDelay, err = durationFromAny(raw.Reconnect.MaxDelay); err != nil {
				return nil, fmt.Errorf("parse reconnect.max_delay: %w", err)
			}
		}
		clientConfig.Reconnect = reconnect
	}

	if err := clientConfig.Validate(); err != nil {
		return nil, err
	}
	return clientConfig, nil
}
