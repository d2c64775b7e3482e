package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/tsarna/go2cty2go"
	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/client"
	"github.com/tsarna/wamplink/pkg/wamp/serialize"
	"go.uber.org/zap"
)

// ClientConfig is a client definition with every expression evaluated. Zero
// values leave the client's defaults in place.
type ClientConfig struct {
	Name           string
	URL            string
	Realm          string
	Serializer     string
	DialTimeout    time.Duration
	GoodbyeTimeout time.Duration
	WriteQueueSize int
	EventQueueSize int
	DropEvents     bool
	Agent          *string
	Roles          []string
	HelloDetails   map[string]any
	Match          string
	StrictURIs     bool
	Headers        map[string]string
	Authorization  string
	Auth           *AuthConfig
	Reconnect      *ReconnectConfig
	DefRange       hcl.Range
}

type AuthConfig struct {
	Method string
	AuthID string
	Ticket string
}

type ReconnectConfig struct {
	Enabled       bool
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	MaxRetries    int // -1 for unlimited
}

type ClientDefinition struct {
	URL            string               `hcl:"url"`
	Realm          string               `hcl:"realm"`
	Serializer     *string              `hcl:"serializer,optional"`
	DialTimeout    hcl.Expression       `hcl:"dial_timeout,optional"`
	GoodbyeTimeout hcl.Expression       `hcl:"goodbye_timeout,optional"`
	WriteQueueSize *int                 `hcl:"write_queue_size,optional"`
	EventQueueSize *int                 `hcl:"event_queue_size,optional"`
	DropEvents     *bool                `hcl:"drop_events_when_full,optional"`
	Agent          *string              `hcl:"agent,optional"`
	Roles          []string             `hcl:"roles,optional"`
	HelloDetails   hcl.Expression       `hcl:"hello_details,optional"`
	Match          *string              `hcl:"match,optional"`
	StrictURIs     *bool                `hcl:"strict_uris,optional"`
	Headers        map[string]string    `hcl:"headers,optional"`
	Authorization  *string              `hcl:"authorization,optional"`
	Auth           *AuthDefinition      `hcl:"auth,block"`
	Reconnect      *ReconnectDefinition `hcl:"reconnect,block"`
	DefRange       hcl.Range            `hcl:",def_range"`
}

type AuthDefinition struct {
	Method string  `hcl:"method"`
	AuthID *string `hcl:"authid,optional"`
	Ticket *string `hcl:"ticket,optional"`
}

type ReconnectDefinition struct {
	Enabled       *bool          `hcl:"enabled,optional"`
	InitialDelay  hcl.Expression `hcl:"initial_delay,optional"`
	MaxDelay      hcl.Expression `hcl:"max_delay,optional"`
	BackoffFactor *float64       `hcl:"backoff_factor,optional"`
	MaxRetries    *int           `hcl:"max_retries,optional"`
}

func (c *Config) ProcessClientBlock(block *hcl.Block) hcl.Diagnostics {
	clientDef := ClientDefinition{}
	diags := gohcl.DecodeBody(block.Body, c.evalCtx, &clientDef)
	if diags.HasErrors() {
		return diags
	}

	clientConfig := &ClientConfig{
		Name:       block.Labels[0],
		URL:        clientDef.URL,
		Realm:      clientDef.Realm,
		Agent:      clientDef.Agent,
		Roles:      clientDef.Roles,
		Headers:    clientDef.Headers,
		DefRange:   clientDef.DefRange,
		Serializer: deref(clientDef.Serializer),
		Match:      deref(clientDef.Match),
	}

	if clientDef.StrictURIs != nil {
		clientConfig.StrictURIs = *clientDef.StrictURIs
	}
	if clientDef.Authorization != nil {
		clientConfig.Authorization = *clientDef.Authorization
	}
	if clientDef.WriteQueueSize != nil {
		clientConfig.WriteQueueSize = *clientDef.WriteQueueSize
	}
	if clientDef.EventQueueSize != nil {
		clientConfig.EventQueueSize = *clientDef.EventQueueSize
	}
	if clientDef.DropEvents != nil {
		clientConfig.DropEvents = *clientDef.DropEvents
	}

	var addDiags hcl.Diagnostics
	if IsExpressionProvided(clientDef.DialTimeout) {
		clientConfig.DialTimeout, addDiags = c.ParseDuration(clientDef.DialTimeout)
		diags = diags.Extend(addDiags)
	}
	if IsExpressionProvided(clientDef.GoodbyeTimeout) {
		clientConfig.GoodbyeTimeout, addDiags = c.ParseDuration(clientDef.GoodbyeTimeout)
		diags = diags.Extend(addDiags)
	}

	if IsExpressionProvided(clientDef.HelloDetails) {
		clientConfig.HelloDetails, addDiags = c.evaluateDict(clientDef.HelloDetails)
		diags = diags.Extend(addDiags)
	}

	if clientDef.Auth != nil {
		clientConfig.Auth = &AuthConfig{
			Method: clientDef.Auth.Method,
			AuthID: deref(clientDef.Auth.AuthID),
			Ticket: deref(clientDef.Auth.Ticket),
		}
	}

	if clientDef.Reconnect != nil {
		clientConfig.Reconnect, addDiags = c.processReconnect(clientDef.Reconnect)
		diags = diags.Extend(addDiags)
	}

	if diags.HasErrors() {
		return diags
	}

	if err := clientConfig.Validate(); err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid client definition",
			Detail:   fmt.Sprintf("client %s: %s", clientConfig.Name, err),
			Subject:  &clientDef.DefRange,
		})
	}

	return diags.Extend(c.addClient(clientConfig, &clientDef.DefRange))
}

func (c *Config) processReconnect(def *ReconnectDefinition) (*ReconnectConfig, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	reconnect := defaultReconnectConfig()

	if def.Enabled != nil {
		reconnect.Enabled = *def.Enabled
	}
	if def.BackoffFactor != nil {
		reconnect.BackoffFactor = *def.BackoffFactor
	}
	if def.MaxRetries != nil {
		reconnect.MaxRetries = *def.MaxRetries
	}

	var addDiags hcl.Diagnostics
	if IsExpressionProvided(def.InitialDelay) {
		reconnect.InitialDelay, addDiags = c.ParseDuration(def.InitialDelay)
		diags = diags.Extend(addDiags)
	}
	if IsExpressionProvided(def.MaxDelay) {
		reconnect.MaxDelay, addDiags = c.ParseDuration(def.MaxDelay)
		diags = diags.Extend(addDiags)
	}

	return reconnect, diags
}

func (c *Config) evaluateDict(expr hcl.Expression) (map[string]any, hcl.Diagnostics) {
	val, diags := expr.Value(c.evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}

	converted, err := go2cty2go.CtyToAny(val)
	if err == nil {
		if dict, ok := converted.(map[string]any); ok {
			return dict, diags
		}
		err = fmt.Errorf("expected an object, got %s", val.Type().FriendlyName())
	}

	return nil, diags.Append(&hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Invalid hello_details",
		Detail:   err.Error(),
		Subject:  expr.Range().Ptr(),
	})
}

func defaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		Enabled:    true,
		MaxRetries: -1,
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Validate checks the parts of the definition the client builder cannot.
func (c *ClientConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.Realm == "" {
		return fmt.Errorf("realm is required")
	}
	if c.Serializer != "" {
		if _, err := serialize.ByName(c.Serializer); err != nil {
			return err
		}
	}
	if !wamp.MatchPolicy(c.Match).Valid() {
		return fmt.Errorf("invalid match policy %q", c.Match)
	}
	for _, role := range c.Roles {
		if !isClientRole(wamp.Role(role)) {
			return fmt.Errorf("unknown role %q", role)
		}
	}
	if c.Auth != nil {
		switch c.Auth.Method {
		case "ticket", "anonymous":
		default:
			return fmt.Errorf("unsupported auth method %q", c.Auth.Method)
		}
	}
	return nil
}

func isClientRole(role wamp.Role) bool {
	for _, r := range wamp.ClientRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Builder returns a client builder configured from c. Further options can be
// applied before calling Build.
func (c *ClientConfig) Builder(logger *zap.Logger) (*client.ClientBuilder, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	b := client.NewClient().
		WithURL(c.URL).
		WithRealm(wamp.URI(c.Realm)).
		WithLogger(logger).
		WithDialTimeout(c.DialTimeout).
		WithGoodbyeTimeout(c.GoodbyeTimeout).
		WithWriteChannelSize(c.WriteQueueSize).
		WithEventQueueSize(c.EventQueueSize).
		WithDropEventsWhenFull(c.DropEvents).
		WithStrictURIs(c.StrictURIs)

	if c.Serializer != "" {
		s, err := serialize.ByName(c.Serializer)
		if err != nil {
			return nil, err
		}
		b.WithSerializer(s)
	}

	if c.Agent != nil {
		b.WithAgent(*c.Agent)
	}

	if len(c.Roles) > 0 {
		roles := make([]wamp.Role, len(c.Roles))
		for i, role := range c.Roles {
			roles[i] = wamp.Role(role)
		}
		b.WithRoles(roles...)
	}

	if len(c.HelloDetails) > 0 {
		b.WithHelloDetails(wamp.Dict(c.HelloDetails))
	}

	if c.Match != "" {
		b.WithMatchPolicy(wamp.MatchPolicy(c.Match))
	}

	for key, value := range c.Headers {
		b.WithHeader(key, value)
	}
	if c.Authorization != "" {
		b.WithAuthorization(c.Authorization)
	}

	if c.Auth != nil {
		switch c.Auth.Method {
		case "ticket":
			b.WithTicket(c.Auth.AuthID, c.Auth.Ticket)
		case "anonymous":
			b.WithAuthMethods("anonymous").WithAuthID(c.Auth.AuthID)
		}
	}

	return b, nil
}

// Builder returns an AutoReconnector builder configured from r.
func (r *ReconnectConfig) Builder(logger *zap.Logger) *client.AutoReconnectorBuilder {
	return client.NewAutoReconnector().
		WithEnabled(r.Enabled).
		WithInitialDelay(r.InitialDelay).
		WithMaxDelay(r.MaxDelay).
		WithBackoffFactor(r.BackoffFactor).
		WithMaxRetries(r.MaxRetries).
		WithLogger(logger)
}
