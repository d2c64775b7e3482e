// Package config loads WAMP client definitions from HCL or TOML files.
//
// An HCL file declares one block per client:
//
//	client "main" {
//	  url   = "ws://localhost:8080/ws"
//	  realm = "realm1"
//	  serializer   = "msgpack"
//	  dial_timeout = "5s"
//
//	  auth {
//	    method = "ticket"
//	    authid = "joe"
//	    ticket = env.WAMP_TICKET
//	  }
//
//	  reconnect {
//	    initial_delay = 1
//	    max_delay     = "PT30S"
//	  }
//	}
//
// TOML files describe the same clients as [client.<name>] tables.
package config

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

type ConfigBuilder struct {
	logger  *zap.Logger
	sources []any
}

type Config struct {
	Logger    *zap.Logger
	Constants map[string]cty.Value
	Clients   map[string]*ClientConfig
	evalCtx   *hcl.EvalContext
}

func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		sources: make([]any, 0),
	}
}

func (cb *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	cb.logger = logger
	return cb
}

// WithSources adds configuration sources: file or directory paths, or HCL
// content as []byte.
func (cb *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	cb.sources = append(cb.sources, sources...)
	return cb
}

func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	logger := cb.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	config := &Config{
		Logger:    logger,
		Constants: make(map[string]cty.Value),
		Clients:   make(map[string]*ClientConfig),
	}

	loaded, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	// Add environment variables to the evaluation context
	config.Constants["env"] = GetEnvObject()

	config.evalCtx = &hcl.EvalContext{
		Functions: GetFunctions(),
		Variables: config.Constants,
	}

	blocks, addDiags := GetBlocks(loaded.Bodies)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	for _, block := range blocks {
		diags = diags.Extend(config.ProcessClientBlock(block))
	}

	for _, clientConfig := range loaded.TOMLClients {
		diags = diags.Extend(config.addClient(clientConfig, nil))
	}

	if diags.HasErrors() {
		return nil, diags
	}

	config.Logger.Info("Config built successfully", zap.Int("clients", len(config.Clients)))

	return config, diags
}

// Client returns the client named name.
func (c *Config) Client(name string) (*ClientConfig, error) {
	clientConfig, ok := c.Clients[name]
	if !ok {
		return nil, fmt.Errorf("client %q is not defined", name)
	}
	return clientConfig, nil
}

// ClientNames returns the names of all defined clients, sorted.
func (c *Config) ClientNames() []string {
	names := make([]string, 0, len(c.Clients))
	for name := range c.Clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultClient returns the only client, or the one named "default" when
// several are defined.
func (c *Config) DefaultClient() (*ClientConfig, error) {
	if len(c.Clients) == 1 {
		for _, clientConfig := range c.Clients {
			return clientConfig, nil
		}
	}
	if clientConfig, ok := c.Clients["default"]; ok {
		return clientConfig, nil
	}
	if len(c.Clients) == 0 {
		return nil, fmt.Errorf("no client is defined")
	}
	return nil, fmt.Errorf("several clients are defined and none is named \"default\"")
}

func (c *Config) addClient(clientConfig *ClientConfig, subject *hcl.Range) hcl.Diagnostics {
	if existing, ok := c.Clients[clientConfig.Name]; ok {
		detail := fmt.Sprintf("Client %s already defined", clientConfig.Name)
		if existing.DefRange.Filename != "" {
			detail = fmt.Sprintf("Client %s already defined at %s", clientConfig.Name, existing.DefRange)
		}
		return hcl.Diagnostics{
			&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Client already defined",
				Detail:   detail,
				Subject:  subject,
			},
		}
	}

	c.Clients[clientConfig.Name] = clientConfig
	return nil
}
