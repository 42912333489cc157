// Package pagerelay runs a headless page relay: it serves a seeded
// in-memory page storage to the agent over the relay websocket, the way the
// web app's content script does in a browser.
package pagerelay

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/flagx"
	"github.com/dmitrijs2005/matakeeper/internal/timex"
)

type Config struct {
	AgentURL       string
	Secret         string
	Origin         string
	SeedFile       string
	TokenTTL       time.Duration
	ReconnectDelay time.Duration
}

func (c *Config) LoadDefaults() {
	c.AgentURL = "http://127.0.0.1:8765"
	c.Secret = "dev-relay-secret"
	c.Origin = "localhost:3000"
	c.TokenTTL = time.Hour
	c.ReconnectDelay = 2 * time.Second
}

type JSONConfig struct {
	AgentURL       string         `json:"agent_url"`
	Secret         string         `json:"relay_secret"`
	Origin         string         `json:"origin"`
	SeedFile       string         `json:"seed_file"`
	TokenTTL       timex.Duration `json:"token_ttl"`
	ReconnectDelay timex.Duration `json:"reconnect_delay"`
}

// LoadConfig layers defaults, the JSON file named by -c/-config and flags.
func LoadConfig(args []string) (*Config, error) {
	c := &Config{}
	c.LoadDefaults()

	jc := JSONConfig{
		AgentURL:       c.AgentURL,
		Secret:         c.Secret,
		Origin:         c.Origin,
		SeedFile:       c.SeedFile,
		TokenTTL:       timex.Duration{Duration: c.TokenTTL},
		ReconnectDelay: timex.Duration{Duration: c.ReconnectDelay},
	}
	if err := flagx.LoadJSON(flagx.ConfigPath(args), &jc); err != nil {
		return nil, err
	}
	c.AgentURL = jc.AgentURL
	c.Secret = jc.Secret
	c.Origin = jc.Origin
	c.SeedFile = jc.SeedFile
	c.TokenTTL = jc.TokenTTL.Duration
	c.ReconnectDelay = jc.ReconnectDelay.Duration

	fs := flag.NewFlagSet("pagerelay", flag.ContinueOnError)
	fs.StringVar(&c.AgentURL, "u", c.AgentURL, "agent relay base url")
	fs.StringVar(&c.Secret, "s", c.Secret, "relay token secret")
	fs.StringVar(&c.Origin, "o", c.Origin, "page origin put in the token")
	fs.StringVar(&c.SeedFile, "f", c.SeedFile, "JSON file with initial page storage")
	fs.DurationVar(&c.TokenTTL, "t", c.TokenTTL, "relay token lifetime")
	fs.DurationVar(&c.ReconnectDelay, "r", c.ReconnectDelay, "delay between reconnect attempts")

	if err := fs.Parse(flagx.FilterArgs(args, []string{"-u", "-s", "-o", "-f", "-t", "-r"})); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return c, nil
}
