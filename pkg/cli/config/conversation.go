package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// Conversation holds CLI flags for short-term memory tuning. An optional
// TOML file supplies deployment defaults; explicit flags win over the
// file.
type Conversation struct {
	capacity      int
	ttl           time.Duration
	persistTTL    time.Duration
	sweepInterval time.Duration
	configPath    string
}

// conversationFile is the TOML shape of the optional defaults file
type conversationFile struct {
	Capacity      int    `toml:"capacity"`
	TTL           string `toml:"ttl"`
	PersistTTL    string `toml:"persist_ttl"`
	SweepInterval string `toml:"sweep_interval"`
}

// Flags returns CLI flags for conversation configuration
func (c *Conversation) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "conversation-capacity",
			Usage:       "Per-channel short-term buffer capacity",
			Value:       30,
			Sources:     cli.EnvVars("MNEMOSYNE_CONVERSATION_CAPACITY"),
			Destination: &c.capacity,
		},
		&cli.DurationFlag{
			Name:        "conversation-ttl",
			Usage:       "Short-term message lifetime",
			Value:       45 * time.Minute,
			Sources:     cli.EnvVars("MNEMOSYNE_CONVERSATION_TTL"),
			Destination: &c.ttl,
		},
		&cli.DurationFlag{
			Name:        "conversation-persist-ttl",
			Usage:       "Lifetime of persisted conversation lists",
			Value:       24 * time.Hour,
			Sources:     cli.EnvVars("MNEMOSYNE_CONVERSATION_PERSIST_TTL"),
			Destination: &c.persistTTL,
		},
		&cli.DurationFlag{
			Name:        "sweep-interval",
			Usage:       "Interval of the background expiry sweep",
			Value:       time.Minute,
			Sources:     cli.EnvVars("MNEMOSYNE_SWEEP_INTERVAL"),
			Destination: &c.sweepInterval,
		},
		&cli.StringFlag{
			Name:        "conversation-config",
			Usage:       "TOML file with conversation defaults (flags override the file)",
			Sources:     cli.EnvVars("MNEMOSYNE_CONVERSATION_CONFIG"),
			Destination: &c.configPath,
		},
	}
}

// Capacity returns the buffer capacity
func (c *Conversation) Capacity() int {
	return c.capacity
}

// TTL returns the short-term message lifetime
func (c *Conversation) TTL() time.Duration {
	return c.ttl
}

// PersistTTL returns the conversation list lifetime
func (c *Conversation) PersistTTL() time.Duration {
	return c.persistTTL
}

// SweepInterval returns the expiry sweep interval
func (c *Conversation) SweepInterval() time.Duration {
	return c.sweepInterval
}

// Configure validates the settings, applying file defaults for any value
// the command line did not set explicitly.
func (c *Conversation) Configure(cmd *cli.Command) error {
	if c.configPath != "" {
		if err := c.applyFile(cmd); err != nil {
			return err
		}
	}

	if c.capacity <= 0 {
		return goerr.Wrap(ErrInvalidConversation, "conversation-capacity must be positive", goerr.V("capacity", c.capacity))
	}
	if c.ttl <= 0 {
		return goerr.Wrap(ErrInvalidConversation, "conversation-ttl must be positive", goerr.V("ttl", c.ttl))
	}
	if c.persistTTL <= 0 {
		return goerr.Wrap(ErrInvalidConversation, "conversation-persist-ttl must be positive", goerr.V("persist_ttl", c.persistTTL))
	}
	if c.sweepInterval <= 0 {
		return goerr.Wrap(ErrInvalidConversation, "sweep-interval must be positive", goerr.V("interval", c.sweepInterval))
	}
	return nil
}

func (c *Conversation) applyFile(cmd *cli.Command) error {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(c.configPath)
	if err != nil {
		return goerr.Wrap(err, "failed to read conversation config", goerr.V("path", c.configPath))
	}

	var file conversationFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return goerr.Wrap(err, "failed to parse TOML config", goerr.V("path", c.configPath))
	}

	if file.Capacity > 0 && !cmd.IsSet("conversation-capacity") {
		c.capacity = file.Capacity
	}
	if file.TTL != "" && !cmd.IsSet("conversation-ttl") {
		d, err := time.ParseDuration(file.TTL)
		if err != nil {
			return goerr.Wrap(err, "invalid ttl in config file", goerr.V("path", c.configPath))
		}
		c.ttl = d
	}
	if file.PersistTTL != "" && !cmd.IsSet("conversation-persist-ttl") {
		d, err := time.ParseDuration(file.PersistTTL)
		if err != nil {
			return goerr.Wrap(err, "invalid persist_ttl in config file", goerr.V("path", c.configPath))
		}
		c.persistTTL = d
	}
	if file.SweepInterval != "" && !cmd.IsSet("sweep-interval") {
		d, err := time.ParseDuration(file.SweepInterval)
		if err != nil {
			return goerr.Wrap(err, "invalid sweep_interval in config file", goerr.V("path", c.configPath))
		}
		c.sweepInterval = d
	}
	return nil
}
