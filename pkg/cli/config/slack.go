package config

import (
	"github.com/urfave/cli/v3"

	slacksvc "github.com/mnemo-lab/mnemosyne/pkg/service/slack"
)

// Slack holds CLI flags for the Slack history integration
type Slack struct {
	botToken string
}

// Flags returns CLI flags for Slack configuration
func (s *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot OAuth token for channel history backfill",
			Sources:     cli.EnvVars("MNEMOSYNE_SLACK_BOT_TOKEN"),
			Destination: &s.botToken,
		},
	}
}

// IsConfigured reports whether a bot token was provided
func (s *Slack) IsConfigured() bool {
	return s.botToken != ""
}

// Configure creates the Slack history service. Returns nil when no token
// is configured (cold-start backfill will be disabled).
func (s *Slack) Configure() (*slacksvc.Service, error) {
	if s.botToken == "" {
		return nil, nil
	}
	return slacksvc.New(s.botToken)
}
