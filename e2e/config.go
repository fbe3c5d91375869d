package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_SERVER_URL targets a running chat service. When empty the suite
	// starts an in-process stand-in.
	ServerURL string `envconfig:"E2E_SERVER_URL"`
	// Accounts that must exist on a live service. Ignored for the stand-in.
	AliceEmail    string `envconfig:"E2E_ALICE_EMAIL" default:"alice@example.com"`
	AlicePassword string `envconfig:"E2E_ALICE_PASSWORD" default:"alice-password"`
	BobEmail      string `envconfig:"E2E_BOB_EMAIL" default:"bob@example.com"`
	BobPassword   string `envconfig:"E2E_BOB_PASSWORD" default:"bob-password"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
