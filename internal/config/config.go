// Package config loads and validates the bot configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"trade-strategy-bot-go/internal/models"
	"trade-strategy-bot-go/internal/timeutil"
)

// Load reads a JSON configuration file into models.Config and checks
// that every scheduled pair is runnable.
func Load(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	cfg := &models.Config{}
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would only fail at dispatch
// time: unknown broker references, missing schedules, unparseable
// candle intervals.
func Validate(cfg *models.Config) error {
	if len(cfg.Users) == 0 {
		return fmt.Errorf("config has no users")
	}
	for _, user := range cfg.Users {
		if user.ID == "" {
			return fmt.Errorf("user without id")
		}
		for _, pair := range user.Pairs {
			if err := validatePair(user, pair); err != nil {
				return fmt.Errorf("user %s, pair %s: %w", user.ID, pair, err)
			}
		}
	}
	return nil
}

func validatePair(user models.UserConfig, pair models.Pair) error {
	if pair.Strategy == "" {
		return fmt.Errorf("strategy is not set")
	}
	if pair.Schedule == "" {
		return fmt.Errorf("schedule is not set")
	}
	if pair.APIName == "" {
		return fmt.Errorf("api_name is not set")
	}
	if _, ok := user.APIs[pair.APIName]; !ok {
		return fmt.Errorf("api %q is not configured for the user", pair.APIName)
	}
	if pair.CandlesConfig.Interval != "" {
		if _, err := timeutil.ParseInterval(pair.CandlesConfig.Interval); err != nil {
			return err
		}
	}
	return nil
}
