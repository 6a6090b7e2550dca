package deploy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the deploy file: each section present becomes one stack.
type Config struct {
	Advisory *AdvisoryConfig `yaml:"advisory"`
	PRReview *PRReviewConfig `yaml:"pr_review"`
}

// LoadConfig reads path. A missing file yields both stacks with defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{Advisory: &AdvisoryConfig{}, PRReview: &PRReviewConfig{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &c, nil
}

// Stacks returns the names of the configured stacks after defaults are applied.
func (c *Config) Stacks() []string {
	var out []string
	if c.Advisory != nil {
		c.Advisory.ApplyDefaults()
		out = append(out, c.Advisory.StackName)
	}
	if c.PRReview != nil {
		c.PRReview.ApplyDefaults()
		out = append(out, c.PRReview.StackName)
	}
	return out
}
