// Package deploy defines the CDK stacks for the Lambda-hosted samples.
package deploy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FunctionConfig describes one Lambda built from a cmd binary.
type FunctionConfig struct {
	// Name is the function and route name, e.g. "market-analysis".
	Name string `yaml:"name"`
	// CodeDir holds the compiled bootstrap binary for provided.al2023.
	CodeDir     string            `yaml:"code_dir"`
	MemoryMB    int               `yaml:"memory_mb"`
	TimeoutSecs int               `yaml:"timeout_secs"`
	Environment map[string]string `yaml:"environment"`
}

// StackConfig holds the settings shared by every stack in this package.
type StackConfig struct {
	StackName   string            `yaml:"stack_name"`
	Description string            `yaml:"description"`
	Tags        map[string]string `yaml:"tags"`
	// ModelIDs limits bedrock:InvokeModel to these foundation models. Empty allows all.
	ModelIDs []string `yaml:"model_ids"`
	// RemovalPolicy is "destroy" or "retain" for stateful resources.
	RemovalPolicy string `yaml:"removal_policy"`
	// LogRetentionDays for the Lambda log groups.
	LogRetentionDays int `yaml:"log_retention_days"`
}

// AdvisoryConfig configures the advisory-trading stack.
type AdvisoryConfig struct {
	StackConfig `yaml:",inline"`
	TableName   string `yaml:"table_name"`
	// DomainPrefix is the Cognito hosted domain used for client-credentials tokens.
	DomainPrefix string `yaml:"domain_prefix"`
	ModelID      string `yaml:"model_id"`
	// BuildDir contains one subdirectory per function with its bootstrap binary.
	BuildDir  string           `yaml:"build_dir"`
	Functions []FunctionConfig `yaml:"functions"`
}

// PRReviewConfig configures the PR-review webhook stack.
type PRReviewConfig struct {
	StackConfig `yaml:",inline"`
	// SecretName holds webhook_secret and token as JSON keys.
	SecretName string         `yaml:"secret_name"`
	ModelID    string         `yaml:"model_id"`
	Function   FunctionConfig `yaml:"function"`
}

// AdvisoryFunctions are the three A2A agents in the order they are created.
var AdvisoryFunctions = []string{"portfolio-manager", "market-analysis", "trade-execution"}

// ValidMemoryValues are the memory sizes accepted for functions.
var ValidMemoryValues = []int{128, 256, 512, 1024, 2048, 3008}

func (c *StackConfig) applyDefaults(name string) {
	if c.StackName == "" {
		c.StackName = name
	}
	if c.RemovalPolicy == "" {
		c.RemovalPolicy = "destroy"
	}
	if c.LogRetentionDays == 0 {
		c.LogRetentionDays = 14
	}
	if c.Tags == nil {
		c.Tags = map[string]string{}
	}
	if _, ok := c.Tags["Project"]; !ok {
		c.Tags["Project"] = c.StackName
	}
}

func (c StackConfig) validate() error {
	if c.StackName == "" {
		return errors.New("stack name is required")
	}
	switch c.RemovalPolicy {
	case "destroy", "retain":
	default:
		return fmt.Errorf("removal policy %q is not one of destroy, retain", c.RemovalPolicy)
	}
	return nil
}

func (f *FunctionConfig) applyDefaults(buildDir string) {
	if f.MemoryMB == 0 {
		f.MemoryMB = 512
	}
	if f.TimeoutSecs == 0 {
		f.TimeoutSecs = 60
	}
	if f.CodeDir == "" && buildDir != "" {
		f.CodeDir = strings.TrimSuffix(buildDir, "/") + "/" + f.Name
	}
}

func (f FunctionConfig) validate() error {
	if f.Name == "" {
		return errors.New("function name is required")
	}
	if f.CodeDir == "" {
		return fmt.Errorf("function %s: code dir is required", f.Name)
	}
	valid := false
	for _, m := range ValidMemoryValues {
		if f.MemoryMB == m {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("function %s: memory %d MB is not one of %v", f.Name, f.MemoryMB, ValidMemoryValues)
	}
	if f.TimeoutSecs < 1 || f.TimeoutSecs > 900 {
		return fmt.Errorf("function %s: timeout %ds is outside 1-900", f.Name, f.TimeoutSecs)
	}
	return nil
}

// ApplyDefaults fills in names, sizes and the three agent functions.
func (c *AdvisoryConfig) ApplyDefaults() {
	c.applyDefaults("advisory-trading")
	if c.Description == "" {
		c.Description = "A2A advisory trading agents on Lambda"
	}
	if c.TableName == "" {
		c.TableName = c.StackName + "-trades"
	}
	if c.DomainPrefix == "" {
		c.DomainPrefix = c.StackName
	}
	if c.ModelID == "" {
		c.ModelID = "anthropic.claude-3-5-haiku-20241022-v1:0"
	}
	if c.BuildDir == "" {
		c.BuildDir = "build"
	}
	if len(c.Functions) == 0 {
		for _, name := range AdvisoryFunctions {
			c.Functions = append(c.Functions, FunctionConfig{Name: name})
		}
	}
	for i := range c.Functions {
		c.Functions[i].applyDefaults(c.BuildDir)
	}
}

// Validate reports the first invalid setting.
func (c AdvisoryConfig) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.TableName == "" {
		return errors.New("table name is required")
	}
	seen := map[string]bool{}
	for _, f := range c.Functions {
		if err := f.validate(); err != nil {
			return err
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate function %s", f.Name)
		}
		seen[f.Name] = true
	}
	for _, name := range AdvisoryFunctions {
		if !seen[name] {
			return fmt.Errorf("function %s is required", name)
		}
	}
	return nil
}

// ApplyDefaults fills in names and the pr-review function.
func (c *PRReviewConfig) ApplyDefaults() {
	c.applyDefaults("pr-review")
	if c.Description == "" {
		c.Description = "GitHub pull request review webhook"
	}
	if c.SecretName == "" {
		c.SecretName = c.StackName + "/github"
	}
	if c.ModelID == "" {
		c.ModelID = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	if c.Function.Name == "" {
		c.Function.Name = "pr-review"
	}
	if c.Function.TimeoutSecs == 0 {
		c.Function.TimeoutSecs = 120
	}
	c.Function.applyDefaults("build")
}

// Validate reports the first invalid setting.
func (c PRReviewConfig) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.SecretName == "" {
		return errors.New("secret name is required")
	}
	return c.Function.validate()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
