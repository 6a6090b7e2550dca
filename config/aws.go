package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// LoadAWS builds the SDK config for the configured region and profile.
func (a AWS) LoadAWS(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(a.Region)}
	if a.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(a.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// LoadWithAWS loads the configuration, builds the AWS SDK config and resolves
// Secrets Manager references with it. Binaries call this at startup.
func LoadWithAWS(ctx context.Context) (*Config, aws.Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, aws.Config{}, err
	}
	awsCfg, err := cfg.AWS.LoadAWS(ctx)
	if err != nil {
		return nil, aws.Config{}, err
	}
	if HasSecretRefs(cfg) {
		if err := ResolveSecrets(ctx, cfg, secretsmanager.NewFromConfig(awsCfg)); err != nil {
			return nil, aws.Config{}, fmt.Errorf("resolve secrets: %w", err)
		}
	}
	return cfg, awsCfg, nil
}
