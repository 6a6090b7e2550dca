// deploy builds and deploys the Lambda-hosted samples with AWS CDK.
//
// When the cdk CLI runs it as the CDK app (CDK_OUTDIR is set) it only synthesizes the
// stacks described by the deploy file. Run directly, it orchestrates a deployment:
//
//  1. Check the caller identity
//  2. Cross-compile each function to build/<name>/bootstrap
//  3. Bootstrap CDK
//  4. Deploy (or diff with --dry-run)
//
// Usage:
//
//	deploy [flags]
//
// Examples:
//
//	deploy                       # deploy every stack in deploy.yaml
//	deploy --stack pr-review     # deploy one stack
//	deploy --dry-run             # cdk diff instead of deploy
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/KamdynS/bedrock-agents/deploy"
)

var (
	configPath    = flag.String("config", "deploy.yaml", "Deploy file")
	region        = flag.String("region", "", "AWS region (default: AWS_REGION or us-east-1)")
	stack         = flag.String("stack", "", "Deploy only this stack")
	dryRun        = flag.Bool("dry-run", false, "Run cdk diff instead of deploy")
	skipBuild     = flag.Bool("skip-build", false, "Skip compiling the function binaries")
	skipBootstrap = flag.Bool("skip-bootstrap", false, "Skip CDK bootstrap")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Deploy the advisory-trading and pr-review stacks.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := deploy.LoadConfig(*configPath)
	if err == nil {
		if os.Getenv("CDK_OUTDIR") != "" {
			err = synth(cfg)
		} else {
			err = run(context.Background(), cfg)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func synth(cfg *deploy.Config) error {
	app := deploy.NewApp()
	if cfg.Advisory != nil {
		if err := validate(cfg.Advisory); err != nil {
			return err
		}
		deploy.NewAdvisoryStack(app, cfg.Advisory.StackName, *cfg.Advisory)
	}
	if cfg.PRReview != nil {
		if err := validate(cfg.PRReview); err != nil {
			return err
		}
		deploy.NewPRReviewStack(app, cfg.PRReview.StackName, *cfg.PRReview)
	}
	deploy.Synth(app)
	return nil
}

type validator interface {
	ApplyDefaults()
	Validate() error
}

func validate(v validator) error {
	v.ApplyDefaults()
	return v.Validate()
}

func run(ctx context.Context, cfg *deploy.Config) error {
	awsRegion := *region
	if awsRegion == "" {
		awsRegion = os.Getenv("AWS_REGION")
	}
	if awsRegion == "" {
		awsRegion = "us-east-1"
	}
	stacks := cfg.Stacks()
	if *stack != "" {
		stacks = []string{*stack}
	}

	fmt.Println("=== Bedrock Agents Deployment ===")
	fmt.Printf("Region: %s\n", awsRegion)
	fmt.Printf("Stacks: %v\n", stacks)
	if *dryRun {
		fmt.Println("Mode: DRY RUN (cdk diff)")
	}
	fmt.Println()

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	identity, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("getting AWS identity: %w", err)
	}
	account := *identity.Account
	fmt.Printf("AWS Account: %s\n\n", account)

	if !*skipBuild {
		fmt.Println("=== Step 1: Build functions ===")
		for _, f := range functions(cfg) {
			if err := buildFunction(ctx, f); err != nil {
				return fmt.Errorf("building %s: %w", f.Name, err)
			}
		}
		fmt.Println()
	}

	if !*skipBootstrap {
		fmt.Println("=== Step 2: Bootstrap CDK ===")
		target := fmt.Sprintf("aws://%s/%s", account, awsRegion)
		if err := cdk(ctx, "bootstrap", target); err != nil {
			fmt.Println("  Bootstrap completed (or already bootstrapped)")
		}
		fmt.Println()
	}

	fmt.Println("=== Step 3: Deploy ===")
	args := []string{"deploy", "--require-approval", "never"}
	if *dryRun {
		args = []string{"diff"}
	}
	if err := cdk(ctx, append(args, stacks...)...); err != nil && !*dryRun {
		return fmt.Errorf("cdk %s: %w", args[0], err)
	}
	return nil
}

func functions(cfg *deploy.Config) []deploy.FunctionConfig {
	var out []deploy.FunctionConfig
	if cfg.Advisory != nil {
		out = append(out, cfg.Advisory.Functions...)
	}
	if cfg.PRReview != nil {
		out = append(out, cfg.PRReview.Function)
	}
	return out
}

// buildFunction cross-compiles ./cmd/<name> for provided.al2023 on arm64.
func buildFunction(ctx context.Context, f deploy.FunctionConfig) error {
	out := filepath.Join(f.CodeDir, "bootstrap")
	fmt.Printf("  %s -> %s\n", f.Name, out)
	if *dryRun {
		return nil
	}
	cmd := exec.CommandContext(ctx, "go", "build", "-tags", "lambda.norpc", "-trimpath", "-o", out, "./cmd/"+f.Name)
	cmd.Env = append(os.Environ(), "GOOS=linux", "GOARCH=arm64", "CGO_ENABLED=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func cdk(ctx context.Context, args ...string) error {
	args = append(args, "--app", "go run ./cmd/deploy --config "+*configPath)
	cmd := exec.CommandContext(ctx, "cdk", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
