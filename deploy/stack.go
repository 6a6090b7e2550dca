package deploy

import (
	"fmt"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsapigateway"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscognito"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/KamdynS/bedrock-agents/config"
)

// StageName is the API Gateway stage every stack deploys to.
const StageName = "prod"

// InvokeScope is the Cognito resource-server scope agents request for sibling calls.
const InvokeScope = "advisory/invoke"

// AdvisoryStack deploys the portfolio-manager, market-analysis and trade-execution agents
// as Lambdas behind one Cognito-protected REST API.
type AdvisoryStack struct {
	awscdk.Stack

	Config AdvisoryConfig

	Table        awsdynamodb.Table
	UserPool     awscognito.UserPool
	WebClient    awscognito.UserPoolClient
	AgentClient  awscognito.UserPoolClient
	Domain       awscognito.UserPoolDomain
	ClientSecret awssecretsmanager.Secret
	API          awsapigateway.RestApi
	Authorizer   awsapigateway.CognitoUserPoolsAuthorizer

	// Functions is keyed by function name.
	Functions map[string]awslambda.Function
}

// NewAdvisoryStack creates the advisory trading stack. It panics on invalid config, as CDK apps do.
func NewAdvisoryStack(scope constructs.Construct, id string, cfg AdvisoryConfig) *AdvisoryStack {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid advisory stack configuration: %v", err))
	}

	s := &AdvisoryStack{
		Stack: awscdk.NewStack(scope, jsii.String(id), &awscdk.StackProps{
			StackName:   jsii.String(cfg.StackName),
			Description: jsii.String(cfg.Description),
			Tags:        convertTags(cfg.Tags),
		}),
		Config:    cfg,
		Functions: make(map[string]awslambda.Function),
	}

	s.createTable()
	s.createUserPool()
	s.createAPI()
	for _, f := range cfg.Functions {
		s.createFunction(f)
	}
	s.addOutputs()
	return s
}

// createTable creates the trade log keyed by account and time-ordered trade key.
func (s *AdvisoryStack) createTable() {
	s.Table = awsdynamodb.NewTable(s.Stack, jsii.String("Trades"), &awsdynamodb.TableProps{
		TableName: jsii.String(s.Config.TableName),
		PartitionKey: &awsdynamodb.Attribute{
			Name: jsii.String("account"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		SortKey: &awsdynamodb.Attribute{
			Name: jsii.String("trade_key"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		BillingMode:   awsdynamodb.BillingMode_PAY_PER_REQUEST,
		RemovalPolicy: removalPolicy(s.Config.StackConfig),
	})
}

// createUserPool creates the pool, a web client for users and a client-credentials client
// the agents use to call each other.
func (s *AdvisoryStack) createUserPool() {
	s.UserPool = awscognito.NewUserPool(s.Stack, jsii.String("Users"), &awscognito.UserPoolProps{
		UserPoolName:      jsii.String(fmt.Sprintf("%s-users", s.Config.StackName)),
		SelfSignUpEnabled: jsii.Bool(false),
		SignInAliases:     &awscognito.SignInAliases{Email: jsii.Bool(true)},
		RemovalPolicy:     removalPolicy(s.Config.StackConfig),
	})

	invoke := awscognito.NewResourceServerScope(&awscognito.ResourceServerScopeProps{
		ScopeName:        jsii.String("invoke"),
		ScopeDescription: jsii.String("Invoke advisory agents"),
	})
	server := s.UserPool.AddResourceServer(jsii.String("ResourceServer"), &awscognito.UserPoolResourceServerOptions{
		Identifier: jsii.String("advisory"),
		Scopes:     &[]awscognito.ResourceServerScope{invoke},
	})

	s.Domain = s.UserPool.AddDomain(jsii.String("Domain"), &awscognito.UserPoolDomainOptions{
		CognitoDomain: &awscognito.CognitoDomainOptions{DomainPrefix: jsii.String(s.Config.DomainPrefix)},
	})

	s.WebClient = s.UserPool.AddClient(jsii.String("WebClient"), &awscognito.UserPoolClientOptions{
		AuthFlows: &awscognito.AuthFlow{UserPassword: jsii.Bool(true), UserSrp: jsii.Bool(true)},
	})

	s.AgentClient = s.UserPool.AddClient(jsii.String("AgentClient"), &awscognito.UserPoolClientOptions{
		GenerateSecret: jsii.Bool(true),
		OAuth: &awscognito.OAuthSettings{
			Flows:  &awscognito.OAuthFlows{ClientCredentials: jsii.Bool(true)},
			Scopes: &[]awscognito.OAuthScope{awscognito.OAuthScope_ResourceServer(server, invoke)},
		},
	})

	s.ClientSecret = awssecretsmanager.NewSecret(s.Stack, jsii.String("AgentClientSecret"), &awssecretsmanager.SecretProps{
		SecretName:        jsii.String(fmt.Sprintf("%s/agent-client", s.Config.StackName)),
		Description:       jsii.String("Client secret for agent-to-agent calls"),
		SecretStringValue: s.AgentClient.UserPoolClientSecret(),
	})
}

func (s *AdvisoryStack) createAPI() {
	s.API = awsapigateway.NewRestApi(s.Stack, jsii.String("Api"), &awsapigateway.RestApiProps{
		RestApiName: jsii.String(fmt.Sprintf("%s-api", s.Config.StackName)),
		Description: jsii.String(s.Config.Description),
		DeployOptions: &awsapigateway.StageOptions{
			StageName:      jsii.String(StageName),
			TracingEnabled: jsii.Bool(true),
		},
	})
	s.Authorizer = awsapigateway.NewCognitoUserPoolsAuthorizer(s.Stack, jsii.String("Authorizer"), &awsapigateway.CognitoUserPoolsAuthorizerProps{
		CognitoUserPools: &[]awscognito.IUserPool{s.UserPool},
	})
}

// agentURL builds the stage URL of a function route from the API id. Using the stage URL
// attribute would make every function depend on the deployment that depends on them.
func (s *AdvisoryStack) agentURL(name string) *string {
	return awscdk.Fn_Join(jsii.String(""), &[]*string{
		jsii.String("https://"), s.API.RestApiId(),
		jsii.String(".execute-api."), s.Stack.Region(),
		jsii.String("."), s.Stack.UrlSuffix(),
		jsii.String(fmt.Sprintf("/%s/%s", StageName, name)),
	})
}

func (s *AdvisoryStack) createFunction(f FunctionConfig) {
	env := map[string]*string{
		"SERVICE_NAME":         jsii.String(f.Name),
		"ROUTE_PREFIX":         jsii.String("/" + f.Name),
		"BEDROCK_MODEL_ID":     jsii.String(s.Config.ModelID),
		"TRADES_TABLE":         s.Table.TableName(),
		"AUTH_MODE":            jsii.String("cognito"),
		"COGNITO_REGION":       s.Stack.Region(),
		"COGNITO_USER_POOL_ID": s.UserPool.UserPoolId(),
		"A2A_PUBLIC_URL":       s.agentURL(f.Name),
		"A2A_TOKEN_URL": awscdk.Fn_Join(jsii.String(""), &[]*string{
			s.Domain.BaseUrl(nil), jsii.String("/oauth2/token"),
		}),
		"A2A_CLIENT_ID": s.AgentClient.UserPoolClientId(),
		"A2A_CLIENT_SECRET": awscdk.Fn_Join(jsii.String(""), &[]*string{
			jsii.String(config.SecretPrefix), s.ClientSecret.SecretArn(),
		}),
		"A2A_SCOPES": jsii.String(InvokeScope),
	}
	if f.Name == "portfolio-manager" {
		env["MARKET_ANALYSIS_AGENT_URL"] = s.agentURL("market-analysis")
		env["TRADE_EXECUTION_AGENT_URL"] = s.agentURL("trade-execution")
	}
	for _, k := range sortedKeys(f.Environment) {
		env[k] = jsii.String(f.Environment[k])
	}

	fn := newGoFunction(s.Stack, s.Config.StackConfig, f, env)
	grantBedrock(fn, s.Config.ModelIDs)
	s.ClientSecret.GrantRead(fn, nil)
	switch f.Name {
	case "trade-execution":
		s.Table.GrantReadWriteData(fn)
	case "portfolio-manager":
		s.Table.GrantReadData(fn)
	}

	integration := awsapigateway.NewLambdaIntegration(fn, nil)
	route := s.API.Root().AddResource(jsii.String(f.Name), nil)
	route.AddMethod(jsii.String("POST"), integration, &awsapigateway.MethodOptions{
		Authorizer:          s.Authorizer,
		AuthorizationType:   awsapigateway.AuthorizationType_COGNITO,
		AuthorizationScopes: jsii.Strings(InvokeScope, "aws.cognito.signin.user.admin"),
	})
	// Agent cards are public.
	route.AddResource(jsii.String(".well-known"), nil).
		AddResource(jsii.String("agent.json"), nil).
		AddMethod(jsii.String("GET"), integration, nil)

	s.Functions[f.Name] = fn
}

func (s *AdvisoryStack) addOutputs() {
	awscdk.NewCfnOutput(s.Stack, jsii.String("ApiUrl"), &awscdk.CfnOutputProps{
		Value:       s.API.Url(),
		Description: jsii.String("REST API base URL"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("TradesTable"), &awscdk.CfnOutputProps{
		Value:       s.Table.TableName(),
		Description: jsii.String("DynamoDB trade log table"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("UserPoolId"), &awscdk.CfnOutputProps{
		Value:       s.UserPool.UserPoolId(),
		Description: jsii.String("Cognito user pool ID"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("WebClientId"), &awscdk.CfnOutputProps{
		Value:       s.WebClient.UserPoolClientId(),
		Description: jsii.String("Cognito app client for users"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("TokenUrl"), &awscdk.CfnOutputProps{
		Value:       awscdk.Fn_Join(jsii.String(""), &[]*string{s.Domain.BaseUrl(nil), jsii.String("/oauth2/token")}),
		Description: jsii.String("OAuth2 token endpoint"),
	})
	for _, f := range s.Config.Functions {
		awscdk.NewCfnOutput(s.Stack, jsii.String(fmt.Sprintf("Agent-%s-Url", f.Name)), &awscdk.CfnOutputProps{
			Value:       s.agentURL(f.Name),
			Description: jsii.String(fmt.Sprintf("A2A endpoint for %s", f.Name)),
		})
	}
}

// PRReviewStack deploys the GitHub webhook Lambda behind a public REST endpoint.
// Requests are authenticated by the webhook signature inside the function.
type PRReviewStack struct {
	awscdk.Stack

	Config   PRReviewConfig
	Secret   awssecretsmanager.ISecret
	Function awslambda.Function
	API      awsapigateway.RestApi
}

// NewPRReviewStack creates the PR-review stack. The secret named in cfg must already exist.
func NewPRReviewStack(scope constructs.Construct, id string, cfg PRReviewConfig) *PRReviewStack {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid pr-review stack configuration: %v", err))
	}

	s := &PRReviewStack{
		Stack: awscdk.NewStack(scope, jsii.String(id), &awscdk.StackProps{
			StackName:   jsii.String(cfg.StackName),
			Description: jsii.String(cfg.Description),
			Tags:        convertTags(cfg.Tags),
		}),
		Config: cfg,
	}
	s.Secret = awssecretsmanager.Secret_FromSecretNameV2(s.Stack, jsii.String("GitHubSecret"), jsii.String(cfg.SecretName))

	ref := config.SecretPrefix + cfg.SecretName
	env := map[string]*string{
		"SERVICE_NAME":          jsii.String(cfg.Function.Name),
		"ROUTE_PREFIX":          jsii.String("/webhook"),
		"BEDROCK_MODEL_ID":      jsii.String(cfg.ModelID),
		"GITHUB_WEBHOOK_SECRET": jsii.String(ref + "#webhook_secret"),
		"GITHUB_TOKEN":          jsii.String(ref + "#token"),
	}
	for _, k := range sortedKeys(cfg.Function.Environment) {
		env[k] = jsii.String(cfg.Function.Environment[k])
	}
	s.Function = newGoFunction(s.Stack, cfg.StackConfig, cfg.Function, env)
	grantBedrock(s.Function, cfg.ModelIDs)
	s.Secret.GrantRead(s.Function, nil)

	s.API = awsapigateway.NewRestApi(s.Stack, jsii.String("Api"), &awsapigateway.RestApiProps{
		RestApiName:   jsii.String(fmt.Sprintf("%s-api", cfg.StackName)),
		Description:   jsii.String(cfg.Description),
		DeployOptions: &awsapigateway.StageOptions{StageName: jsii.String(StageName)},
	})
	s.API.Root().AddResource(jsii.String("webhook"), nil).
		AddMethod(jsii.String("POST"), awsapigateway.NewLambdaIntegration(s.Function, nil), nil)

	awscdk.NewCfnOutput(s.Stack, jsii.String("WebhookUrl"), &awscdk.CfnOutputProps{
		Value:       awscdk.Fn_Join(jsii.String(""), &[]*string{s.API.Url(), jsii.String("webhook")}),
		Description: jsii.String("Payload URL for the GitHub webhook"),
	})
	awscdk.NewCfnOutput(s.Stack, jsii.String("FunctionName"), &awscdk.CfnOutputProps{
		Value: s.Function.FunctionName(),
	})
	return s
}

// newGoFunction creates an arm64 provided.al2023 function from a prebuilt bootstrap binary.
func newGoFunction(stack awscdk.Stack, sc StackConfig, f FunctionConfig, env map[string]*string) awslambda.Function {
	logGroup := awslogs.NewLogGroup(stack, jsii.String(fmt.Sprintf("Logs-%s", f.Name)), &awslogs.LogGroupProps{
		LogGroupName:  jsii.String(fmt.Sprintf("/aws/lambda/%s-%s", sc.StackName, f.Name)),
		Retention:     retention(sc.LogRetentionDays),
		RemovalPolicy: awscdk.RemovalPolicy_DESTROY,
	})
	return awslambda.NewFunction(stack, jsii.String(fmt.Sprintf("Fn-%s", f.Name)), &awslambda.FunctionProps{
		FunctionName: jsii.String(fmt.Sprintf("%s-%s", sc.StackName, f.Name)),
		Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
		Architecture: awslambda.Architecture_ARM_64(),
		Handler:      jsii.String("bootstrap"),
		Code:         awslambda.Code_FromAsset(jsii.String(f.CodeDir), nil),
		MemorySize:   jsii.Number(float64(f.MemoryMB)),
		Timeout:      awscdk.Duration_Seconds(jsii.Number(float64(f.TimeoutSecs))),
		Environment:  &env,
		Tracing:      awslambda.Tracing_ACTIVE,
		LogGroup:     logGroup,
	})
}

func grantBedrock(fn awslambda.Function, modelIDs []string) {
	resources := []*string{jsii.String("arn:aws:bedrock:*::foundation-model/*")}
	if len(modelIDs) > 0 {
		resources = make([]*string, len(modelIDs))
		for i, id := range modelIDs {
			resources[i] = jsii.String(fmt.Sprintf("arn:aws:bedrock:*::foundation-model/%s", id))
		}
	}
	fn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Effect:    awsiam.Effect_ALLOW,
		Actions:   jsii.Strings("bedrock:InvokeModel", "bedrock:InvokeModelWithResponseStream"),
		Resources: &resources,
	}))
}

func removalPolicy(sc StackConfig) awscdk.RemovalPolicy {
	if sc.RemovalPolicy == "retain" {
		return awscdk.RemovalPolicy_RETAIN
	}
	return awscdk.RemovalPolicy_DESTROY
}

func retention(days int) awslogs.RetentionDays {
	switch {
	case days <= 1:
		return awslogs.RetentionDays_ONE_DAY
	case days <= 7:
		return awslogs.RetentionDays_ONE_WEEK
	case days <= 14:
		return awslogs.RetentionDays_TWO_WEEKS
	case days <= 30:
		return awslogs.RetentionDays_ONE_MONTH
	case days <= 90:
		return awslogs.RetentionDays_THREE_MONTHS
	case days <= 365:
		return awslogs.RetentionDays_ONE_YEAR
	default:
		return awslogs.RetentionDays_INFINITE
	}
}

func convertTags(tags map[string]string) *map[string]*string {
	out := make(map[string]*string, len(tags))
	for k, v := range tags {
		out[k] = jsii.String(v)
	}
	return &out
}

// NewApp creates the CDK app.
func NewApp() awscdk.App {
	return awscdk.NewApp(nil)
}

// Synth synthesizes the app to cdk.out.
func Synth(app awscdk.App) {
	app.Synth(nil)
}
