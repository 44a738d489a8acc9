package stacks

import (
	"fmt"
	"os"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsservicediscovery"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsssm"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/US-GHG-Center/ghgc-monitoring/internal/settings"
)

const (
	collectorImage      = "amazon/aws-otel-collector:latest"
	collectorConfigPath = "otel/otel-config.yaml"

	collectorOTLPGRPCPort = 4317
	collectorOTLPHTTPPort = 4318
	collectorStatsdPort   = 8125
)

// NewOtelStack declares the private OpenTelemetry collector: a Fargate
// service that ingests telemetry inside the VPC and forwards traces to the
// configured exporters.
func NewOtelStack(scope constructs.Construct, id string, s *settings.Settings) (awscdk.Stack, error) {
	template, err := os.ReadFile(collectorConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read collector config template: %w", err)
	}
	rendered, err := RenderOtelConfig(template, s.HoneycombAPIKey, s.TraceExporters)
	if err != nil {
		return nil, err
	}

	stack := awscdk.NewStack(scope, jsii.String(id), &awscdk.StackProps{Env: s.Env()})
	applyPermissionsBoundary(stack, s.PermissionsBoundaryArn)
	vpc := lookupVpc(stack, s.VpcID)

	// The rendered document lives in SSM, not in the task definition; the
	// container pulls it at start via AOT_CONFIG_CONTENT.
	configParam := awsssm.NewStringParameter(stack, jsii.String("OtelConfig"), &awsssm.StringParameterProps{
		StringValue:   jsii.String(rendered.Content),
		ParameterName: jsii.String(s.StackName("OTELConfig")),
		Tier:          awsssm.ParameterTier_ADVANCED,
	})

	namespace := dnsNamespace(stack, vpc, s)

	cluster := awsecs.NewCluster(stack, jsii.String("cluster"), &awsecs.ClusterProps{
		Vpc:         vpc,
		ClusterName: jsii.String(s.StackName("otel")),
	})

	taskDefinition := awsecs.NewFargateTaskDefinition(stack, jsii.String("api-definition"), &awsecs.FargateTaskDefinitionProps{
		MemoryLimitMiB: jsii.Number(2048),
		Cpu:            jsii.Number(1024),
	})

	environment := jsiiStringMap(collectorEnv(*stack.Region(), rendered.Hash))
	taskDefinition.AddContainer(jsii.String("container"), &awsecs.ContainerDefinitionOptions{
		Image:         awsecs.ContainerImage_FromRegistry(jsii.String(collectorImage), nil),
		Environment:   &environment,
		ContainerName: jsii.String("OtelCollector"),
		PortMappings: &[]*awsecs.PortMapping{
			{ContainerPort: jsii.Number(collectorOTLPGRPCPort)},
			{ContainerPort: jsii.Number(collectorOTLPHTTPPort)},
			{ContainerPort: jsii.Number(collectorStatsdPort)},
		},
		Secrets: &map[string]awsecs.Secret{
			"AOT_CONFIG_CONTENT": awsecs.Secret_FromSsmParameter(configParam),
		},
		Logging: awsecs.LogDrivers_AwsLogs(&awsecs.AwsLogDriverProps{
			StreamPrefix: jsii.String(s.OtelStackName()),
		}),
		StopTimeout: awscdk.Duration_Seconds(jsii.Number(2)),
	})

	securityGroup := awsec2.NewSecurityGroup(stack, jsii.String("sg"), &awsec2.SecurityGroupProps{
		Vpc:               vpc,
		SecurityGroupName: jsii.String(s.StackName("sg")),
		AllowAllOutbound:  jsii.Bool(true),
	})
	securityGroup.Connections().AllowFromAnyIpv4(
		awsec2.Port_TcpRange(jsii.Number(collectorOTLPGRPCPort), jsii.Number(collectorOTLPHTTPPort)), nil,
	)
	securityGroup.Connections().AllowFromAnyIpv4(awsec2.Port_Tcp(jsii.Number(collectorStatsdPort)), nil)

	service := awsecs.NewFargateService(stack, jsii.String("OtelCollector"), &awsecs.FargateServiceProps{
		ServiceName:    jsii.String(s.StackName("otel-collector-svc")),
		TaskDefinition: taskDefinition,
		Cluster:        cluster,
		AssignPublicIp: jsii.Bool(false),
		SecurityGroups: &[]awsec2.ISecurityGroup{securityGroup},
		CloudMapOptions: &awsecs.CloudMapOptions{
			Name:              jsii.String("otel"),
			CloudMapNamespace: namespace,
			DnsRecordType:     awsservicediscovery.DnsRecordType_A,
		},
	})
	grantCollectorPermissions(service.TaskDefinition())

	return stack, nil
}

// collectorEnv returns the collector container environment. OTEL_CONFIG_HASH
// exists purely to defeat change-detection staleness in the provisioning
// engine; the remaining variables pin export protocols and the X-Ray trace
// header format.
func collectorEnv(region, configHash string) map[string]string {
	return map[string]string{
		"AWS_REGION":               region,
		"OTEL_CONFIG_HASH":         configHash,
		"OTEL_METRICS_EXPORTER":    "none",
		"OTEL_TRACES_EXPORTER":     "otlp",
		"OTEL_PROPAGATORS":         "xray",
		"OTEL_PYTHON_ID_GENERATOR": "xray",
		"OTEL_LOGS_EXPORTER":       "otlp",
	}
}

// dnsNamespace reuses an externally managed private DNS namespace when its
// reference attributes are configured, otherwise creates one in the VPC.
func dnsNamespace(stack awscdk.Stack, vpc awsec2.IVpc, s *settings.Settings) awsservicediscovery.IPrivateDnsNamespace {
	if s.NamespaceArn != "" && s.NamespaceName != "" {
		return awsservicediscovery.PrivateDnsNamespace_FromPrivateDnsNamespaceAttributes(
			stack, jsii.String("dns"),
			&awsservicediscovery.PrivateDnsNamespaceAttributes{
				NamespaceName: jsii.String(s.NamespaceName),
				NamespaceId:   jsii.String(s.NamespaceID),
				NamespaceArn:  jsii.String(s.NamespaceArn),
			},
		)
	}
	return awsservicediscovery.NewPrivateDnsNamespace(stack, jsii.String("dns"), &awsservicediscovery.PrivateDnsNamespaceProps{
		Name: jsii.String(s.NamespaceName),
		Vpc:  vpc,
	})
}

// grantCollectorPermissions attaches exactly the actions the collector needs:
// emitting trace segments, reading its stored config parameter, and writing
// logs.
func grantCollectorPermissions(taskDefinition awsecs.TaskDefinition) {
	taskDefinition.AddToTaskRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Sid: jsii.String("xrayPermissions"),
		Actions: jsii.Strings(
			"xray:PutTraceSegments",
			"xray:PutTelemetryRecords",
			"xray:GetSamplingRules",
			"xray:GetSamplingTargets",
			"xray:GetSamplingStatisticSummaries",
			"ssm:GetParameters",
		),
		Resources: jsii.Strings("*"),
	}))
	taskDefinition.AddToTaskRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Sid: jsii.String("cloudwatchPermissions"),
		Actions: jsii.Strings(
			"logs:PutLogEvents",
			"logs:CreateLogGroup",
			"logs:CreateLogStream",
			"logs:DescribeLogStreams",
			"logs:DescribeLogGroups",
		),
		Resources: jsii.Strings("*"),
	}))
}
