package stacks

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscertificatemanager"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudfront"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudfrontorigins"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsecspatterns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsefs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awselasticloadbalancingv2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"

	"github.com/US-GHG-Center/ghgc-monitoring/internal/settings"
	"github.com/US-GHG-Center/ghgc-monitoring/internal/taskenv"
)

const grafanaDataPath = "/gf-data"

// NewGrafanaStack declares the publicly reachable dashboard: a load-balanced
// Fargate service behind CloudFront, with EFS-backed durable storage and
// optional GitHub single sign-on.
func NewGrafanaStack(scope constructs.Construct, id string, s *settings.Settings) awscdk.Stack {
	stack := awscdk.NewStack(scope, jsii.String(id), &awscdk.StackProps{Env: s.Env()})
	applyPermissionsBoundary(stack, s.PermissionsBoundaryArn)
	vpc := lookupVpc(stack, s.VpcID)

	const containerName = "grafana"
	svc := buildGrafanaService(stack, vpc, s.GrafanaStackName(), containerName)
	container := svc.TaskDefinition().FindContainer(jsii.String(containerName))

	// Durable storage holds state (dashboards, users) across deployments.
	addEfsMount(stack, vpc, svc.Service(), container, grafanaDataPath)

	distro := newCloudFrontDistribution(stack, svc.LoadBalancer(), s.GrafanaDomainName, s.GrafanaCertificateArn)

	// The CDN's generated domain is the fallback root URL, so the
	// distribution must exist before the env block is finalized.
	rootURL := "https://" + s.GrafanaDomainName
	if s.GrafanaDomainName == "" {
		rootURL = "https://" + *distro.DistributionDomainName()
	}

	var oauth *GitHubOAuth
	if s.GitHubOAuthSecretName != "" {
		oauth = &GitHubOAuth{
			SecretName:  s.GitHubOAuthSecretName,
			AllowedOrgs: s.GitHubAllowedOrgs,
			AdminGroup:  s.GitHubAdminGroup,
			EditorGroup: s.GitHubEditorGroup,
			DefaultRole: s.DefaultUserRole,
		}
	}
	attachEnv(stack, container, GrafanaEnv(grafanaDataPath, rootURL, oauth))

	awscdk.NewCfnOutput(stack, jsii.String("DashboardURL"), &awscdk.CfnOutputProps{
		Value:       jsii.String(rootURL),
		Description: jsii.String("Externally visible Grafana root URL"),
	})
	return stack
}

// buildGrafanaService creates the cluster, load balancer and Fargate service
// for the dashboard.
func buildGrafanaService(
	stack awscdk.Stack,
	vpc awsec2.IVpc,
	clusterName string,
	containerName string,
) awsecspatterns.ApplicationLoadBalancedFargateService {
	// Production has a public NAT gateway subnet, which causes the default
	// load balancer creation to fail with too many subnets selected per AZ.
	// Create the load balancer explicitly so the subnet selection is ours.
	loadBalancer := awselasticloadbalancingv2.NewApplicationLoadBalancer(
		stack, jsii.String("load-balancer"),
		&awselasticloadbalancingv2.ApplicationLoadBalancerProps{
			Vpc:            vpc,
			InternetFacing: jsii.Bool(true),
			VpcSubnets: &awsec2.SubnetSelection{
				OnePerAz:   jsii.Bool(true),
				SubnetType: awsec2.SubnetType_PUBLIC,
			},
		},
	)

	svc := awsecspatterns.NewApplicationLoadBalancedFargateService(
		stack, jsii.String("Service"),
		&awsecspatterns.ApplicationLoadBalancedFargateServiceProps{
			Cluster: awsecs.NewCluster(stack, jsii.String("cluster"), &awsecs.ClusterProps{
				ClusterName: jsii.String(clusterName),
				Vpc:         vpc,
			}),
			LoadBalancer: loadBalancer,
			TaskSubnets: &awsec2.SubnetSelection{
				OnePerAz:   jsii.Bool(true),
				SubnetType: awsec2.SubnetType_PRIVATE_ISOLATED,
			},
			ServiceName:  jsii.String("grafana"),
			DesiredCount: jsii.Number(1),
			TaskImageOptions: &awsecspatterns.ApplicationLoadBalancedTaskImageOptions{
				Image:         awsecs.ContainerImage_FromAsset(jsii.String("grafana"), nil),
				ContainerName: jsii.String(containerName),
				ContainerPort: jsii.Number(3000),
			},
			RuntimePlatform: &awsecs.RuntimePlatform{
				CpuArchitecture: awsecs.CpuArchitecture_ARM64(),
			},
		},
	)

	// Long timeout so a slow Grafana boot does not fail the health check.
	svc.TargetGroup().ConfigureHealthCheck(&awselasticloadbalancingv2.HealthCheck{
		Path:     jsii.String("/api/health"),
		Timeout:  awscdk.Duration_Seconds(jsii.Number(30)),
		Interval: awscdk.Duration_Seconds(jsii.Number(60)),
	})

	for _, policy := range []awsiam.PolicyStatement{
		xrayQueryPolicy(),
		cloudwatchQueryPolicy(),
	} {
		svc.TaskDefinition().AddToTaskRolePolicy(policy)
	}

	return svc
}

// xrayQueryPolicy grants the read actions used by the Grafana X-Ray
// datasource plugin.
// https://grafana.com/grafana/plugins/grafana-x-ray-datasource
func xrayQueryPolicy() awsiam.PolicyStatement {
	return awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Sid: jsii.String("xrayPermissions"),
		Actions: jsii.Strings(
			"xray:BatchGetTraces",
			"xray:GetTraceSummaries",
			"xray:GetTraceGraph",
			"xray:GetGroups",
			"xray:GetTimeSeriesServiceStatistics",
			"xray:GetInsightSummaries",
			"xray:GetInsight",
			"xray:GetServiceGraph",
			"ec2:DescribeRegions",
		),
		Resources: jsii.Strings("*"),
	})
}

// cloudwatchQueryPolicy grants the read actions used by the CloudWatch
// datasource.
// https://grafana.com/docs/grafana/latest/datasources/aws-cloudwatch/#configure-aws-authentication
func cloudwatchQueryPolicy() awsiam.PolicyStatement {
	return awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Sid: jsii.String("cloudwatchPermissions"),
		Actions: jsii.Strings(
			// Read metrics from CloudWatch
			"cloudwatch:DescribeAlarmsForMetric",
			"cloudwatch:DescribeAlarmHistory",
			"cloudwatch:DescribeAlarms",
			"cloudwatch:ListMetrics",
			"cloudwatch:GetMetricData",
			"cloudwatch:GetInsightRuleReport",
			// Read logs from CloudWatch
			"logs:DescribeLogGroups",
			"logs:GetLogGroupFields",
			"logs:StartQuery",
			"logs:StopQuery",
			"logs:GetQueryResults",
			"logs:GetLogEvents",
			// Read instance tags and regions from EC2
			"ec2:DescribeTags",
			"ec2:DescribeInstances",
			"ec2:DescribeRegions",
			// Read resources for tags
			"tag:GetResources",
			"athena:*",
			"glue:*",
			"s3:*",
		),
		Resources: jsii.Strings("*"),
	})
}

// addEfsMount backs containerPath with an encrypted EFS file system, scoped
// through an access point owned by the Grafana runtime user.
func addEfsMount(
	stack awscdk.Stack,
	vpc awsec2.IVpc,
	service awsecs.FargateService,
	container awsecs.ContainerDefinition,
	containerPath string,
) {
	fileSystem := awsefs.NewFileSystem(stack, jsii.String("FileSystem"), &awsefs.FileSystemProps{
		Vpc:       vpc,
		Encrypted: jsii.Bool(true),
	})

	// uid/gid 472 is the grafana user baked into the upstream image:
	// https://hub.docker.com/layers/grafana/grafana/latest/images/sha256-40aaa21a9f7602816b754eb293139c3173629b83829faf1f510e19f76e486e41?context=explore
	accessPoint := fileSystem.AddAccessPoint(jsii.String("access_point"), &awsefs.AccessPointOptions{
		Path: jsii.String(containerPath),
		CreateAcl: &awsefs.Acl{
			OwnerUid:    jsii.String("472"),
			OwnerGid:    jsii.String("472"),
			Permissions: jsii.String("700"),
		},
	})

	const volumeName = "grafana_storage"
	taskDefinition := container.TaskDefinition()
	taskDefinition.AddVolume(&awsecs.Volume{
		Name: jsii.String(volumeName),
		EfsVolumeConfiguration: &awsecs.EfsVolumeConfiguration{
			FileSystemId:      fileSystem.FileSystemId(),
			TransitEncryption: jsii.String("ENABLED"),
			AuthorizationConfig: &awsecs.AuthorizationConfig{
				AccessPointId: accessPoint.AccessPointId(),
			},
		},
	})

	container.AddMountPoints(&awsecs.MountPoint{
		ContainerPath: jsii.String(containerPath),
		ReadOnly:      jsii.Bool(false),
		SourceVolume:  jsii.String(volumeName),
	})

	// Exactly the three storage actions, scoped to this access point and
	// file system.
	taskDefinition.AddToExecutionRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions: jsii.Strings(
			"elasticfilesystem:ClientMount",
			"elasticfilesystem:ClientWrite",
			"elasticfilesystem:ClientRootAccess",
		),
		Resources: &[]*string{accessPoint.AccessPointArn(), fileSystem.FileSystemArn()},
	}))

	fileSystem.Connections().AllowDefaultPortFrom(service, nil)
}

// newCloudFrontDistribution fronts the load balancer with a single
// non-caching behavior. Grafana responses are not cacheable.
func newCloudFrontDistribution(
	stack awscdk.Stack,
	loadBalancer awselasticloadbalancingv2.IApplicationLoadBalancer,
	domainName string,
	certificateArn string,
) awscloudfront.Distribution {
	var domainNames *[]*string
	if domainName != "" {
		domainNames = jsii.Strings(domainName)
	}
	var certificate awscertificatemanager.ICertificate
	if certificateArn != "" {
		certificate = awscertificatemanager.Certificate_FromCertificateArn(
			stack, jsii.String("Certificate"), jsii.String(certificateArn),
		)
	}
	return awscloudfront.NewDistribution(stack, jsii.String("CloudFrontDistribution"), &awscloudfront.DistributionProps{
		Comment:    stack.StackName(),
		PriceClass: awscloudfront.PriceClass_PRICE_CLASS_100,
		DefaultBehavior: &awscloudfront.BehaviorOptions{
			Origin: awscloudfrontorigins.NewLoadBalancerV2Origin(loadBalancer, &awscloudfrontorigins.LoadBalancerV2OriginProps{
				OriginId:       jsii.String("grafana"),
				ProtocolPolicy: awscloudfront.OriginProtocolPolicy_HTTP_ONLY,
			}),
			OriginRequestPolicy: awscloudfront.OriginRequestPolicy_ALL_VIEWER_AND_CLOUDFRONT_2022(),
			CachePolicy:         awscloudfront.CachePolicy_CACHING_DISABLED(),
			AllowedMethods:      awscloudfront.AllowedMethods_ALLOW_ALL(),
		},
		DomainNames: domainNames,
		Certificate: certificate,
	})
}

// attachEnv wires an env block onto the container, importing each referenced
// secret once. Secret values stay references resolved by ECS at task start.
// Variables are attached in sorted key order: the rendered task definition
// lists them in attachment order, and a map range would reorder them on
// every synth.
func attachEnv(scope constructs.Construct, container awsecs.ContainerDefinition, env taskenv.Env) {
	secrets := make(map[string]awssecretsmanager.ISecret)
	for _, key := range env.SortedKeys() {
		switch v := env[key].(type) {
		case taskenv.Literal:
			container.AddEnvironment(jsii.String(key), jsii.String(string(v)))
		case taskenv.SecretRef:
			secret, ok := secrets[v.SecretName]
			if !ok {
				secret = awssecretsmanager.Secret_FromSecretNameV2(
					scope, jsii.String("secret-"+v.SecretName), jsii.String(v.SecretName),
				)
				secrets[v.SecretName] = secret
			}
			container.AddSecret(jsii.String(key), awsecs.Secret_FromSecretsManager(secret, jsii.String(v.JSONField)))
		}
	}
}
