// Package stacks declares the two deployable units of the monitoring app:
// the Grafana dashboard service and the OpenTelemetry collector service.
package stacks

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/jsii-runtime-go"
)

// applyPermissionsBoundary applies the organization-wide boundary to every
// role created within the stack.
func applyPermissionsBoundary(stack awscdk.Stack, boundaryArn string) {
	boundary := awsiam.ManagedPolicy_FromManagedPolicyArn(
		stack, jsii.String("Boundary"), jsii.String(boundaryArn),
	)
	awsiam.PermissionsBoundary_Of(stack).Apply(boundary)
}

func lookupVpc(stack awscdk.Stack, vpcID string) awsec2.IVpc {
	return awsec2.Vpc_FromLookup(stack, jsii.String("vpc"), &awsec2.VpcLookupOptions{
		VpcId: jsii.String(vpcID),
	})
}

func jsiiStringMap(m map[string]string) map[string]*string {
	out := make(map[string]*string, len(m))
	for k, v := range m {
		out[k] = jsii.String(v)
	}
	return out
}
