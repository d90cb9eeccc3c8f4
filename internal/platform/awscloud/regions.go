package awscloud

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// EC2 answers region and workload questions through the EC2 API.
type EC2 struct {
	clients RegionalClients
}

// NewEC2 creates an EC2 wrapper. A nil factory uses real SDK clients.
func NewEC2(clients RegionalClients) *EC2 {
	if clients == nil {
		clients = SDKClients{}
	}
	return &EC2{clients: clients}
}

// EnabledRegions lists the regions enabled for the configured account,
// sorted.
func (e *EC2) EnabledRegions(ctx context.Context, cfg aws.Config) ([]string, error) {
	out, err := e.clients.EC2(cfg, "").DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to describe regions: %w", err)
	}
	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if name := aws.ToString(r.RegionName); name != "" {
			regions = append(regions, name)
		}
	}
	sort.Strings(regions)
	return regions, nil
}

// HasWorkload reports whether region has at least one running instance.
func (e *EC2) HasWorkload(ctx context.Context, cfg aws.Config, region string) (bool, error) {
	out, err := e.clients.EC2(cfg, region).DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{{
			Name:   aws.String("instance-state-name"),
			Values: []string{string(ec2types.InstanceStateNameRunning)},
		}},
		MaxResults: aws.Int32(5),
	})
	if err != nil {
		return false, fmt.Errorf("failed to describe instances in %s: %w", region, err)
	}
	for _, r := range out.Reservations {
		if len(r.Instances) > 0 {
			return true, nil
		}
	}
	return false, nil
}
