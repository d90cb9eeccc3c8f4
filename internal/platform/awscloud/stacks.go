package awscloud

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

const (
	// PlatformStackMarker appears in the name of every stack the platform
	// templates create.
	PlatformStackMarker = "Lightlytics"

	// APIURLParameter is the template parameter holding the control-plane
	// URL a stack reports to.
	APIURLParameter = "LightlyticsApiUrl"
)

// Tag is a stack tag.
type Tag struct {
	Key   string
	Value string
}

// StackInput describes a stack to create.
type StackInput struct {
	Name        string
	TemplateURL string
	Tags        []Tag
	Parameters  map[string]string
}

// Stack is the subset of stack metadata used for cleanup and updates.
type Stack struct {
	ID       string
	Name     string
	Status   string
	ParentID string
	// Parameters lists the template parameter keys.
	Parameters []string
}

// Nested reports whether the stack is owned by a parent stack.
func (s Stack) Nested() bool {
	return s.ParentID != ""
}

// Stacks manages CloudFormation stacks in account/region pairs.
type Stacks struct {
	clients RegionalClients
}

// NewStacks creates a Stacks manager. A nil factory uses real SDK clients.
func NewStacks(clients RegionalClients) *Stacks {
	if clients == nil {
		clients = SDKClients{}
	}
	return &Stacks{clients: clients}
}

// Create submits a stack and returns its id. The stack rolls back on
// failure and may create named IAM resources and nested stacks.
func (s *Stacks) Create(ctx context.Context, cfg aws.Config, region string, in StackInput) (string, error) {
	input := &cloudformation.CreateStackInput{
		StackName:                   aws.String(in.Name),
		TemplateURL:                 aws.String(in.TemplateURL),
		Capabilities:                stackCapabilities(),
		OnFailure:                   cftypes.OnFailureRollback,
		EnableTerminationProtection: aws.Bool(false),
	}
	for _, t := range in.Tags {
		input.Tags = append(input.Tags, cftypes.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	for _, k := range slices.Sorted(maps.Keys(in.Parameters)) {
		input.Parameters = append(input.Parameters, cftypes.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(in.Parameters[k]),
		})
	}

	out, err := s.clients.CloudFormation(cfg, region).CreateStack(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create stack %s in %s: %w", in.Name, region, err)
	}
	return aws.ToString(out.StackId), nil
}

// Status returns the current status of a stack.
func (s *Stacks) Status(ctx context.Context, cfg aws.Config, region, stackID string) (string, error) {
	out, err := s.clients.CloudFormation(cfg, region).DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe stack %s: %w", stackID, err)
	}
	if len(out.Stacks) == 0 {
		return "", fmt.Errorf("stack %s not found", stackID)
	}
	return string(out.Stacks[0].StackStatus), nil
}

// Update re-applies the previous template of st with its previous
// parameter values. It returns false when the stack is already up to date.
func (s *Stacks) Update(ctx context.Context, cfg aws.Config, region string, st Stack) (bool, error) {
	input := &cloudformation.UpdateStackInput{
		StackName:           aws.String(st.ID),
		UsePreviousTemplate: aws.Bool(true),
		Capabilities:        stackCapabilities(),
	}
	for _, k := range st.Parameters {
		input.Parameters = append(input.Parameters, cftypes.Parameter{
			ParameterKey:     aws.String(k),
			UsePreviousValue: aws.Bool(true),
		})
	}

	if _, err := s.clients.CloudFormation(cfg, region).UpdateStack(ctx, input); err != nil {
		if IsNoUpdates(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to update stack %s in %s: %w", st.Name, region, err)
	}
	return true, nil
}

// ContinueRollback resumes the rollback of a stack stuck in
// UPDATE_ROLLBACK_FAILED.
func (s *Stacks) ContinueRollback(ctx context.Context, cfg aws.Config, region, stackID string) error {
	_, err := s.clients.CloudFormation(cfg, region).ContinueUpdateRollback(ctx, &cloudformation.ContinueUpdateRollbackInput{
		StackName: aws.String(stackID),
	})
	if err != nil {
		return fmt.Errorf("failed to continue rollback of %s in %s: %w", stackID, region, err)
	}
	return nil
}

// Delete starts deletion of a stack.
func (s *Stacks) Delete(ctx context.Context, cfg aws.Config, region, name string) error {
	_, err := s.clients.CloudFormation(cfg, region).DeleteStack(ctx, &cloudformation.DeleteStackInput{
		StackName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete stack %s in %s: %w", name, region, err)
	}
	return nil
}

// PlatformStacks lists live platform stacks in region that report to
// apiURL, together with their parent stacks.
func (s *Stacks) PlatformStacks(ctx context.Context, cfg aws.Config, region, apiURL string) ([]Stack, error) {
	var all []cftypes.Stack
	paginator := cloudformation.NewDescribeStacksPaginator(s.clients.CloudFormation(cfg, region), &cloudformation.DescribeStacksInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list stacks in %s: %w", region, err)
		}
		all = append(all, page.Stacks...)
	}

	byID := make(map[string]cftypes.Stack, len(all))
	for _, st := range all {
		byID[aws.ToString(st.StackId)] = st
	}

	seen := make(map[string]bool)
	var result []Stack
	add := func(st cftypes.Stack) {
		id := aws.ToString(st.StackId)
		if seen[id] {
			return
		}
		seen[id] = true
		keys := make([]string, 0, len(st.Parameters))
		for _, p := range st.Parameters {
			keys = append(keys, aws.ToString(p.ParameterKey))
		}
		result = append(result, Stack{
			ID:         id,
			Name:       aws.ToString(st.StackName),
			Status:     string(st.StackStatus),
			ParentID:   aws.ToString(st.ParentId),
			Parameters: keys,
		})
	}

	for _, st := range all {
		if st.StackStatus == cftypes.StackStatusDeleteComplete {
			continue
		}
		if !strings.Contains(aws.ToString(st.StackName), PlatformStackMarker) {
			continue
		}
		url, ok := parameterValue(st.Parameters, APIURLParameter)
		if !ok || url == "" || !strings.Contains(apiURL, url) {
			continue
		}
		add(st)
		if parent, ok := byID[aws.ToString(st.ParentId)]; ok && parent.StackStatus != cftypes.StackStatusDeleteComplete {
			add(parent)
		}
	}
	return result, nil
}

func stackCapabilities() []cftypes.Capability {
	return []cftypes.Capability{
		cftypes.CapabilityCapabilityIam,
		cftypes.CapabilityCapabilityNamedIam,
		cftypes.CapabilityCapabilityAutoExpand,
	}
}

func parameterValue(params []cftypes.Parameter, key string) (string, bool) {
	for _, p := range params {
		if aws.ToString(p.ParameterKey) == key {
			return aws.ToString(p.ParameterValue), true
		}
	}
	return "", false
}
