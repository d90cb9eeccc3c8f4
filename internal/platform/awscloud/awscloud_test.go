package awscloud

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrganizations struct {
	pages [][]orgtypes.Account
	calls int
}

func (f *fakeOrganizations) ListAccounts(_ context.Context, in *organizations.ListAccountsInput, _ ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	f.calls++
	idx := 0
	if in.NextToken != nil {
		idx = len(aws.ToString(in.NextToken))
	}
	out := &organizations.ListAccountsOutput{Accounts: f.pages[idx]}
	if idx+1 < len(f.pages) {
		next := make([]byte, idx+1)
		for i := range next {
			next[i] = 'x'
		}
		out.NextToken = aws.String(string(next))
	}
	return out, nil
}

type fakeSTS struct {
	mu          sync.Mutex
	caller      string
	callerErrs  []error
	callerCalls int
	assumeErr   error
	assumed   []string
	sessions  []string
}

func (f *fakeSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callerCalls++
	if len(f.callerErrs) > 0 {
		err := f.callerErrs[0]
		f.callerErrs = f.callerErrs[1:]
		return nil, err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.caller)}, nil
}

func (f *fakeSTS) AssumeRole(_ context.Context, in *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assumed = append(f.assumed, aws.ToString(in.RoleArn))
	f.sessions = append(f.sessions, aws.ToString(in.RoleSessionName))
	if f.assumeErr != nil {
		return nil, f.assumeErr
	}
	return &sts.AssumeRoleOutput{Credentials: &ststypes.Credentials{
		AccessKeyId:     aws.String("AKIA"),
		SecretAccessKey: aws.String("secret"),
		SessionToken:    aws.String("token"),
		Expiration:      aws.Time(time.Now().Add(time.Hour)),
	}}, nil
}

type fakeEC2 struct {
	regions   []string
	instances map[string]int
	errs      map[string]error
	region    string
	lastInput *ec2.DescribeInstancesInput
}

func (f *fakeEC2) DescribeRegions(_ context.Context, _ *ec2.DescribeRegionsInput, _ ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	out := &ec2.DescribeRegionsOutput{}
	for _, r := range f.regions {
		out.Regions = append(out.Regions, ec2types.Region{RegionName: aws.String(r)})
	}
	return out, nil
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.lastInput = in
	if err := f.errs[f.region]; err != nil {
		return nil, err
	}
	out := &ec2.DescribeInstancesOutput{}
	if n := f.instances[f.region]; n > 0 {
		out.Reservations = []ec2types.Reservation{{Instances: make([]ec2types.Instance, n)}}
	}
	return out, nil
}

type fakeCloudFormation struct {
	created    []*cloudformation.CreateStackInput
	updated    []*cloudformation.UpdateStackInput
	updateErr  error
	rolledBack []string
	deleted    []string
	stacks     []cftypes.Stack
}

func (f *fakeCloudFormation) CreateStack(_ context.Context, in *cloudformation.CreateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	f.created = append(f.created, in)
	return &cloudformation.CreateStackOutput{StackId: aws.String("arn:stack/" + aws.ToString(in.StackName))}, nil
}

func (f *fakeCloudFormation) DescribeStacks(_ context.Context, in *cloudformation.DescribeStacksInput, _ ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	if in.StackName == nil {
		return &cloudformation.DescribeStacksOutput{Stacks: f.stacks}, nil
	}
	for _, st := range f.stacks {
		if aws.ToString(st.StackId) == aws.ToString(in.StackName) {
			return &cloudformation.DescribeStacksOutput{Stacks: []cftypes.Stack{st}}, nil
		}
	}
	return nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id x does not exist"}
}

func (f *fakeCloudFormation) DeleteStack(_ context.Context, in *cloudformation.DeleteStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.DeleteStackOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.StackName))
	return &cloudformation.DeleteStackOutput{}, nil
}

func (f *fakeCloudFormation) UpdateStack(_ context.Context, in *cloudformation.UpdateStackInput, _ ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	f.updated = append(f.updated, in)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &cloudformation.UpdateStackOutput{StackId: in.StackName}, nil
}

func (f *fakeCloudFormation) ContinueUpdateRollback(_ context.Context, in *cloudformation.ContinueUpdateRollbackInput, _ ...func(*cloudformation.Options)) (*cloudformation.ContinueUpdateRollbackOutput, error) {
	f.rolledBack = append(f.rolledBack, aws.ToString(in.StackName))
	return &cloudformation.ContinueUpdateRollbackOutput{}, nil
}

type fakeClients struct {
	ec2 *fakeEC2
	cf  *fakeCloudFormation
}

func (f *fakeClients) EC2(_ aws.Config, region string) EC2API {
	f.ec2.region = region
	return f.ec2
}

func (f *fakeClients) CloudFormation(_ aws.Config, _ string) CloudFormationAPI {
	return f.cf
}

func TestDirectory_ListAccountsPaginates(t *testing.T) {
	org := &fakeOrganizations{pages: [][]orgtypes.Account{
		{{Id: aws.String("111111111111"), Name: aws.String("root"), Status: orgtypes.AccountStatusActive}},
		{{Id: aws.String("222222222222"), Name: aws.String("old"), Status: orgtypes.AccountStatusSuspended}},
	}}
	d := newDirectory(aws.Config{}, org, &fakeSTS{}, "", "")

	accounts, err := d.ListAccounts(context.Background())

	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, 2, org.calls)
	assert.True(t, accounts[0].Active())
	assert.False(t, accounts[1].Active())
	assert.Equal(t, "old", accounts[1].Name)
}

func TestDirectory_CredentialsForManagementAccount(t *testing.T) {
	stsClient := &fakeSTS{caller: "111111111111"}
	base := aws.Config{Region: "eu-west-1"}
	d := newDirectory(base, &fakeOrganizations{}, stsClient, "", "")

	cfg, err := d.Credentials(context.Background(), "111111111111")

	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Empty(t, stsClient.assumed)
}

func TestDirectory_CredentialsAssumesControlRole(t *testing.T) {
	stsClient := &fakeSTS{caller: "111111111111"}
	d := newDirectory(aws.Config{Region: "us-east-1"}, &fakeOrganizations{}, stsClient, "AuditRole", "orgsync-run1")

	cfg, err := d.Credentials(context.Background(), "333333333333")

	require.NoError(t, err)
	require.NotNil(t, cfg.Credentials)
	assert.Equal(t, []string{"arn:aws:iam::333333333333:role/AuditRole"}, stsClient.assumed)
	assert.Equal(t, []string{"orgsync-run1"}, stsClient.sessions)
}

func TestDirectory_CredentialsAssumeFailure(t *testing.T) {
	stsClient := &fakeSTS{caller: "111111111111", assumeErr: errors.New("AccessDenied")}
	d := newDirectory(aws.Config{}, &fakeOrganizations{}, stsClient, "", "")

	_, err := d.Credentials(context.Background(), "333333333333")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "arn:aws:iam::333333333333:role/OrganizationAccountAccessRole")
}

func TestDirectory_ManagementAccountIDRetriesAfterFailure(t *testing.T) {
	stsClient := &fakeSTS{caller: "111111111111", callerErrs: []error{errors.New("Throttling")}}
	d := newDirectory(aws.Config{}, &fakeOrganizations{}, stsClient, "", "")

	_, err := d.Credentials(context.Background(), "111111111111")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get caller identity")

	cfg, err := d.Credentials(context.Background(), "111111111111")
	require.NoError(t, err)
	assert.Nil(t, cfg.Credentials)

	id, err := d.ManagementAccountID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "111111111111", id)
	assert.Equal(t, 2, stsClient.callerCalls, "a successful lookup is cached")
}

func TestRoleARN(t *testing.T) {
	assert.Equal(t, "arn:aws:iam::123456789012:role/Admin", RoleARN("123456789012", "Admin"))
}

func TestEC2_EnabledRegionsSorted(t *testing.T) {
	clients := &fakeClients{ec2: &fakeEC2{regions: []string{"us-west-2", "eu-west-1", "us-east-1"}}}

	regions, err := NewEC2(clients).EnabledRegions(context.Background(), aws.Config{})

	require.NoError(t, err)
	assert.Equal(t, []string{"eu-west-1", "us-east-1", "us-west-2"}, regions)
}

func TestEC2_HasWorkload(t *testing.T) {
	fake := &fakeEC2{instances: map[string]int{"eu-west-1": 2}}
	e := NewEC2(&fakeClients{ec2: fake})

	has, err := e.HasWorkload(context.Background(), aws.Config{}, "eu-west-1")
	require.NoError(t, err)
	assert.True(t, has)
	require.NotNil(t, fake.lastInput)
	assert.Equal(t, "instance-state-name", aws.ToString(fake.lastInput.Filters[0].Name))

	has, err = e.HasWorkload(context.Background(), aws.Config{}, "ap-south-1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStacks_CreateBuildsInput(t *testing.T) {
	cf := &fakeCloudFormation{}
	s := NewStacks(&fakeClients{cf: cf})

	id, err := s.Create(context.Background(), aws.Config{}, "eu-west-1", StackInput{
		Name:        "LightlyticsStack-abc",
		TemplateURL: "https://templates.example.com/init.yaml",
		Tags:        []Tag{{Key: "team", Value: "sec"}, {Key: "env", Value: "prod"}},
		Parameters:  map[string]string{"B": "2", "A": "1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "arn:stack/LightlyticsStack-abc", id)
	require.Len(t, cf.created, 1)
	in := cf.created[0]
	assert.Equal(t, cftypes.OnFailureRollback, in.OnFailure)
	assert.ElementsMatch(t, []cftypes.Capability{
		cftypes.CapabilityCapabilityIam, cftypes.CapabilityCapabilityNamedIam, cftypes.CapabilityCapabilityAutoExpand,
	}, in.Capabilities)
	assert.Equal(t, "team", aws.ToString(in.Tags[0].Key))
	assert.Equal(t, "A", aws.ToString(in.Parameters[0].ParameterKey))
}

func TestStacks_Status(t *testing.T) {
	cf := &fakeCloudFormation{stacks: []cftypes.Stack{{StackId: aws.String("id-1"), StackStatus: cftypes.StackStatusCreateInProgress}}}
	s := NewStacks(&fakeClients{cf: cf})

	status, err := s.Status(context.Background(), aws.Config{}, "us-east-1", "id-1")
	require.NoError(t, err)
	assert.Equal(t, "CREATE_IN_PROGRESS", status)

	_, err = s.Status(context.Background(), aws.Config{}, "us-east-1", "missing")
	assert.True(t, IsStackNotFound(err))
}

func TestStacks_PlatformStacksFiltersByAPIURL(t *testing.T) {
	apiParam := func(url string) []cftypes.Parameter {
		return []cftypes.Parameter{{ParameterKey: aws.String(APIURLParameter), ParameterValue: aws.String(url)}}
	}
	cf := &fakeCloudFormation{stacks: []cftypes.Stack{
		{StackId: aws.String("parent"), StackName: aws.String("LightlyticsStack-1"), StackStatus: cftypes.StackStatusCreateComplete},
		{StackId: aws.String("child"), StackName: aws.String("LightlyticsStack-1-Collection"), StackStatus: cftypes.StackStatusCreateComplete,
			ParentId: aws.String("parent"), Parameters: apiParam("acme.streamsec.io")},
		{StackId: aws.String("other-env"), StackName: aws.String("LightlyticsStack-2"), StackStatus: cftypes.StackStatusCreateComplete,
			Parameters: apiParam("other.streamsec.io")},
		{StackId: aws.String("deleted"), StackName: aws.String("LightlyticsStack-3"), StackStatus: cftypes.StackStatusDeleteComplete,
			Parameters: apiParam("acme.streamsec.io")},
		{StackId: aws.String("unrelated"), StackName: aws.String("vpc"), StackStatus: cftypes.StackStatusCreateComplete,
			Parameters: apiParam("acme.streamsec.io")},
	}}
	s := NewStacks(&fakeClients{cf: cf})

	stacks, err := s.PlatformStacks(context.Background(), aws.Config{}, "us-east-1", "https://acme.streamsec.io/graphql")

	require.NoError(t, err)
	var ids []string
	for _, st := range stacks {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{"child", "parent"}, ids)
	assert.True(t, stacks[0].Nested())
	assert.False(t, stacks[1].Nested())
	assert.Equal(t, []string{APIURLParameter}, stacks[0].Parameters)
}

func TestStacks_UpdateKeepsPreviousTemplateAndValues(t *testing.T) {
	cf := &fakeCloudFormation{}
	s := NewStacks(&fakeClients{cf: cf})

	changed, err := s.Update(context.Background(), aws.Config{}, "us-east-1", Stack{
		ID:         "arn:stack/LightlyticsStack-1",
		Name:       "LightlyticsStack-1",
		Parameters: []string{APIURLParameter, "AccountID"},
	})

	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, cf.updated, 1)
	in := cf.updated[0]
	assert.Equal(t, "arn:stack/LightlyticsStack-1", aws.ToString(in.StackName))
	assert.True(t, aws.ToBool(in.UsePreviousTemplate))
	require.Len(t, in.Parameters, 2)
	for _, p := range in.Parameters {
		assert.True(t, aws.ToBool(p.UsePreviousValue))
		assert.Nil(t, p.ParameterValue)
	}
	assert.Len(t, in.Capabilities, 3)
}

func TestStacks_UpdateWithoutChanges(t *testing.T) {
	cf := &fakeCloudFormation{updateErr: &smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."}}
	s := NewStacks(&fakeClients{cf: cf})

	changed, err := s.Update(context.Background(), aws.Config{}, "us-east-1", Stack{ID: "id-1", Name: "LightlyticsStack-1"})

	require.NoError(t, err)
	assert.False(t, changed)
}

func TestStacks_UpdateFailure(t *testing.T) {
	cf := &fakeCloudFormation{updateErr: &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack is in UPDATE_IN_PROGRESS state"}}
	s := NewStacks(&fakeClients{cf: cf})

	_, err := s.Update(context.Background(), aws.Config{}, "us-east-1", Stack{ID: "id-1", Name: "LightlyticsStack-1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update stack LightlyticsStack-1 in us-east-1")
}

func TestStacks_ContinueRollback(t *testing.T) {
	cf := &fakeCloudFormation{}
	s := NewStacks(&fakeClients{cf: cf})

	require.NoError(t, s.ContinueRollback(context.Background(), aws.Config{}, "eu-west-1", "id-1"))
	assert.Equal(t, []string{"id-1"}, cf.rolledBack)
}

func TestIsNoUpdates(t *testing.T) {
	assert.True(t, IsNoUpdates(&smithy.GenericAPIError{Code: "ValidationError", Message: "No updates are to be performed."}))
	assert.False(t, IsNoUpdates(&smithy.GenericAPIError{Code: "ValidationError", Message: "bad template"}))
	assert.False(t, IsNoUpdates(errors.New("No updates are to be performed.")))
	assert.False(t, IsNoUpdates(nil))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		exists   bool
		invalid  bool
		denied   bool
		notFound bool
	}{
		{"nil", nil, false, false, false, false},
		{"plain", errors.New("boom"), false, false, false, false},
		{"already exists", &cftypes.AlreadyExistsException{}, true, false, false, false},
		{"validation", &smithy.GenericAPIError{Code: "ValidationError", Message: "bad template"}, false, true, false, false},
		{"missing stack", &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack foo does not exist"}, false, true, false, true},
		{"unauthorized", &smithy.GenericAPIError{Code: "UnauthorizedOperation"}, false, false, true, false},
		{"opt in", &smithy.GenericAPIError{Code: "OptInRequired"}, false, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.exists, IsAlreadyExists(tt.err))
			assert.Equal(t, tt.invalid, IsValidation(tt.err))
			assert.Equal(t, tt.denied, IsAccessDenied(tt.err))
			assert.Equal(t, tt.notFound, IsStackNotFound(tt.err))
		})
	}
}
