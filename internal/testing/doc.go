// Package testing provides shared mocks and fixtures for orgsync tests.
//
//   - Mock*: testify mocks for the collaborator interfaces of the
//     orchestration and handler layers
//   - Fixtures: organization accounts and control-plane records
//
// Usage:
//
//	dir := &testing.MockAccountDirectory{}
//	dir.On("ListAccounts", mock.Anything).Return(testing.OrgAccounts("111111111111"), nil)
package testing
