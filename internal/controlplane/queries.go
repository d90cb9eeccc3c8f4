package controlplane

const (
	loginQuery = `mutation Login($credentials: Credentials){login(credentials: $credentials){access_token }}`

	workspacesQuery = `{workspaces { _id: customer_id display_name: customer_name role __typename}}`

	accountsQuery = `query Accounts{accounts{_id account_type cloud_account_id cloud_regions display_name ` +
		`external_id status template_url collection_template_url realtime_regions{region_name ` +
		`template_version __typename} lightlytics_collection_token stack_region account_aliases __typename}}`

	createAccountQuery = `mutation CreateAccount($account: AccountInput){createAccount(account: $account){_id __typename}}`

	updateAccountQuery = `mutation updateAccount($id: ID!, $account: AccountUpdateInput) {updateAccount(id: $id, account:` +
		` $account) {_id display_name cloud_regions template_url collection_template_url __typename }}`
)
