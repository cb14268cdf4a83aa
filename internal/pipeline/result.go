package pipeline

// TenantResult is the explicit outcome of one tenant task. A failed tenant
// carries its error here and contributes zero to the total; it never aborts
// sibling tasks.
type TenantResult struct {
	Tenant   string
	Inserted int
	Err      error
}

// Result is the aggregate outcome of one run, the only value crossing the
// orchestrator boundary.
type Result struct {
	RunID             string
	TenantsDiscovered int // artifacts listed in the credential store
	Tenants           []TenantResult
	TotalInserted     int
}
