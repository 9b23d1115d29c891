package auth

// Known OAuth scopes used by the integration service.
const (
	ScopeIntegrationsRead  = "integrations:read"
	ScopeIntegrationsWrite = "integrations:write"
	ScopeActivitiesRead    = "activities:read"
	ScopePlansWrite        = "plans:write"
)
