package sdk

// ServiceAccount identifies the application that authenticates as itself
// against the identity provider (client-credentials grant).
type ServiceAccount struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Validate reports every missing field at once, using the configuration key names.
func (s ServiceAccount) Validate() error {
	var missing []string
	if s.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if s.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if s.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}
