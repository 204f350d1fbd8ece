package outreach

// CredentialFor resolves the API key to use for a job. Precedence is
// client key, then account key, then the process-wide default. Returns
// ErrNoCredential when all three are empty.
func CredentialFor(clientKey, accountKey *string, defaultKey string) (string, error) {
	if clientKey != nil && *clientKey != "" {
		return *clientKey, nil
	}
	if accountKey != nil && *accountKey != "" {
		return *accountKey, nil
	}
	if defaultKey != "" {
		return defaultKey, nil
	}
	return "", ErrNoCredential
}
