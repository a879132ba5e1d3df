/*
Package secrets resolves credentials referenced from the configuration.

A configuration value of the form ${secret:name} is replaced with the
secret called name, looked up in each Provider in order:

  - EnvProvider reads WARDEN_SECRET_<NAME>, with hyphens mapped to
    underscores ("marzban-password" -> WARDEN_SECRET_MARZBAN_PASSWORD).
  - FileProvider reads <dir>/<name>, the layout of a Kubernetes secret
    volume. Files must be mode 0600 or 0400.

Usage:

	r := secrets.NewResolver(
		secrets.NewEnvProvider(secrets.DefaultEnvPrefix),
		fileProvider,
	)
	password, err := r.Expand(ctx, "${secret:marzban-password}")

Values without a reference are returned unchanged.
*/
package secrets
