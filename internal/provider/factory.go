package provider

import (
	"context"
	"log/slog"

	"github.com/reelworks/vod-pipeline/pkg/models"
)

// OrganizationSettings is the stored provider configuration for one
// organization, resolved by the caller and passed in explicitly so the
// factory is the single point deciding which credentials select which
// provider.
type OrganizationSettings struct {
	ManagedConfigured bool
	DefaultProvider   models.ProviderName
}

// Factory selects the provider adapter for an organization.
type Factory struct {
	internal *Internal
	managed  *Managed
	log      *slog.Logger
}

// NewFactory creates a Factory over the two adapters.
func NewFactory(internal *Internal, managed *Managed, log *slog.Logger) *Factory {
	return &Factory{
		internal: internal,
		managed:  managed,
		log:      log,
	}
}

// ProviderFor resolves the adapter for an organization. INTERNAL is the
// default; MANAGED is selected only when credentials are configured and it is
// either explicitly requested or the organization's recorded default. A
// MANAGED request without credentials downgrades to INTERNAL with a log line
// rather than failing the upload.
func (f *Factory) ProviderFor(ctx context.Context, organizationID string, settings OrganizationSettings, override models.ProviderName) Provider {
	wantManaged := override == models.ProviderManaged ||
		(override == "" && settings.DefaultProvider == models.ProviderManaged)

	if !wantManaged {
		return f.internal
	}

	if !settings.ManagedConfigured {
		f.log.WarnContext(ctx, "Managed provider requested but not configured, falling back to internal",
			"organizationId", organizationID,
			"override", string(override),
		)
		return f.internal
	}

	return f.managed
}

// ByName returns the adapter that owns an existing video, for operations that
// must follow the video's immutable provider rather than the org default.
func (f *Factory) ByName(name models.ProviderName) Provider {
	if name == models.ProviderManaged {
		return f.managed
	}
	return f.internal
}
