package capture

import "fmt"

// Limits caps how much media a single authorization may carry.
type Limits struct {
	MaxImages int
	MaxVideos int
}

// Authorization is the server-issued context binding a verified QR code to a
// specific entity, a single-use upload token, and media limits. It is a value
// object: once issued it never changes, and a session holds at most one.
type Authorization struct {
	uploadToken        string
	uploadEndpointPath string
	entityType         string
	entityID           string
	title              string
	limits             Limits
}

// NewAuthorization validates and builds an Authorization from the
// verification response. The token and endpoint path are mandatory; without
// them no upload can be bound to the scan.
func NewAuthorization(uploadToken, uploadEndpointPath, entityType, entityID, title string, limits Limits) (Authorization, error) {
	if uploadToken == "" {
		return Authorization{}, fmt.Errorf("authorization missing upload token")
	}
	if uploadEndpointPath == "" {
		return Authorization{}, fmt.Errorf("authorization missing upload endpoint path")
	}

	return Authorization{
		uploadToken:        uploadToken,
		uploadEndpointPath: uploadEndpointPath,
		entityType:         entityType,
		entityID:           entityID,
		title:              title,
		limits:             limits,
	}, nil
}

// UploadToken returns the single-use upload credential. The backend, not the
// client, is responsible for invalidating it after one successful consumption.
func (a Authorization) UploadToken() string { return a.uploadToken }

// UploadEndpointPath returns the entity-specific path the upload must be
// posted to. It is server-chosen, never hardcoded by the client.
func (a Authorization) UploadEndpointPath() string { return a.uploadEndpointPath }

// EntityType returns the kind of marketplace entity the code is bound to.
func (a Authorization) EntityType() string { return a.entityType }

// EntityID returns the identifier of the bound entity.
func (a Authorization) EntityID() string { return a.entityID }

// Title returns the human-readable name of the bound entity.
func (a Authorization) Title() string { return a.title }

// Limits returns the media quantity limits granted by this authorization.
func (a Authorization) Limits() Limits { return a.limits }

// IsZero reports whether this authorization was never issued.
func (a Authorization) IsZero() bool { return a.uploadToken == "" }

// Addressable reports whether the bound entity has its own detail page the
// host can navigate to after a successful upload.
func (a Authorization) Addressable() bool { return a.entityType != "" && a.entityID != "" }

// DetailPath returns the host path of the bound entity's detail page.
func (a Authorization) DetailPath() string {
	return fmt.Sprintf("/%s/%s", a.entityType, a.entityID)
}
