package utils

// Backends
const (
	BackendGraph  = "graph"
	BackendGDrive = "gdrive"
	BackendS3     = "s3"
)

// OAuth scopes
const (
	ScopeGraphDefault      = "https://graph.microsoft.com/.default"
	ScopeGraphFilesRead    = "https://graph.microsoft.com/Files.Read.All"
	ScopeGraphSitesRead    = "https://graph.microsoft.com/Sites.Read.All"
	ScopeDriveReadonly     = "https://www.googleapis.com/auth/drive.readonly"
	ScopeDriveMetadataRead = "https://www.googleapis.com/auth/drive.metadata.readonly"
	ScopeOpenID            = "openid"
	ScopeProfile           = "profile"
	ScopeOfflineAccess     = "offline_access"
)

var (
	// Delegated Graph login. offline_access yields a refresh token.
	ScopesGraphUser = []string{
		ScopeOpenID,
		ScopeProfile,
		ScopeOfflineAccess,
		ScopeGraphFilesRead,
		ScopeGraphSitesRead,
	}
	// App-only Graph access via client credentials
	ScopesGraphApp = []string{
		ScopeGraphDefault,
	}
	ScopesGDrive = []string{
		ScopeOpenID,
		ScopeDriveReadonly,
		ScopeDriveMetadataRead,
	}
)

// Remote API base URLs
const (
	GraphAPIBase = "https://graph.microsoft.com/v1.0"
	DriveAPIBase = "https://www.googleapis.com/drive/v3"
)

// RootFolderID addresses a drive's top level in every backend
const RootFolderID = "root"

// Model formats
const (
	FormatIFC  = "ifc"
	FormatGLTF = "gltf"
	FormatGLB  = "glb"
)

// DefaultSupportedExtensions are the selectable model file extensions
var DefaultSupportedExtensions = []string{".ifc", ".gltf", ".glb"}

// CompanionExtension is the external buffer that accompanies a .gltf file
const CompanionExtension = ".bin"

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Cache TTL. Zero keeps listings for the whole session.
const DefaultCacheTTLSeconds = 0

// Schema version
const SchemaVersion = "1.0"

// Scene defaults
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultCameraFOV      = 45
	DefaultCameraNear     = 0.1
	DefaultCameraFar      = 1000
	DefaultFitMargin      = 1.5
	AmbientIntensity      = 0.8
	DirectionalIntensity  = 0.5
	// Progress display lingers this long after a batch completes
	ProgressHideDelayMs = 1000
)
