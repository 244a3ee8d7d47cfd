package base

type ProviderType string

const (
	// ProviderStdio is a server spawned as a child process and spoken to over
	// its stdin/stdout.
	ProviderStdio ProviderType = "stdio"
	// ProviderRemote is a server reached over HTTP.
	ProviderRemote ProviderType = "remote"
)

// TransportKind names the wire mechanism actually used for a connection.
type TransportKind string

const (
	TransportStdio      TransportKind = "stdio"
	TransportStreamable TransportKind = "streamable_http"
	TransportSSE        TransportKind = "sse"
)

// Provider is implemented by all concrete server configurations.
type Provider interface {
	// Type returns the discriminator.
	Type() ProviderType
}
