package auth

// Request is the view of an inbound call sufficient for authentication.
// The transport adapter implements it; the service never sees the full
// wire request.
type Request interface {
	// Header returns a request header value or "".
	Header(name string) string
	// Query returns a query parameter value or "".
	Query(name string) string
	// Cookie returns a named cookie value or "".
	Cookie(name string) string
}

// Credential source names used by Authenticate.
const (
	HeaderAPIKey  = "X-API-Key"
	QueryAPIKey   = "api_key"
	HeaderAuth    = "Authorization"
	CookieToken   = "gateway_token"
	bearerPrefix  = "Bearer "
	bearerPrefix2 = "bearer "
)

// StaticRequest is a map-backed Request for tests and internal calls.
type StaticRequest struct {
	Headers map[string]string
	Queries map[string]string
	Cookies map[string]string
}

// Header implements Request.
func (r *StaticRequest) Header(name string) string { return r.Headers[name] }

// Query implements Request.
func (r *StaticRequest) Query(name string) string { return r.Queries[name] }

// Cookie implements Request.
func (r *StaticRequest) Cookie(name string) string { return r.Cookies[name] }
