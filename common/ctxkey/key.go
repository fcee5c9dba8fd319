package ctxkey

// Keys used to stash per-request values on the gin context.
const (
	RequestId      = "gateway_request_id"
	AuthContext    = "gateway_auth_context"
	KeyRequestBody = "gateway_request_body"
	ClientIP       = "gateway_client_ip"
)
