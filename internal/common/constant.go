// Package common contains shared constants and sentinel errors used across
// the report sync client and the report store server.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// Remote function names understood by the report store.
const (
	FnPing                      = "ping"
	FnRegister                  = "register"
	FnGetSalt                   = "get-salt"
	FnLogin                     = "login"
	FnRefreshToken              = "refresh-token"
	FnSaveReport                = "save-report"
	FnGetReport                 = "get-report"
	FnLinkCustomer              = "link-customer"
	FnGenerateCertificateNumber = "generate-certificate-number"
)

// PublicFunctions can be invoked without an access token.
var PublicFunctions = map[string]struct{}{
	FnPing:         {},
	FnRegister:     {},
	FnGetSalt:      {},
	FnLogin:        {},
	FnRefreshToken: {},
}
