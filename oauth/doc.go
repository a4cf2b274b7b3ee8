// Package oauth speaks the provider side of the OAuth 2.0 authorization code
// flow with PKCE: building the authorization URL, exchanging the code, and
// fetching the user profile.
//
// It holds no state. Flow state (the CSRF state and the PKCE verifier) is
// persisted by the Engine, which also decides how a profile maps onto local
// users and accounts.
package oauth
