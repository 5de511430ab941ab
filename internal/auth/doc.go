// Package auth keeps the vendor account authenticated.
//
// Session is the single owner of the account credential. It renews with
// the refresh token shortly before expiry, falls back to a full SRP login
// when renewal fails, and shares one in-flight renewal between concurrent
// callers. Consumers never see raw tokens except as the Authorization
// header value for REST calls and as a SigV4-signed broker URL.
//
// CognitoProvider talks to the vendor's Cognito user and identity pools.
// SQLiteCredentialCache persists the token set so a restart can renew
// instead of logging in again.
package auth
