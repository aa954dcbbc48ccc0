// Package auth provides channel authorizers for private and presence
// channels: HTTPAuthorizer delegates to an application endpoint and Signer
// signs locally with the application secret.
package auth
