// Package auth handles bearer tokens on both sides of the agent API.
//
// Client side, Source supplies the token attached to streaming and
// conversation requests. It reads a static token or a token file, and for
// JWTs inspects the exp claim without verifying the signature: an expired
// token fails fast with ErrExpiredToken instead of a 401 mid-chat, and one
// about to expire logs a warning.
//
// Server side, JWTVerifier and RequireBearer protect the development backend
// with HS256 tokens minted by JWTVerifier.Generate.
package auth
