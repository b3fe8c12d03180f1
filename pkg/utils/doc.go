// Package utils provides small helpers shared by the repositories and services:
// random token generation from crypto/rand, SHA-256 token digests, constant time
// string comparison, sql.NullString conversions and JSON request body
// decoding with validator tags.
//
//	token, err := utils.RandomHex(32)
//	stored := utils.HashToken(token)
//	ok := utils.ConstantTimeEqual(stored, utils.HashToken(presented))
package utils
