// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package password

import "golang.org/x/crypto/bcrypt"

// IsBcryptHash reports whether encodedHash looks like a bcrypt hash
// rather than this package's Argon2id encoding, so a caller migrating
// users from an older scheme can dispatch to the right verifier.
func IsBcryptHash(encodedHash string) bool {
	return len(encodedHash) > 4 && encodedHash[0] == '$' &&
		(encodedHash[1] == '2') // "$2a$", "$2b$", "$2y$"
}

// VerifyLegacyBcrypt checks a plaintext password against a bcrypt hash
// produced by a prior, pre-Argon2id authentication ceremony.
// user.Service.VerifyPassword dispatches here when IsBcryptHash
// recognizes a stored hash, so carried-over credentials keep working
// until the password is next rotated.
func VerifyLegacyBcrypt(password, encodedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
}
