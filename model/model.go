/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SystemAgent is recorded as the actor on every row the agents write.
const SystemAgent = "SYSTEM_AGENT"

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix,
// e.g. "job_1b4e28ba-2fa1-11d2-883f-0016d3cca427".
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// SealJSON serializes v and returns the payload together with its hex-encoded SHA-256 digest.
// The digest is computed over exactly the bytes returned, so the payload can be stored and verified later.
func SealJSON(v interface{}) ([]byte, string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(payload)
	return payload, hex.EncodeToString(sum[:]), nil
}
