// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// maxKeyLength bounds derived storage keys. Longer canonical keys are
// replaced by a fixed-width hash so storage keys stay bounded.
const maxKeyLength = 200

var (
	// safeParamName matches parameter names allowed into derived keys.
	safeParamName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	// unsafeKeyChars matches characters stripped from stringified values.
	unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.:@\-]`)
)

// DeriveKey canonicalizes a parameter map into a deterministic storage
// key for the given cache type.
//
// Description:
//
//	Parameter names failing the safe alphanumeric pattern are dropped.
//	Remaining names are sorted, so insertion order never affects the
//	key. Each value is stringified and stripped of characters unsafe
//	for the persisted key. The result is "type::name=value|...". Keys
//	longer than 200 characters are replaced by
//	"type::#<16-hex sha256>".
//
// Inputs:
//
//	cacheType - Logical record family ("incidents", "employees", ...).
//	params - Call parameters identifying the cached result. May be nil.
//
// Outputs:
//
//	string - The derived storage key.
//
// Thread Safety: Pure function, safe for concurrent use.
func DeriveKey(cacheType string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		if safeParamName.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(cacheType)
	b.WriteString("::")
	for i, name := range names {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(unsafeKeyChars.ReplaceAllString(stringify(params[name]), ""))
	}

	key := b.String()
	if len(key) > maxKeyLength {
		sum := sha256.Sum256([]byte(key))
		key = cacheType + "::#" + hex.EncodeToString(sum[:])[:16]
	}
	return key
}

// stringify renders a parameter value for key derivation.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
