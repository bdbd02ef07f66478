/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package cache

import (
	"github.com/json-iterator/go"
)

// Identifiers of the root records.
const (
	RootQuery        = "ROOT_QUERY"
	RootMutation     = "ROOT_MUTATION"
	RootSubscription = "ROOT_SUBSCRIPTION"
)

// TypenameField is the name of the meta field that holds the type name of an object.
const TypenameField = "__typename"

// Record is the stored form of an object. Keys are store field names (see StoreFieldName); values
// are JSON values where nested objects are map[string]interface{}.
type Record map[string]interface{}

// Snapshot is a serializable point-in-time dump of the cache contents, keyed by record
// identifier (e.g., ROOT_QUERY).
type Snapshot map[string]Record

// json is the configuration used to encode snapshots. Map keys are sorted so equal snapshots
// produce equal bytes.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeSnapshot decodes a snapshot from JSON. A JSON null decodes into a nil Snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Encode serializes the snapshot to JSON.
func (snapshot Snapshot) Encode() ([]byte, error) {
	return json.Marshal(snapshot)
}

// Clone makes a deep copy of the snapshot.
func (snapshot Snapshot) Clone() Snapshot {
	if snapshot == nil {
		return nil
	}
	clone := make(Snapshot, len(snapshot))
	for id, record := range snapshot {
		clone[id] = Record(cloneObject(record))
	}
	return clone
}

// Len returns the number of records.
func (snapshot Snapshot) Len() int {
	return len(snapshot)
}

// SnapshotFromValue converts a value decoded from JSON (such as an entry of page props) into a
// Snapshot. It returns false if the value does not have the shape of a snapshot.
func SnapshotFromValue(value interface{}) (Snapshot, bool) {
	switch value := value.(type) {
	case Snapshot:
		return value, true

	case map[string]Record:
		return Snapshot(value), true

	case map[string]interface{}:
		snapshot := make(Snapshot, len(value))
		for id, record := range value {
			switch record := record.(type) {
			case map[string]interface{}:
				snapshot[id] = Record(record)
			case Record:
				snapshot[id] = record
			default:
				return nil, false
			}
		}
		return snapshot, true
	}
	return nil, false
}

func cloneObject(object map[string]interface{}) map[string]interface{} {
	if object == nil {
		return nil
	}
	clone := make(map[string]interface{}, len(object))
	for key, value := range object {
		clone[key] = cloneValue(value)
	}
	return clone
}

func cloneValue(value interface{}) interface{} {
	switch value := value.(type) {
	case map[string]interface{}:
		return cloneObject(value)
	case Record:
		return cloneObject(value)
	case []interface{}:
		list := make([]interface{}, len(value))
		for i, item := range value {
			list[i] = cloneValue(item)
		}
		return list
	}
	return value
}
