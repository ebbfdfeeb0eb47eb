////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package channels

import (
	"encoding/json"

	"gitlab.com/quorumchat/client/envelope"
)

// Params contains the manager's tunable settings.
type Params struct {
	// PageSize is the default pagination window when a request does not
	// set its own limit. It also bounds how many messages one poll fetches.
	PageSize uint64

	// OwnedQueryPageSize is the page size used when scanning the caller's
	// owned objects for membership capabilities.
	OwnedQueryPageSize int

	Envelope envelope.Params
}

// GetDefaultParams returns a Params object containing the default values.
func GetDefaultParams() Params {
	return Params{
		PageSize:           20,
		OwnedQueryPageSize: 50,
		Envelope:           envelope.GetDefaultParams(),
	}
}

// GetParameters returns the default parameters, or override with given
// parameters, if set.
func GetParameters(params string) (Params, error) {
	p := GetDefaultParams()
	if len(params) > 0 {
		err := json.Unmarshal([]byte(params), &p)
		if err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

// Marshal returns the JSON encoding of the Params object.
func (p Params) Marshal() ([]byte, error) {
	return json.Marshal(p)
}
