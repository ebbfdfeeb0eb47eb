////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 quorumchat developers                                     //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package envelope

import "encoding/json"

// Params contains the engine's tunable settings.
type Params struct {
	// Threshold is the number of key servers that must cooperate to decrypt
	// a channel DEK. Smaller federations may lower it.
	Threshold int

	// LegacyLittleEndian enables decoding of DEK envelopes produced by the
	// old little-endian framed encoding. Deployed envelopes in append-only
	// key histories cannot be rewritten, so the flag is supported
	// indefinitely. It defaults to off.
	LegacyLittleEndian bool
}

// GetDefaultParams returns a Params object containing the default values.
func GetDefaultParams() Params {
	return Params{
		Threshold:          2,
		LegacyLittleEndian: false,
	}
}

// GetParameters returns the default network parameters, or override with
// given parameters, if set.
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
