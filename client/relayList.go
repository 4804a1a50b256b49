////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package client

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
)

const relayListStorageKey = "relayURLs"

// defaultRelays is the bootstrap relay set seeded on first run. It is never
// re-seeded once the user has any relay configured, including an explicitly
// emptied list.
var defaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
	"wss://relay.nostr.band",
	"wss://nostr.wine",
	"wss://relay.snort.social",
}

// relayList persists the user's relay configuration.
type relayList struct {
	kv ekv.KeyValue
}

// LoadOrSeed returns the configured relay URLs, seeding the defaults on
// first run.
func (r *relayList) LoadOrSeed() ([]string, error) {
	var urls []string
	err := r.kv.GetInterface(relayListStorageKey, &urls)
	if ekv.Exists(err) {
		if err != nil {
			return nil, errors.Wrap(err, "stored relay list is corrupt")
		}
		return urls, nil
	}

	jww.INFO.Printf("Seeding default relay list (%d relays)",
		len(defaultRelays))
	if err := r.Set(defaultRelays); err != nil {
		return nil, err
	}
	return append([]string{}, defaultRelays...), nil
}

// Set replaces the stored relay list.
func (r *relayList) Set(urls []string) error {
	if urls == nil {
		urls = []string{}
	}
	return errors.Wrap(r.kv.SetInterface(relayListStorageKey, urls),
		"failed to persist relay list")
}
