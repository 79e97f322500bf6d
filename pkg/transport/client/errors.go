package client

import "github.com/nainya/evqlite/pkg/evqerr"

func errTimeout(msg string) error {
	return evqerr.New(evqerr.KindTimeout, msg)
}
