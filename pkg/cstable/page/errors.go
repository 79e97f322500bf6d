package page

import (
	"fmt"

	"github.com/nainya/evqlite/pkg/evqerr"
)

func errPageNotFound(pageID uint64) error {
	return evqerr.New(evqerr.KindNotFound, fmt.Sprintf("page %d not found in index", pageID))
}
