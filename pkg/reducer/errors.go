package reducer

import "errors"

// ErrIDRequired is returned when constructing an entity without any usable
// identifier. It is the only error this package produces: patch mismatches
// and invalid targets degrade to no-ops so duplicated or misrouted events
// can never corrupt state.
var ErrIDRequired = errors.New("entity id required")
