package admin

import "errors"

var ErrForbidden = errors.New("administrator rights required")
