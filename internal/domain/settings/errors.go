package settings

import "errors"

var ErrUnknownSetting = errors.New("unknown setting key")
