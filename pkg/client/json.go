package client

import jsoniter "github.com/json-iterator/go"

// json encodes request bodies and decodes responses, it is a drop-in replacement of encoding/json.
var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals
