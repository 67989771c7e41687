package schemas

import _ "embed"

// Order holds the embedded Avro schema for order events.
//
//go:embed order.avsc
var Order []byte
