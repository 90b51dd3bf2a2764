package clients

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-realtime/core/clients"

var logger = otelslog.NewLogger(scopeName)
